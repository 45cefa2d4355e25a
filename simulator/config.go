package main

import (
	"fmt"
	"time"
)

// Config holds parameters for the technician simulator.
type Config struct {
	Broker      string
	TopicPrefix string
	APIURL      string
	// Technicians lists the ids the simulator answers for. Empty answers
	// every alert it receives.
	Technicians []string
	Delay       time.Duration
	AcceptRate  float64
	RejectRate  float64
	Seed        int64
	Verbose     bool
	// Auth is used when TokenURL is set.
	Auth AuthConfig
}

// Validate checks the configuration for obvious errors.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	if c.AcceptRate < 0 || c.RejectRate < 0 || c.AcceptRate+c.RejectRate > 1 {
		return fmt.Errorf("accept and reject rates must be within [0,1] and sum to at most 1")
	}
	if c.Auth.TokenURL != "" && c.Auth.ClientID == "" {
		return fmt.Errorf("client id is required with a token url")
	}
	return nil
}
