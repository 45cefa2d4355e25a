package dispatch

import (
	"fmt"
	"time"
)

// Config defines dispatch-related settings.
type Config struct {
	OfferTTLSeconds      int    `json:"offer_ttl_seconds"`
	DefaultCandidates    int    `json:"default_candidates"`
	BroadcastCandidates  int    `json:"broadcast_candidates"`
	SweepIntervalSeconds int    `json:"sweep_interval_seconds"`
	MaxRedispatchRounds  int    `json:"max_redispatch_rounds"`
	Timezone             string `json:"timezone"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.OfferTTLSeconds <= 0 {
		c.OfferTTLSeconds = 30
	}
	if c.DefaultCandidates <= 0 {
		c.DefaultCandidates = 1
	}
	if c.BroadcastCandidates <= 0 {
		c.BroadcastCandidates = 3
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = 5
	}
	if c.MaxRedispatchRounds <= 0 {
		c.MaxRedispatchRounds = 3
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

// Validate checks the configuration for obvious errors.
func (c Config) Validate() error {
	if c.BroadcastCandidates < c.DefaultCandidates {
		return fmt.Errorf("dispatch: broadcast_candidates (%d) must be >= default_candidates (%d)", c.BroadcastCandidates, c.DefaultCandidates)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("dispatch: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// OfferTTL returns the lifetime of a job offer.
func (c Config) OfferTTL() time.Duration { return time.Duration(c.OfferTTLSeconds) * time.Second }

// SweepInterval returns the period of the expiry sweep.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
