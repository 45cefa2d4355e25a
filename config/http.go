package config

import "fmt"

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr                string   `json:"addr"`
	AllowedOrigins      []string `json:"allowed_origins"`
	ReadTimeoutSeconds  int      `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `json:"write_timeout_seconds"`
	// Mode is passed to gin: debug, release or test.
	Mode string `json:"mode"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 15
	}
	if c.WriteTimeoutSeconds <= 0 {
		c.WriteTimeoutSeconds = 15
	}
	if c.Mode == "" {
		c.Mode = "release"
	}
}

// Validate checks mandatory fields.
func (c HTTPConfig) Validate() error {
	switch c.Mode {
	case "debug", "release", "test":
		return nil
	default:
		return fmt.Errorf("unknown gin mode %q", c.Mode)
	}
}
