// Package config loads the homefix configuration from a YAML or JSON file
// with environment overrides.
//
// Environment variables prefixed with K_ override file values. Nested keys
// are separated by a double underscore, e.g. K_STORE__DRIVER=sqlite or
// K_COMMISSION__RATE_PERCENT=25.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/homefix/core/dispatch"
	"github.com/kilianp07/homefix/core/dispatch/logging"
	"github.com/kilianp07/homefix/core/metrics"
	"github.com/kilianp07/homefix/core/notification"
	"github.com/kilianp07/homefix/infra/sqlstore"
)

type Config struct {
	HTTP          HTTPConfig          `json:"http"`
	Store         sqlstore.Config     `json:"store"`
	Dispatch      dispatch.Config     `json:"dispatch"`
	DispatchLog   logging.Config      `json:"dispatch_log"`
	Commission    CommissionConfig    `json:"commission"`
	Notifications notification.Config `json:"notifications"`
	Messaging     MessagingConfig     `json:"messaging"`
	Metrics       metrics.Config      `json:"metrics"`
	Logging       LoggingConfig       `json:"logging"`
	Sentry        SentryConfig        `json:"sentry"`
}

// Load reads the configuration file at path, applies K_ environment
// overrides, fills defaults and validates every section. An empty path
// loads from the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies section defaults.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Store.SetDefaults()
	c.Dispatch.SetDefaults()
	c.DispatchLog.SetDefaults()
	c.Notifications.SetDefaults()
	c.Messaging.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"http", c.HTTP.Validate},
		{"store", c.Store.Validate},
		{"dispatch", c.Dispatch.Validate},
		{"dispatch_log", c.DispatchLog.Validate},
		{"commission", c.Commission.Validate},
		{"messaging", c.Messaging.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	return nil
}
