package config

import (
	"fmt"

	"github.com/kilianp07/homefix/core/commission"
)

// CommissionConfig holds the platform commission rate. A missing rate is
// legal: the calculator then falls back to its default and flags the split.
type CommissionConfig struct {
	RatePercent *float64 `json:"rate_percent"`
}

// Validate rejects a configured rate outside [0,100].
func (c CommissionConfig) Validate() error {
	if c.RatePercent != nil && (*c.RatePercent < 0 || *c.RatePercent > 100) {
		return fmt.Errorf("rate_percent %v out of range", *c.RatePercent)
	}
	return nil
}

// RateProvider exposes the configured rate to the calculator.
func (c CommissionConfig) RateProvider() commission.RateProvider {
	return commission.StaticRate{Percent: c.RatePercent}
}
