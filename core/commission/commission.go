// Package commission splits a booking price between the technician and the
// platform.
package commission

import (
	"context"
	"errors"
	"math"
	"math/big"

	"github.com/kilianp07/homefix/core/apperr"
)

// DefaultRatePercent is applied when no rate is configured.
const DefaultRatePercent = 30.0

// Split is the result of dividing a price.
type Split struct {
	Price              int64   `json:"price"`
	RatePercent        float64 `json:"ratePercent"`
	TechnicianEarnings int64   `json:"technicianEarnings"`
	PlatformCommission int64   `json:"platformCommission"`
	UsedFallback       bool    `json:"usedFallback"`
}

// RateProvider returns the configured commission rate in percent, or an
// error matching apperr.ErrConfigMissing when none is available.
type RateProvider interface {
	CommissionRate(ctx context.Context) (float64, error)
}

// StaticRate is a RateProvider backed by an optional value.
type StaticRate struct {
	Percent *float64
}

func (s StaticRate) CommissionRate(context.Context) (float64, error) {
	if s.Percent == nil {
		return 0, apperr.New(apperr.CodeConfigMissing, "commission rate not configured")
	}
	return *s.Percent, nil
}

// SplitWithRate divides price at ratePercent. The platform share is rounded
// half up at two decimal places of rate precision; the technician receives
// the remainder so both parts always add up to price.
func SplitWithRate(price int64, ratePercent float64) (Split, error) {
	if price < 0 {
		return Split{}, apperr.New(apperr.CodeInvalidRate, "price must not be negative, got %d", price)
	}
	if math.IsNaN(ratePercent) || ratePercent < 0 || ratePercent > 100 {
		return Split{}, apperr.New(apperr.CodeInvalidRate, "commission rate must be within [0,100], got %v", ratePercent)
	}
	bps := int64(math.Round(ratePercent * 100))
	num := new(big.Int).Mul(big.NewInt(price), big.NewInt(bps))
	num.Add(num, big.NewInt(5000))
	num.Quo(num, big.NewInt(10000))
	platform := num.Int64()
	return Split{
		Price:              price,
		RatePercent:        ratePercent,
		TechnicianEarnings: price - platform,
		PlatformCommission: platform,
	}, nil
}

// Calculator applies the configured rate.
type Calculator struct {
	rates RateProvider
}

// NewCalculator returns a Calculator. A nil provider always falls back.
func NewCalculator(rates RateProvider) *Calculator {
	if rates == nil {
		rates = StaticRate{}
	}
	return &Calculator{rates: rates}
}

// Split divides price at the configured rate. When the rate is missing the
// default rate is used and the result is flagged with UsedFallback.
func (c *Calculator) Split(ctx context.Context, price int64) (Split, error) {
	rate, err := c.rates.CommissionRate(ctx)
	fallback := false
	if err != nil {
		if !errors.Is(err, apperr.ErrConfigMissing) {
			return Split{}, err
		}
		rate, fallback = DefaultRatePercent, true
	}
	s, err := SplitWithRate(price, rate)
	if err != nil {
		return Split{}, err
	}
	s.UsedFallback = fallback
	return s, nil
}
