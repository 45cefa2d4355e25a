package main

import (
	"math/rand"
	"sync"
)

// Decision is how a simulated technician answers a job offer.
type Decision int

const (
	// Ignore lets the offer expire.
	Ignore Decision = iota
	Accept
	Reject
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "ignore"
	}
}

// ResponseStrategy decides how a technician answers an offer.
type ResponseStrategy interface {
	Decide(technicianID, offerID string) Decision
}

// AlwaysAccept accepts every offer.
type AlwaysAccept struct{}

func (AlwaysAccept) Decide(string, string) Decision { return Accept }

// RandomResponse accepts with AcceptRate, rejects with RejectRate and
// ignores the offer otherwise.
type RandomResponse struct {
	AcceptRate float64
	RejectRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomResponse creates a seeded strategy.
func NewRandomResponse(accept, reject float64, seed int64) *RandomResponse {
	return &RandomResponse{AcceptRate: accept, RejectRate: reject, rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomResponse) Decide(string, string) Decision {
	r.mu.Lock()
	v := r.rng.Float64()
	r.mu.Unlock()
	switch {
	case v < r.AcceptRate:
		return Accept
	case v < r.AcceptRate+r.RejectRate:
		return Reject
	default:
		return Ignore
	}
}
