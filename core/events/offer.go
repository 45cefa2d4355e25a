package events

import (
	"time"

	"github.com/kilianp07/homefix/core/model"
)

// OffersIssued is published when dispatch creates offers for a booking.
type OffersIssued struct {
	BookingID  string
	Offers     []model.JobOffer
	Redispatch bool
	Time       time.Time
}

func (OffersIssued) Kind() string { return "offers_issued" }

// OfferResolved is published when an offer leaves the pending state.
// Latency is measured from issue time.
type OfferResolved struct {
	Offer   model.JobOffer
	Outcome model.OfferState
	Latency time.Duration
	Time    time.Time
}

func (OfferResolved) Kind() string { return "offer_resolved" }

// DispatchFailed is published when no eligible technician was found.
// Exhausted is set once the bounded re-dispatch rounds ran out.
type DispatchFailed struct {
	BookingID string
	Round     int
	Exhausted bool
	Time      time.Time
}

func (DispatchFailed) Kind() string { return "dispatch_failed" }
