package model

import "time"

// JobOffer is a time-bounded proposal of a booking to one technician.
// Offers are never deleted; they form the audit trail of a dispatch.
type JobOffer struct {
	ID              string     `json:"id"`
	BookingID       string     `json:"bookingId"`
	TechnicianID    string     `json:"technicianId"`
	State           OfferState `json:"state"`
	IssuedAt        time.Time  `json:"issuedAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	RespondedAt     *time.Time `json:"respondedAt"`
	RejectionReason *string    `json:"rejectionReason"`
}

// ExpiredAt reports whether the offer's TTL has elapsed at now.
func (o JobOffer) ExpiredAt(now time.Time) bool { return now.After(o.ExpiresAt) }

// Live reports whether the offer is pending and within its TTL.
func (o JobOffer) Live(now time.Time) bool { return o.State == OfferPending && !o.ExpiredAt(now) }
