package model

import "time"

// Booking is a customer's request for a service.
type Booking struct {
	ID                   string        `json:"id"`
	CustomerID           string        `json:"customerId"`
	ServiceType          string        `json:"serviceType"`
	ScheduledAt          *time.Time    `json:"scheduledAt"`
	Status               BookingStatus `json:"status"`
	PaymentStatus        PaymentStatus `json:"paymentStatus"`
	Price                int64         `json:"price"` // smallest currency unit
	TechnicianID         *string       `json:"technicianId"`
	AssignedAt           *time.Time    `json:"assignedAt"`
	TechnicianAcceptedAt *time.Time    `json:"technicianAcceptedAt"`
	TechnicianRejectedAt *time.Time    `json:"technicianRejectedAt"`
	RejectionReason      *string       `json:"rejectionReason"`
	TechnicianEarnings   *int64        `json:"technicianEarnings"`
	PlatformCommission   *int64        `json:"platformCommission"`
	CommissionFallback   bool          `json:"commissionFallback"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
	Version              int64         `json:"version"`
}

// Assigned reports whether a technician holds the booking.
func (b Booking) Assigned() bool { return b.TechnicianID != nil && *b.TechnicianID != "" }

// OpenForDispatch reports whether offers may still be issued for the booking.
func (b Booking) OpenForDispatch() bool {
	return !b.Assigned() && (b.Status == BookingPending || b.Status == BookingConfirmed)
}

// CheckInvariant verifies the technician/status coupling of a booking.
func (b Booking) CheckInvariant() bool {
	if b.Assigned() && b.Status != BookingAssigned && b.Status != BookingCompleted {
		return false
	}
	if b.Status == BookingAssigned && !b.Assigned() {
		return false
	}
	return true
}

// DispatchRetry tracks a booking whose re-dispatch found no technician and
// that the sweep should try again.
type DispatchRetry struct {
	BookingID string    `json:"bookingId"`
	Rounds    int       `json:"rounds"`
	UpdatedAt time.Time `json:"updatedAt"`
}
