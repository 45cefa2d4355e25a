// Package store defines the persistence gateway used by the booking,
// dispatch and notification components. Every mutation of a shared record
// is a conditional update: the write only happens if its precondition still
// holds against the stored record, otherwise ErrConflict is returned and
// nothing changes.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/kilianp07/homefix/core/model"
)

// ErrConflict is returned when a conditional update's precondition no
// longer holds.
var ErrConflict = errors.New("store: precondition failed")

// BookingPrecondition restricts a booking update. Zero fields are ignored.
type BookingPrecondition struct {
	Version    *int64
	Statuses   []model.BookingStatus
	Unassigned bool
}

// Holds evaluates the precondition against b.
func (p BookingPrecondition) Holds(b model.Booking) bool {
	if p.Version != nil && b.Version != *p.Version {
		return false
	}
	if len(p.Statuses) > 0 && !slices.Contains(p.Statuses, b.Status) {
		return false
	}
	if p.Unassigned && b.Assigned() {
		return false
	}
	return true
}

// BookingPatch lists the booking fields to overwrite. Nil fields are left
// untouched. Every applied patch bumps the version.
type BookingPatch struct {
	Status               *model.BookingStatus
	PaymentStatus        *model.PaymentStatus
	TechnicianID         *string
	ClearTechnician      bool
	AssignedAt           *time.Time
	TechnicianAcceptedAt *time.Time
	TechnicianRejectedAt *time.Time
	RejectionReason      *string
	TechnicianEarnings   *int64
	PlatformCommission   *int64
	CommissionFallback   *bool
	UpdatedAt            time.Time
}

// Apply writes the patch onto b.
func (p BookingPatch) Apply(b *model.Booking) {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		b.PaymentStatus = *p.PaymentStatus
	}
	if p.ClearTechnician {
		b.TechnicianID = nil
	}
	if p.TechnicianID != nil {
		b.TechnicianID = ptr(*p.TechnicianID)
	}
	if p.AssignedAt != nil {
		b.AssignedAt = ptr(*p.AssignedAt)
	}
	if p.TechnicianAcceptedAt != nil {
		b.TechnicianAcceptedAt = ptr(*p.TechnicianAcceptedAt)
	}
	if p.TechnicianRejectedAt != nil {
		b.TechnicianRejectedAt = ptr(*p.TechnicianRejectedAt)
	}
	if p.RejectionReason != nil {
		b.RejectionReason = ptr(*p.RejectionReason)
	}
	if p.TechnicianEarnings != nil {
		b.TechnicianEarnings = ptr(*p.TechnicianEarnings)
	}
	if p.PlatformCommission != nil {
		b.PlatformCommission = ptr(*p.PlatformCommission)
	}
	if p.CommissionFallback != nil {
		b.CommissionFallback = *p.CommissionFallback
	}
	if !p.UpdatedAt.IsZero() {
		b.UpdatedAt = p.UpdatedAt
	}
	b.Version++
}

// BookingStore persists bookings.
type BookingStore interface {
	CreateBooking(ctx context.Context, b model.Booking) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	// UpdateBooking applies patch only if pre holds for the stored booking.
	UpdateBooking(ctx context.Context, id string, pre BookingPrecondition, patch BookingPatch) (model.Booking, error)
}

// TechnicianFilter selects technicians. Zero fields are ignored.
type TechnicianFilter struct {
	Status         model.TechnicianStatus
	Specialization string
}

// Matches evaluates the filter against t.
func (f TechnicianFilter) Matches(t model.Technician) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Specialization != "" && !t.Specializes(f.Specialization) {
		return false
	}
	return true
}

// TechnicianStore reads technician profiles. PutTechnician exists for the
// profile service and for seeding.
type TechnicianStore interface {
	PutTechnician(ctx context.Context, t model.Technician) error
	GetTechnician(ctx context.Context, id string) (model.Technician, error)
	QueryTechnicians(ctx context.Context, f TechnicianFilter) ([]model.Technician, error)
}

// OfferPatch describes an offer state change.
type OfferPatch struct {
	State           model.OfferState
	RespondedAt     *time.Time
	RejectionReason *string
}

// OfferFilter selects offers. Zero fields are ignored.
type OfferFilter struct {
	BookingID     string
	TechnicianID  string
	States        []model.OfferState
	ExpiresBefore time.Time
}

// Matches evaluates the filter against o.
func (f OfferFilter) Matches(o model.JobOffer) bool {
	if f.BookingID != "" && o.BookingID != f.BookingID {
		return false
	}
	if f.TechnicianID != "" && o.TechnicianID != f.TechnicianID {
		return false
	}
	if len(f.States) > 0 && !slices.Contains(f.States, o.State) {
		return false
	}
	if !f.ExpiresBefore.IsZero() && !o.ExpiresAt.Before(f.ExpiresBefore) {
		return false
	}
	return true
}

// OfferStore persists job offers.
type OfferStore interface {
	CreateOffers(ctx context.Context, offers []model.JobOffer) error
	GetOffer(ctx context.Context, id string) (model.JobOffer, error)
	// UpdateOffer applies patch only if the stored state is one of from.
	UpdateOffer(ctx context.Context, id string, from []model.OfferState, patch OfferPatch) (model.JobOffer, error)
	// QueryOffers returns matching offers ordered by issue time then id.
	QueryOffers(ctx context.Context, f OfferFilter) ([]model.JobOffer, error)
}

// NotificationFilter selects notifications of one scope.
type NotificationFilter struct {
	Scope      model.Scope
	UnreadOnly bool
}

// Matches evaluates the filter against n.
func (f NotificationFilter) Matches(n model.Notification) bool {
	if n.Scope != f.Scope {
		return false
	}
	return !f.UnreadOnly || !n.IsRead
}

// NotificationPatch mutates the flags of a notification.
type NotificationPatch struct {
	IsRead          *bool
	ToggleImportant bool
}

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	GetNotification(ctx context.Context, id string) (model.Notification, error)
	UpdateNotification(ctx context.Context, id string, patch NotificationPatch) (model.Notification, error)
	// QueryNotifications returns matching notifications, newest first.
	QueryNotifications(ctx context.Context, f NotificationFilter) ([]model.Notification, error)
	CountNotifications(ctx context.Context, f NotificationFilter) (int, error)
	MarkAllRead(ctx context.Context, scope model.Scope) (int, error)
}

// RetryStore holds the re-dispatch backlog.
type RetryStore interface {
	// BumpRetry increments the rounds of a booking's retry entry, creating
	// it with one round when absent.
	BumpRetry(ctx context.Context, bookingID string, now time.Time) (model.DispatchRetry, error)
	ListRetries(ctx context.Context) ([]model.DispatchRetry, error)
	DeleteRetry(ctx context.Context, bookingID string) error
}

// Gateway is the full persistence surface.
type Gateway interface {
	BookingStore
	TechnicianStore
	OfferStore
	NotificationStore
	RetryStore
}

func ptr[T any](v T) *T { return &v }
