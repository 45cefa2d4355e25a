// Package booking validates and applies booking status transitions.
package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/juju/clock"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/commission"
	"github.com/kilianp07/homefix/core/events"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/notification"
	"github.com/kilianp07/homefix/core/store"
)

var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.BookingPending:   {model.BookingConfirmed, model.BookingAssigned, model.BookingCancelled},
	model.BookingConfirmed: {model.BookingAssigned, model.BookingCompleted, model.BookingCancelled},
	model.BookingAssigned:  {model.BookingCompleted, model.BookingCancelled},
}

// Allowed reports whether from -> to is in the transition table.
func Allowed(from, to model.BookingStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Splitter computes the commission split of a price.
type Splitter interface {
	Split(ctx context.Context, price int64) (commission.Split, error)
}

// Notifier records notifications.
type Notifier interface {
	Create(ctx context.Context, d notification.Draft) (model.Notification, error)
}

// Publisher emits domain events.
type Publisher interface {
	Publish(events.Event)
}

// TransitionRequest asks for a booking to move to Target. TechnicianID is
// required when Target is assigned.
type TransitionRequest struct {
	BookingID    string
	Target       model.BookingStatus
	Actor        string
	TechnicianID string
}

// TransitionResult reports the booking state after a request.
type TransitionResult struct {
	Status   model.BookingStatus `json:"status"`
	Version  int64               `json:"version"`
	NoChange bool                `json:"noChange"`
}

// PaymentResult reports the booking payment state after a request.
type PaymentResult struct {
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
	Version       int64               `json:"version"`
	NoChange      bool                `json:"noChange"`
}

// Machine is the BookingStateMachine.
type Machine struct {
	bookings    store.BookingStore
	technicians store.TechnicianStore
	splitter    Splitter
	notifier    Notifier
	bus         Publisher
	clock       clock.Clock
	log         logger.Logger
}

// NewMachine creates a Machine. technicians, bus and log may be nil.
func NewMachine(bookings store.BookingStore, technicians store.TechnicianStore, splitter Splitter, notifier Notifier, bus Publisher, clk clock.Clock, log logger.Logger) (*Machine, error) {
	if bookings == nil || splitter == nil || notifier == nil {
		return nil, fmt.Errorf("booking: nil parameter provided to NewMachine")
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Machine{
		bookings:    bookings,
		technicians: technicians,
		splitter:    splitter,
		notifier:    notifier,
		bus:         bus,
		clock:       clk,
		log:         logger.OrNop(log),
	}, nil
}

// RequestTransition moves a booking to req.Target. The write is conditional
// on the version read; a concurrent writer makes it fail with
// ConcurrencyConflict and the caller must re-read before retrying.
func (m *Machine) RequestTransition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	target, err := model.ParseBookingStatus(string(req.Target))
	if err != nil {
		return TransitionResult{}, err
	}
	b, err := m.bookings.GetBooking(ctx, req.BookingID)
	if err != nil {
		return TransitionResult{}, err
	}
	if b.Status == target {
		return TransitionResult{Status: b.Status, Version: b.Version, NoChange: true}, nil
	}
	if !Allowed(b.Status, target) {
		return TransitionResult{}, apperr.New(apperr.CodeInvalidTransition, "booking %s cannot move from %s to %s", b.ID, b.Status, target)
	}

	now := m.clock.Now().UTC()
	version := b.Version
	pre := store.BookingPrecondition{Version: &version}
	patch := store.BookingPatch{Status: &target, UpdatedAt: now}
	switch target {
	case model.BookingAssigned:
		if req.TechnicianID == "" {
			return TransitionResult{}, apperr.New(apperr.CodeInvalidTransition, "assigning booking %s requires a technician", b.ID)
		}
		if m.technicians != nil {
			if _, err := m.technicians.GetTechnician(ctx, req.TechnicianID); err != nil {
				return TransitionResult{}, err
			}
		}
		pre.Unassigned = true
		patch.TechnicianID = &req.TechnicianID
		patch.AssignedAt = &now
	case model.BookingCancelled:
		patch.ClearTechnician = true
	case model.BookingCompleted:
		split, err := m.splitter.Split(ctx, b.Price)
		if err != nil {
			return TransitionResult{}, err
		}
		if split.UsedFallback {
			m.log.Warnf("booking %s completed with fallback commission rate %.2f%%", b.ID, split.RatePercent)
		}
		patch.TechnicianEarnings = &split.TechnicianEarnings
		patch.PlatformCommission = &split.PlatformCommission
		patch.CommissionFallback = &split.UsedFallback
	}

	updated, err := m.bookings.UpdateBooking(ctx, b.ID, pre, patch)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return TransitionResult{}, apperr.Wrap(apperr.CodeConcurrencyConflict, err, "booking %s changed since version %d", b.ID, version)
		}
		return TransitionResult{}, err
	}
	m.log.Infof("booking %s: %s -> %s by %s", b.ID, b.Status, target, req.Actor)

	kind := model.NotificationBooking
	if target == model.BookingCancelled {
		kind = model.NotificationCancellation
	}
	m.notify(ctx, notification.Draft{
		Scope:       model.AdminScope,
		Type:        kind,
		ReferenceID: b.ID,
		Message:     fmt.Sprintf("Booking %s moved from %s to %s by %s", b.ID, b.Status, target, actorOrSystem(req.Actor)),
	})
	if m.bus != nil {
		ev := events.BookingTransitioned{BookingID: b.ID, From: b.Status, To: target, Actor: req.Actor, Time: now}
		switch {
		case updated.TechnicianID != nil:
			ev.TechnicianID = *updated.TechnicianID
		case b.TechnicianID != nil:
			// cancellation released the technician
			ev.TechnicianID = *b.TechnicianID
		}
		m.bus.Publish(ev)
	}
	return TransitionResult{Status: updated.Status, Version: updated.Version}, nil
}

// RecordPayment updates the payment status of a booking under the same
// version precondition as RequestTransition.
func (m *Machine) RecordPayment(ctx context.Context, bookingID string, status model.PaymentStatus, actor string) (PaymentResult, error) {
	status, err := model.ParsePaymentStatus(string(status))
	if err != nil {
		return PaymentResult{}, err
	}
	b, err := m.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return PaymentResult{}, err
	}
	if b.PaymentStatus == status {
		return PaymentResult{PaymentStatus: status, Version: b.Version, NoChange: true}, nil
	}
	now := m.clock.Now().UTC()
	version := b.Version
	updated, err := m.bookings.UpdateBooking(ctx, bookingID, store.BookingPrecondition{Version: &version}, store.BookingPatch{PaymentStatus: &status, UpdatedAt: now})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return PaymentResult{}, apperr.Wrap(apperr.CodeConcurrencyConflict, err, "booking %s changed since version %d", bookingID, version)
		}
		return PaymentResult{}, err
	}
	m.notify(ctx, notification.Draft{
		Scope:       model.AdminScope,
		Type:        model.NotificationPayment,
		ReferenceID: bookingID,
		Message:     fmt.Sprintf("Payment for booking %s is now %s", bookingID, status),
		Important:   status == model.PaymentFailed,
	})
	if m.bus != nil {
		m.bus.Publish(events.PaymentRecorded{BookingID: bookingID, Status: status, Actor: actor, Time: now})
	}
	return PaymentResult{PaymentStatus: updated.PaymentStatus, Version: updated.Version}, nil
}

// notify records a notification. A failure never undoes the committed
// booking change.
func (m *Machine) notify(ctx context.Context, d notification.Draft) {
	if _, err := m.notifier.Create(ctx, d); err != nil {
		m.log.Errorf("notification for booking %s: %v", d.ReferenceID, err)
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
