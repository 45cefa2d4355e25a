package metrics

import (
	"time"

	"github.com/kilianp07/homefix/core/model"
)

// BookingTransitionEvent records a booking status change.
type BookingTransitionEvent struct {
	BookingID string
	From      model.BookingStatus
	To        model.BookingStatus
	Actor     string
	Time      time.Time
}

// MetricsSink records booking and dispatch activity for observability.
// Optional recorder interfaces below are detected with type assertions.
type MetricsSink interface {
	RecordBookingTransition(ev BookingTransitionEvent) error
}

// PaymentEvent records a payment status change.
type PaymentEvent struct {
	BookingID string
	Status    model.PaymentStatus
	Time      time.Time
}

// PaymentRecorder records payment status changes.
type PaymentRecorder interface {
	RecordPayment(ev PaymentEvent) error
}

// OffersIssuedEvent records a dispatch round.
type OffersIssuedEvent struct {
	BookingID  string
	Count      int
	Redispatch bool
	Time       time.Time
}

// OffersIssuedRecorder records dispatch rounds.
type OffersIssuedRecorder interface {
	RecordOffersIssued(ev OffersIssuedEvent) error
}

// OfferResolvedEvent records an offer leaving the pending state.
type OfferResolvedEvent struct {
	OfferID      string
	BookingID    string
	TechnicianID string
	Outcome      model.OfferState
	Latency      time.Duration
	Time         time.Time
}

// OfferResolvedRecorder records offer outcomes.
type OfferResolvedRecorder interface {
	RecordOfferResolved(ev OfferResolvedEvent) error
}

// DispatchFailureEvent records a dispatch that found no technician.
type DispatchFailureEvent struct {
	BookingID string
	Round     int
	Exhausted bool
	Time      time.Time
}

// DispatchFailureRecorder records failed dispatches.
type DispatchFailureRecorder interface {
	RecordDispatchFailure(ev DispatchFailureEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordBookingTransition(BookingTransitionEvent) error { return nil }
func (NopSink) RecordPayment(PaymentEvent) error                     { return nil }
func (NopSink) RecordOffersIssued(OffersIssuedEvent) error           { return nil }
func (NopSink) RecordOfferResolved(OfferResolvedEvent) error         { return nil }
func (NopSink) RecordDispatchFailure(DispatchFailureEvent) error     { return nil }

// MultiSink fans events out to several sinks. Each method returns the first
// error but still forwards to every sink.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func forward[R any](sinks []MetricsSink, call func(R) error) error {
	var first error
	for _, s := range sinks {
		if r, ok := s.(R); ok {
			if err := call(r); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *MultiSink) RecordBookingTransition(ev BookingTransitionEvent) error {
	return forward(m.Sinks, func(r MetricsSink) error { return r.RecordBookingTransition(ev) })
}

func (m *MultiSink) RecordPayment(ev PaymentEvent) error {
	return forward(m.Sinks, func(r PaymentRecorder) error { return r.RecordPayment(ev) })
}

func (m *MultiSink) RecordOffersIssued(ev OffersIssuedEvent) error {
	return forward(m.Sinks, func(r OffersIssuedRecorder) error { return r.RecordOffersIssued(ev) })
}

func (m *MultiSink) RecordOfferResolved(ev OfferResolvedEvent) error {
	return forward(m.Sinks, func(r OfferResolvedRecorder) error { return r.RecordOfferResolved(ev) })
}

func (m *MultiSink) RecordDispatchFailure(ev DispatchFailureEvent) error {
	return forward(m.Sinks, func(r DispatchFailureRecorder) error { return r.RecordDispatchFailure(ev) })
}
