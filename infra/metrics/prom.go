package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/homefix/core/metrics"
)

// PromSink records booking and dispatch events in Prometheus metrics.
type PromSink struct {
	transitions *prometheus.CounterVec
	payments    *prometheus.CounterVec
	responses   *prometheus.HistogramVec
	failures    *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homefix_booking_transitions_total",
		Help: "Booking status changes by source and target status",
	}, []string{"from", "to"}))
	if err != nil {
		return nil, err
	}
	payments, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homefix_payments_total",
		Help: "Payment status changes by resulting status",
	}, []string{"status"}))
	if err != nil {
		return nil, err
	}
	responses, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "homefix_offer_response_seconds",
		Help:    "Time from offer issue to its resolution",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 120},
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homefix_dispatch_failures_total",
		Help: "Dispatch rounds that found no eligible technician",
	}, []string{"exhausted"}))
	if err != nil {
		return nil, err
	}
	return &PromSink{transitions: transitions, payments: payments, responses: responses, failures: failures}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (s *PromSink) RecordBookingTransition(ev coremetrics.BookingTransitionEvent) error {
	s.transitions.WithLabelValues(ev.From.String(), ev.To.String()).Inc()
	return nil
}

func (s *PromSink) RecordPayment(ev coremetrics.PaymentEvent) error {
	s.payments.WithLabelValues(ev.Status.String()).Inc()
	return nil
}

func (s *PromSink) RecordOfferResolved(ev coremetrics.OfferResolvedEvent) error {
	s.responses.WithLabelValues(ev.Outcome.String()).Observe(ev.Latency.Seconds())
	return nil
}

func (s *PromSink) RecordDispatchFailure(ev coremetrics.DispatchFailureEvent) error {
	s.failures.WithLabelValues(strconv.FormatBool(ev.Exhausted)).Inc()
	return nil
}
