package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	offersIssued       *prometheus.CounterVec
	noCandidates       prometheus.Counter
	offerOutcomes      *prometheus.CounterVec
	acceptLatency      prometheus.Histogram
	redispatchExhausts prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, *prometheus.CounterVec, prometheus.Histogram, prometheus.Counter) {
	issued := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homefix_offers_issued_total",
			Help: "Number of job offers issued",
		},
		[]string{"kind"},
	)
	none := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "homefix_dispatch_no_candidates_total",
			Help: "Number of dispatch rounds that found no eligible technician",
		},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homefix_offer_outcomes_total",
			Help: "Number of job offers leaving the pending state, by outcome",
		},
		[]string{"outcome"},
	)
	latency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homefix_offer_accept_latency_seconds",
			Help:    "Time from offer issue to acceptance",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 60},
		},
	)
	exhausted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "homefix_redispatch_exhausted_total",
			Help: "Number of bookings handed to manual assignment after bounded re-dispatch",
		},
	)
	return issued, none, outcomes, latency, exhausted
}

func init() {
	offersIssued, noCandidates, offerOutcomes, acceptLatency, redispatchExhausts = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(offersIssued, noCandidates, offerOutcomes, acceptLatency, redispatchExhausts)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	offersIssued, noCandidates, offerOutcomes, acceptLatency, redispatchExhausts = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
