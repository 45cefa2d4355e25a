package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/homefix/core/metrics"
	"github.com/kilianp07/homefix/infra/logger"
)

const writeTimeout = 5 * time.Second

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes booking and dispatch events to InfluxDB as time series.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: writeTimeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordBookingTransition(ev coremetrics.BookingTransitionEvent) error {
	return s.write(write.NewPointWithMeasurement("booking_transition").
		AddTag("from", ev.From.String()).
		AddTag("to", ev.To.String()).
		AddField("booking_id", ev.BookingID).
		AddField("actor", ev.Actor).
		SetTime(ev.Time))
}

func (s *InfluxSink) RecordPayment(ev coremetrics.PaymentEvent) error {
	return s.write(write.NewPointWithMeasurement("payment_recorded").
		AddTag("status", ev.Status.String()).
		AddField("booking_id", ev.BookingID).
		SetTime(ev.Time))
}

func (s *InfluxSink) RecordOffersIssued(ev coremetrics.OffersIssuedEvent) error {
	return s.write(write.NewPointWithMeasurement("offers_issued").
		AddTag("redispatch", strconv.FormatBool(ev.Redispatch)).
		AddField("booking_id", ev.BookingID).
		AddField("count", ev.Count).
		SetTime(ev.Time))
}

func (s *InfluxSink) RecordOfferResolved(ev coremetrics.OfferResolvedEvent) error {
	return s.write(write.NewPointWithMeasurement("offer_resolved").
		AddTag("outcome", ev.Outcome.String()).
		AddTag("technician_id", ev.TechnicianID).
		AddField("offer_id", ev.OfferID).
		AddField("booking_id", ev.BookingID).
		AddField("latency_ms", ev.Latency.Milliseconds()).
		SetTime(ev.Time))
}

func (s *InfluxSink) RecordDispatchFailure(ev coremetrics.DispatchFailureEvent) error {
	return s.write(write.NewPointWithMeasurement("dispatch_failed").
		AddTag("exhausted", strconv.FormatBool(ev.Exhausted)).
		AddField("booking_id", ev.BookingID).
		AddField("round", ev.Round).
		SetTime(ev.Time))
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }
