package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/homefix/core/metrics"
	"github.com/kilianp07/homefix/core/model"
)

func captureServer(t *testing.T) (*httptest.Server, func() string) {
	t.Helper()
	var (
		mu   sync.Mutex
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, func() string {
		mu.Lock()
		defer mu.Unlock()
		return strings.TrimSpace(body)
	}
}

func TestInfluxSink_RecordBookingTransition(t *testing.T) {
	srv, body := captureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	err := sink.RecordBookingTransition(coremetrics.BookingTransitionEvent{
		BookingID: "b1", From: model.BookingPending, To: model.BookingConfirmed, Actor: "admin", Time: now,
	})
	if err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("booking_transition").
		AddTag("from", "pending").
		AddTag("to", "confirmed").
		AddField("booking_id", "b1").
		AddField("actor", "admin").
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if body() != expected {
		t.Errorf("unexpected body: %s", body())
	}
}

func TestInfluxSink_RecordOfferResolved(t *testing.T) {
	srv, body := captureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	err := sink.RecordOfferResolved(coremetrics.OfferResolvedEvent{
		OfferID: "o1", BookingID: "b1", TechnicianID: "t1",
		Outcome: model.OfferAccepted, Latency: 1500 * time.Millisecond, Time: now,
	})
	if err != nil {
		t.Fatalf("record error: %v", err)
	}
	if !strings.HasPrefix(body(), "offer_resolved,outcome=accepted,technician_id=t1 ") {
		t.Errorf("unexpected body: %s", body())
	}
	if !strings.Contains(body(), "latency_ms=1500i") {
		t.Errorf("latency missing: %s", body())
	}
}

func TestInfluxSink_RecordDispatchFailure(t *testing.T) {
	srv, body := captureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Org: "org", Bucket: "bucket"})
	defer sink.Close()

	if err := sink.RecordDispatchFailure(coremetrics.DispatchFailureEvent{BookingID: "b1", Round: 3, Exhausted: true, Time: time.Now()}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if !strings.HasPrefix(body(), "dispatch_failed,exhausted=true ") || !strings.Contains(body(), "round=3i") {
		t.Errorf("unexpected body: %s", body())
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	var mu sync.Mutex
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			mu.Lock()
			called = true
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	mu.Lock()
	defer mu.Unlock()
	if !called {
		t.Errorf("health endpoint not called")
	}
}
