package metrics

import (
	"context"

	"github.com/kilianp07/homefix/core/events"
	coremetrics "github.com/kilianp07/homefix/core/metrics"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events. It stops when the context is canceled or the bus closes; the
// returned channel is closed then.
func StartEventCollector(ctx context.Context, bus eventbus.Bus[events.Event], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := Record(sink, ev); err != nil {
					log.Warnf("record %s: %v", ev.Kind(), err)
				}
			}
		}
	}()
	return done
}

// Record forwards one event to the recorders sink implements.
func Record(sink coremetrics.MetricsSink, ev events.Event) error {
	switch e := ev.(type) {
	case events.BookingTransitioned:
		return sink.RecordBookingTransition(coremetrics.BookingTransitionEvent{
			BookingID: e.BookingID, From: e.From, To: e.To, Actor: e.Actor, Time: e.Time,
		})
	case events.PaymentRecorded:
		if r, ok := sink.(coremetrics.PaymentRecorder); ok {
			return r.RecordPayment(coremetrics.PaymentEvent{BookingID: e.BookingID, Status: e.Status, Time: e.Time})
		}
	case events.OffersIssued:
		if r, ok := sink.(coremetrics.OffersIssuedRecorder); ok {
			return r.RecordOffersIssued(coremetrics.OffersIssuedEvent{
				BookingID: e.BookingID, Count: len(e.Offers), Redispatch: e.Redispatch, Time: e.Time,
			})
		}
	case events.OfferResolved:
		if r, ok := sink.(coremetrics.OfferResolvedRecorder); ok {
			return r.RecordOfferResolved(coremetrics.OfferResolvedEvent{
				OfferID: e.Offer.ID, BookingID: e.Offer.BookingID, TechnicianID: e.Offer.TechnicianID,
				Outcome: e.Outcome, Latency: e.Latency, Time: e.Time,
			})
		}
	case events.DispatchFailed:
		if r, ok := sink.(coremetrics.DispatchFailureRecorder); ok {
			return r.RecordDispatchFailure(coremetrics.DispatchFailureEvent{
				BookingID: e.BookingID, Round: e.Round, Exhausted: e.Exhausted, Time: e.Time,
			})
		}
	}
	return nil
}
