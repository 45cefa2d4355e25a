package messaging

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kilianp07/homefix/core/events"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/monitoring"
	"github.com/kilianp07/homefix/internal/eventbus"
)

const defaultSendTimeout = 5 * time.Second

// Outbound is one message derived from an event.
type Outbound struct {
	Channel Channel
	Payload Payload
}

// Messages maps an event to the outbound messages it triggers.
func Messages(ev events.Event) []Outbound {
	switch e := ev.(type) {
	case events.OffersIssued:
		out := make([]Outbound, 0, len(e.Offers))
		for _, o := range e.Offers {
			out = append(out, Outbound{ChannelTechnicianAlert, Payload{
				Recipient:   o.TechnicianID,
				Type:        model.NotificationJobOffer,
				ReferenceID: o.ID,
				Message:     fmt.Sprintf("New job offer for booking %s, respond before %s", e.BookingID, o.ExpiresAt.Format(time.RFC3339)),
				Important:   true,
				Time:        e.Time,
			}})
		}
		return out
	case events.OfferResolved:
		var msg string
		switch e.Outcome {
		case model.OfferSuperseded:
			msg = fmt.Sprintf("Booking %s was taken by another technician", e.Offer.BookingID)
		case model.OfferExpired:
			msg = fmt.Sprintf("Your offer for booking %s expired", e.Offer.BookingID)
		default:
			return nil
		}
		return []Outbound{{ChannelTechnicianAlert, Payload{
			Recipient: e.Offer.TechnicianID, Type: model.NotificationJobOffer,
			ReferenceID: e.Offer.ID, Message: msg, Time: e.Time,
		}}}
	case events.BookingTransitioned:
		kind := model.NotificationBooking
		if e.To == model.BookingCancelled {
			kind = model.NotificationCancellation
		}
		out := []Outbound{{ChannelAdminEmail, Payload{
			Recipient: AdminRecipient, Type: kind, ReferenceID: e.BookingID,
			Message: fmt.Sprintf("Booking %s moved from %s to %s", e.BookingID, e.From, e.To),
			Time:    e.Time,
		}}}
		if e.To == model.BookingCancelled && e.TechnicianID != "" {
			out = append(out, Outbound{ChannelTechnicianAlert, Payload{
				Recipient: e.TechnicianID, Type: kind, ReferenceID: e.BookingID,
				Message: fmt.Sprintf("Booking %s was cancelled", e.BookingID), Important: true, Time: e.Time,
			}})
		}
		return out
	case events.PaymentRecorded:
		p := Payload{
			Recipient: AdminRecipient, Type: model.NotificationPayment, ReferenceID: e.BookingID,
			Message: fmt.Sprintf("Payment for booking %s is %s", e.BookingID, e.Status), Time: e.Time,
		}
		if e.Status != model.PaymentFailed {
			return []Outbound{{ChannelAdminEmail, p}}
		}
		p.Important = true
		return []Outbound{{ChannelAdminEmail, p}, {ChannelAdminSMS, p}}
	case events.DispatchFailed:
		if e.Round > 0 && !e.Exhausted {
			return nil
		}
		msg := fmt.Sprintf("No eligible technician for booking %s", e.BookingID)
		if e.Exhausted {
			msg = fmt.Sprintf("Booking %s still unassigned after %d re-dispatch rounds", e.BookingID, e.Round)
		}
		p := Payload{
			Recipient: AdminRecipient, Type: model.NotificationBooking, ReferenceID: e.BookingID,
			Message: msg, Important: true, Time: e.Time,
		}
		return []Outbound{{ChannelAdminEmail, p}, {ChannelAdminSMS, p}}
	}
	return nil
}

// Relay subscribes to the event bus and sends the derived messages.
type Relay struct {
	messenger Messenger
	log       logger.Logger
	timeout   time.Duration
	sent      atomic.Uint64
	failed    atomic.Uint64
}

// NewRelay creates a Relay sending through m.
func NewRelay(m Messenger, log logger.Logger) *Relay {
	return &Relay{messenger: m, log: logger.OrNop(log), timeout: defaultSendTimeout}
}

// Start consumes bus events until ctx is done or the bus closes. The
// returned channel is closed when the relay stops.
func (r *Relay) Start(ctx context.Context, bus eventbus.Bus[events.Event]) <-chan struct{} {
	done := make(chan struct{})
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
				r.Handle(ctx, ev)
			}
		}
	}()
	return done
}

// Handle sends every message derived from ev. Failures are logged and
// captured, never returned.
func (r *Relay) Handle(ctx context.Context, ev events.Event) {
	for _, m := range Messages(ev) {
		sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.messenger.Notify(sendCtx, m.Channel, m.Payload)
		cancel()
		if err != nil {
			r.failed.Add(1)
			r.log.Errorf("send %s to %s for %s: %v", m.Channel, m.Payload.Recipient, ev.Kind(), err)
			monitoring.CaptureException(err, map[string]string{
				"component": "messaging",
				"channel":   string(m.Channel),
				"event":     ev.Kind(),
			})
			continue
		}
		r.sent.Add(1)
	}
}

// Stats returns how many messages were sent and how many failed.
func (r *Relay) Stats() (sent, failed uint64) { return r.sent.Load(), r.failed.Load() }
