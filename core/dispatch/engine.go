// Package dispatch matches bookings to technicians through time-bounded job
// offers and arbitrates the responses.
//
// At most one technician is ever assigned to a booking. The guarantee comes
// from a single conditional booking update (unassigned and still open) in
// Arbitrator.Accept; offers are bookkeeping around that write.
package dispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/events"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/notification"
	"github.com/kilianp07/homefix/core/store"
)

// Notifier records notifications.
type Notifier interface {
	Create(ctx context.Context, d notification.Draft) (model.Notification, error)
}

// Publisher emits domain events.
type Publisher interface {
	Publish(events.Event)
}

// Engine is the DispatchEngine. It selects and ranks technicians and issues
// offers; it never assigns a booking itself.
type Engine struct {
	store    store.Gateway
	notifier Notifier
	bus      Publisher
	clock    clock.Clock
	logger   logger.Logger
	cfg      Config
	loc      *time.Location
	newID    func() string
}

// NewEngine creates an Engine. bus, clk and log may be nil.
func NewEngine(st store.Gateway, notifier Notifier, bus Publisher, cfg Config, clk clock.Clock, log logger.Logger) (*Engine, error) {
	if st == nil || notifier == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewEngine")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load timezone: %w", err)
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Engine{
		store:    st,
		notifier: notifier,
		bus:      bus,
		clock:    clk,
		logger:   logger.OrNop(log),
		cfg:      cfg,
		loc:      loc,
		newID:    uuid.NewString,
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Dispatch issues offers for a booking to its top k candidates. A
// non-positive k uses the configured default. Technicians already holding a
// live offer for the booking are skipped.
//
// When nobody qualifies the booking is left unchanged, an important admin
// notification is raised and NoEligibleTechnicians is returned.
func (e *Engine) Dispatch(ctx context.Context, bookingID string, k int) ([]model.JobOffer, error) {
	if k <= 0 {
		k = e.cfg.DefaultCandidates
	}
	b, err := e.openBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now().UTC()
	existing, err := e.store.QueryOffers(ctx, store.OfferFilter{BookingID: b.ID})
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	// A technician is never offered the same booking twice while an earlier
	// offer of theirs is live, rejected, expired or superseded.
	exclude := map[string]bool{}
	for _, o := range existing {
		if o.State != model.OfferAccepted {
			exclude[o.TechnicianID] = true
		}
	}
	offers, err := e.issue(ctx, b, k, exclude, now, false)
	if errors.Is(err, apperr.ErrNoEligibleTechnicians) {
		e.notify(ctx, notification.Draft{
			Scope:       model.AdminScope,
			Type:        model.NotificationBooking,
			ReferenceID: b.ID,
			Message:     fmt.Sprintf("No eligible technician for booking %s (%s); manual assignment required", b.ID, b.ServiceType),
			Important:   true,
		})
		if e.bus != nil {
			e.bus.Publish(events.DispatchFailed{BookingID: b.ID, Time: now})
		}
	}
	return offers, err
}

// Redispatch repeats the selection for a booking while excluding every
// technician who already holds an offer for it, whatever the offer state.
// It raises no notification; the caller decides how to react to
// NoEligibleTechnicians.
func (e *Engine) Redispatch(ctx context.Context, bookingID string, k int) ([]model.JobOffer, error) {
	if k <= 0 {
		k = e.cfg.DefaultCandidates
	}
	b, err := e.openBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	prior, err := e.store.QueryOffers(ctx, store.OfferFilter{BookingID: b.ID})
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	exclude := make(map[string]bool, len(prior))
	for _, o := range prior {
		exclude[o.TechnicianID] = true
	}
	return e.issue(ctx, b, k, exclude, e.clock.Now().UTC(), true)
}

// Candidates returns the eligible technicians for b in ranking order,
// skipping the excluded ids.
func (e *Engine) Candidates(ctx context.Context, b model.Booking, exclude map[string]bool) ([]model.Technician, error) {
	techs, err := e.store.QueryTechnicians(ctx, store.TechnicianFilter{Status: model.TechnicianActive, Specialization: b.ServiceType})
	if err != nil {
		return nil, fmt.Errorf("query technicians: %w", err)
	}
	out := techs[:0]
	for _, t := range techs {
		if exclude[t.ID] || !e.available(t, b) {
			continue
		}
		out = append(out, t)
	}
	Rank(out)
	return out, nil
}

// Rank orders technicians by rating descending, then completed bookings
// descending, then id ascending.
func Rank(techs []model.Technician) {
	slices.SortFunc(techs, func(a, b model.Technician) int {
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		if c := cmp.Compare(b.CompletedBookings, a.CompletedBookings); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (e *Engine) available(t model.Technician, b model.Booking) bool {
	if b.ScheduledAt == nil {
		return t.Availability.AnyOpen()
	}
	return t.Availability.Covers(b.ScheduledAt.In(e.loc))
}

func (e *Engine) openBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.OpenForDispatch() {
		return model.Booking{}, apperr.New(apperr.CodeNotEligible, "booking %s is %s and cannot be dispatched", b.ID, b.Status)
	}
	return b, nil
}

func (e *Engine) issue(ctx context.Context, b model.Booking, k int, exclude map[string]bool, now time.Time, redispatch bool) ([]model.JobOffer, error) {
	cands, err := e.Candidates(ctx, b, exclude)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		noCandidates.Inc()
		return nil, apperr.New(apperr.CodeNoEligibleTechnicians, "no eligible technician for booking %s", b.ID)
	}
	if len(cands) > k {
		cands = cands[:k]
	}
	expires := now.Add(e.cfg.OfferTTL())
	offers := make([]model.JobOffer, len(cands))
	for i, t := range cands {
		offers[i] = model.JobOffer{
			ID:           e.newID(),
			BookingID:    b.ID,
			TechnicianID: t.ID,
			State:        model.OfferPending,
			IssuedAt:     now,
			ExpiresAt:    expires,
		}
	}
	if err := e.store.CreateOffers(ctx, offers); err != nil {
		return nil, fmt.Errorf("create offers: %w", err)
	}
	kind := "dispatch"
	if redispatch {
		kind = "redispatch"
	}
	offersIssued.WithLabelValues(kind).Add(float64(len(offers)))
	e.logger.Infof("booking %s: %s issued %d offer(s)", b.ID, kind, len(offers))

	for _, o := range offers {
		e.notify(ctx, notification.Draft{
			Scope:       model.TechnicianScope(o.TechnicianID),
			Type:        model.NotificationJobOffer,
			ReferenceID: o.ID,
			Message:     fmt.Sprintf("New %s job for booking %s, respond within %ds", b.ServiceType, b.ID, e.cfg.OfferTTLSeconds),
		})
	}
	if e.bus != nil {
		e.bus.Publish(events.OffersIssued{BookingID: b.ID, Offers: slices.Clone(offers), Redispatch: redispatch, Time: now})
	}
	return offers, nil
}

func (e *Engine) notify(ctx context.Context, d notification.Draft) {
	if _, err := e.notifier.Create(ctx, d); err != nil {
		e.logger.Errorf("notification for %s: %v", d.ReferenceID, err)
	}
}
