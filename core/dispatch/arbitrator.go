package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/booking"
	"github.com/kilianp07/homefix/core/events"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/notification"
	"github.com/kilianp07/homefix/core/store"
)

const rejectionRecordAttempts = 3

var openStatuses = []model.BookingStatus{model.BookingPending, model.BookingConfirmed}

// AcceptResult is returned to the technician who won a booking.
type AcceptResult struct {
	BookingID string              `json:"bookingId"`
	Status    model.BookingStatus `json:"status"`
}

// RejectResult tells whether a replacement offer was issued.
type RejectResult struct {
	Redispatched bool `json:"redispatched"`
}

// Arbitrator is the OfferArbitrator. It resolves accept, reject and expiry
// races on job offers.
type Arbitrator struct {
	store    store.Gateway
	engine   *Engine
	notifier Notifier
	bus      Publisher
	clock    clock.Clock
	logger   logger.Logger
	cfg      Config
}

// NewArbitrator creates an Arbitrator sharing the engine's configuration.
func NewArbitrator(st store.Gateway, engine *Engine, notifier Notifier, bus Publisher, clk clock.Clock, log logger.Logger) (*Arbitrator, error) {
	if st == nil || engine == nil || notifier == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewArbitrator")
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Arbitrator{
		store:    st,
		engine:   engine,
		notifier: notifier,
		bus:      bus,
		clock:    clk,
		logger:   logger.OrNop(log),
		cfg:      engine.Config(),
	}, nil
}

// Accept commits technicianID as the assignee of the offer's booking if
// nobody else got there first. Of N concurrent accepts for one booking at
// most one returns success; the others fail with AlreadyAssigned.
//
//gocyclo:ignore
func (a *Arbitrator) Accept(ctx context.Context, offerID, technicianID string) (AcceptResult, error) {
	o, err := a.store.GetOffer(ctx, offerID)
	if err != nil {
		return AcceptResult{}, err
	}
	if o.TechnicianID != technicianID {
		return AcceptResult{}, apperr.New(apperr.CodeForbidden, "offer %s is not addressed to technician %s", offerID, technicianID)
	}
	now := a.clock.Now().UTC()
	if o.ExpiredAt(now) {
		return AcceptResult{}, apperr.New(apperr.CodeOfferExpired, "offer %s expired at %s", offerID, o.ExpiresAt.Format(time.RFC3339))
	}
	if o.State == model.OfferAccepted {
		b, err := a.store.GetBooking(ctx, o.BookingID)
		if err != nil {
			return AcceptResult{}, err
		}
		return AcceptResult{BookingID: b.ID, Status: b.Status}, nil
	}
	if o.State == model.OfferSuperseded {
		return a.lost(ctx, o, technicianID, now)
	}
	if o.State != model.OfferPending {
		return AcceptResult{}, apperr.New(apperr.CodeOfferExpired, "offer %s is %s", offerID, o.State)
	}

	b, err := a.store.GetBooking(ctx, o.BookingID)
	if err != nil {
		return AcceptResult{}, err
	}
	if b.Status.Terminal() {
		a.supersede(ctx, o, now, "")
		return AcceptResult{}, apperr.New(apperr.CodeOfferExpired, "booking %s is %s", b.ID, b.Status)
	}
	if !booking.Allowed(b.Status, model.BookingAssigned) {
		return a.lost(ctx, o, technicianID, now)
	}

	assigned := model.BookingAssigned
	won, err := a.store.UpdateBooking(ctx, b.ID,
		store.BookingPrecondition{Statuses: openStatuses, Unassigned: true},
		store.BookingPatch{
			Status:               &assigned,
			TechnicianID:         &technicianID,
			AssignedAt:           &now,
			TechnicianAcceptedAt: &now,
			UpdatedAt:            now,
		})
	if errors.Is(err, store.ErrConflict) {
		return a.lost(ctx, o, technicianID, now)
	}
	if err != nil {
		return AcceptResult{}, err
	}

	if _, err := a.store.UpdateOffer(ctx, o.ID, []model.OfferState{model.OfferPending, model.OfferExpired}, store.OfferPatch{State: model.OfferAccepted, RespondedAt: &now}); err != nil {
		a.logger.Errorf("mark offer %s accepted: %v", o.ID, err)
	}
	a.resolved(o, model.OfferAccepted, now)
	a.logger.Infof("booking %s assigned to %s via offer %s", b.ID, technicianID, o.ID)

	others, err := a.store.QueryOffers(ctx, store.OfferFilter{BookingID: b.ID, States: []model.OfferState{model.OfferPending}})
	if err != nil {
		a.logger.Errorf("query competing offers for %s: %v", b.ID, err)
	}
	for _, other := range others {
		if other.ID == o.ID {
			continue
		}
		a.supersede(ctx, other, now, fmt.Sprintf("Booking %s was taken by another technician", b.ID))
	}

	a.notify(ctx, notification.Draft{
		Scope:       model.AdminScope,
		Type:        model.NotificationBooking,
		ReferenceID: b.ID,
		Message:     fmt.Sprintf("Technician %s accepted booking %s", technicianID, b.ID),
	})
	if a.bus != nil {
		a.bus.Publish(events.BookingTransitioned{BookingID: b.ID, From: b.Status, To: model.BookingAssigned, Actor: technicianID, TechnicianID: technicianID, Time: now})
	}
	return AcceptResult{BookingID: won.ID, Status: won.Status}, nil
}

// lost classifies a failed assignment write.
func (a *Arbitrator) lost(ctx context.Context, o model.JobOffer, technicianID string, now time.Time) (AcceptResult, error) {
	cur, err := a.store.GetBooking(ctx, o.BookingID)
	if err != nil {
		return AcceptResult{}, err
	}
	if cur.TechnicianID != nil && *cur.TechnicianID == technicianID {
		// duplicate delivery of the same accept
		return AcceptResult{BookingID: cur.ID, Status: cur.Status}, nil
	}
	a.supersede(ctx, o, now, "")
	if cur.Status.Terminal() {
		return AcceptResult{}, apperr.New(apperr.CodeOfferExpired, "booking %s is %s", cur.ID, cur.Status)
	}
	return AcceptResult{}, apperr.New(apperr.CodeAlreadyAssigned, "booking %s is already assigned", cur.ID)
}

// Reject records a technician's refusal and, while the booking is still
// open, issues one replacement offer. When nobody is left and no other offer
// is live the booking joins the re-dispatch backlog.
func (a *Arbitrator) Reject(ctx context.Context, offerID, technicianID, reason string) (RejectResult, error) {
	o, err := a.store.GetOffer(ctx, offerID)
	if err != nil {
		return RejectResult{}, err
	}
	if o.TechnicianID != technicianID {
		return RejectResult{}, apperr.New(apperr.CodeForbidden, "offer %s is not addressed to technician %s", offerID, technicianID)
	}
	if o.State == model.OfferRejected {
		return RejectResult{}, nil
	}
	now := a.clock.Now().UTC()
	if o.State != model.OfferPending || o.ExpiredAt(now) {
		return RejectResult{}, apperr.New(apperr.CodeOfferExpired, "offer %s is no longer pending", offerID)
	}
	if _, err := a.store.UpdateOffer(ctx, o.ID, []model.OfferState{model.OfferPending}, store.OfferPatch{State: model.OfferRejected, RespondedAt: &now, RejectionReason: &reason}); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return RejectResult{}, apperr.Wrap(apperr.CodeOfferExpired, err, "offer %s changed state", offerID)
		}
		return RejectResult{}, err
	}
	a.resolved(o, model.OfferRejected, now)
	a.recordRejection(ctx, o.BookingID, reason, now)
	a.notify(ctx, notification.Draft{
		Scope:       model.AdminScope,
		Type:        model.NotificationBooking,
		ReferenceID: o.BookingID,
		Message:     fmt.Sprintf("Technician %s rejected booking %s: %s", technicianID, o.BookingID, reason),
	})

	b, err := a.store.GetBooking(ctx, o.BookingID)
	if err != nil {
		a.logger.Errorf("reload booking %s after rejection: %v", o.BookingID, err)
		return RejectResult{}, nil
	}
	if !b.OpenForDispatch() {
		return RejectResult{}, nil
	}
	if _, err := a.engine.Redispatch(ctx, b.ID, 1); err != nil {
		if !errors.Is(err, apperr.ErrNoEligibleTechnicians) {
			a.logger.Errorf("redispatch booking %s: %v", b.ID, err)
			return RejectResult{}, nil
		}
		live, lerr := a.hasLiveOffer(ctx, b.ID, now)
		if lerr != nil {
			a.logger.Errorf("query live offers for %s: %v", b.ID, lerr)
		}
		if !live {
			a.backlog(ctx, b.ID, now, nil)
		}
		return RejectResult{}, nil
	}
	return RejectResult{Redispatched: true}, nil
}

// recordRejection stamps the booking with the last rejection. It is
// informational, so a lost race after a few attempts is only logged.
func (a *Arbitrator) recordRejection(ctx context.Context, bookingID, reason string, now time.Time) {
	for attempt := 0; attempt < rejectionRecordAttempts; attempt++ {
		b, err := a.store.GetBooking(ctx, bookingID)
		if err != nil {
			a.logger.Errorf("record rejection on %s: %v", bookingID, err)
			return
		}
		v := b.Version
		_, err = a.store.UpdateBooking(ctx, bookingID, store.BookingPrecondition{Version: &v}, store.BookingPatch{
			TechnicianRejectedAt: &now,
			RejectionReason:      &reason,
			UpdatedAt:            now,
		})
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrConflict) {
			a.logger.Errorf("record rejection on %s: %v", bookingID, err)
			return
		}
	}
	a.logger.Warnf("record rejection on %s: gave up after %d conflicts", bookingID, rejectionRecordAttempts)
}

// backlog adds a failed re-dispatch round for the booking. Once the bounded
// number of rounds is reached the booking is handed to the admin instead.
func (a *Arbitrator) backlog(ctx context.Context, bookingID string, now time.Time, rep *SweepReport) {
	r, err := a.store.BumpRetry(ctx, bookingID, now)
	if err != nil {
		a.logger.Errorf("bump retry for %s: %v", bookingID, err)
		return
	}
	if r.Rounds < a.cfg.MaxRedispatchRounds {
		a.logger.Debugw("booking queued for re-dispatch", map[string]any{"booking": bookingID, "rounds": r.Rounds})
		if a.bus != nil {
			a.bus.Publish(events.DispatchFailed{BookingID: bookingID, Round: r.Rounds, Time: now})
		}
		return
	}
	a.exhaust(ctx, bookingID, r.Rounds, now)
	if rep != nil {
		rep.Exhausted++
	}
}

func (a *Arbitrator) exhaust(ctx context.Context, bookingID string, rounds int, now time.Time) {
	redispatchExhausts.Inc()
	a.logger.Warnf("booking %s: no technician after %d re-dispatch rounds", bookingID, rounds)
	a.notify(ctx, notification.Draft{
		Scope:       model.AdminScope,
		Type:        model.NotificationBooking,
		ReferenceID: bookingID,
		Message:     fmt.Sprintf("Booking %s found no technician after %d re-dispatch rounds; manual assignment required", bookingID, rounds),
		Important:   true,
	})
	if err := a.store.DeleteRetry(ctx, bookingID); err != nil {
		a.logger.Errorf("delete retry for %s: %v", bookingID, err)
	}
	if a.bus != nil {
		a.bus.Publish(events.DispatchFailed{BookingID: bookingID, Round: rounds, Exhausted: true, Time: now})
	}
}

func (a *Arbitrator) hasLiveOffer(ctx context.Context, bookingID string, now time.Time) (bool, error) {
	pending, err := a.store.QueryOffers(ctx, store.OfferFilter{BookingID: bookingID, States: []model.OfferState{model.OfferPending}})
	if err != nil {
		return false, err
	}
	for _, o := range pending {
		if o.Live(now) {
			return true, nil
		}
	}
	return false, nil
}

// supersede moves a pending offer to superseded. A non-empty message is
// sent to the offer's technician.
func (a *Arbitrator) supersede(ctx context.Context, o model.JobOffer, now time.Time, msg string) bool {
	if _, err := a.store.UpdateOffer(ctx, o.ID, []model.OfferState{model.OfferPending}, store.OfferPatch{State: model.OfferSuperseded, RespondedAt: &now}); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			a.logger.Errorf("supersede offer %s: %v", o.ID, err)
		}
		return false
	}
	a.resolved(o, model.OfferSuperseded, now)
	if msg != "" {
		a.notify(ctx, notification.Draft{
			Scope:       model.TechnicianScope(o.TechnicianID),
			Type:        model.NotificationJobOffer,
			ReferenceID: o.ID,
			Message:     msg,
		})
	}
	return true
}

func (a *Arbitrator) resolved(o model.JobOffer, outcome model.OfferState, now time.Time) {
	latency := now.Sub(o.IssuedAt)
	offerOutcomes.WithLabelValues(outcome.String()).Inc()
	if outcome == model.OfferAccepted {
		acceptLatency.Observe(latency.Seconds())
	}
	if a.bus != nil {
		o.State = outcome
		a.bus.Publish(events.OfferResolved{Offer: o, Outcome: outcome, Latency: latency, Time: now})
	}
}

func (a *Arbitrator) notify(ctx context.Context, d notification.Draft) {
	if _, err := a.notifier.Create(ctx, d); err != nil {
		a.logger.Errorf("notification for %s: %v", d.ReferenceID, err)
	}
}
