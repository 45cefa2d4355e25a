package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/store"
)

// SweepReport summarises one sweep pass.
type SweepReport struct {
	Expired      int `json:"expired"`
	Redispatched int `json:"redispatched"`
	Exhausted    int `json:"exhausted"`
	Superseded   int `json:"superseded"`
}

// Sweep expires stale offers, re-dispatches the bookings they left without
// a live offer, works through the re-dispatch backlog and voids pending
// offers of bookings that are no longer open.
func (a *Arbitrator) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := a.clock.Now().UTC()

	stale, err := a.store.QueryOffers(ctx, store.OfferFilter{States: []model.OfferState{model.OfferPending}, ExpiresBefore: now})
	if err != nil {
		return rep, err
	}
	expiredPer := map[string]int{}
	var order []string
	for _, o := range stale {
		if _, err := a.store.UpdateOffer(ctx, o.ID, []model.OfferState{model.OfferPending}, store.OfferPatch{State: model.OfferExpired}); err != nil {
			if !errors.Is(err, store.ErrConflict) {
				a.logger.Errorf("expire offer %s: %v", o.ID, err)
			}
			continue
		}
		a.resolved(o, model.OfferExpired, now)
		rep.Expired++
		if expiredPer[o.BookingID] == 0 {
			order = append(order, o.BookingID)
		}
		expiredPer[o.BookingID]++
	}

	handled := map[string]bool{}
	for _, id := range order {
		handled[id] = true
		a.redispatch(ctx, id, expiredPer[id], now, &rep)
	}

	retries, err := a.store.ListRetries(ctx)
	if err != nil {
		return rep, err
	}
	for _, r := range retries {
		if handled[r.BookingID] {
			continue
		}
		a.redispatch(ctx, r.BookingID, a.cfg.DefaultCandidates, now, &rep)
	}

	pending, err := a.store.QueryOffers(ctx, store.OfferFilter{States: []model.OfferState{model.OfferPending}})
	if err != nil {
		return rep, err
	}
	bookings := map[string]model.Booking{}
	for _, o := range pending {
		b, ok := bookings[o.BookingID]
		if !ok {
			if b, err = a.store.GetBooking(ctx, o.BookingID); err != nil {
				a.logger.Errorf("load booking %s: %v", o.BookingID, err)
				continue
			}
			bookings[o.BookingID] = b
		}
		if b.OpenForDispatch() {
			continue
		}
		// the winner's own offer may still be on its way to accepted
		if b.TechnicianID != nil && *b.TechnicianID == o.TechnicianID {
			continue
		}
		if a.supersede(ctx, o, now, "") {
			rep.Superseded++
		}
	}

	if rep != (SweepReport{}) {
		a.logger.Infof("sweep: expired=%d redispatched=%d exhausted=%d superseded=%d", rep.Expired, rep.Redispatched, rep.Exhausted, rep.Superseded)
	}
	return rep, nil
}

// redispatch runs one re-dispatch round for a booking during a sweep.
func (a *Arbitrator) redispatch(ctx context.Context, bookingID string, k int, now time.Time, rep *SweepReport) {
	b, err := a.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			a.dropRetry(ctx, bookingID)
		} else {
			a.logger.Errorf("load booking %s: %v", bookingID, err)
		}
		return
	}
	if !b.OpenForDispatch() {
		a.dropRetry(ctx, bookingID)
		return
	}
	live, err := a.hasLiveOffer(ctx, bookingID, now)
	if err != nil {
		a.logger.Errorf("query live offers for %s: %v", bookingID, err)
		return
	}
	if live {
		a.dropRetry(ctx, bookingID)
		return
	}
	_, err = a.engine.Redispatch(ctx, bookingID, k)
	switch {
	case err == nil:
		rep.Redispatched++
		a.dropRetry(ctx, bookingID)
	case errors.Is(err, apperr.ErrNoEligibleTechnicians):
		a.backlog(ctx, bookingID, now, rep)
	default:
		a.logger.Errorf("redispatch booking %s: %v", bookingID, err)
	}
}

func (a *Arbitrator) dropRetry(ctx context.Context, bookingID string) {
	if err := a.store.DeleteRetry(ctx, bookingID); err != nil {
		a.logger.Errorf("delete retry for %s: %v", bookingID, err)
	}
}

// Sweeper runs Sweep periodically.
type Sweeper struct {
	arb      *Arbitrator
	interval time.Duration
	clock    clock.Clock
	logger   logger.Logger

	afterSweep func(SweepReport)
}

// NewSweeper creates a Sweeper. A non-positive interval uses the
// configured sweep interval.
func NewSweeper(arb *Arbitrator, interval time.Duration, clk clock.Clock, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = arb.cfg.SweepInterval()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Sweeper{arb: arb, interval: interval, clock: clk, logger: logger.OrNop(log)}
}

// Run sweeps every interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Infof("sweeper started, interval %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("sweeper stopped")
			return
		case <-s.clock.After(s.interval):
			rep, err := s.arb.Sweep(ctx)
			if err != nil {
				s.logger.Errorf("sweep: %v", err)
			}
			if s.afterSweep != nil {
				s.afterSweep(rep)
			}
		}
	}
}
