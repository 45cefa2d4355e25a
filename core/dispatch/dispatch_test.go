package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/notification"
	"github.com/kilianp07/homefix/core/store"
	"github.com/kilianp07/homefix/infra/logger"
)

var start = time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC) // a Monday

type env struct {
	st     *store.MemoryStore
	clk    *testclock.Clock
	center *notification.Center
	engine *Engine
	arb    *Arbitrator
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	st := store.NewMemoryStore()
	clk := testclock.NewClock(start)
	center := notification.NewCenter(st, notification.Config{}, clk, nil)
	engine, err := NewEngine(st, center, nil, cfg, clk, logger.NopLogger{})
	require.NoError(t, err)
	arb, err := NewArbitrator(st, engine, center, nil, clk, logger.NopLogger{})
	require.NoError(t, err)
	return &env{st: st, clk: clk, center: center, engine: engine, arb: arb}
}

func allWeek() model.WeeklyAvailability {
	var a model.WeeklyAvailability
	for i := range a {
		a[i] = model.DaySchedule{Open: true}
	}
	return a
}

func (e *env) tech(t *testing.T, id string, rating float64, specs ...string) {
	t.Helper()
	if len(specs) == 0 {
		specs = []string{"washer"}
	}
	require.NoError(t, e.st.PutTechnician(context.Background(), model.Technician{
		ID: id, Name: id, Specializations: specs, Status: model.TechnicianActive, Availability: allWeek(), Rating: rating,
	}))
}

func (e *env) booking(t *testing.T, id, service string) {
	t.Helper()
	require.NoError(t, e.st.CreateBooking(context.Background(), model.Booking{
		ID: id, CustomerID: "c1", ServiceType: service, Status: model.BookingPending, PaymentStatus: model.PaymentPending, Price: 1000, CreatedAt: start,
	}))
}

func (e *env) offerFor(t *testing.T, offers []model.JobOffer, tech string) model.JobOffer {
	t.Helper()
	for _, o := range offers {
		if o.TechnicianID == tech {
			return o
		}
	}
	t.Fatalf("no offer for %s", tech)
	return model.JobOffer{}
}

func (e *env) offerState(t *testing.T, id string) model.OfferState {
	t.Helper()
	o, err := e.st.GetOffer(context.Background(), id)
	require.NoError(t, err)
	return o.State
}

func (e *env) important(t *testing.T) int {
	t.Helper()
	page, err := e.center.List(context.Background(), model.AdminScope, false)
	require.NoError(t, err)
	n := 0
	for _, it := range page.Items {
		if it.IsImportant {
			n++
		}
	}
	return n
}

func TestBroadcastScenarioSecondBestWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.tech(t, "T2", 4.5)
	e.tech(t, "T3", 4.2)
	e.booking(t, "b1", "washer")

	offers, err := e.engine.Dispatch(ctx, "b1", 3)
	require.NoError(t, err)
	require.Len(t, offers, 3)
	assert.Equal(t, []string{"T1", "T2", "T3"}, []string{offers[0].TechnicianID, offers[1].TechnicianID, offers[2].TechnicianID})
	for _, o := range offers {
		assert.Equal(t, model.OfferPending, o.State)
		assert.Equal(t, start.Add(30*time.Second), o.ExpiresAt)
	}

	e.clk.Advance(5 * time.Second)
	res, err := e.arb.Accept(ctx, e.offerFor(t, offers, "T2").ID, "T2")
	require.NoError(t, err)
	assert.Equal(t, AcceptResult{BookingID: "b1", Status: model.BookingAssigned}, res)

	b, err := e.st.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingAssigned, b.Status)
	require.NotNil(t, b.TechnicianID)
	assert.Equal(t, "T2", *b.TechnicianID)
	require.NotNil(t, b.TechnicianAcceptedAt)
	assert.Equal(t, start.Add(5*time.Second), *b.TechnicianAcceptedAt)

	assert.Equal(t, model.OfferAccepted, e.offerState(t, e.offerFor(t, offers, "T2").ID))
	assert.Equal(t, model.OfferSuperseded, e.offerState(t, e.offerFor(t, offers, "T1").ID))
	assert.Equal(t, model.OfferSuperseded, e.offerState(t, e.offerFor(t, offers, "T3").ID))

	page, err := e.center.List(ctx, model.TechnicianScope("T1"), false)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Contains(t, page.Items[0].Message, "another technician")

	assert.Equal(t, float64(3), testutil.ToFloat64(offersIssued.WithLabelValues("dispatch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(offerOutcomes.WithLabelValues("accepted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(offerOutcomes.WithLabelValues("superseded")))
}

func TestNoEligibleTechnicianRaisesOneImportantNotification(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8, "fridge")
	e.booking(t, "b1", "washer")

	_, err := e.engine.Dispatch(ctx, "b1", 0)
	assert.ErrorIs(t, err, apperr.ErrNoEligibleTechnicians)

	b, err := e.st.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, int64(0), b.Version)
	assert.Equal(t, 1, e.important(t))
	assert.Equal(t, float64(1), testutil.ToFloat64(noCandidates))
}

func TestDispatchRequiresOpenBooking(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4)
	require.NoError(t, e.st.CreateBooking(ctx, model.Booking{ID: "b1", ServiceType: "washer", Status: model.BookingCompleted}))

	_, err := e.engine.Dispatch(ctx, "b1", 1)
	assert.ErrorIs(t, err, apperr.ErrNotEligible)
	_, err = e.engine.Dispatch(ctx, "missing", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDispatchSkipsLiveOfferHolders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.tech(t, "T2", 4.5)
	e.booking(t, "b1", "washer")

	first, err := e.engine.Dispatch(ctx, "b1", 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "T1", first[0].TechnicianID)

	second, err := e.engine.Dispatch(ctx, "b1", 0)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "T2", second[0].TechnicianID)
}

func TestDispatchNeverRepeatsResolvedOfferHolders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.booking(t, "b1", "washer")

	first, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	_, err = e.arb.Reject(ctx, first[0].ID, "T1", "busy")
	require.NoError(t, err)

	_, err = e.engine.Dispatch(ctx, "b1", 1)
	assert.ErrorIs(t, err, apperr.ErrNoEligibleTechnicians)

	offers, err := e.st.QueryOffers(ctx, store.OfferFilter{BookingID: "b1"})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, model.OfferRejected, offers[0].State)

	// an expired but unswept offer also keeps its holder out
	e.tech(t, "T2", 4.5)
	e.booking(t, "b2", "washer")
	second, err := e.engine.Dispatch(ctx, "b2", 1)
	require.NoError(t, err)
	require.Equal(t, "T1", second[0].TechnicianID)
	e.clk.Advance(31 * time.Second)
	third, err := e.engine.Dispatch(ctx, "b2", 1)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "T2", third[0].TechnicianID)
}

func TestRankTieBreaks(t *testing.T) {
	techs := []model.Technician{
		{ID: "c", Rating: 4.5, CompletedBookings: 10},
		{ID: "b", Rating: 4.5, CompletedBookings: 10},
		{ID: "a", Rating: 4.5, CompletedBookings: 3},
		{ID: "d", Rating: 4.9},
	}
	Rank(techs)
	got := make([]string, len(techs))
	for i, tc := range techs {
		got[i] = tc.ID
	}
	assert.Equal(t, []string{"d", "b", "c", "a"}, got)
}

func TestCandidatesRespectEligibility(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	monday := time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)
	var morning, afternoon model.WeeklyAvailability
	morning[time.Monday] = model.DaySchedule{Open: true, Hours: &model.HourWindow{From: 8, To: 12}}
	afternoon[time.Monday] = model.DaySchedule{Open: true, Hours: &model.HourWindow{From: 12, To: 18}}
	put := func(tc model.Technician) { require.NoError(t, e.st.PutTechnician(ctx, tc)) }
	put(model.Technician{ID: "am", Specializations: []string{"Washer"}, Status: model.TechnicianActive, Availability: morning, Rating: 3})
	put(model.Technician{ID: "pm", Specializations: []string{"washer"}, Status: model.TechnicianActive, Availability: afternoon, Rating: 5})
	put(model.Technician{ID: "off", Specializations: []string{"washer"}, Status: model.TechnicianInactive, Availability: allWeek(), Rating: 5})
	put(model.Technician{ID: "closed", Specializations: []string{"washer"}, Status: model.TechnicianActive, Rating: 5})

	got, err := e.engine.Candidates(ctx, model.Booking{ServiceType: "washer", ScheduledAt: &monday}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "am", got[0].ID)

	got, err = e.engine.Candidates(ctx, model.Booking{ServiceType: "washer"}, map[string]bool{"pm": true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "am", got[0].ID)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Timezone: "Mars/Olympus"}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg = Config{DefaultCandidates: 5, BroadcastCandidates: 2}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg = Config{}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.OfferTTL())
	assert.Equal(t, 5*time.Second, cfg.SweepInterval())
}

func TestConcurrentAcceptsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{BroadcastCandidates: 16})
	const n = 16
	for i := 0; i < n; i++ {
		e.tech(t, fmt.Sprintf("T%02d", i), 4)
	}
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", n)
	require.NoError(t, err)
	require.Len(t, offers, n)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		lost    int
	)
	for _, o := range offers {
		wg.Add(1)
		go func(o model.JobOffer) {
			defer wg.Done()
			_, err := e.arb.Accept(ctx, o.ID, o.TechnicianID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, o.TechnicianID)
			case apperr.CodeOf(err) == apperr.CodeAlreadyAssigned:
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(o)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, n-1, lost)
	b, err := e.st.GetBooking(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, b.TechnicianID)
	assert.Equal(t, winners[0], *b.TechnicianID)
	assert.True(t, b.CheckInvariant())

	accepted, err := e.st.QueryOffers(ctx, store.OfferFilter{BookingID: "b1", States: []model.OfferState{model.OfferAccepted}})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, winners[0], accepted[0].TechnicianID)
}

func TestAcceptFailures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)
	o := offers[0]

	_, err = e.arb.Accept(ctx, "missing", "T1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.arb.Accept(ctx, o.ID, "T9")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	e.clk.Advance(31 * time.Second)
	_, err = e.arb.Accept(ctx, o.ID, "T1")
	assert.ErrorIs(t, err, apperr.ErrOfferExpired)
	assert.Equal(t, model.OfferPending, e.offerState(t, o.ID))
	b, _ := e.st.GetBooking(ctx, "b1")
	assert.False(t, b.Assigned())
}

func TestLosingAcceptAfterExpiryReportsExpired(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.tech(t, "T2", 4.5)
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", 2)
	require.NoError(t, err)

	_, err = e.arb.Accept(ctx, e.offerFor(t, offers, "T2").ID, "T2")
	require.NoError(t, err)
	t1 := e.offerFor(t, offers, "T1")
	require.Equal(t, model.OfferSuperseded, e.offerState(t, t1.ID))

	e.clk.Advance(60 * time.Second)
	_, err = e.arb.Accept(ctx, t1.ID, "T1")
	assert.ErrorIs(t, err, apperr.ErrOfferExpired)
	_, err = e.arb.Accept(ctx, e.offerFor(t, offers, "T2").ID, "T2")
	assert.ErrorIs(t, err, apperr.ErrOfferExpired)
}

func TestAcceptAtExactExpiryStillWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)

	e.clk.Advance(30 * time.Second)
	_, err = e.arb.Accept(ctx, offers[0].ID, "T1")
	require.NoError(t, err)
}

func TestDuplicateAcceptIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)

	first, err := e.arb.Accept(ctx, offers[0].ID, "T1")
	require.NoError(t, err)
	b1, _ := e.st.GetBooking(ctx, "b1")
	second, err := e.arb.Accept(ctx, offers[0].ID, "T1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	b2, _ := e.st.GetBooking(ctx, "b1")
	assert.Equal(t, b1.Version, b2.Version)
}

func TestAcceptOnCancelledBookingSupersedesOffer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)

	cancelled := model.BookingCancelled
	_, err = e.st.UpdateBooking(ctx, "b1", store.BookingPrecondition{}, store.BookingPatch{Status: &cancelled})
	require.NoError(t, err)

	_, err = e.arb.Accept(ctx, offers[0].ID, "T1")
	assert.ErrorIs(t, err, apperr.ErrOfferExpired)
	assert.Equal(t, model.OfferSuperseded, e.offerState(t, offers[0].ID))
}

func TestRejectRedispatchesToNextTechnician(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.tech(t, "T2", 4.5)
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)
	require.Equal(t, "T1", offers[0].TechnicianID)

	_, err = e.arb.Reject(ctx, offers[0].ID, "T2", "busy")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	res, err := e.arb.Reject(ctx, offers[0].ID, "T1", "too far")
	require.NoError(t, err)
	assert.True(t, res.Redispatched)
	assert.Equal(t, model.OfferRejected, e.offerState(t, offers[0].ID))

	b, err := e.st.GetBooking(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, b.RejectionReason)
	assert.Equal(t, "too far", *b.RejectionReason)
	require.NotNil(t, b.TechnicianRejectedAt)

	pending, err := e.st.QueryOffers(ctx, store.OfferFilter{BookingID: "b1", States: []model.OfferState{model.OfferPending}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "T2", pending[0].TechnicianID)

	res, err = e.arb.Reject(ctx, pending[0].ID, "T2", "sick")
	require.NoError(t, err)
	assert.False(t, res.Redispatched)
	retries, err := e.st.ListRetries(ctx)
	require.NoError(t, err)
	require.Len(t, retries, 1)
	assert.Equal(t, 1, retries[0].Rounds)

	// a repeated reject is harmless
	res, err = e.arb.Reject(ctx, pending[0].ID, "T2", "sick")
	require.NoError(t, err)
	assert.False(t, res.Redispatched)
}

func TestSweepExpiresAndRedispatchesWithoutRepeatingTechnicians(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.tech(t, "T2", 4.5)
	e.tech(t, "T3", 4.2)
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)

	rep, err := e.arb.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep)

	e.clk.Advance(31 * time.Second)
	rep, err = e.arb.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Expired)
	assert.Equal(t, 1, rep.Redispatched)
	assert.Equal(t, model.OfferExpired, e.offerState(t, offers[0].ID))

	pending, err := e.st.QueryOffers(ctx, store.OfferFilter{BookingID: "b1", States: []model.OfferState{model.OfferPending}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "T2", pending[0].TechnicianID)

	e.clk.Advance(31 * time.Second)
	_, err = e.arb.Sweep(ctx)
	require.NoError(t, err)
	all, err := e.st.QueryOffers(ctx, store.OfferFilter{BookingID: "b1"})
	require.NoError(t, err)
	seen := map[string]int{}
	for _, o := range all {
		seen[o.TechnicianID]++
	}
	assert.Equal(t, map[string]int{"T1": 1, "T2": 1, "T3": 1}, seen)
}

func TestSweepBoundsRedispatchRounds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{MaxRedispatchRounds: 3})
	e.tech(t, "T1", 4.8)
	e.booking(t, "b1", "washer")
	_, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)

	e.clk.Advance(31 * time.Second)
	exhausted := 0
	for i := 0; i < 5; i++ {
		rep, err := e.arb.Sweep(ctx)
		require.NoError(t, err)
		exhausted += rep.Exhausted
		if i < 2 {
			retries, err := e.st.ListRetries(ctx)
			require.NoError(t, err)
			require.Len(t, retries, 1)
			assert.Equal(t, i+1, retries[0].Rounds)
		}
	}
	assert.Equal(t, 1, exhausted)
	retries, err := e.st.ListRetries(ctx)
	require.NoError(t, err)
	assert.Empty(t, retries)
	assert.Equal(t, 1, e.important(t))
	assert.Equal(t, float64(1), testutil.ToFloat64(redispatchExhausts))

	b, err := e.st.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)
}

func TestBacklogClearsWhenTechnicianAppears(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.booking(t, "b1", "washer")
	_, err := e.engine.Dispatch(ctx, "b1", 1)
	require.NoError(t, err)
	e.clk.Advance(31 * time.Second)
	_, err = e.arb.Sweep(ctx)
	require.NoError(t, err)

	e.tech(t, "T2", 4.1)
	rep, err := e.arb.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Redispatched)
	retries, err := e.st.ListRetries(ctx)
	require.NoError(t, err)
	assert.Empty(t, retries)
}

func TestSweepSupersedesOffersOfClosedBookings(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.tech(t, "T2", 4.5)
	e.booking(t, "b1", "washer")
	offers, err := e.engine.Dispatch(ctx, "b1", 2)
	require.NoError(t, err)

	cancelled := model.BookingCancelled
	_, err = e.st.UpdateBooking(ctx, "b1", store.BookingPrecondition{}, store.BookingPatch{Status: &cancelled})
	require.NoError(t, err)

	rep, err := e.arb.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Superseded)
	for _, o := range offers {
		assert.Equal(t, model.OfferSuperseded, e.offerState(t, o.ID))
	}
}

func TestSweeperRunsOnClock(t *testing.T) {
	e := newEnv(t, Config{})
	e.tech(t, "T1", 4.8)
	e.tech(t, "T2", 4.5)
	e.booking(t, "b1", "washer")
	_, err := e.engine.Dispatch(context.Background(), "b1", 1)
	require.NoError(t, err)

	s := NewSweeper(e.arb, 0, e.clk, logger.NopLogger{})
	reports := make(chan SweepReport, 1)
	s.afterSweep = func(r SweepReport) { reports <- r }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.NoError(t, e.clk.WaitAdvance(35*time.Second, time.Second, 1))
	select {
	case r := <-reports:
		assert.Equal(t, 1, r.Expired)
		assert.Equal(t, 1, r.Redispatched)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run")
	}
	cancel()
	<-done
}

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	offersIssued.WithLabelValues("dispatch").Inc()
	noCandidates.Inc()
	offerOutcomes.WithLabelValues("accepted").Inc()
	acceptLatency.Observe(3)
	redispatchExhausts.Inc()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, n := range []string{
		"homefix_offers_issued_total",
		"homefix_dispatch_no_candidates_total",
		"homefix_offer_outcomes_total",
		"homefix_offer_accept_latency_seconds",
		"homefix_redispatch_exhausted_total",
	} {
		assert.True(t, names[n], "metric %s not registered", n)
	}
}
