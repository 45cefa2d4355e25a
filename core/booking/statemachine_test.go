package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/commission"
	"github.com/kilianp07/homefix/core/events"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/notification"
	"github.com/kilianp07/homefix/core/store"
	"github.com/kilianp07/homefix/internal/eventbus"
)

var start = time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)

type fixture struct {
	st      *store.MemoryStore
	center  *notification.Center
	machine *Machine
	bus     *eventbus.TypedBus[events.Event]
}

func newFixture(t *testing.T, rate *float64) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	clk := testclock.NewClock(start)
	center := notification.NewCenter(st, notification.Config{}, clk, nil)
	bus := eventbus.NewTyped[events.Event](16)
	t.Cleanup(bus.Close)
	m, err := NewMachine(st, st, commission.NewCalculator(commission.StaticRate{Percent: rate}), center, bus, clk, nil)
	require.NoError(t, err)
	require.NoError(t, st.PutTechnician(context.Background(), model.Technician{ID: "t1", Status: model.TechnicianActive}))
	return &fixture{st: st, center: center, machine: m, bus: bus}
}

func (f *fixture) seed(t *testing.T, b model.Booking) {
	t.Helper()
	if b.PaymentStatus == "" {
		b.PaymentStatus = model.PaymentPending
	}
	require.NoError(t, f.st.CreateBooking(context.Background(), b))
}

func strPtr(s string) *string { return &s }

func TestNewMachineRequiresDependencies(t *testing.T) {
	_, err := NewMachine(nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestTransitionTable(t *testing.T) {
	all := []model.BookingStatus{model.BookingPending, model.BookingConfirmed, model.BookingAssigned, model.BookingCompleted, model.BookingCancelled}
	legal := map[[2]model.BookingStatus]bool{
		{model.BookingPending, model.BookingConfirmed}:   true,
		{model.BookingPending, model.BookingAssigned}:    true,
		{model.BookingPending, model.BookingCancelled}:   true,
		{model.BookingConfirmed, model.BookingAssigned}:  true,
		{model.BookingConfirmed, model.BookingCompleted}: true,
		{model.BookingConfirmed, model.BookingCancelled}: true,
		{model.BookingAssigned, model.BookingCompleted}:  true,
		{model.BookingAssigned, model.BookingCancelled}:  true,
	}
	ctx := context.Background()
	for _, from := range all {
		for _, to := range all {
			if from == to {
				continue
			}
			f := newFixture(t, nil)
			b := model.Booking{ID: "b1", Status: from, Price: 1000}
			if from == model.BookingAssigned || from == model.BookingCompleted {
				b.TechnicianID = strPtr("t1")
			}
			f.seed(t, b)
			_, err := f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: to, Actor: "admin", TechnicianID: "t1"})
			if legal[[2]model.BookingStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				got, _ := f.st.GetBooking(ctx, "b1")
				assert.Equal(t, to, got.Status)
				assert.True(t, got.CheckInvariant(), "%s -> %s", from, to)
			} else {
				assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "%s -> %s", from, to)
				got, _ := f.st.GetBooking(ctx, "b1")
				assert.Equal(t, from, got.Status)
			}
			assert.Equal(t, legal[[2]model.BookingStatus{from, to}], Allowed(from, to))
		}
	}
}

func TestSameStatusIsNoChange(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, model.Booking{ID: "b1", Status: model.BookingConfirmed, Version: 4})
	res, err := f.machine.RequestTransition(context.Background(), TransitionRequest{BookingID: "b1", Target: model.BookingConfirmed})
	require.NoError(t, err)
	assert.True(t, res.NoChange)
	assert.Equal(t, int64(4), res.Version)

	page, err := f.center.List(context.Background(), model.AdminScope, false)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestTransitionErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t, model.Booking{ID: "b1", Status: model.BookingPending})

	_, err := f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "missing", Target: model.BookingConfirmed})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: "archived"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingAssigned})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingAssigned, TechnicianID: "ghost"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// conflictingStore bumps the booking version between read and write.
type conflictingStore struct {
	*store.MemoryStore
}

func (c conflictingStore) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := c.MemoryStore.GetBooking(ctx, id)
	if err != nil {
		return b, err
	}
	_, err = c.MemoryStore.UpdateBooking(ctx, id, store.BookingPrecondition{}, store.BookingPatch{})
	return b, err
}

func TestConcurrentWriterYieldsConflict(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.CreateBooking(ctx, model.Booking{ID: "b1", Status: model.BookingPending}))
	center := notification.NewCenter(mem, notification.Config{}, nil, nil)
	m, err := NewMachine(conflictingStore{mem}, mem, commission.NewCalculator(nil), center, nil, nil, nil)
	require.NoError(t, err)

	_, err = m.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingConfirmed})
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)
	got, _ := mem.GetBooking(ctx, "b1")
	assert.Equal(t, model.BookingPending, got.Status)

	_, err = m.RecordPayment(ctx, "b1", model.PaymentPaid, "admin")
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)
}

func TestAssignStampsTechnician(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t, model.Booking{ID: "b1", Status: model.BookingConfirmed})
	sub := f.bus.Subscribe()

	res, err := f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingAssigned, TechnicianID: "t1", Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingAssigned, res.Status)

	got, _ := f.st.GetBooking(ctx, "b1")
	require.NotNil(t, got.TechnicianID)
	assert.Equal(t, "t1", *got.TechnicianID)
	require.NotNil(t, got.AssignedAt)
	assert.Equal(t, start, *got.AssignedAt)

	select {
	case ev := <-sub:
		tr, ok := ev.(events.BookingTransitioned)
		require.True(t, ok)
		assert.Equal(t, "t1", tr.TechnicianID)
		assert.Equal(t, model.BookingConfirmed, tr.From)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestCancelClearsTechnician(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t, model.Booking{ID: "b1", Status: model.BookingAssigned, TechnicianID: strPtr("t1")})

	_, err := f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingCancelled, Actor: "customer"})
	require.NoError(t, err)
	got, _ := f.st.GetBooking(ctx, "b1")
	assert.Nil(t, got.TechnicianID)
	assert.True(t, got.CheckInvariant())

	page, err := f.center.List(ctx, model.AdminScope, false)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.NotificationCancellation, page.Items[0].Type)
}

func TestCompletionStoresCommission(t *testing.T) {
	ctx := context.Background()
	rate := 25.0
	f := newFixture(t, &rate)
	f.seed(t, model.Booking{ID: "b1", Status: model.BookingAssigned, TechnicianID: strPtr("t1"), Price: 1001})

	_, err := f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingCompleted})
	require.NoError(t, err)
	got, _ := f.st.GetBooking(ctx, "b1")
	require.NotNil(t, got.PlatformCommission)
	require.NotNil(t, got.TechnicianEarnings)
	assert.Equal(t, int64(250), *got.PlatformCommission)
	assert.Equal(t, int64(751), *got.TechnicianEarnings)
	assert.False(t, got.CommissionFallback)
}

func TestCompletionUsesFallbackRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t, model.Booking{ID: "b1", Status: model.BookingConfirmed, Price: 1000})

	_, err := f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingCompleted})
	require.NoError(t, err)
	got, _ := f.st.GetBooking(ctx, "b1")
	assert.Equal(t, int64(300), *got.PlatformCommission)
	assert.True(t, got.CommissionFallback)
}

func TestCompletionFailsOnInvalidRate(t *testing.T) {
	ctx := context.Background()
	rate := 120.0
	f := newFixture(t, &rate)
	f.seed(t, model.Booking{ID: "b1", Status: model.BookingConfirmed, Price: 1000})

	_, err := f.machine.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingCompleted})
	assert.ErrorIs(t, err, apperr.ErrInvalidRate)
	got, _ := f.st.GetBooking(ctx, "b1")
	assert.Equal(t, model.BookingConfirmed, got.Status)
}

func TestRecordPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t, model.Booking{ID: "b1", Status: model.BookingConfirmed})

	res, err := f.machine.RecordPayment(ctx, "b1", model.PaymentFailed, "gateway")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, res.PaymentStatus)

	res, err = f.machine.RecordPayment(ctx, "b1", model.PaymentFailed, "gateway")
	require.NoError(t, err)
	assert.True(t, res.NoChange)

	_, err = f.machine.RecordPayment(ctx, "b1", "refunded", "gateway")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	page, err := f.center.List(ctx, model.AdminScope, false)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.NotificationPayment, page.Items[0].Type)
	assert.True(t, page.Items[0].IsImportant)
}

type brokenNotifier struct{}

func (brokenNotifier) Create(context.Context, notification.Draft) (model.Notification, error) {
	return model.Notification{}, errors.New("down")
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateBooking(ctx, model.Booking{ID: "b1", Status: model.BookingPending}))
	m, err := NewMachine(st, nil, commission.NewCalculator(nil), brokenNotifier{}, nil, nil, nil)
	require.NoError(t, err)

	_, err = m.RequestTransition(ctx, TransitionRequest{BookingID: "b1", Target: model.BookingConfirmed})
	require.NoError(t, err)
	got, _ := st.GetBooking(ctx, "b1")
	assert.Equal(t, model.BookingConfirmed, got.Status)
}
