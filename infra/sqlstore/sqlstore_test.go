package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/store"
)

var bookingCols = []string{
	"id", "customer_id", "service_type", "scheduled_at", "status", "payment_status", "price",
	"technician_id", "assigned_at", "technician_accepted_at", "technician_rejected_at", "rejection_reason",
	"technician_earnings", "platform_commission", "commission_fallback", "created_at", "updated_at", "version",
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, DialectMySQL, Config{RetryInitialMillis: 1, RetryMaxAttempts: 3}, nil), mock
}

func bookingRow(id, status, tech string, version int64) *sqlmock.Rows {
	var techVal any
	if tech != "" {
		techVal = tech
	}
	created := time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC).UnixNano()
	return sqlmock.NewRows(bookingCols).AddRow(
		id, "c1", "washing_machine", nil, status, "pending", int64(1000),
		techVal, nil, nil, nil, nil,
		nil, nil, false, created, created, version)
}

func TestUpdateBookingCarriesPreconditionInWhereClause(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE bookings SET status = ?, technician_id = ?, assigned_at = ?, updated_at = ?, version = version + 1 "+
			"WHERE id = ? AND status IN (?, ?) AND (technician_id IS NULL OR technician_id = '')")).
		WithArgs("assigned", "t1", now.UnixNano(), now.UnixNano(), "b1", "pending", "confirmed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \?`).WithArgs("b1").
		WillReturnRows(bookingRow("b1", "assigned", "t1", 2))
	mock.ExpectCommit()

	st := model.BookingAssigned
	tech := "t1"
	b, err := s.UpdateBooking(context.Background(), "b1",
		store.BookingPrecondition{Statuses: []model.BookingStatus{model.BookingPending, model.BookingConfirmed}, Unassigned: true},
		store.BookingPatch{Status: &st, TechnicianID: &tech, AssignedAt: &now, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, model.BookingAssigned, b.Status)
	require.NotNil(t, b.TechnicianID)
	assert.Equal(t, "t1", *b.TechnicianID)
	assert.Equal(t, int64(2), b.Version)
	assert.Nil(t, b.ScheduledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBookingConflictVersusNotFound(t *testing.T) {
	s, mock := newMock(t)
	v := int64(3)
	st := model.BookingCancelled

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET .+ WHERE id = \? AND version = \?`).
		WithArgs("cancelled", "b1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM bookings WHERE id = \?`).WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := s.UpdateBooking(context.Background(), "b1", store.BookingPrecondition{Version: &v}, store.BookingPatch{Status: &st})
	assert.ErrorIs(t, err, store.ErrConflict)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM bookings WHERE id = \?`).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	_, err = s.UpdateBooking(context.Background(), "nope", store.BookingPrecondition{Version: &v}, store.BookingPatch{Status: &st})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearTechnicianWritesNull(t *testing.T) {
	set, args := bookingSet(store.BookingPatch{ClearTechnician: true})
	assert.Equal(t, "technician_id = NULL, version = version + 1", set)
	assert.Empty(t, args)
}

func TestDuplicateInsertIsConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO bookings`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'b1' for key 'PRIMARY'"})

	err := s.CreateBooking(context.Background(), model.Booking{ID: "b1", Status: model.BookingPending})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransientErrorsAreRetried(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \?`).
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \?`).
		WillReturnRows(bookingRow("b1", "pending", "", 1))

	b, err := s.GetBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM bookings`).WillReturnError(sql.ErrConnDone)

	_, err := s.GetBooking(context.Background(), "b1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get booking b1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBumpRetryUsesMySQLUpsert(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE rounds = rounds + 1")).
		WithArgs("b1", now.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT rounds, updated_at FROM dispatch_retries`).WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"rounds", "updated_at"}).AddRow(2, now.UnixNano()))
	mock.ExpectCommit()

	r, err := s.BumpRetry(context.Background(), "b1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Rounds)
	assert.True(t, now.Equal(r.UpdatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailureIsNotRetried(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE rounds = rounds + 1")).
		WithArgs("b1", now.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT rounds, updated_at FROM dispatch_retries`).WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"rounds", "updated_at"}).AddRow(1, now.UnixNano()))
	mock.ExpectCommit().WillReturnError(driver.ErrBadConn)

	_, err := s.BumpRetry(context.Background(), "b1", now)
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Contains(t, err.Error(), "bump retry b1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, "memory", c.Driver)
	require.NoError(t, c.Validate())

	c = Config{Driver: "mysql", DSN: "user:pw@tcp(localhost:3306)/homefix"}
	c.SetDefaults()
	require.NoError(t, c.Validate())

	c = Config{Driver: "mysql", DSN: "not a dsn"}
	assert.Error(t, c.Validate())
	assert.Error(t, Config{Driver: "postgres"}.Validate())
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
