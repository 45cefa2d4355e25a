package sqlstore

import (
	"context"
	"time"

	"github.com/kilianp07/homefix/core/model"
)

func (s *Store) BumpRetry(ctx context.Context, bookingID string, now time.Time) (model.DispatchRetry, error) {
	upsert := `INSERT INTO dispatch_retries (booking_id, rounds, updated_at) VALUES (?, 1, ?)
ON CONFLICT(booking_id) DO UPDATE SET rounds = rounds + 1, updated_at = excluded.updated_at`
	if s.dialect == DialectMySQL {
		upsert = `INSERT INTO dispatch_retries (booking_id, rounds, updated_at) VALUES (?, 1, ?)
ON DUPLICATE KEY UPDATE rounds = rounds + 1, updated_at = VALUES(updated_at)`
	}
	r := model.DispatchRetry{BookingID: bookingID}
	err := s.inTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, upsert, bookingID, nanos(now)); err != nil {
			return err
		}
		var updated int64
		if err := q.QueryRowContext(ctx, `SELECT rounds, updated_at FROM dispatch_retries WHERE booking_id = ?`, bookingID).Scan(&r.Rounds, &updated); err != nil {
			return err
		}
		r.UpdatedAt = fromNanos(updated)
		return nil
	})
	return r, wrap(err, "bump retry %s", bookingID)
}

func (s *Store) ListRetries(ctx context.Context) ([]model.DispatchRetry, error) {
	var res []model.DispatchRetry
	err := s.retry(ctx, func() error {
		res = res[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT booking_id, rounds, updated_at FROM dispatch_retries ORDER BY booking_id`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var (
				r       model.DispatchRetry
				updated int64
			)
			if err := rows.Scan(&r.BookingID, &r.Rounds, &updated); err != nil {
				return err
			}
			r.UpdatedAt = fromNanos(updated)
			res = append(res, r)
		}
		return rows.Err()
	})
	return res, wrap(err, "list retries")
}

func (s *Store) DeleteRetry(ctx context.Context, bookingID string) error {
	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_retries WHERE booking_id = ?`, bookingID)
		return err
	})
	return wrap(err, "delete retry %s", bookingID)
}
