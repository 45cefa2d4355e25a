package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/store"
)

const offerColumns = `id, booking_id, technician_id, state, issued_at, expires_at, responded_at, rejection_reason`

func (s *Store) CreateOffers(ctx context.Context, offers []model.JobOffer) error {
	if len(offers) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(q querier) error {
		for _, o := range offers {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO job_offers (`+offerColumns+`) VALUES (`+placeholders(8)+`)`,
				o.ID, o.BookingID, o.TechnicianID, string(o.State), nanos(o.IssuedAt), nanos(o.ExpiresAt),
				nullNanos(o.RespondedAt), nullString(o.RejectionReason)); err != nil {
				return err
			}
		}
		return nil
	})
	if duplicate(err) {
		return store.ErrConflict
	}
	return wrap(err, "insert offers")
}

func (s *Store) GetOffer(ctx context.Context, id string) (model.JobOffer, error) {
	var o model.JobOffer
	err := s.retry(ctx, func() error {
		var err error
		o, err = getOffer(ctx, s.db, id)
		return err
	})
	return o, wrap(err, "get offer %s", id)
}

func getOffer(ctx context.Context, q querier, id string) (model.JobOffer, error) {
	o, err := scanOffer(q.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM job_offers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobOffer{}, notFound("offer", id)
	}
	return o, err
}

func (s *Store) UpdateOffer(ctx context.Context, id string, from []model.OfferState, patch store.OfferPatch) (model.JobOffer, error) {
	sets := []string{"state = ?"}
	args := []any{string(patch.State)}
	if patch.RespondedAt != nil {
		sets = append(sets, "responded_at = ?")
		args = append(args, nanos(*patch.RespondedAt))
	}
	if patch.RejectionReason != nil {
		sets = append(sets, "rejection_reason = ?")
		args = append(args, *patch.RejectionReason)
	}
	args = append(args, id)
	query := `UPDATE job_offers SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if len(from) > 0 {
		query += ` AND state IN (` + placeholders(len(from)) + `)`
		for _, st := range from {
			args = append(args, string(st))
		}
	}

	var out model.JobOffer
	err := s.inTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			found, err := exists(ctx, q, "job_offers", id)
			if err != nil {
				return err
			}
			if !found {
				return notFound("offer", id)
			}
			return store.ErrConflict
		}
		out, err = getOffer(ctx, q, id)
		return err
	})
	return out, wrap(err, "update offer %s", id)
}

func (s *Store) QueryOffers(ctx context.Context, f store.OfferFilter) ([]model.JobOffer, error) {
	var (
		conds []string
		args  []any
	)
	if f.BookingID != "" {
		conds = append(conds, "booking_id = ?")
		args = append(args, f.BookingID)
	}
	if f.TechnicianID != "" {
		conds = append(conds, "technician_id = ?")
		args = append(args, f.TechnicianID)
	}
	if len(f.States) > 0 {
		conds = append(conds, "state IN ("+placeholders(len(f.States))+")")
		for _, st := range f.States {
			args = append(args, string(st))
		}
	}
	if !f.ExpiresBefore.IsZero() {
		conds = append(conds, "expires_at < ?")
		args = append(args, nanos(f.ExpiresBefore))
	}
	query := `SELECT ` + offerColumns + ` FROM job_offers`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY issued_at, id`

	var res []model.JobOffer
	err := s.retry(ctx, func() error {
		res = res[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			o, err := scanOffer(rows)
			if err != nil {
				return err
			}
			res = append(res, o)
		}
		return rows.Err()
	})
	return res, wrap(err, "query offers")
}

func scanOffer(r rowScanner) (model.JobOffer, error) {
	var (
		o               model.JobOffer
		state           string
		issued, expires int64
		responded       sql.NullInt64
		reason          sql.NullString
	)
	if err := r.Scan(&o.ID, &o.BookingID, &o.TechnicianID, &state, &issued, &expires, &responded, &reason); err != nil {
		return model.JobOffer{}, err
	}
	o.State = model.OfferState(state)
	o.IssuedAt = fromNanos(issued)
	o.ExpiresAt = fromNanos(expires)
	o.RespondedAt = timePtr(responded)
	o.RejectionReason = stringPtr(reason)
	return o, nil
}
