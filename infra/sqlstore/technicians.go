package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/store"
)

const technicianColumns = `id, name, specializations, status, availability, rating, completed_bookings`

func (s *Store) PutTechnician(ctx context.Context, t model.Technician) error {
	specs, err := json.Marshal(t.Specializations)
	if err != nil {
		return err
	}
	avail, err := json.Marshal(t.Availability)
	if err != nil {
		return err
	}
	err = s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`REPLACE INTO technicians (`+technicianColumns+`) VALUES (`+placeholders(7)+`)`,
			t.ID, t.Name, string(specs), string(t.Status), string(avail), t.Rating, t.CompletedBookings)
		return err
	})
	return wrap(err, "put technician %s", t.ID)
}

func (s *Store) GetTechnician(ctx context.Context, id string) (model.Technician, error) {
	var t model.Technician
	err := s.retry(ctx, func() error {
		var err error
		t, err = scanTechnician(s.db.QueryRowContext(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("technician", id)
		}
		return err
	})
	return t, wrap(err, "get technician %s", id)
}

// QueryTechnicians filters by status in SQL; specializations are a JSON
// list and are matched after decoding.
func (s *Store) QueryTechnicians(ctx context.Context, f store.TechnicianFilter) ([]model.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY id`
	var res []model.Technician
	err := s.retry(ctx, func() error {
		res = res[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			t, err := scanTechnician(rows)
			if err != nil {
				return err
			}
			if f.Matches(t) {
				res = append(res, t)
			}
		}
		return rows.Err()
	})
	return res, wrap(err, "query technicians")
}

func scanTechnician(r rowScanner) (model.Technician, error) {
	var (
		t            model.Technician
		specs, avail string
		status       string
	)
	if err := r.Scan(&t.ID, &t.Name, &specs, &status, &avail, &t.Rating, &t.CompletedBookings); err != nil {
		return model.Technician{}, err
	}
	t.Status = model.TechnicianStatus(status)
	if err := json.Unmarshal([]byte(specs), &t.Specializations); err != nil {
		return model.Technician{}, fmt.Errorf("decode specializations of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(avail), &t.Availability); err != nil {
		return model.Technician{}, fmt.Errorf("decode availability of %s: %w", t.ID, err)
	}
	return t, nil
}
