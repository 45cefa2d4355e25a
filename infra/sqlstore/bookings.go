package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/store"
)

const bookingColumns = `id, customer_id, service_type, scheduled_at, status, payment_status, price, technician_id, assigned_at, technician_accepted_at, technician_rejected_at, rejection_reason, technician_earnings, platform_commission, commission_fallback, created_at, updated_at, version`

func (s *Store) CreateBooking(ctx context.Context, b model.Booking) error {
	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO bookings (`+bookingColumns+`) VALUES (`+placeholders(18)+`)`,
			b.ID, b.CustomerID, b.ServiceType, nullNanos(b.ScheduledAt), string(b.Status), string(b.PaymentStatus), b.Price,
			nullString(b.TechnicianID), nullNanos(b.AssignedAt), nullNanos(b.TechnicianAcceptedAt), nullNanos(b.TechnicianRejectedAt),
			nullString(b.RejectionReason), nullInt(b.TechnicianEarnings), nullInt(b.PlatformCommission), b.CommissionFallback,
			nanos(b.CreatedAt), nanos(b.UpdatedAt), b.Version)
		return err
	})
	if duplicate(err) {
		return store.ErrConflict
	}
	return wrap(err, "insert booking %s", b.ID)
}

func (s *Store) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	err := s.retry(ctx, func() error {
		var err error
		b, err = getBooking(ctx, s.db, id)
		return err
	})
	return b, wrap(err, "get booking %s", id)
}

func getBooking(ctx context.Context, q querier, id string) (model.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, notFound("booking", id)
	}
	return b, err
}

func (s *Store) UpdateBooking(ctx context.Context, id string, pre store.BookingPrecondition, patch store.BookingPatch) (model.Booking, error) {
	set, args := bookingSet(patch)
	where, wargs := bookingWhere(pre)
	query := `UPDATE bookings SET ` + set + ` WHERE id = ?` + where
	args = append(append(args, id), wargs...)

	var out model.Booking
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
			found, err := exists(ctx, q, "bookings", id)
			if err != nil {
				return err
			}
			if !found {
				return notFound("booking", id)
			}
			return store.ErrConflict
		}
		out, err = getBooking(ctx, q, id)
		return err
	})
	return out, wrap(err, "update booking %s", id)
}

func bookingSet(p store.BookingPatch) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.PaymentStatus != nil {
		add("payment_status", string(*p.PaymentStatus))
	}
	switch {
	case p.TechnicianID != nil:
		add("technician_id", *p.TechnicianID)
	case p.ClearTechnician:
		sets = append(sets, "technician_id = NULL")
	}
	if p.AssignedAt != nil {
		add("assigned_at", nanos(*p.AssignedAt))
	}
	if p.TechnicianAcceptedAt != nil {
		add("technician_accepted_at", nanos(*p.TechnicianAcceptedAt))
	}
	if p.TechnicianRejectedAt != nil {
		add("technician_rejected_at", nanos(*p.TechnicianRejectedAt))
	}
	if p.RejectionReason != nil {
		add("rejection_reason", *p.RejectionReason)
	}
	if p.TechnicianEarnings != nil {
		add("technician_earnings", *p.TechnicianEarnings)
	}
	if p.PlatformCommission != nil {
		add("platform_commission", *p.PlatformCommission)
	}
	if p.CommissionFallback != nil {
		add("commission_fallback", *p.CommissionFallback)
	}
	if !p.UpdatedAt.IsZero() {
		add("updated_at", nanos(p.UpdatedAt))
	}
	sets = append(sets, "version = version + 1")
	return strings.Join(sets, ", "), args
}

func bookingWhere(p store.BookingPrecondition) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	if p.Version != nil {
		sb.WriteString(" AND version = ?")
		args = append(args, *p.Version)
	}
	if len(p.Statuses) > 0 {
		sb.WriteString(" AND status IN (" + placeholders(len(p.Statuses)) + ")")
		for _, st := range p.Statuses {
			args = append(args, string(st))
		}
	}
	if p.Unassigned {
		sb.WriteString(" AND (technician_id IS NULL OR technician_id = '')")
	}
	return sb.String(), args
}

func scanBooking(r rowScanner) (model.Booking, error) {
	var (
		b                                       model.Booking
		status, payment                         string
		scheduled, assigned, accepted, rejected sql.NullInt64
		earnings, commission                    sql.NullInt64
		tech, reason                            sql.NullString
		created, updated                        int64
	)
	if err := r.Scan(&b.ID, &b.CustomerID, &b.ServiceType, &scheduled, &status, &payment, &b.Price,
		&tech, &assigned, &accepted, &rejected, &reason, &earnings, &commission, &b.CommissionFallback,
		&created, &updated, &b.Version); err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	b.PaymentStatus = model.PaymentStatus(payment)
	b.ScheduledAt = timePtr(scheduled)
	b.TechnicianID = stringPtr(tech)
	b.AssignedAt = timePtr(assigned)
	b.TechnicianAcceptedAt = timePtr(accepted)
	b.TechnicianRejectedAt = timePtr(rejected)
	b.RejectionReason = stringPtr(reason)
	b.TechnicianEarnings = intPtr(earnings)
	b.PlatformCommission = intPtr(commission)
	b.CreatedAt = fromNanos(created)
	b.UpdatedAt = fromNanos(updated)
	return b, nil
}
