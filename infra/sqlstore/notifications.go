package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/store"
)

const notificationColumns = `id, scope, kind, reference_id, message, is_read, is_important, created_at`

func (s *Store) CreateNotification(ctx context.Context, n model.Notification) error {
	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO notifications (`+notificationColumns+`) VALUES (`+placeholders(8)+`)`,
			n.ID, n.Scope.String(), string(n.Type), n.ReferenceID, n.Message, n.IsRead, n.IsImportant, nanos(n.CreatedAt))
		return err
	})
	if duplicate(err) {
		return store.ErrConflict
	}
	return wrap(err, "insert notification %s", n.ID)
}

func (s *Store) GetNotification(ctx context.Context, id string) (model.Notification, error) {
	var n model.Notification
	err := s.retry(ctx, func() error {
		var err error
		n, err = getNotification(ctx, s.db, id)
		return err
	})
	return n, wrap(err, "get notification %s", id)
}

func getNotification(ctx context.Context, q querier, id string) (model.Notification, error) {
	n, err := scanNotification(q.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Notification{}, notFound("notification", id)
	}
	return n, err
}

func (s *Store) UpdateNotification(ctx context.Context, id string, patch store.NotificationPatch) (model.Notification, error) {
	var (
		sets []string
		args []any
	)
	if patch.IsRead != nil {
		sets = append(sets, "is_read = ?")
		args = append(args, *patch.IsRead)
	}
	if patch.ToggleImportant {
		sets = append(sets, "is_important = NOT is_important")
	}
	if len(sets) == 0 {
		return s.GetNotification(ctx, id)
	}
	query := `UPDATE notifications SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)

	var out model.Notification
	err := s.inTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		var err error
		out, err = getNotification(ctx, q, id)
		return err
	})
	return out, wrap(err, "update notification %s", id)
}

func notificationWhere(f store.NotificationFilter) (string, []any) {
	where := ` WHERE scope = ?`
	args := []any{f.Scope.String()}
	if f.UnreadOnly {
		where += ` AND is_read = ?`
		args = append(args, false)
	}
	return where, args
}

func (s *Store) QueryNotifications(ctx context.Context, f store.NotificationFilter) ([]model.Notification, error) {
	where, args := notificationWhere(f)
	query := `SELECT ` + notificationColumns + ` FROM notifications` + where + ` ORDER BY created_at DESC, id DESC`
	var res []model.Notification
	err := s.retry(ctx, func() error {
		res = res[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				return err
			}
			res = append(res, n)
		}
		return rows.Err()
	})
	return res, wrap(err, "query notifications")
}

func (s *Store) CountNotifications(ctx context.Context, f store.NotificationFilter) (int, error) {
	where, args := notificationWhere(f)
	var count int
	err := s.retry(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&count)
	})
	return count, wrap(err, "count notifications")
}

func (s *Store) MarkAllRead(ctx context.Context, scope model.Scope) (int, error) {
	var changed int64
	err := s.retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = ? WHERE scope = ? AND is_read = ?`, true, scope.String(), false)
		if err != nil {
			return err
		}
		changed, err = res.RowsAffected()
		return err
	})
	return int(changed), wrap(err, "mark all read for %s", scope)
}

func scanNotification(r rowScanner) (model.Notification, error) {
	var (
		n           model.Notification
		scope, kind string
		created     int64
	)
	if err := r.Scan(&n.ID, &scope, &kind, &n.ReferenceID, &n.Message, &n.IsRead, &n.IsImportant, &created); err != nil {
		return model.Notification{}, err
	}
	sc, err := model.ParseScope(scope)
	if err != nil {
		return model.Notification{}, err
	}
	n.Scope = sc
	n.Type = model.NotificationType(kind)
	n.CreatedAt = fromNanos(created)
	return n, nil
}
