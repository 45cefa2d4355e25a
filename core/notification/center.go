// Package notification records admin and technician notifications and
// serves them to polling consumers.
//
// Delivery is pull based: consumers re-fetch on a fixed interval, returned
// with every page as PollAfterSeconds. A notification is only guaranteed to
// be visible on the next poll after Create returns.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/store"
)

// Config holds the polling cadence advertised to consumers.
type Config struct {
	AdminPollSeconds      int `json:"admin_poll_seconds"`
	TechnicianPollSeconds int `json:"technician_poll_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.AdminPollSeconds <= 0 {
		c.AdminPollSeconds = 30
	}
	if c.TechnicianPollSeconds <= 0 {
		c.TechnicianPollSeconds = 10
	}
}

// Draft is the input of Create.
type Draft struct {
	Scope       model.Scope
	Type        model.NotificationType
	ReferenceID string
	Message     string
	Important   bool
}

// Page is one poll result.
type Page struct {
	Items            []model.Notification `json:"items"`
	UnreadCount      int                  `json:"unreadCount"`
	PollAfterSeconds int                  `json:"pollAfterSeconds"`
}

// Center is the NotificationCenter.
type Center struct {
	store store.NotificationStore
	cfg   Config
	clock clock.Clock
	log   logger.Logger
	newID func() string
}

// NewCenter creates a Center. A nil clock uses the wall clock.
func NewCenter(st store.NotificationStore, cfg Config, clk clock.Clock, log logger.Logger) *Center {
	cfg.SetDefaults()
	if clk == nil {
		clk = clock.WallClock
	}
	return &Center{store: st, cfg: cfg, clock: clk, log: logger.OrNop(log), newID: uuid.NewString}
}

// Create appends a notification.
func (c *Center) Create(ctx context.Context, d Draft) (model.Notification, error) {
	if _, err := model.ParseNotificationType(string(d.Type)); err != nil {
		return model.Notification{}, err
	}
	if strings.TrimSpace(d.ReferenceID) == "" {
		return model.Notification{}, apperr.New(apperr.CodeInvalidArgument, "notification reference is required")
	}
	n := model.Notification{
		ID:          c.newID(),
		Scope:       d.Scope,
		Type:        d.Type,
		ReferenceID: d.ReferenceID,
		Message:     d.Message,
		IsImportant: d.Important,
		CreatedAt:   c.clock.Now().UTC(),
	}
	if err := c.store.CreateNotification(ctx, n); err != nil {
		return model.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	c.log.Debugw("notification created", map[string]any{
		"id": n.ID, "scope": n.Scope.String(), "type": n.Type.String(), "reference": n.ReferenceID, "important": n.IsImportant,
	})
	return n, nil
}

// List returns the scope's notifications, newest first, with the unread
// count recomputed from the store.
func (c *Center) List(ctx context.Context, scope model.Scope, unreadOnly bool) (Page, error) {
	items, err := c.store.QueryNotifications(ctx, store.NotificationFilter{Scope: scope, UnreadOnly: unreadOnly})
	if err != nil {
		return Page{}, fmt.Errorf("query notifications: %w", err)
	}
	unread, err := c.store.CountNotifications(ctx, store.NotificationFilter{Scope: scope, UnreadOnly: true})
	if err != nil {
		return Page{}, fmt.Errorf("count notifications: %w", err)
	}
	if items == nil {
		items = []model.Notification{}
	}
	return Page{Items: items, UnreadCount: unread, PollAfterSeconds: int(c.PollInterval(scope) / time.Second)}, nil
}

// PollInterval is the re-fetch cadence for the scope.
func (c *Center) PollInterval(scope model.Scope) time.Duration {
	if scope.IsAdmin() {
		return time.Duration(c.cfg.AdminPollSeconds) * time.Second
	}
	return time.Duration(c.cfg.TechnicianPollSeconds) * time.Second
}

// MarkRead flags one of the scope's notifications as read.
func (c *Center) MarkRead(ctx context.Context, id string, scope model.Scope) (model.Notification, error) {
	if err := c.owned(ctx, id, scope); err != nil {
		return model.Notification{}, err
	}
	read := true
	return c.store.UpdateNotification(ctx, id, store.NotificationPatch{IsRead: &read})
}

// MarkAllRead flags every unread notification of the scope and returns how
// many changed.
func (c *Center) MarkAllRead(ctx context.Context, scope model.Scope) (int, error) {
	return c.store.MarkAllRead(ctx, scope)
}

// ToggleImportant flips the importance flag of one of the scope's
// notifications.
func (c *Center) ToggleImportant(ctx context.Context, id string, scope model.Scope) (model.Notification, error) {
	if err := c.owned(ctx, id, scope); err != nil {
		return model.Notification{}, err
	}
	return c.store.UpdateNotification(ctx, id, store.NotificationPatch{ToggleImportant: true})
}

func (c *Center) owned(ctx context.Context, id string, scope model.Scope) error {
	n, err := c.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.Scope != scope {
		return apperr.New(apperr.CodeForbidden, "notification %s does not belong to %s", id, scope)
	}
	return nil
}
