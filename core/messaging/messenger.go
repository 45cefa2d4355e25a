// Package messaging forwards booking and dispatch events to outbound
// channels: technician job alerts, admin email and admin SMS. Delivery is
// best-effort. A failed send is logged and reported to the error monitor,
// never retried inline and never surfaced to the operation that raised the
// event.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/model"
)

// Channel names an outbound delivery channel.
type Channel string

const (
	ChannelTechnicianAlert Channel = "technician_alert"
	ChannelAdminEmail      Channel = "admin_email"
	ChannelAdminSMS        Channel = "admin_sms"
)

// AdminRecipient addresses the admin team.
const AdminRecipient = "admin"

// Payload is the body of an outbound message.
type Payload struct {
	Recipient   string                 `json:"recipient"`
	Type        model.NotificationType `json:"type"`
	ReferenceID string                 `json:"referenceId"`
	Message     string                 `json:"message"`
	Important   bool                   `json:"important"`
	Time        time.Time              `json:"time"`
}

// Messenger delivers a payload on a channel.
type Messenger interface {
	Notify(ctx context.Context, channel Channel, payload Payload) error
}

// LogMessenger only logs what it would have sent.
type LogMessenger struct {
	log logger.Logger
}

// NewLogMessenger returns a Messenger that writes every message to log.
func NewLogMessenger(log logger.Logger) *LogMessenger {
	return &LogMessenger{log: logger.OrNop(log)}
}

func (m *LogMessenger) Notify(_ context.Context, channel Channel, p Payload) error {
	m.log.Debugw("outbound message", map[string]any{
		"channel":   string(channel),
		"recipient": p.Recipient,
		"type":      string(p.Type),
		"reference": p.ReferenceID,
		"important": p.Important,
		"message":   p.Message,
	})
	return nil
}

// Router sends each channel to its own Messenger. Channels without a route
// go to the fallback, if any.
type Router struct {
	mu       sync.RWMutex
	routes   map[Channel]Messenger
	fallback Messenger
}

// NewRouter creates a Router with an optional fallback.
func NewRouter(fallback Messenger) *Router {
	return &Router{routes: make(map[Channel]Messenger), fallback: fallback}
}

// Route registers m for channel and returns the router for chaining.
func (r *Router) Route(channel Channel, m Messenger) *Router {
	r.mu.Lock()
	r.routes[channel] = m
	r.mu.Unlock()
	return r
}

func (r *Router) Notify(ctx context.Context, channel Channel, p Payload) error {
	r.mu.RLock()
	m, ok := r.routes[channel]
	r.mu.RUnlock()
	if !ok {
		m = r.fallback
	}
	if m == nil {
		return fmt.Errorf("messaging: no route for channel %s", channel)
	}
	return m.Notify(ctx, channel, p)
}
