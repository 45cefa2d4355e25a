// Package amqp delivers admin email and SMS requests through a RabbitMQ
// topic exchange. Downstream mailer and SMS workers bind queues to the
// routing keys they handle, e.g. "homefix.admin_email.#".
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/messaging"
)

// Config configures the RabbitMQ publisher.
type Config struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	// KeyPrefix is prepended to every routing key.
	KeyPrefix string `json:"key_prefix"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Exchange == "" {
		c.Exchange = "homefix.notifications"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "homefix"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("amqp: url is required")
	}
	if _, err := amqp.ParseURI(c.URL); err != nil {
		return fmt.Errorf("amqp: invalid url: %w", err)
	}
	return nil
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher is a messaging.Messenger backed by a RabbitMQ topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	prefix   string
	log      logger.Logger
}

var _ messaging.Messenger = (*Publisher)(nil)

// NewPublisher dials RabbitMQ and declares the durable topic exchange.
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p := newPublisher(ch, cfg, log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, cfg Config, log logger.Logger) *Publisher {
	cfg.SetDefaults()
	return &Publisher{ch: ch, exchange: cfg.Exchange, prefix: cfg.KeyPrefix, log: logger.OrNop(log)}
}

// RoutingKey returns <prefix>.<channel>.<recipient>. Dots in the recipient
// are replaced so they do not split topic words.
func (p *Publisher) RoutingKey(ch messaging.Channel, recipient string) string {
	if recipient == "" {
		recipient = messaging.AdminRecipient
	}
	return p.prefix + "." + string(ch) + "." + strings.ReplaceAll(recipient, ".", "_")
}

func (p *Publisher) Notify(ctx context.Context, ch messaging.Channel, payload messaging.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	key := p.RoutingKey(ch, payload.Recipient)
	priority := uint8(0)
	if payload.Important {
		priority = 5
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Priority:     priority,
		Timestamp:    payload.Time,
		Type:         string(payload.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	p.log.Debugf("published %s to %s", payload.ReferenceID, key)
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
