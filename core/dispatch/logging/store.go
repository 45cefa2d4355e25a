// Package logging keeps an audit trail of dispatch decisions: offers
// issued, offers resolved and failed dispatch rounds. Records can be
// written to a rotating JSONL file or to SQLite and queried per booking
// or technician.
package logging

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kilianp07/homefix/core/events"
	"github.com/kilianp07/homefix/core/model"
)

// Kind identifies a dispatch decision.
type Kind string

const (
	KindOffersIssued   Kind = "offers_issued"
	KindOfferResolved  Kind = "offer_resolved"
	KindDispatchFailed Kind = "dispatch_failed"
)

// LogRecord captures one dispatch decision.
type LogRecord struct {
	Timestamp   time.Time        `json:"timestamp"`
	Kind        Kind             `json:"kind"`
	BookingID   string           `json:"booking_id"`
	Technicians []string         `json:"technicians,omitempty"`
	OfferIDs    []string         `json:"offer_ids,omitempty"`
	Outcome     model.OfferState `json:"outcome,omitempty"`
	LatencyMS   int64            `json:"latency_ms,omitempty"`
	Redispatch  bool             `json:"redispatch,omitempty"`
	Round       int              `json:"round,omitempty"`
	Exhausted   bool             `json:"exhausted,omitempty"`
}

// LogQuery defines filters for retrieving records. Zero values match all.
type LogQuery struct {
	Start        time.Time
	End          time.Time
	BookingID    string
	TechnicianID string
	Kind         Kind
}

// Match reports whether r satisfies the query.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.BookingID != "" && r.BookingID != q.BookingID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.TechnicianID != "" && !slices.Contains(r.Technicians, q.TechnicianID) {
		return false
	}
	return true
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// FromEvent converts a dispatch event into a record. Events unrelated to
// dispatch return false.
func FromEvent(ev events.Event) (LogRecord, bool) {
	switch e := ev.(type) {
	case events.OffersIssued:
		rec := LogRecord{Timestamp: e.Time, Kind: KindOffersIssued, BookingID: e.BookingID, Redispatch: e.Redispatch}
		for _, o := range e.Offers {
			rec.Technicians = append(rec.Technicians, o.TechnicianID)
			rec.OfferIDs = append(rec.OfferIDs, o.ID)
		}
		return rec, true
	case events.OfferResolved:
		return LogRecord{
			Timestamp:   e.Time,
			Kind:        KindOfferResolved,
			BookingID:   e.Offer.BookingID,
			Technicians: []string{e.Offer.TechnicianID},
			OfferIDs:    []string{e.Offer.ID},
			Outcome:     e.Outcome,
			LatencyMS:   e.Latency.Milliseconds(),
		}, true
	case events.DispatchFailed:
		return LogRecord{Timestamp: e.Time, Kind: KindDispatchFailed, BookingID: e.BookingID, Round: e.Round, Exhausted: e.Exhausted}, true
	}
	return LogRecord{}, false
}

// Config selects the decision log backend.
type Config struct {
	// Backend is "", "jsonl" or "sqlite". Empty disables the log.
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	switch c.Backend {
	case "jsonl":
		if c.Path == "" {
			c.Path = "dispatch.jsonl"
		}
		if c.MaxSizeMB <= 0 {
			c.MaxSizeMB = 50
		}
	case "sqlite":
		if c.Path == "" {
			c.Path = "dispatch_log.db"
		}
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case "", "jsonl", "sqlite":
		return nil
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// Open creates the configured store. A disabled log returns nil.
func Open(cfg Config) (LogStore, error) {
	cfg.SetDefaults()
	var (
		store LogStore
		err   error
	)
	switch cfg.Backend {
	case "":
		return nil, nil
	case "jsonl":
		store, err = NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		store, err = NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
