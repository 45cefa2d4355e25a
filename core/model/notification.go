package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kilianp07/homefix/core/apperr"
)

const technicianScopePrefix = "technician:"

// Scope identifies whose inbox a notification belongs to: the admin inbox
// or one technician's.
type Scope struct {
	TechnicianID string
}

// AdminScope is the shared admin inbox.
var AdminScope = Scope{}

// TechnicianScope returns the inbox of the given technician.
func TechnicianScope(id string) Scope { return Scope{TechnicianID: id} }

// IsAdmin reports whether the scope is the admin inbox.
func (s Scope) IsAdmin() bool { return s.TechnicianID == "" }

func (s Scope) String() string {
	if s.IsAdmin() {
		return "admin"
	}
	return technicianScopePrefix + s.TechnicianID
}

// ParseScope accepts "admin" or "technician:<id>".
func ParseScope(v string) (Scope, error) {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "admin") {
		return AdminScope, nil
	}
	if id, ok := strings.CutPrefix(v, technicianScopePrefix); ok && strings.TrimSpace(id) != "" {
		return TechnicianScope(strings.TrimSpace(id)), nil
	}
	return Scope{}, apperr.New(apperr.CodeInvalidArgument, "unknown scope %q", v)
}

func (s Scope) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Scope) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, err, "scope must be a string")
	}
	parsed, err := ParseScope(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Notification records a dispatch or booking event for an inbox.
type Notification struct {
	ID          string           `json:"id"`
	Scope       Scope            `json:"scope"`
	Type        NotificationType `json:"type"`
	ReferenceID string           `json:"referenceId"`
	Message     string           `json:"message"`
	IsRead      bool             `json:"isRead"`
	IsImportant bool             `json:"isImportant"`
	CreatedAt   time.Time        `json:"createdAt"`
}
