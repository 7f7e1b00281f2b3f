package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v5"
)

// EventKind is the kind of mutation an audit event records
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// ParseEventKind normalizes a backend action/event string. Unrecognized values are
// kept verbatim so they can be reported as unknown instead of guessed.
func ParseEventKind(s string) EventKind {
	return EventKind(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether k is one of the three kinds the dashboard understands.
func (k EventKind) Known() bool {
	switch k {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// LogSchema identifies which backend log an event was read from
type LogSchema string

const (
	SchemaAuditLog        LogSchema = "audit-logs"
	SchemaModificationLog LogSchema = "modification-logs"
)

// ParseLogSchema accepts the path segment used by the backend endpoints.
func ParseLogSchema(s string) (LogSchema, error) {
	switch LogSchema(strings.ToLower(strings.TrimSpace(s))) {
	case SchemaAuditLog:
		return SchemaAuditLog, nil
	case SchemaModificationLog:
		return SchemaModificationLog, nil
	}
	return "", ErrUnknownSchema
}

// SystemActor is shown for events recorded without a user.
const SystemActor = "System"

// ChangeEvent is one audited mutation, normalized from either backend schema.
type ChangeEvent struct {
	ID            string      `json:"id"`
	Schema        LogSchema   `json:"schema"`
	ActorID       null.String `json:"actor_id"`
	ActorName     null.String `json:"actor_name"`
	ActorUsername null.String `json:"actor_username"`
	ActorBranch   null.String `json:"actor_branch"`
	Kind          EventKind   `json:"kind"`
	TargetType    string      `json:"target_type,omitempty"`
	TargetTable   string      `json:"target_table"`
	TargetID      string      `json:"target_id"`
	OldValues     *Values     `json:"old_values"`
	NewValues     *Values     `json:"new_values"`
	OccurredAt    time.Time   `json:"occurred_at"`
	RawTimestamp  string      `json:"raw_timestamp,omitempty"`
	SourceIP      null.String `json:"source_ip"`
}

// Actor returns the display name of whoever performed the action.
func (e ChangeEvent) Actor() string {
	if e.ActorName.Valid && strings.TrimSpace(e.ActorName.String) != "" {
		return e.ActorName.String
	}
	if e.ActorUsername.Valid && strings.TrimSpace(e.ActorUsername.String) != "" {
		return e.ActorUsername.String
	}
	return SystemActor
}

// Validate checks the snapshot invariants of the event kind.
// Unknown kinds carry no invariants.
func (e ChangeEvent) Validate() error {
	switch e.Kind {
	case EventCreated:
		if !e.OldValues.IsEmpty() {
			return e.malformed("old_values must be empty")
		}
		if e.NewValues.IsEmpty() {
			return e.malformed("new_values is missing")
		}
	case EventDeleted:
		if !e.NewValues.IsEmpty() {
			return e.malformed("new_values must be empty")
		}
		if e.OldValues.IsEmpty() {
			return e.malformed("old_values is missing")
		}
	case EventUpdated:
		if e.OldValues == nil {
			return e.malformed("old_values is missing")
		}
		if e.NewValues == nil {
			return e.malformed("new_values is missing")
		}
	}
	return nil
}

func (e ChangeEvent) malformed(reason string) *MalformedEventError {
	return &MalformedEventError{EventID: e.ID, Kind: e.Kind, Reason: reason}
}

// LogQuery carries the filters and page window forwarded to the backend
type LogQuery struct {
	Schema   LogSchema `json:"schema"`
	Date     string    `json:"date,omitempty"`
	Month    string    `json:"month,omitempty"`
	Search   string    `json:"search,omitempty"`
	Action   string    `json:"action,omitempty"`
	Table    string    `json:"table,omitempty"`
	RecordID string    `json:"record_id,omitempty"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
}

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Normalize applies pagination defaults and bounds.
func (q LogQuery) Normalize() LogQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

// Validate checks the calendar filters. Errors wrap ErrInvalidQuery.
func (q LogQuery) Validate() error {
	if q.Date != "" {
		if _, err := time.Parse("2006-01-02", q.Date); err != nil {
			return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidQuery, q.Date)
		}
	}
	if q.Month != "" {
		if _, err := time.Parse("2006-01", q.Month); err != nil {
			return fmt.Errorf("%w: month %q is not YYYY-MM", ErrInvalidQuery, q.Month)
		}
	}
	return nil
}

// Offset returns the row offset of the page window.
func (q LogQuery) Offset() int {
	n := q.Normalize()
	return (n.Page - 1) * n.PerPage
}

// EventPage is one page of normalized events plus the records that failed normalization.
type EventPage struct {
	Schema   LogSchema      `json:"schema"`
	Events   []ChangeEvent  `json:"events"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PerPage  int            `json:"per_page"`
	Rejected []*RecordError `json:"-"`
}
