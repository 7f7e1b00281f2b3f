package domain

import (
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

var (
	ErrInvalidSnapshot = NewDomainError("invalid value snapshot")
	ErrUnknownSchema   = NewDomainError("unknown log schema")
	ErrInvalidQuery    = NewDomainError("invalid log query")
)

// MalformedEventError reports an event whose snapshots break the invariants of its kind,
// most commonly an updated event that arrived without old or new values.
type MalformedEventError struct {
	EventID string
	Kind    EventKind
	Reason  string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event %s: %s", e.Kind, e.EventID, e.Reason)
}

// InvalidTimestampError names an event whose occurrence time could not be parsed.
type InvalidTimestampError struct {
	EventID string
	Raw     string
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("event %s has an invalid timestamp %q", e.EventID, e.Raw)
}

// RecordError describes a backend record rejected at the normalization boundary.
// Index is the position of the record inside the page it came from.
type RecordError struct {
	Index   int
	EventID string
	Field   string
	Reason  string
}

func (e *RecordError) Error() string {
	id := e.EventID
	if id == "" {
		id = "<unknown>"
	}
	if e.Field == "" {
		return fmt.Sprintf("record %d (id %s): %s", e.Index, id, e.Reason)
	}
	return fmt.Sprintf("record %d (id %s): field %s %s", e.Index, id, e.Field, e.Reason)
}

// UpstreamError is a non-success answer from the backend collaborator.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.StatusCode, e.Message)
}
