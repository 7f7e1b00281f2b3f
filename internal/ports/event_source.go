package ports

import (
	"context"
	"time"

	"github.com/fixora/auditreport/internal/domain"
)

// EventSource defines the interface for reading change-audit logs from the backend
type EventSource interface {
	// List returns one page of normalized events matching the query.
	// Records that fail normalization are reported in EventPage.Rejected.
	List(ctx context.Context, query domain.LogQuery) (*domain.EventPage, error)
}

// ResponseCache defines the interface for caching raw backend responses
type ResponseCache interface {
	// Get returns the cached body for key. ok is false on a miss.
	Get(ctx context.Context, key string) (body []byte, ok bool, err error)

	// Set stores body under key for ttl
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// RateLimiter defines the interface for per-client request limiting
type RateLimiter interface {
	// Allow records one request for key and reports whether it is within the limit,
	// along with the remaining budget in the current window.
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
}

// EventParser defines the interface for normalizing a single raw backend record
type EventParser interface {
	// ParseRecord maps one record of the given schema onto a ChangeEvent
	ParseRecord(schema domain.LogSchema, raw []byte) (domain.ChangeEvent, error)
}
