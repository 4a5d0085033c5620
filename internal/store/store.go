// Package store persists canonical events. Two implementations share one
// contract: SQLiteStore for production and MemoryStore as the fallback
// selected at startup when the database cannot be opened.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/isdelr/disaster-tracker-be/internal/models"
)

// DefaultPastLimit is used when GetPastEvents is called with limit <= 0.
const DefaultPastLimit = 50

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("event not found")

// Store is the persistence contract. Every list is ordered by date
// descending.
type Store interface {
	// CreateOrGet inserts ev unless an event with the same non-empty
	// (Source, SourceID) exists. On a match the stored title, description,
	// severity and magnitude are refreshed from ev while id, createdAt and
	// isActive are preserved, and isNew is false. The check and the write
	// are atomic.
	CreateOrGet(ctx context.Context, ev models.Event) (stored models.Event, isNew bool, err error)

	GetEvent(ctx context.Context, id string) (models.Event, error)
	GetActiveEvents(ctx context.Context) ([]models.Event, error)
	// GetPastEvents returns events with isActive=0, or dated before the
	// retention cutoff without isActive=1.
	GetPastEvents(ctx context.Context, limit, offset int) ([]models.Event, error)
	GetEventsByType(ctx context.Context, eventType string) ([]models.Event, error)
	GetEventsByLocation(ctx context.Context, country string) ([]models.Event, error)
	GetEventsBySeverity(ctx context.Context, severity string) ([]models.Event, error)
	// SearchEvents is a case-insensitive substring match over title,
	// description, country and event type.
	SearchEvents(ctx context.Context, query string) ([]models.Event, error)
	// GetEventStats aggregates active events only.
	GetEventStats(ctx context.Context) (models.EventStats, error)
	// MarkPastBefore flips active events dated before cutoff to past and
	// returns how many changed.
	MarkPastBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

func pastCutoff(now time.Time) time.Time {
	return now.Add(-models.RetentionWindow)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPastLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
