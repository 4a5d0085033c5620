// Package ingest drives ingestion cycles: it runs the feed adapters, writes
// their candidates through the Upserter and hands genuinely new events to
// the configured notifiers. It also owns the active-to-past lifecycle sweep.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/isdelr/disaster-tracker-be/internal/models"
	"github.com/isdelr/disaster-tracker-be/internal/store"
)

// ErrValidation marks a candidate missing a required canonical field.
var ErrValidation = errors.New("invalid event")

// PersistenceError wraps a store failure for one candidate.
type PersistenceError struct {
	Source   string
	SourceID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s event %q: %v", e.Source, e.SourceID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SubmitterProvider defines the interface for submitting events.
type SubmitterProvider interface {
	Submit(ctx context.Context, ev models.Event) (models.Event, bool, error)
}

// Upserter resolves candidate identity against the store.
type Upserter struct {
	store store.Store
	clock clockwork.Clock
}

// NewUpserter creates a new Upserter.
func NewUpserter(s store.Store, clock clockwork.Clock) *Upserter {
	return &Upserter{store: s, clock: clock}
}

// Submit validates ev, assigns a fresh id and bookkeeping timestamps, and
// writes it through Store.CreateOrGet. isNew is false when the
// (source, sourceId) pair was already stored; that is not an error.
func (u *Upserter) Submit(ctx context.Context, ev models.Event) (models.Event, bool, error) {
	ev, err := normalize(ev)
	if err != nil {
		return models.Event{}, false, err
	}

	now := u.clock.Now().UTC()
	ev.ID = uuid.New().String()
	ev.IsActive = 1
	ev.CreatedAt = now
	ev.UpdatedAt = now

	stored, isNew, err := u.store.CreateOrGet(ctx, ev)
	if err != nil {
		return models.Event{}, false, &PersistenceError{Source: ev.Source, SourceID: ev.SourceID, Err: err}
	}
	return stored, isNew, nil
}

func normalize(ev models.Event) (models.Event, error) {
	ev.Title = strings.TrimSpace(ev.Title)
	ev.Source = strings.TrimSpace(ev.Source)
	ev.SourceID = strings.TrimSpace(ev.SourceID)
	ev.EventType = models.EventType(strings.ToLower(strings.TrimSpace(string(ev.EventType))))
	ev.Severity = models.Severity(strings.ToLower(strings.TrimSpace(string(ev.Severity))))
	ev.Date = ev.Date.UTC()

	switch {
	case ev.Title == "":
		return ev, fmt.Errorf("%w: title is required", ErrValidation)
	case ev.Source == "":
		return ev, fmt.Errorf("%w: source is required", ErrValidation)
	case ev.Date.IsZero():
		return ev, fmt.Errorf("%w: date is required", ErrValidation)
	case !ev.EventType.Valid():
		return ev, fmt.Errorf("%w: unknown event type %q", ErrValidation, ev.EventType)
	case !ev.Severity.Valid():
		return ev, fmt.Errorf("%w: unknown severity %q", ErrValidation, ev.Severity)
	}
	return ev, nil
}
