package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/isdelr/disaster-tracker-be/internal/models"
)

// MemoryStore is a mutex-guarded Store. Contents are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	clock  clockwork.Clock
	events map[string]models.Event // by id
	keys   map[string]string       // source|sourceId -> id
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:  clock,
		events: make(map[string]models.Event),
		keys:   make(map[string]string),
	}
}

func identityKey(source, sourceID string) string {
	return source + "|" + sourceID
}

func copyEvent(ev models.Event) models.Event {
	if ev.Magnitude != nil {
		m := *ev.Magnitude
		ev.Magnitude = &m
	}
	return ev
}

func (m *MemoryStore) CreateOrGet(ctx context.Context, ev models.Event) (models.Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Event{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.SourceID != "" {
		key := identityKey(ev.Source, ev.SourceID)
		if id, ok := m.keys[key]; ok {
			stored := m.events[id]
			stored.Title = ev.Title
			stored.Description = ev.Description
			stored.Severity = ev.Severity
			stored.Magnitude = ev.Magnitude
			stored.UpdatedAt = ev.UpdatedAt
			stored = copyEvent(stored)
			m.events[id] = stored
			return copyEvent(stored), false, nil
		}
		m.keys[key] = ev.ID
	}

	ev = copyEvent(ev)
	m.events[ev.ID] = ev
	return copyEvent(ev), true, nil
}

func (m *MemoryStore) GetEvent(ctx context.Context, id string) (models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.events[id]
	if !ok {
		return models.Event{}, ErrNotFound
	}
	return copyEvent(ev), nil
}

// filter returns matching events ordered by date descending, then by
// creation and id to keep the order stable.
func (m *MemoryStore) filter(ctx context.Context, keep func(models.Event) bool) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := []models.Event{}
	for _, ev := range m.events {
		if keep(ev) {
			out = append(out, copyEvent(ev))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *MemoryStore) GetActiveEvents(ctx context.Context) ([]models.Event, error) {
	return m.filter(ctx, func(ev models.Event) bool { return ev.IsActive == 1 })
}

func (m *MemoryStore) GetPastEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	limit, offset = normalizePage(limit, offset)
	cutoff := pastCutoff(m.clock.Now())

	all, err := m.filter(ctx, func(ev models.Event) bool {
		return ev.IsActive == 0 || (ev.Date.Before(cutoff) && ev.IsActive != 1)
	})
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return []models.Event{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MemoryStore) GetEventsByType(ctx context.Context, eventType string) ([]models.Event, error) {
	return m.filter(ctx, func(ev models.Event) bool {
		return strings.EqualFold(string(ev.EventType), eventType)
	})
}

func (m *MemoryStore) GetEventsByLocation(ctx context.Context, country string) ([]models.Event, error) {
	return m.filter(ctx, func(ev models.Event) bool { return ev.Location.Country == country })
}

func (m *MemoryStore) GetEventsBySeverity(ctx context.Context, severity string) ([]models.Event, error) {
	return m.filter(ctx, func(ev models.Event) bool { return string(ev.Severity) == severity })
}

func (m *MemoryStore) SearchEvents(ctx context.Context, query string) ([]models.Event, error) {
	term := strings.ToLower(query)
	return m.filter(ctx, func(ev models.Event) bool {
		return strings.Contains(strings.ToLower(ev.Title), term) ||
			strings.Contains(strings.ToLower(ev.Description), term) ||
			strings.Contains(strings.ToLower(ev.Location.Country), term) ||
			strings.Contains(strings.ToLower(string(ev.EventType)), term)
	})
}

func (m *MemoryStore) GetEventStats(ctx context.Context) (models.EventStats, error) {
	if err := ctx.Err(); err != nil {
		return models.EventStats{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.EventStats{
		SeverityCounts: map[string]int{},
		TypeCounts:     map[string]int{},
	}
	countries := make(map[string]struct{})
	for _, ev := range m.events {
		if ev.IsActive != 1 {
			continue
		}
		stats.ActiveEvents++
		countries[ev.Location.Country] = struct{}{}
		stats.SeverityCounts[string(ev.Severity)]++
		stats.TypeCounts[string(ev.EventType)]++
	}
	stats.CountriesAffected = len(countries)
	return stats, nil
}

func (m *MemoryStore) MarkPastBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now().UTC()
	var n int64
	for id, ev := range m.events {
		if ev.IsActive == 1 && ev.Date.Before(cutoff) {
			ev.IsActive = 0
			ev.UpdatedAt = now
			m.events[id] = ev
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	return nil
}
