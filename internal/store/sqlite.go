package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/isdelr/disaster-tracker-be/internal/database"
	"github.com/isdelr/disaster-tracker-be/internal/models"
)

const eventColumns = `id, event_type, title, description, lat, lon, country, region, address,
	severity, magnitude, date, source, source_id, is_active, created_at, updated_at`

// SQLiteStore implements Store on the events table.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string, clock clockwork.Clock) (*SQLiteStore, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db, clock), nil
}

// NewSQLiteStore wraps an already migrated connection.
func NewSQLiteStore(db *sql.DB, clock clockwork.Clock) *SQLiteStore {
	return &SQLiteStore{db: db, clock: clock}
}

// scanEvent is a helper to scan an event from a row or rows object.
func scanEvent(scanner interface{ Scan(...any) error }) (models.Event, error) {
	var (
		ev                         models.Event
		region, address, sourceID  sql.NullString
		magnitude                  sql.NullFloat64
		date, createdAt, updatedAt int64
	)
	err := scanner.Scan(
		&ev.ID, &ev.EventType, &ev.Title, &ev.Description,
		&ev.Location.Lat, &ev.Location.Lon, &ev.Location.Country, &region, &address,
		&ev.Severity, &magnitude, &date, &ev.Source, &sourceID, &ev.IsActive,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return ev, err
	}

	ev.Location.Region = region.String
	ev.Location.Address = address.String
	ev.SourceID = sourceID.String
	if magnitude.Valid {
		m := magnitude.Float64
		ev.Magnitude = &m
	}
	ev.Date = time.UnixMilli(date).UTC()
	ev.CreatedAt = time.UnixMilli(createdAt).UTC()
	ev.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func (s *SQLiteStore) CreateOrGet(ctx context.Context, ev models.Event) (models.Event, bool, error) {
	query := `INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, source_id) DO UPDATE SET
			title       = excluded.title,
			description = excluded.description,
			severity    = excluded.severity,
			magnitude   = excluded.magnitude,
			updated_at  = excluded.updated_at
		RETURNING ` + eventColumns

	row := s.db.QueryRowContext(ctx, query,
		ev.ID, string(ev.EventType), ev.Title, ev.Description,
		ev.Location.Lat, ev.Location.Lon, ev.Location.Country,
		nullString(ev.Location.Region), nullString(ev.Location.Address),
		string(ev.Severity), nullFloat(ev.Magnitude), ev.Date.UnixMilli(),
		ev.Source, nullString(ev.SourceID), ev.IsActive,
		ev.CreatedAt.UnixMilli(), ev.UpdatedAt.UnixMilli(),
	)
	stored, err := scanEvent(row)
	if err != nil {
		return models.Event{}, false, fmt.Errorf("upserting event %s/%s: %w", ev.Source, ev.SourceID, err)
	}
	return stored, stored.ID == ev.ID, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, ErrNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("getting event %s: %w", id, err)
	}
	return ev, nil
}

// query runs a SELECT over the events table with the given WHERE clause and
// trailing modifiers appended after the date ordering.
func (s *SQLiteStore) query(ctx context.Context, where, tail string, args ...any) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY date DESC, created_at DESC, id` + tail

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) GetActiveEvents(ctx context.Context) ([]models.Event, error) {
	return s.query(ctx, `is_active = 1`, "")
}

func (s *SQLiteStore) GetPastEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	limit, offset = normalizePage(limit, offset)
	cutoff := pastCutoff(s.clock.Now()).UnixMilli()
	return s.query(ctx, `is_active = 0 OR (date < ? AND is_active <> 1)`, ` LIMIT ? OFFSET ?`,
		cutoff, limit, offset)
}

func (s *SQLiteStore) GetEventsByType(ctx context.Context, eventType string) ([]models.Event, error) {
	return s.query(ctx, `lower(event_type) = lower(?)`, "", eventType)
}

func (s *SQLiteStore) GetEventsByLocation(ctx context.Context, country string) ([]models.Event, error) {
	return s.query(ctx, `country = ?`, "", country)
}

func (s *SQLiteStore) GetEventsBySeverity(ctx context.Context, severity string) ([]models.Event, error) {
	return s.query(ctx, `severity = ?`, "", severity)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *SQLiteStore) SearchEvents(ctx context.Context, query string) ([]models.Event, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	return s.query(ctx,
		`lower(title) LIKE ? ESCAPE '\' OR lower(description) LIKE ? ESCAPE '\'
		 OR lower(country) LIKE ? ESCAPE '\' OR lower(event_type) LIKE ? ESCAPE '\'`,
		"", pattern, pattern, pattern, pattern)
}

func (s *SQLiteStore) GetEventStats(ctx context.Context) (models.EventStats, error) {
	stats := models.EventStats{
		SeverityCounts: map[string]int{},
		TypeCounts:     map[string]int{},
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT country) FROM events WHERE is_active = 1`,
	).Scan(&stats.ActiveEvents, &stats.CountriesAffected)
	if err != nil {
		return stats, fmt.Errorf("counting active events: %w", err)
	}

	if err := s.countBy(ctx, "severity", stats.SeverityCounts); err != nil {
		return stats, err
	}
	if err := s.countBy(ctx, "event_type", stats.TypeCounts); err != nil {
		return stats, err
	}
	return stats, nil
}

// countBy fills dst with active-event counts grouped by column, which must
// be a trusted column name.
func (s *SQLiteStore) countBy(ctx context.Context, column string, dst map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM events WHERE is_active = 1 GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("counting by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scanning %s count: %w", column, err)
		}
		dst[key] = n
	}
	return rows.Err()
}

func (s *SQLiteStore) MarkPastBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE events SET is_active = 0, updated_at = ? WHERE is_active = 1 AND date < ?`,
		s.clock.Now().UnixMilli(), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("marking past events: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
