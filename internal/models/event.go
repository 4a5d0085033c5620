package models

import (
	"strings"
	"time"
)

// RetentionWindow is how long an event stays active after its occurrence date.
const RetentionWindow = 7 * 24 * time.Hour

// EventType is the normalized disaster category shared by all feeds.
type EventType string

const (
	TypeEarthquake EventType = "earthquake"
	TypeHurricane  EventType = "hurricane"
	TypeTornado    EventType = "tornado"
	TypeFlood      EventType = "flood"
	TypeWildfire   EventType = "wildfire"
	TypeVolcano    EventType = "volcano"
	TypeStorm      EventType = "storm"
	TypeTsunami    EventType = "tsunami"
	TypeDisaster   EventType = "disaster" // generic fallback
)

var eventTypes = map[EventType]bool{
	TypeEarthquake: true,
	TypeHurricane:  true,
	TypeTornado:    true,
	TypeFlood:      true,
	TypeWildfire:   true,
	TypeVolcano:    true,
	TypeStorm:      true,
	TypeTsunami:    true,
	TypeDisaster:   true,
}

// Valid reports whether t belongs to the fixed vocabulary.
func (t EventType) Valid() bool {
	return eventTypes[t]
}

// ParseEventType normalizes free text to an EventType, falling back to TypeDisaster.
func ParseEventType(s string) EventType {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return TypeDisaster
}

// Severity is the four-tier ordinal scale every source is mapped onto.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities: critical=4 down to low=1. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the four tiers.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity normalizes free text to a Severity, falling back to SeverityLow.
func ParseSeverity(str string) Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(str)))
	if s.Valid() {
		return s
	}
	return SeverityLow
}

// Location is where an event happened. Lat/Lon are 0,0 when the source has no coordinates.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	Region  string  `json:"region,omitempty"`
	Address string  `json:"address,omitempty"`
}

// Event is the canonical disaster record all feeds are reconciled into.
type Event struct {
	ID          string    `json:"id"`
	EventType   EventType `json:"eventType"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    Location  `json:"location"`
	Severity    Severity  `json:"severity"`
	Magnitude   *float64  `json:"magnitude,omitempty"` // seismic events only
	Date        time.Time `json:"date"`
	Source      string    `json:"source"`
	SourceID    string    `json:"sourceId,omitempty"`
	IsActive    int       `json:"isActive"` // 1 = active, 0 = past
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Active reports whether the event is still in the live set.
func (e Event) Active() bool {
	return e.IsActive == 1
}

// EventStats summarizes the active event set for dashboards.
type EventStats struct {
	ActiveEvents      int            `json:"activeEvents"`
	CountriesAffected int            `json:"countriesAffected"`
	SeverityCounts    map[string]int `json:"severityCounts"`
	TypeCounts        map[string]int `json:"typeCounts"`
}

// RefreshResult reports new events inserted by one ingestion cycle.
type RefreshResult struct {
	Sources map[string]int `json:"sources"`
	Total   int            `json:"newEvents"`
}
