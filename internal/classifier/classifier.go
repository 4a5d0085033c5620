// Package classifier maps feed-specific severity and category vocabularies
// onto the canonical four-tier severity scale and the fixed event types.
//
// Every function here is pure. Input that matches nothing maps to the most
// conservative value: SeverityLow for severities, TypeDisaster for types
// (TypeStorm for NWS alerts, whose feed only carries weather products).
package classifier

import (
	"strings"

	"github.com/isdelr/disaster-tracker-be/internal/models"
)

// UnknownCountry is returned when a place string matches no indicator.
const UnknownCountry = "Unknown"

// countryIndicators is checked in order; the first substring hit wins, so
// a longer name must precede any shorter one it contains. The table is
// coarse and is not a reverse geocoder.
var countryIndicators = []struct {
	indicator string
	country   string
}{
	{"Baja California", "Mexico"},
	{"New Mexico", "United States"},
	{"California", "United States"},
	{"Alaska", "United States"},
	{"Hawaii", "United States"},
	{"Japan", "Japan"},
	{"Chile", "Chile"},
	{"Turkey", "Turkey"},
	{"Indonesia", "Indonesia"},
	{"Italy", "Italy"},
	{"Greece", "Greece"},
	{"Mexico", "Mexico"},
	{"Peru", "Peru"},
	{"Russia", "Russia"},
	{"Taiwan", "Taiwan"},
	{"Philippines", "Philippines"},
	{"New Zealand", "New Zealand"},
}

// CountryFromPlace resolves a free-text place ("Kuril Islands, Russia") to a
// country name by substring lookup. Unmatched text yields UnknownCountry.
func CountryFromPlace(place string) string {
	for _, ci := range countryIndicators {
		if strings.Contains(place, ci.indicator) {
			return ci.country
		}
	}
	return UnknownCountry
}

// SeverityFromMagnitude classifies a seismic magnitude.
func SeverityFromMagnitude(mag float64) models.Severity {
	switch {
	case mag >= 7.0:
		return models.SeverityCritical
	case mag >= 6.0:
		return models.SeverityHigh
	case mag >= 4.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// SeverityFromAlertLevel classifies a GDACS alert colour.
func SeverityFromAlertLevel(level string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "red":
		return models.SeverityCritical
	case "orange":
		return models.SeverityHigh
	case "yellow":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// SeverityFromNWS classifies the CAP severity field of an NWS alert.
func SeverityFromNWS(severity string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "extreme":
		return models.SeverityCritical
	case "severe":
		return models.SeverityHigh
	case "moderate":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// EventTypeFromGDACSCategory derives the event type from a GDACS category.
func EventTypeFromGDACSCategory(category string) models.EventType {
	c := strings.ToLower(category)
	switch {
	case strings.Contains(c, "earthquake"):
		return models.TypeEarthquake
	case strings.Contains(c, "flood"):
		return models.TypeFlood
	case strings.Contains(c, "cyclone"):
		return models.TypeHurricane
	case strings.Contains(c, "volcano"):
		return models.TypeVolcano
	default:
		return models.TypeDisaster
	}
}

// EventTypeFromNWSEvent derives the event type from an NWS alert event name,
// e.g. "Tornado Warning" or "Fire Weather Watch".
func EventTypeFromNWSEvent(event string) models.EventType {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "tornado"):
		return models.TypeTornado
	case strings.Contains(e, "hurricane"):
		return models.TypeHurricane
	case strings.Contains(e, "flood"):
		return models.TypeFlood
	case strings.Contains(e, "fire"):
		return models.TypeWildfire
	default:
		return models.TypeStorm
	}
}
