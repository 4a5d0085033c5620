package sources

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/disaster-tracker-be/internal/models"
)

const nwsFeed = `{
  "type": "FeatureCollection",
  "features": [
    {
      "id": "https://api.weather.gov/alerts/urn:oid:1",
      "geometry": {"type": "Polygon", "coordinates": [[[-97.5, 35.4], [-97.4, 35.5], [-97.3, 35.4], [-97.5, 35.4]]]},
      "properties": {
        "event": "Tornado Warning",
        "headline": "Tornado Warning issued for Oklahoma County",
        "description": "A confirmed tornado was located near Moore.",
        "severity": "Extreme",
        "areaDesc": "Oklahoma, OK",
        "onset": "2026-10-14T10:00:00-05:00"
      }
    },
    {"id": "no-properties", "geometry": null},
    {
      "id": "bad-onset",
      "properties": {"event": "Flood Watch", "severity": "Moderate", "onset": "tomorrow"}
    },
    {
      "geometry": null,
      "properties": {
        "@id": "https://api.weather.gov/alerts/urn:oid:4",
        "event": "Red Flag Warning",
        "severity": "Unknown",
        "areaDesc": "Central Coast",
        "sent": "2026-10-14T08:00:00Z"
      }
    },
    {
      "id": "urn:oid:5",
      "properties": {}
    },
    "not-an-object"
  ]
}`

func TestNWS_Parse(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	n := NewNWS(nil, "", clockwork.NewFakeClockAt(now))

	batch, err := n.Parse([]byte(nwsFeed))
	require.NoError(t, err)
	require.Len(t, batch.Candidates, 3)
	require.Len(t, batch.Skipped, 3)
	assert.Equal(t, "no-properties", batch.Skipped[0].ItemID)
	assert.Equal(t, "bad-onset", batch.Skipped[1].ItemID)
	assert.Equal(t, 5, batch.Skipped[2].Index)

	tornado := batch.Candidates[0]
	assert.Equal(t, models.TypeTornado, tornado.Event.EventType)
	assert.Equal(t, "Tornado Warning issued for Oklahoma County", tornado.Event.Title)
	assert.InDelta(t, 35.4, tornado.Event.Location.Lat, 1e-9)
	assert.InDelta(t, -97.5, tornado.Event.Location.Lon, 1e-9)
	assert.Equal(t, "United States", tornado.Event.Location.Country)
	assert.Equal(t, "Oklahoma, OK", tornado.Event.Location.Region)
	assert.Equal(t, time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC), tornado.Event.Date)
	assert.Equal(t, "https://api.weather.gov/alerts/urn:oid:1", tornado.Event.SourceID)
	assert.Equal(t, models.SeverityCritical, n.Classify(tornado))

	redFlag := batch.Candidates[1]
	assert.Equal(t, "https://api.weather.gov/alerts/urn:oid:4", redFlag.Event.SourceID, "sourceId falls back to @id")
	assert.Equal(t, "Red Flag Warning", redFlag.Event.Title, "title falls back to event")
	assert.Equal(t, nwsDefaultDescription, redFlag.Event.Description)
	assert.Equal(t, time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), redFlag.Event.Date, "date falls back to sent")
	assert.Zero(t, redFlag.Event.Location.Lat)
	assert.Equal(t, models.TypeStorm, redFlag.Event.EventType)
	assert.Equal(t, models.SeverityLow, n.Classify(redFlag))

	empty := batch.Candidates[2]
	assert.Equal(t, nwsDefaultTitle, empty.Event.Title)
	assert.Equal(t, nwsDefaultSeverity, empty.AlertLevel)
	assert.Equal(t, now, empty.Event.Date)
}

func TestNWS_ParseMultiPolygon(t *testing.T) {
	raw := `{"features":[{"id":"mp","geometry":{"type":"MultiPolygon","coordinates":[[[[-80.1,25.7],[-80.2,25.8],[-80.1,25.7]]]]},"properties":{"event":"Hurricane Warning","severity":"Severe"}}]}`

	batch, err := NewNWS(nil, "", clockwork.NewFakeClock()).Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, batch.Candidates, 1)
	c := batch.Candidates[0]
	assert.InDelta(t, 25.7, c.Event.Location.Lat, 1e-9)
	assert.InDelta(t, -80.1, c.Event.Location.Lon, 1e-9)
	assert.Equal(t, models.TypeHurricane, c.Event.EventType)
}

func TestNWS_ParseInvalidDocument(t *testing.T) {
	_, err := NewNWS(nil, "", clockwork.NewFakeClock()).Parse([]byte(`{"features": {`))
	require.Error(t, err)
}

func TestNWS_Classify(t *testing.T) {
	n := NewNWS(nil, "", clockwork.NewFakeClock())
	tests := map[string]models.Severity{
		"Extreme":  models.SeverityCritical,
		"Severe":   models.SeverityHigh,
		"Moderate": models.SeverityMedium,
		"Minor":    models.SeverityLow,
		"Unknown":  models.SeverityLow,
	}
	for severity, want := range tests {
		assert.Equal(t, want, n.Classify(Candidate{AlertLevel: severity}), "severity %q", severity)
	}
}
