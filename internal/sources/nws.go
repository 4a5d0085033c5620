package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/isdelr/disaster-tracker-be/internal/classifier"
	"github.com/isdelr/disaster-tracker-be/internal/models"
)

const (
	nwsCountry            = "United States"
	nwsDefaultTitle       = "Weather Alert"
	nwsDefaultDescription = "Weather alert issued"
	nwsDefaultSeverity    = "minor"
)

// NWS reads active alerts from the National Weather Service API.
type NWS struct {
	client Getter
	url    string
	clock  clockwork.Clock
}

// NewNWS creates an NWS adapter. clock supplies the date for alerts that
// carry no onset, effective or sent time.
func NewNWS(client Getter, url string, clock clockwork.Clock) *NWS {
	return &NWS{client: client, url: url, clock: clock}
}

func (n *NWS) Name() string { return SourceNWS }

func (n *NWS) Fetch(ctx context.Context) ([]byte, error) {
	return n.client.Get(ctx, SourceNWS, n.url)
}

type nwsCollection struct {
	Features []json.RawMessage `json:"features"`
}

type nwsFeature struct {
	ID       string `json:"id"`
	Geometry *struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
	Properties *struct {
		AtID        string `json:"@id"`
		Event       string `json:"event"`
		Headline    string `json:"headline"`
		Description string `json:"description"`
		Severity    string `json:"severity"`
		AreaDesc    string `json:"areaDesc"`
		Onset       string `json:"onset"`
		Effective   string `json:"effective"`
		Sent        string `json:"sent"`
	} `json:"properties"`
}

func (n *NWS) Parse(raw []byte) (Batch, error) {
	var doc nwsCollection
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Batch{}, fmt.Errorf("decode NWS feed: %w", err)
	}

	var batch Batch
	for i, rawFeature := range doc.Features {
		var f nwsFeature
		if err := json.Unmarshal(rawFeature, &f); err != nil {
			batch.Skipped = append(batch.Skipped, &ParseError{Source: SourceNWS, Index: i, Err: err})
			continue
		}
		if f.Properties == nil {
			batch.Skipped = append(batch.Skipped, &ParseError{
				Source: SourceNWS, Index: i, ItemID: f.ID, Err: errors.New("missing properties"),
			})
			continue
		}
		p := f.Properties

		sourceID := f.ID
		if sourceID == "" {
			sourceID = p.AtID
		}
		date, err := n.alertDate(p.Onset, p.Effective, p.Sent)
		if err != nil {
			batch.Skipped = append(batch.Skipped, &ParseError{Source: SourceNWS, Index: i, ItemID: sourceID, Err: err})
			continue
		}

		title := p.Headline
		if title == "" {
			title = p.Event
		}
		if title == "" {
			title = nwsDefaultTitle
		}
		description := p.Description
		if description == "" {
			description = nwsDefaultDescription
		}
		severity := p.Severity
		if severity == "" {
			severity = nwsDefaultSeverity
		}

		var lat, lon float64
		if f.Geometry != nil {
			lat, lon = firstVertex(f.Geometry.Type, f.Geometry.Coordinates)
		}

		batch.Candidates = append(batch.Candidates, Candidate{
			Event: models.Event{
				EventType:   classifier.EventTypeFromNWSEvent(p.Event),
				Title:       title,
				Description: description,
				Location: models.Location{
					Lat:     lat,
					Lon:     lon,
					Country: nwsCountry,
					Region:  p.AreaDesc,
				},
				Date:     date,
				Source:   SourceNWS,
				SourceID: sourceID,
			},
			AlertLevel: severity,
		})
	}
	return batch, nil
}

// alertDate returns the first non-empty timestamp, or the clock's now when
// all are empty.
func (n *NWS) alertDate(candidates ...string) (time.Time, error) {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid alert time %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	return n.clock.Now().UTC(), nil
}

// firstVertex returns lat, lon of the first vertex of the first ring, or
// (0,0) when the geometry has none.
func firstVertex(geomType string, coords json.RawMessage) (float64, float64) {
	var point []float64
	switch geomType {
	case "Polygon":
		var rings [][][]float64
		if json.Unmarshal(coords, &rings) == nil && len(rings) > 0 && len(rings[0]) > 0 {
			point = rings[0][0]
		}
	case "MultiPolygon":
		var polys [][][][]float64
		if json.Unmarshal(coords, &polys) == nil && len(polys) > 0 && len(polys[0]) > 0 && len(polys[0][0]) > 0 {
			point = polys[0][0][0]
		}
	}
	if len(point) < 2 {
		return 0, 0
	}
	return point[1], point[0]
}

func (n *NWS) Classify(c Candidate) models.Severity {
	return classifier.SeverityFromNWS(c.AlertLevel)
}
