package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/isdelr/disaster-tracker-be/internal/classifier"
	"github.com/isdelr/disaster-tracker-be/internal/models"
)

// USGS reads the USGS earthquake GeoJSON summary feed.
type USGS struct {
	client Getter
	url    string
}

// NewUSGS creates a USGS adapter for the given feed URL.
func NewUSGS(client Getter, url string) *USGS {
	return &USGS{client: client, url: url}
}

func (u *USGS) Name() string { return SourceUSGS }

func (u *USGS) Fetch(ctx context.Context) ([]byte, error) {
	return u.client.Get(ctx, SourceUSGS, u.url)
}

type usgsCollection struct {
	Features []json.RawMessage `json:"features"`
}

type usgsFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag   *float64 `json:"mag"`
		Place string   `json:"place"`
		Time  *int64   `json:"time"` // epoch milliseconds
		Title string   `json:"title"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // lon, lat, depth
	} `json:"geometry"`
}

// Parse decodes features one at a time so a malformed feature is skipped.
// A feature without a time keeps a zero Date and fails validation later.
func (u *USGS) Parse(raw []byte) (Batch, error) {
	var doc usgsCollection
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Batch{}, fmt.Errorf("decode USGS feed: %w", err)
	}

	var batch Batch
	for i, rawFeature := range doc.Features {
		var f usgsFeature
		if err := json.Unmarshal(rawFeature, &f); err != nil {
			batch.Skipped = append(batch.Skipped, &ParseError{Source: SourceUSGS, Index: i, Err: err})
			continue
		}
		if len(f.Geometry.Coordinates) < 2 {
			batch.Skipped = append(batch.Skipped, &ParseError{
				Source: SourceUSGS, Index: i, ItemID: f.ID, Err: errors.New("missing coordinates"),
			})
			continue
		}

		title := f.Properties.Title
		if title == "" {
			title = f.Properties.Place
		}
		description := "Earthquake"
		if f.Properties.Mag != nil {
			description = fmt.Sprintf("Magnitude %s earthquake", strconv.FormatFloat(*f.Properties.Mag, 'f', -1, 64))
		}
		var date time.Time
		if f.Properties.Time != nil {
			date = time.UnixMilli(*f.Properties.Time).UTC()
		}

		batch.Candidates = append(batch.Candidates, Candidate{
			Event: models.Event{
				EventType:   models.TypeEarthquake,
				Title:       title,
				Description: description,
				Location: models.Location{
					Lat:     f.Geometry.Coordinates[1],
					Lon:     f.Geometry.Coordinates[0],
					Country: classifier.CountryFromPlace(f.Properties.Place),
				},
				Magnitude: f.Properties.Mag,
				Date:      date,
				Source:    SourceUSGS,
				SourceID:  f.ID,
			},
		})
	}
	return batch, nil
}

// Classify grades by magnitude; a feature without one is low.
func (u *USGS) Classify(c Candidate) models.Severity {
	if c.Event.Magnitude == nil {
		return models.SeverityLow
	}
	return classifier.SeverityFromMagnitude(*c.Event.Magnitude)
}
