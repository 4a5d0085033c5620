// Package sources fetches and parses the external disaster feeds into
// candidate events. Each feed is one Adapter; the ingest scheduler drives
// them uniformly and never branches on the feed.
package sources

import (
	"context"
	"fmt"

	"github.com/isdelr/disaster-tracker-be/internal/models"
)

// Feed names, stored as Event.Source.
const (
	SourceUSGS  = "USGS"
	SourceGDACS = "GDACS"
	SourceNWS   = "NWS"
)

// Adapter is the capability set shared by every feed.
type Adapter interface {
	// Name returns the feed name stored as Event.Source.
	Name() string
	// Fetch downloads the raw feed document. Failures are *FetchError.
	Fetch(ctx context.Context) ([]byte, error)
	// Parse decodes a raw document. A malformed item is reported in
	// Batch.Skipped and never aborts the remaining items; the returned error
	// is reserved for documents that cannot be read at all.
	Parse(raw []byte) (Batch, error)
	// Classify maps the candidate's source-native severity onto the
	// canonical scale.
	Classify(c Candidate) models.Severity
}

// Candidate is a partially filled event as produced by Parse. Severity is
// left empty until Classify runs.
type Candidate struct {
	Event models.Event
	// AlertLevel is the raw severity token (GDACS alert colour, NWS CAP
	// severity). USGS classifies from Event.Magnitude instead.
	AlertLevel string
}

// Batch is the outcome of parsing one document.
type Batch struct {
	Candidates []Candidate
	Skipped    []*ParseError
}

// Getter performs a GET request for a feed document.
type Getter interface {
	Get(ctx context.Context, source, url string) ([]byte, error)
}

// FetchError reports a network failure, timeout or non-success response.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s): unexpected status %d", e.Source, e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a single feed item that was skipped.
type ParseError struct {
	Source string
	Index  int    // position of the item within the document
	ItemID string // source-native id when it could be read
	Err    error
}

func (e *ParseError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("parse %s item %d (%s): %v", e.Source, e.Index, e.ItemID, e.Err)
	}
	return fmt.Sprintf("parse %s item %d: %v", e.Source, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
