package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/net/html/charset"

	"github.com/isdelr/disaster-tracker-be/internal/classifier"
	"github.com/isdelr/disaster-tracker-be/internal/models"
)

// DefaultAlertLevel is used when an item carries no gdacs:alertlevel.
const DefaultAlertLevel = "green"

// GDACS reads the GDACS RSS feed.
type GDACS struct {
	client Getter
	url    string
	clock  clockwork.Clock
}

// NewGDACS creates a GDACS adapter. clock supplies the date for items
// without a pubDate.
func NewGDACS(client Getter, url string, clock clockwork.Clock) *GDACS {
	return &GDACS{client: client, url: url, clock: clock}
}

func (g *GDACS) Name() string { return SourceGDACS }

func (g *GDACS) Fetch(ctx context.Context) ([]byte, error) {
	return g.client.Get(ctx, SourceGDACS, g.url)
}

// gdacsItem matches on local names, so gdacs:alertlevel and gdacs:country
// bind regardless of the namespace prefix. Title and Description are
// pointers because an item missing either element is skipped.
type gdacsItem struct {
	Title       *string `xml:"title"`
	Description *string `xml:"description"`
	Link        string  `xml:"link"`
	PubDate     string  `xml:"pubDate"`
	GUID        string  `xml:"guid"`
	Category    string  `xml:"category"`
	AlertLevel  string  `xml:"alertlevel"`
	Country     string  `xml:"country"`
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

func parsePubDate(s string) (time.Time, error) {
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised pubDate %q", s)
}

// Parse splits the feed at <item> boundaries and decodes every item on its
// own, so broken markup inside one item skips only that item. The document
// itself must have a root element; anything else is a document error.
func (g *GDACS) Parse(raw []byte) (Batch, error) {
	doc, err := toUTF8(raw)
	if err != nil {
		return Batch{}, fmt.Errorf("decode GDACS feed: %w", err)
	}

	var batch Batch
	for index, chunk := range splitItems(doc) {
		item, err := decodeItem(chunk)
		if err != nil {
			batch.Skipped = append(batch.Skipped, &ParseError{Source: SourceGDACS, Index: index, Err: err})
			continue
		}
		c, err := g.toCandidate(item)
		if err != nil {
			batch.Skipped = append(batch.Skipped, &ParseError{
				Source: SourceGDACS, Index: index, ItemID: strings.TrimSpace(item.GUID), Err: err,
			})
			continue
		}
		batch.Candidates = append(batch.Candidates, c)
	}
	return batch, nil
}

// toUTF8 reads the prolog up to the root element and transcodes the whole
// document when its declaration names another encoding.
func toUTF8(raw []byte) ([]byte, error) {
	var label string
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = func(l string, in io.Reader) (io.Reader, error) {
		label = l
		return charset.NewReaderLabel(l, in)
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		if err != nil {
			return nil, err
		}
		if _, ok := tok.(xml.StartElement); ok {
			break
		}
	}
	if label == "" {
		return raw, nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

var (
	itemOpen  = []byte("<item")
	itemClose = []byte("</item>")
)

// splitItems returns each <item>...</item> span. An item left unclosed runs
// up to the next item or the end of the document.
func splitItems(doc []byte) [][]byte {
	var items [][]byte
	for {
		start := indexItemOpen(doc)
		if start < 0 {
			return items
		}
		doc = doc[start:]

		end := bytes.Index(doc, itemClose)
		next := indexItemOpen(doc[len(itemOpen):])
		if next >= 0 {
			next += len(itemOpen)
		}
		switch {
		case end >= 0 && (next < 0 || end < next):
			end += len(itemClose)
		case next >= 0:
			end = next
		default:
			end = len(doc)
		}
		items = append(items, doc[:end])
		doc = doc[end:]
	}
}

// indexItemOpen finds "<item" followed by '>' or whitespace, so longer
// names such as <items> are not taken for an item.
func indexItemOpen(b []byte) int {
	off := 0
	for {
		i := bytes.Index(b[off:], itemOpen)
		if i < 0 {
			return -1
		}
		i += off
		j := i + len(itemOpen)
		if j < len(b) {
			switch b[j] {
			case '>', ' ', '\t', '\n', '\r':
				return i
			}
		}
		off = j
	}
}

// decodeItem is lenient about entities: HTML entities such as &nbsp; resolve
// and a bare & stays literal, as feed descriptions often contain both.
func decodeItem(chunk []byte) (gdacsItem, error) {
	dec := xml.NewDecoder(bytes.NewReader(chunk))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var item gdacsItem
	if err := dec.Decode(&item); err != nil {
		return gdacsItem{}, err
	}
	return item, nil
}

func (g *GDACS) toCandidate(item gdacsItem) (Candidate, error) {
	if item.Title == nil || item.Description == nil {
		return Candidate{}, errors.New("item needs both title and description")
	}

	title := strings.TrimSpace(*item.Title)
	date := g.clock.Now().UTC()
	if pub := strings.TrimSpace(item.PubDate); pub != "" {
		parsed, err := parsePubDate(pub)
		if err != nil {
			return Candidate{}, err
		}
		date = parsed
	}

	alertLevel := strings.TrimSpace(item.AlertLevel)
	if alertLevel == "" {
		alertLevel = DefaultAlertLevel
	}
	country := strings.TrimSpace(item.Country)
	if country == "" {
		country = classifier.CountryFromPlace(title)
	}

	return Candidate{
		Event: models.Event{
			EventType:   classifier.EventTypeFromGDACSCategory(item.Category),
			Title:       title,
			Description: strings.TrimSpace(*item.Description),
			// GDACS items carry no usable point; (0,0) is kept as-is.
			Location: models.Location{Country: country},
			Date:     date,
			Source:   SourceGDACS,
			SourceID: strings.TrimSpace(item.GUID),
		},
		AlertLevel: alertLevel,
	}, nil
}

func (g *GDACS) Classify(c Candidate) models.Severity {
	return classifier.SeverityFromAlertLevel(c.AlertLevel)
}
