package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/disaster-tracker-be/internal/models"
	"github.com/isdelr/disaster-tracker-be/internal/observability"
	"github.com/isdelr/disaster-tracker-be/internal/sources"
	"github.com/isdelr/disaster-tracker-be/internal/store"
)

// fakeAdapter serves fixed candidates; severity comes from AlertLevel.
type fakeAdapter struct {
	name       string
	candidates []sources.Candidate
	skipped    []*sources.ParseError
	fetchErr   error
	parseErr   error
	fetch      func(ctx context.Context) ([]byte, error)
	fetches    atomic.Int32
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context) ([]byte, error) {
	f.fetches.Add(1)
	if f.fetch != nil {
		return f.fetch(ctx)
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return []byte("raw"), nil
}

func (f *fakeAdapter) Parse([]byte) (sources.Batch, error) {
	if f.parseErr != nil {
		return sources.Batch{}, f.parseErr
	}
	return sources.Batch{Candidates: f.candidates, Skipped: f.skipped}, nil
}

func (f *fakeAdapter) Classify(c sources.Candidate) models.Severity {
	return models.ParseSeverity(c.AlertLevel)
}

func candidate(source, sourceID, level string) sources.Candidate {
	ev := candidateEvent(source, sourceID)
	ev.Severity = ""
	return sources.Candidate{Event: ev, AlertLevel: level}
}

// recorder collects notified events.
type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Notify(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

type harness struct {
	scheduler *Scheduler
	store     *store.MemoryStore
	notified  *recorder
	metrics   *observability.Metrics
	clock     *clockwork.FakeClock
}

func newHarness(adapters ...sources.Adapter) *harness {
	clock := clockwork.NewFakeClockAt(testNow)
	st := store.NewMemoryStore(clock)
	rec := &recorder{}
	metrics := observability.NewMetricsForTesting()
	s := NewScheduler(adapters, NewUpserter(st, clock), rec, metrics, clock, time.Hour)
	return &harness{scheduler: s, store: st, notified: rec, metrics: metrics, clock: clock}
}

func TestRefreshNow_CountsPerSource(t *testing.T) {
	usgs := &fakeAdapter{name: "USGS", candidates: []sources.Candidate{
		candidate("USGS", "us1", "critical"),
		candidate("USGS", "us2", "low"),
	}}
	gdacs := &fakeAdapter{name: "GDACS", candidates: []sources.Candidate{
		candidate("GDACS", "EQ1", "high"),
	}}
	nws := &fakeAdapter{name: "NWS", fetchErr: &sources.FetchError{Source: "NWS", StatusCode: 503}}
	h := newHarness(usgs, gdacs, nws)

	result := h.scheduler.RefreshNow(context.Background())

	assert.Equal(t, map[string]int{"USGS": 2, "GDACS": 1, "NWS": 0}, result.Sources)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, h.notified.all(), 3)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FetchErrors.WithLabelValues("NWS")))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.EventsInserted.WithLabelValues("USGS")))

	active, err := h.store.GetActiveEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 3)

	bySeverity, err := h.store.GetEventsBySeverity(context.Background(), "critical")
	require.NoError(t, err)
	require.Len(t, bySeverity, 1)
	assert.Equal(t, "us1", bySeverity[0].SourceID, "severity comes from the adapter's Classify")
}

func TestRefreshNow_RepeatCycleDoesNotRenotify(t *testing.T) {
	usgs := &fakeAdapter{name: "USGS", candidates: []sources.Candidate{candidate("USGS", "us1", "medium")}}
	h := newHarness(usgs)

	first := h.scheduler.RefreshNow(context.Background())
	second := h.scheduler.RefreshNow(context.Background())

	assert.Equal(t, 1, first.Total)
	assert.Equal(t, 0, second.Total)
	assert.Equal(t, map[string]int{"USGS": 0}, second.Sources)
	assert.Len(t, h.notified.all(), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.EventsDuplicate.WithLabelValues("USGS")))
}

func TestRefreshNow_TotalFailureStillSucceeds(t *testing.T) {
	h := newHarness(
		&fakeAdapter{name: "USGS", fetchErr: errors.New("dial tcp: timeout")},
		&fakeAdapter{name: "GDACS", parseErr: errors.New("not xml")},
		&fakeAdapter{name: "NWS", fetchErr: &sources.FetchError{Source: "NWS", StatusCode: 500}},
	)

	result := h.scheduler.RefreshNow(context.Background())

	assert.Equal(t, map[string]int{"USGS": 0, "GDACS": 0, "NWS": 0}, result.Sources)
	assert.Zero(t, result.Total)
	assert.Empty(t, h.notified.all())
	assert.NoError(t, h.scheduler.CheckReadiness(context.Background()), "a completed cycle counts even with no data")
}

func TestRefreshNow_DropsInvalidAndCountsSkipped(t *testing.T) {
	invalid := candidate("USGS", "no-date", "low")
	invalid.Event.Date = time.Time{}
	usgs := &fakeAdapter{
		name:       "USGS",
		candidates: []sources.Candidate{invalid, candidate("USGS", "ok", "low")},
		skipped:    []*sources.ParseError{{Source: "USGS", Index: 3, Err: errors.New("bad json")}},
	}
	h := newHarness(usgs)

	result := h.scheduler.RefreshNow(context.Background())

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.ValidationErrors.WithLabelValues("USGS")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.ParseErrors.WithLabelValues("USGS")))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.EventsFetched.WithLabelValues("USGS")))
}

func TestRefreshNow_PersistenceErrorIsContained(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	rec := &recorder{}
	metrics := observability.NewMetricsForTesting()
	usgs := &fakeAdapter{name: "USGS", candidates: []sources.Candidate{candidate("USGS", "us1", "low")}}
	s := NewScheduler([]sources.Adapter{usgs}, NewUpserter(failingStore{err: errors.New("locked")}, clock),
		rec, metrics, clock, time.Hour)

	result := s.RefreshNow(context.Background())

	assert.Zero(t, result.Total)
	assert.Empty(t, rec.all())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PersistErrors.WithLabelValues("USGS")))
}

func TestTick_SkipsWhileCycleRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := &fakeAdapter{name: "USGS", fetch: func(context.Context) ([]byte, error) {
		close(entered)
		<-release
		return []byte("raw"), nil
	}}
	h := newHarness(slow)

	done := make(chan models.RefreshResult)
	go func() { done <- h.scheduler.RefreshNow(context.Background()) }()
	<-entered

	h.scheduler.tick()
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.CyclesSkipped))
	assert.Equal(t, int32(1), slow.fetches.Load(), "the skipped tick must not fetch")

	close(release)
	<-done
}

func TestStartStop(t *testing.T) {
	usgs := &fakeAdapter{name: "USGS", candidates: []sources.Candidate{candidate("USGS", "us1", "low")}}
	h := newHarness(usgs)
	require.Error(t, h.scheduler.CheckReadiness(context.Background()))

	require.NoError(t, h.scheduler.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.scheduler.CheckReadiness(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond, "the first cycle runs immediately")
	h.scheduler.Stop()

	assert.Len(t, h.notified.all(), 1)
}

func TestStop_CancelsInFlightFetch(t *testing.T) {
	entered := make(chan struct{})
	blocked := &fakeAdapter{name: "GDACS", fetch: func(ctx context.Context) ([]byte, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(blocked)

	require.NoError(t, h.scheduler.Start(context.Background()))
	<-entered

	stopped := make(chan struct{})
	go func() {
		h.scheduler.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the running cycle")
	}
	assert.Error(t, h.scheduler.CheckReadiness(context.Background()), "a cancelled cycle does not mark ready")
}

const kurilFeed = `{"type":"FeatureCollection","features":[{"type":"Feature","id":"us1",
"properties":{"mag":7.2,"place":"Kuril Islands, Russia","time":1791979200000,"title":"M 7.2 - Kuril Islands, Russia"},
"geometry":{"type":"Point","coordinates":[153.2,46.1,10]}}]}`

func TestKurilIslandsEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(kurilFeed))
	}))
	defer srv.Close()

	client := sources.NewHTTPClient(sources.HTTPClientConfig{Timeout: 2 * time.Second})
	h := newHarness(sources.NewUSGS(client, srv.URL))
	ctx := context.Background()

	first := h.scheduler.RefreshNow(ctx)
	assert.Equal(t, 1, first.Sources["USGS"])

	active, err := h.store.GetActiveEvents(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	ev := active[0]
	assert.Equal(t, models.TypeEarthquake, ev.EventType)
	assert.Equal(t, models.SeverityCritical, ev.Severity)
	require.NotNil(t, ev.Magnitude)
	assert.InDelta(t, 7.2, *ev.Magnitude, 1e-9)
	assert.Equal(t, "Russia", ev.Location.Country)
	assert.Equal(t, "USGS", ev.Source)
	assert.Equal(t, "us1", ev.SourceID)
	assert.Equal(t, 1, ev.IsActive)

	second := h.scheduler.RefreshNow(ctx)
	assert.Zero(t, second.Total)

	active, err = h.store.GetActiveEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1, "re-ingesting creates no new record")
	require.Len(t, h.notified.all(), 1, "no second broadcast")
	assert.Equal(t, ev.ID, h.notified.all()[0].ID)
}
