package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_tracker"

// Metrics holds the Prometheus collectors for ingestion, lifecycle, and fanout.
type Metrics struct {
	// Ingestion, labelled by source.
	EventsFetched    *prometheus.CounterVec
	EventsInserted   *prometheus.CounterVec
	EventsDuplicate  *prometheus.CounterVec
	FetchErrors      *prometheus.CounterVec
	ParseErrors      *prometheus.CounterVec
	ValidationErrors *prometheus.CounterVec
	PersistErrors    *prometheus.CounterVec

	CycleDuration prometheus.Histogram
	CyclesSkipped prometheus.Counter

	// Lifecycle.
	EventsTransitioned prometheus.Counter

	// Fanout.
	FanoutDropped    *prometheus.CounterVec // labels: reason={queue_full,slow_client,kafka}
	WebsocketClients prometheus.Gauge
}

// NewMetrics creates and registers all collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_fetched_total",
			Help:      "Candidate events parsed from a source feed.",
		}, []string{"source"}),
		EventsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_inserted_total",
			Help:      "Events stored for the first time.",
		}, []string{"source"}),
		EventsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_duplicate_total",
			Help:      "Candidates that matched an existing (source, sourceId).",
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Feed fetches that failed or returned an unusable document.",
		}, []string{"source"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Feed items skipped because they could not be parsed.",
		}, []string{"source"}),
		ValidationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Candidates dropped for missing required fields.",
		}, []string{"source"}),
		PersistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Store writes that failed.",
		}, []string{"source"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_cycle_duration_seconds",
			Help:      "Duration of a complete ingestion cycle across all sources.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_cycles_skipped_total",
			Help:      "Scheduled ticks skipped because a cycle was still running.",
		}),
		EventsTransitioned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_transitioned_total",
			Help:      "Events moved from active to past by the lifecycle sweep.",
		}),
		FanoutDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_dropped_total",
			Help:      "Real-time deliveries dropped, by reason.",
		}, []string{"reason"}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Currently connected websocket clients.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsFetched,
		m.EventsInserted,
		m.EventsDuplicate,
		m.FetchErrors,
		m.ParseErrors,
		m.ValidationErrors,
		m.PersistErrors,
		m.CycleDuration,
		m.CyclesSkipped,
		m.EventsTransitioned,
		m.FanoutDropped,
		m.WebsocketClients,
	}
}
