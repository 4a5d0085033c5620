package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/disaster-tracker-be/internal/models"
	"github.com/isdelr/disaster-tracker-be/internal/observability"
	"github.com/isdelr/disaster-tracker-be/internal/sources"
)

// Scheduler runs ingestion cycles across all adapters: once at Start, then
// on a fixed interval, plus on demand through RefreshNow.
//
// Cycles never overlap. A timer tick that finds a cycle running is skipped;
// RefreshNow waits for the running cycle and then runs its own.
type Scheduler struct {
	adapters  []sources.Adapter
	submitter SubmitterProvider
	notifier  Notifier
	metrics   *observability.Metrics
	clock     clockwork.Clock
	interval  time.Duration

	cycleMu sync.Mutex
	ready   atomic.Bool

	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	initial sync.WaitGroup
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(
	adapters []sources.Adapter,
	submitter SubmitterProvider,
	notifier Notifier,
	metrics *observability.Metrics,
	clock clockwork.Clock,
	interval time.Duration,
) *Scheduler {
	if notifier == nil {
		notifier = Notifiers{}
	}
	return &Scheduler{
		adapters:  adapters,
		submitter: submitter,
		notifier:  notifier,
		metrics:   metrics,
		clock:     clock,
		interval:  interval,
	}
}

// Start registers the recurring cycle and kicks off the first one in the
// background. Cycle contexts derive from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		s.cancel()
		return fmt.Errorf("scheduling ingestion %q: %w", spec, err)
	}

	log.Info().Dur("interval", s.interval).Int("sources", len(s.adapters)).Msg("Starting ingestion scheduler...")
	s.cron.Start()

	// Run once immediately on start
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.tick()
	}()
	return nil
}

// Stop cancels in-flight cycles and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.initial.Wait()
	log.Info().Msg("Stopping ingestion scheduler.")
}

// CheckReadiness reports ready once the first cycle has completed.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no ingestion cycle has completed yet")
	}
	return nil
}

// RefreshNow runs one cycle on demand and reports new events per source.
// It never fails: a source that errors simply reports zero.
func (s *Scheduler) RefreshNow(ctx context.Context) models.RefreshResult {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.runCycle(ctx)
}

func (s *Scheduler) tick() {
	if !s.cycleMu.TryLock() {
		s.metrics.CyclesSkipped.Inc()
		log.Warn().Msg("Scheduler: Previous ingestion cycle still running, skipping tick")
		return
	}
	defer s.cycleMu.Unlock()
	s.runCycle(s.ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) models.RefreshResult {
	start := s.clock.Now()
	result := models.RefreshResult{Sources: make(map[string]int, len(s.adapters))}
	for _, a := range s.adapters {
		result.Sources[a.Name()] = 0
	}

	// Fetch and parse concurrently; classify and submit once all are in.
	batches := make([]sources.Batch, len(s.adapters))
	var wg sync.WaitGroup
	for i, a := range s.adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batches[i] = s.collect(ctx, a)
		}()
	}
	wg.Wait()

	for i, a := range s.adapters {
		for _, c := range batches[i].Candidates {
			if ctx.Err() != nil {
				break
			}
			if s.process(ctx, a, c) {
				result.Sources[a.Name()]++
				result.Total++
			}
		}
	}

	s.metrics.CycleDuration.Observe(s.clock.Since(start).Seconds())
	if ctx.Err() == nil {
		s.ready.Store(true)
	}

	event := log.Info()
	for name, n := range result.Sources {
		event = event.Int(name, n)
	}
	event.Int("new_events", result.Total).Msg("Ingestion cycle complete")
	return result
}

// collect fetches and parses one source. Any failure yields an empty batch.
func (s *Scheduler) collect(ctx context.Context, a sources.Adapter) sources.Batch {
	name := a.Name()

	raw, err := a.Fetch(ctx)
	if err != nil {
		s.metrics.FetchErrors.WithLabelValues(name).Inc()
		log.Error().Err(err).Str("source", name).Msg("Scheduler: Failed to fetch feed")
		return sources.Batch{}
	}

	batch, err := a.Parse(raw)
	if err != nil {
		s.metrics.FetchErrors.WithLabelValues(name).Inc()
		log.Error().Err(err).Str("source", name).Msg("Scheduler: Feed document unreadable")
		return sources.Batch{}
	}

	for _, pe := range batch.Skipped {
		log.Warn().Err(pe).Str("source", name).Int("index", pe.Index).Msg("Scheduler: Skipping malformed item")
	}
	s.metrics.ParseErrors.WithLabelValues(name).Add(float64(len(batch.Skipped)))
	s.metrics.EventsFetched.WithLabelValues(name).Add(float64(len(batch.Candidates)))
	return batch
}

// process classifies and submits one candidate, notifying on first sight.
// It reports whether a new event was stored.
func (s *Scheduler) process(ctx context.Context, a sources.Adapter, c sources.Candidate) bool {
	name := a.Name()
	ev := c.Event
	ev.Severity = a.Classify(c)

	stored, isNew, err := s.submitter.Submit(ctx, ev)
	switch {
	case errors.Is(err, ErrValidation):
		s.metrics.ValidationErrors.WithLabelValues(name).Inc()
		log.Warn().Err(err).Str("source", name).Str("source_id", ev.SourceID).Msg("Scheduler: Dropping invalid event")
		return false
	case err != nil:
		s.metrics.PersistErrors.WithLabelValues(name).Inc()
		log.Error().Err(err).Str("source", name).Str("source_id", ev.SourceID).Msg("Scheduler: Failed to store event")
		return false
	case !isNew:
		s.metrics.EventsDuplicate.WithLabelValues(name).Inc()
		return false
	}

	s.metrics.EventsInserted.WithLabelValues(name).Inc()
	s.notifier.Notify(stored)
	return true
}
