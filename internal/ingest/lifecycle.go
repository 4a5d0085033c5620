package ingest

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/disaster-tracker-be/internal/models"
	"github.com/isdelr/disaster-tracker-be/internal/observability"
	"github.com/isdelr/disaster-tracker-be/internal/store"
)

// Sweeper periodically moves events older than the retention window from
// active to past. It runs independently of ingestion.
type Sweeper struct {
	store    store.Store
	clock    clockwork.Clock
	interval time.Duration
	metrics  *observability.Metrics
}

// NewSweeper creates a new Sweeper.
func NewSweeper(s store.Store, clock clockwork.Clock, interval time.Duration, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{store: s, clock: clock, interval: interval, metrics: metrics}
}

// Sweep marks every active event dated before now - RetentionWindow as past
// and returns how many changed. Repeating a sweep is a no-op.
func (sw *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := sw.store.MarkPastBefore(ctx, now.Add(-models.RetentionWindow))
	if err != nil {
		return 0, err
	}
	sw.metrics.EventsTransitioned.Add(float64(n))
	return n, nil
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) {
	log.Info().Dur("interval", sw.interval).Msg("Starting lifecycle sweeper...")
	ticker := sw.clock.NewTicker(sw.interval)
	defer ticker.Stop()

	// Run once immediately on start
	sw.sweepAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping lifecycle sweeper.")
			return
		case <-ticker.Chan():
			sw.sweepAndLog(ctx)
		}
	}
}

func (sw *Sweeper) sweepAndLog(ctx context.Context) {
	n, err := sw.Sweep(ctx, sw.clock.Now())
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Sweeper: Failed to mark past events")
		}
		return
	}
	if n > 0 {
		log.Info().Int64("transitioned", n).Msg("Sweeper: Events moved to past")
	}
}
