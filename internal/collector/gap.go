package collector

import (
	"context"
	"fmt"
	"time"

	"chain-indexer/internal/chain"
	"chain-indexer/internal/logger"
	"chain-indexer/internal/metrics"
)

const stuckReportLimit = 20

// GapDetector keeps the pending-height store filled with every height
// between the cursor and the chain tip, one bounded batch per cycle.
type GapDetector struct {
	client      chain.Client
	queue       HeightQueue
	batchSize   int64
	startHeight int64
	stuckAfter  time.Duration
	status      *statusBoard
	log         *logger.Logger
	now         func() time.Time
}

func NewGapDetector(client chain.Client, queue HeightQueue, batchSize, startHeight int64, stuckAfter time.Duration, log *logger.Logger) *GapDetector {
	return &GapDetector{
		client:      client,
		queue:       queue,
		batchSize:   batchSize,
		startHeight: startHeight,
		stuckAfter:  stuckAfter,
		status:      newStatusBoard(),
		log:         log,
		now:         time.Now,
	}
}

// Run ticks until ctx is cancelled. A failed cycle is logged and retried on
// the next tick.
func (g *GapDetector) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := g.Tick(ctx); err != nil && ctx.Err() == nil {
			metrics.GapTickErrors.Inc()
			g.log.Warnw("gap detector cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one cycle: enqueue (cursor, min(latest, cursor+batch)].
func (g *GapDetector) Tick(ctx context.Context) error {
	metrics.GapTicksTotal.Inc()

	latest, err := g.client.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("latest height: %w", err)
	}
	metrics.LatestHeight.Set(float64(latest))
	g.status.setLatest(latest)

	cursor, err := g.cursor(ctx, latest)
	if err != nil {
		return err
	}
	metrics.CursorHeight.Set(float64(cursor))
	g.status.setCursor(cursor)

	if latest > cursor {
		to := min(latest, cursor+g.batchSize)
		n, err := g.queue.EnqueueHeights(ctx, cursor+1, to)
		if err != nil {
			return err
		}
		if n > 0 {
			metrics.HeightsEnqueued.Add(float64(n))
			g.log.Debugw("heights enqueued", "from", cursor+1, "to", to, "new", n, "latest", latest)
		}
	}

	pending, err := g.queue.CountPending(ctx)
	if err != nil {
		return err
	}
	metrics.PendingHeights.Set(float64(pending))
	g.status.setPending(pending)

	g.reportStuck(ctx)
	return nil
}

// cursor returns the height cursor, seeding it on first run so ingestion
// starts at START_HEIGHT, or at the chain tip when that is 0.
func (g *GapDetector) cursor(ctx context.Context, latest int64) (int64, error) {
	cursor, ok, err := g.queue.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return cursor, nil
	}

	seed := g.startHeight - 1
	if g.startHeight <= 0 {
		seed = latest - 1
	}
	seed = max(seed, 0)
	if err := g.queue.SeedCursor(ctx, seed); err != nil {
		return 0, err
	}
	g.log.Infow("height cursor seeded", "cursor", seed, "latest", latest)

	cursor, _, err = g.queue.Cursor(ctx)
	return cursor, err
}

func (g *GapDetector) reportStuck(ctx context.Context) {
	if g.stuckAfter <= 0 {
		return
	}
	stuck, err := g.queue.StuckHeights(ctx, g.now().Add(-g.stuckAfter), stuckReportLimit)
	if err != nil {
		g.log.Warnw("list stuck heights", "error", err)
		return
	}
	metrics.StuckHeights.Set(float64(len(stuck)))
	for _, row := range stuck {
		g.log.Warnw("height pending beyond retry horizon",
			"height", row.Height,
			"attempts", row.Attempts,
			"last_error", row.LastError,
			"since", row.CreatedAt,
		)
	}
}
