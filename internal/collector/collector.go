// Package collector drives ingestion: a gap detector fills the pending-height
// store and a worker pool drains it. The two loops share nothing but the
// store.
package collector

import (
	"context"
	"sync"
	"time"

	"chain-indexer/internal/chain"
	"chain-indexer/internal/config"
	"chain-indexer/internal/decoder"
	"chain-indexer/internal/logger"
	"chain-indexer/internal/models"
	"chain-indexer/internal/store"
	"chain-indexer/internal/tui"

	"golang.org/x/sync/errgroup"
)

const (
	// TUIChannelBufferSize bounds queued dashboard snapshots
	TUIChannelBufferSize = 16
	// TUICloseDelay gives the dashboard time to quit after its channel closes
	TUICloseDelay  = 200 * time.Millisecond
	statusInterval = time.Second
)

// HeightQueue is the durable work queue plus the height cursor.
type HeightQueue interface {
	Cursor(ctx context.Context) (int64, bool, error)
	SeedCursor(ctx context.Context, height int64) error
	EnqueueHeights(ctx context.Context, from, to int64) (int64, error)
	PendingHeights(ctx context.Context, limit int) ([]models.BlockSyncError, error)
	CountPending(ctx context.Context) (int64, error)
	MarkFailed(ctx context.Context, height int64, cause error) error
	CompleteHeight(ctx context.Context, height int64) error
	StuckHeights(ctx context.Context, olderThan time.Time, limit int) ([]models.BlockSyncError, error)
}

// HeightWriter persists a processed height.
type HeightWriter interface {
	SaveHeight(ctx context.Context, data *store.HeightData) error
}

// Store is everything the collector needs from persistence.
type Store interface {
	HeightQueue
	HeightWriter
}

// MonikerResolver names block proposers. Unknown addresses resolve to "".
type MonikerResolver interface {
	Resolve(ctx context.Context, consAddrHex string) string
}

type Collector struct {
	cfg     config.Config
	gap     *GapDetector
	pool    *Pool
	status  *statusBoard
	updates chan<- tui.Status
	log     *logger.Logger
}

// NewCollector wires the gap detector and worker pool. updates may be nil
// when the dashboard is off.
func NewCollector(cfg config.Config, client chain.Client, st Store, monikers MonikerResolver, updates chan<- tui.Status, log *logger.Logger) *Collector {
	status := newStatusBoard()

	processor := NewHeightProcessor(client, st, decoder.New(cfg.CoinDenom, int(cfg.CoinDecimals)), monikers, cfg.JobTimeout, log.Named("height"))
	processor.status = status

	gap := NewGapDetector(client, st, cfg.BatchSize, cfg.StartHeight, cfg.StuckAfter, log.Named("gap"))
	gap.status = status

	pool := NewPool(st, processor.Process, cfg.Threads, cfg.BackoffInitial, cfg.BackoffMax, log.Named("pool"))
	pool.status = status

	return &Collector{
		cfg:     cfg,
		gap:     gap,
		pool:    pool,
		status:  status,
		updates: updates,
		log:     log,
	}
}

// Run starts both loops and blocks until ctx is cancelled and in-flight jobs
// have returned.
func (c *Collector) Run(ctx context.Context) error {
	c.log.Infow("collector starting",
		"threads", c.cfg.Threads,
		"batch_size", c.cfg.BatchSize,
		"gap_interval", c.cfg.GapInterval,
		"worker_interval", c.cfg.WorkerInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.gap.Run(gctx, c.cfg.GapInterval) })
	g.Go(func() error { return c.pool.Run(gctx, c.cfg.WorkerInterval) })
	if c.updates != nil {
		g.Go(func() error { return c.publishStatus(gctx) })
	}
	err := g.Wait()
	c.log.Infow("collector stopped", "in_flight", len(c.pool.InFlight()))
	return err
}

// Status returns the current pipeline snapshot.
func (c *Collector) Status() tui.Status {
	return c.status.snapshot()
}

func (c *Collector) publishStatus(ctx context.Context) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// drop the snapshot rather than block when the dashboard lags
			select {
			case c.updates <- c.status.snapshot():
			default:
			}
		}
	}
}

// statusBoard is the dashboard's view of the pipeline. Nothing reads it
// back into scheduling decisions.
type statusBoard struct {
	mu sync.Mutex
	st tui.Status
}

func newStatusBoard() *statusBoard {
	return &statusBoard{}
}

func (b *statusBoard) update(fn func(*tui.Status)) {
	b.mu.Lock()
	fn(&b.st)
	b.mu.Unlock()
}

func (b *statusBoard) setLatest(h int64)  { b.update(func(s *tui.Status) { s.LatestHeight = h }) }
func (b *statusBoard) setCursor(h int64)  { b.update(func(s *tui.Status) { s.Cursor = h }) }
func (b *statusBoard) setPending(n int64) { b.update(func(s *tui.Status) { s.Pending = n }) }

func (b *statusBoard) setInFlight(heights []int64) {
	b.update(func(s *tui.Status) { s.InFlight = heights })
}

func (b *statusBoard) completed(height int64) {
	b.update(func(s *tui.Status) {
		s.Processed++
		s.LastCompleted = height
		s.LastCompletedAt = time.Now()
		s.Cursor = max(s.Cursor, height)
	})
}

func (b *statusBoard) failed(height int64, err error) {
	b.update(func(s *tui.Status) {
		s.Failures++
		s.LastErrorHeight = height
		s.LastError = err.Error()
		s.LastErrorAt = time.Now()
	})
}

func (b *statusBoard) setChainID(id string) {
	b.update(func(s *tui.Status) { s.ChainID = id })
}

func (b *statusBoard) snapshot() tui.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.st
	st.InFlight = append([]int64(nil), b.st.InFlight...)
	return st
}
