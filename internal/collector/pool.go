package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chain-indexer/internal/logger"
	"chain-indexer/internal/metrics"
)

const (
	defaultBackoffInitial = time.Second
	defaultBackoffMax     = 30 * time.Second
)

// ProcessFunc runs the ingestion of one height.
type ProcessFunc func(ctx context.Context, height int64) error

// Pool dispatches pending heights to at most threads concurrent jobs. A job
// retries its height until it succeeds or the pool is stopped; only success
// removes the pending row.
type Pool struct {
	queue          HeightQueue
	process        ProcessFunc
	threads        int
	backoffInitial time.Duration
	backoffMax     time.Duration
	sleepFn        func(ctx context.Context, d time.Duration) error
	status         *statusBoard
	log            *logger.Logger

	mu       sync.Mutex
	inFlight map[int64]struct{}
	wg       sync.WaitGroup
}

func NewPool(queue HeightQueue, process ProcessFunc, threads int, backoffInitial, backoffMax time.Duration, log *logger.Logger) *Pool {
	if threads < 1 {
		threads = 1
	}
	return &Pool{
		queue:          queue,
		process:        process,
		threads:        threads,
		backoffInitial: backoffInitial,
		backoffMax:     backoffMax,
		sleepFn:        sleepContext,
		status:         newStatusBoard(),
		log:            log,
		inFlight:       make(map[int64]struct{}),
	}
}

// Run dispatches on every tick until ctx is cancelled, then waits for
// running jobs to observe the cancellation.
func (p *Pool) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer p.Wait()

	for {
		if _, err := p.Dispatch(ctx); err != nil && ctx.Err() == nil {
			p.log.Warnw("worker pool dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Dispatch reads up to threads pending heights, lowest first, and starts a
// job for each one not already in flight while capacity remains. It returns
// the heights started.
func (p *Pool) Dispatch(ctx context.Context) ([]int64, error) {
	if p.free() == 0 {
		return nil, nil
	}
	rows, err := p.queue.PendingHeights(ctx, p.threads)
	if err != nil {
		return nil, err
	}

	var started []int64
	for _, row := range rows {
		if !p.acquire(row.Height) {
			continue
		}
		started = append(started, row.Height)
		p.wg.Add(1)
		go func(height int64) {
			defer p.wg.Done()
			defer p.release(height)
			p.runJob(ctx, height)
		}(row.Height)
	}
	return started, nil
}

// Wait blocks until every started job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// InFlight returns the heights currently being processed, ascending.
func (p *Pool) InFlight() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortedLocked()
}

func (p *Pool) free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads - len(p.inFlight)
}

// acquire claims height for a new job. It fails when the height is already
// in flight or the pool is full.
func (p *Pool) acquire(height int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[height]; busy || len(p.inFlight) >= p.threads {
		return false
	}
	p.inFlight[height] = struct{}{}
	metrics.InFlightHeights.Set(float64(len(p.inFlight)))
	p.status.setInFlight(p.sortedLocked())
	return true
}

func (p *Pool) release(height int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, height)
	metrics.InFlightHeights.Set(float64(len(p.inFlight)))
	p.status.setInFlight(p.sortedLocked())
}

func (p *Pool) sortedLocked() []int64 {
	out := make([]int64, 0, len(p.inFlight))
	for h := range p.inFlight {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// runJob retries height with exponential backoff. There is no attempt
// ceiling: a height is abandoned only when ctx is cancelled, and then its
// pending row stays for the next run.
func (p *Pool) runJob(ctx context.Context, height int64) {
	for attempt := 1; ; attempt++ {
		err := p.attempt(ctx, height)
		if err == nil {
			metrics.HeightsProcessed.Inc()
			p.status.completed(height)
			p.log.Debugw("height done", "height", height, "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			p.log.Debugw("height abandoned on shutdown", "height", height, "attempt", attempt)
			return
		}

		metrics.HeightAttemptsFailed.WithLabelValues(stageOf(err)).Inc()
		p.status.failed(height, err)
		delay := backoffDelay(attempt, p.backoffInitial, p.backoffMax)
		p.log.Errorw("height attempt failed",
			"height", height,
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		// the failure is recorded on the row; the row itself stays
		if markErr := p.queue.MarkFailed(ctx, height, err); markErr != nil && ctx.Err() == nil {
			p.log.Warnw("record height failure", "height", height, "error", markErr)
		}
		if err := p.sleepFn(ctx, delay); err != nil {
			return
		}
	}
}

func (p *Pool) attempt(ctx context.Context, height int64) error {
	start := time.Now()
	defer func() { metrics.HeightJobLatency.Observe(time.Since(start).Seconds()) }()

	if err := p.process(ctx, height); err != nil {
		return err
	}
	if err := p.queue.CompleteHeight(ctx, height); err != nil {
		return &StageError{Stage: StageComplete, Height: height, Err: err}
	}
	return nil
}

// backoffDelay doubles base per attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBackoffInitial
	}
	if max <= 0 {
		max = defaultBackoffMax
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Job stages, used to label failures.
const (
	StageFetchBlock = "fetch_block"
	StageFetchTx    = "fetch_tx"
	StageSave       = "save"
	StageComplete   = "complete"
)

// StageError is a height failure tagged with the stage that failed.
type StageError struct {
	Stage  string
	Height int64
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("height %d %s: %v", e.Height, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "unknown"
}
