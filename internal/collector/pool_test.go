package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"chain-indexer/internal/logger"
	"chain-indexer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedProcess blocks every height until its gate is opened and counts calls.
type gatedProcess struct {
	mu    sync.Mutex
	calls map[int64]int
	gates map[int64]chan struct{}
}

func newGatedProcess(heights ...int64) *gatedProcess {
	g := &gatedProcess{calls: map[int64]int{}, gates: map[int64]chan struct{}{}}
	for _, h := range heights {
		g.gates[h] = make(chan struct{})
	}
	return g
}

func (g *gatedProcess) process(ctx context.Context, height int64) error {
	g.mu.Lock()
	g.calls[height]++
	gate := g.gates[height]
	g.mu.Unlock()
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gatedProcess) open(h int64) { close(g.gates[h]) }

func (g *gatedProcess) count(h int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[h]
}

func enqueued(t *testing.T, st *memStore, from, to int64) {
	t.Helper()
	_, err := st.EnqueueHeights(context.Background(), from, to)
	require.NoError(t, err)
}

func TestPool_NoDoubleDispatch(t *testing.T) {
	st := newMemStore().withCursor(100)
	enqueued(t, st, 101, 103)
	gp := newGatedProcess(101, 102, 103)
	p := NewPool(st, gp.process, 4, time.Millisecond, time.Millisecond, logger.Nop())

	started, err := p.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 102, 103}, started)

	started, err = p.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, started, "heights already in flight are not resubmitted")
	assert.Equal(t, []int64{101, 102, 103}, p.InFlight())

	for _, h := range []int64{101, 102, 103} {
		gp.open(h)
	}
	p.Wait()

	for _, h := range []int64{101, 102, 103} {
		assert.Equal(t, 1, gp.count(h))
	}
	assert.Empty(t, st.pendingHeights())
	assert.Empty(t, p.InFlight())
	cursor, _, _ := st.Cursor(context.Background())
	assert.Equal(t, int64(103), cursor)
}

func TestPool_BoundedConcurrency(t *testing.T) {
	st := newMemStore().withCursor(100)
	enqueued(t, st, 101, 105)
	gp := newGatedProcess(101, 102, 103, 104, 105)
	p := NewPool(st, gp.process, 2, time.Millisecond, time.Millisecond, logger.Nop())

	started, err := p.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 102}, started)

	started, err = p.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, started)

	gp.open(101)
	require.Eventually(t, func() bool { return len(p.InFlight()) == 1 }, time.Second, time.Millisecond)

	started, err = p.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{103}, started, "lowest pending height not in flight goes next")

	for _, h := range []int64{102, 103} {
		gp.open(h)
	}
	p.Wait()
}

func TestPool_CursorNeverRegresses(t *testing.T) {
	st := newMemStore().withCursor(100)
	enqueued(t, st, 101, 103)
	gp := newGatedProcess(101, 102, 103)
	p := NewPool(st, gp.process, 3, time.Millisecond, time.Millisecond, logger.Nop())

	_, err := p.Dispatch(context.Background())
	require.NoError(t, err)

	for _, h := range []int64{103, 101, 102} {
		gp.open(h)
		require.Eventually(t, func() bool {
			_, pending := st.row(h)
			return !pending
		}, time.Second, time.Millisecond)
	}
	p.Wait()

	assert.Equal(t, []int64{103, 103, 103}, st.cursorHistory)
}

func TestPool_RetriesUntilSuccess(t *testing.T) {
	st := newMemStore().withCursor(100)
	enqueued(t, st, 101, 101)

	var (
		mu       sync.Mutex
		attempts int
		seen     models.BlockSyncError
	)
	process := func(_ context.Context, height int64) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return &StageError{Stage: StageFetchBlock, Height: height, Err: errBoom}
		}
		seen, _ = st.row(height)
		return nil
	}

	var delays []time.Duration
	p := NewPool(st, process, 1, 10*time.Millisecond, time.Second, logger.Nop())
	p.sleepFn = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := p.Dispatch(context.Background())
	require.NoError(t, err)
	p.Wait()

	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
	assert.Equal(t, 2, seen.Attempts)
	assert.Equal(t, models.PendingStatusFailed, seen.Status)
	assert.Contains(t, seen.LastError, "boom")

	assert.Empty(t, st.pendingHeights())
	cursor, _, _ := st.Cursor(context.Background())
	assert.Equal(t, int64(101), cursor)

	status := p.status.snapshot()
	assert.Equal(t, uint64(2), status.Failures)
	assert.Equal(t, uint64(1), status.Processed)
	assert.Equal(t, int64(101), status.LastCompleted)
}

func TestPool_ShutdownLeavesHeightPending(t *testing.T) {
	st := newMemStore().withCursor(100)
	enqueued(t, st, 101, 101)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPool(st, func(context.Context, int64) error { return errBoom }, 1, time.Millisecond, time.Millisecond, logger.Nop())
	p.sleepFn = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := p.Dispatch(ctx)
	require.NoError(t, err)
	p.Wait()

	row, ok := st.row(101)
	require.True(t, ok, "a failing height is never dropped")
	assert.Equal(t, 1, row.Attempts)
	cursor, _, _ := st.Cursor(context.Background())
	assert.Equal(t, int64(100), cursor)
}

func TestPool_DispatchError(t *testing.T) {
	st := newMemStore()
	st.listErr = errBoom
	p := NewPool(st, func(context.Context, int64) error { return nil }, 1, time.Millisecond, time.Millisecond, logger.Nop())

	_, err := p.Dispatch(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(tt.attempt, time.Second, 30*time.Second), "attempt %d", tt.attempt)
	}
	assert.Equal(t, defaultBackoffInitial, backoffDelay(1, 0, 0))
}

func TestStageOf(t *testing.T) {
	assert.Equal(t, StageSave, stageOf(&StageError{Stage: StageSave, Err: errBoom}))
	assert.Equal(t, "unknown", stageOf(errBoom))
}
