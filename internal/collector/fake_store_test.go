package collector

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"chain-indexer/internal/models"
	"chain-indexer/internal/store"
)

// memStore is an in-memory Store with the same key semantics as the
// Postgres store.
type memStore struct {
	mu sync.Mutex

	cursor    int64
	hasCursor bool
	pending   map[int64]*models.BlockSyncError

	blocks      map[string]models.Block
	txs         map[string]models.Transaction
	delegations map[string]models.Delegation
	rewards     map[string]models.DelegatorReward

	cursorHistory []int64
	saves         int
	saveErr       error
	listErr       error
}

func newMemStore() *memStore {
	return &memStore{
		pending:     map[int64]*models.BlockSyncError{},
		blocks:      map[string]models.Block{},
		txs:         map[string]models.Transaction{},
		delegations: map[string]models.Delegation{},
		rewards:     map[string]models.DelegatorReward{},
	}
}

func (m *memStore) withCursor(h int64) *memStore {
	m.cursor, m.hasCursor = h, true
	return m
}

func (m *memStore) Cursor(context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, m.hasCursor, nil
}

func (m *memStore) SeedCursor(_ context.Context, h int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasCursor {
		m.cursor, m.hasCursor = h, true
	}
	return nil
}

func (m *memStore) EnqueueHeights(_ context.Context, from, to int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h := from; h <= to; h++ {
		if _, ok := m.pending[h]; ok {
			continue
		}
		m.pending[h] = &models.BlockSyncError{Height: h, Status: models.PendingStatusPending, CreatedAt: time.Now()}
		n++
	}
	return n, nil
}

func (m *memStore) PendingHeights(_ context.Context, limit int) ([]models.BlockSyncError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.BlockSyncError, 0, len(m.pending))
	for _, row := range m.pending {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountPending(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

func (m *memStore) MarkFailed(_ context.Context, h int64, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.pending[h]
	if !ok {
		return nil
	}
	row.Status = models.PendingStatusFailed
	row.Attempts++
	row.LastError = cause.Error()
	return nil
}

func (m *memStore) CompleteHeight(_ context.Context, h int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, h)
	m.cursor = max(m.cursor, h)
	m.hasCursor = true
	m.cursorHistory = append(m.cursorHistory, m.cursor)
	return nil
}

func (m *memStore) StuckHeights(_ context.Context, olderThan time.Time, limit int) ([]models.BlockSyncError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BlockSyncError
	for _, row := range m.pending {
		if row.CreatedAt.Before(olderThan) && row.Attempts > 0 {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SaveHeight(_ context.Context, data *store.HeightData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.blocks[data.Block.Hash] = data.Block
	for _, tx := range data.Transactions {
		m.txs[tx.TxHash] = tx
	}
	for _, d := range data.Records.Delegations {
		m.delegations[d.TxHash+"/"+strconv.Itoa(d.MsgIndex)+"/"+d.ValidatorAddress] = d
	}
	for _, r := range data.Records.Rewards {
		m.rewards[r.TxHash+"/"+r.DelegatorAddress+"/"+r.ValidatorAddress] = r
	}
	return nil
}

func (m *memStore) pendingHeights() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.pending))
	for h := range m.pending {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *memStore) row(h int64) (models.BlockSyncError, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.pending[h]
	if !ok {
		return models.BlockSyncError{}, false
	}
	return *row, true
}

var errBoom = errors.New("boom")
