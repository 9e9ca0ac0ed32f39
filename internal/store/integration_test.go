//go:build integration

package store_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	dbpkg "chain-indexer/internal/db"
	"chain-indexer/internal/decoder"
	"chain-indexer/internal/models"
	"chain-indexer/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupStore starts a PostgreSQL container, migrates every model and returns
// a store on it. The container is removed when the test ends.
func setupStore(t *testing.T) (*store.Store, *gorm.DB) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("chain_indexer_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.Open(connStr), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, dbpkg.AutoMigrate(gdb))
	return store.New(gdb), gdb
}

var at = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

func heightData(h int64, amount string) *store.HeightData {
	return &store.HeightData{
		Block: models.Block{Height: h, Hash: "HASH" + strconv.FormatInt(h, 10), Timestamp: at, NumTxs: 1},
		Transactions: []models.Transaction{
			{TxHash: "TX1", Height: h, Type: decoder.TagDelegate, Fee: decimal.Zero, Timestamp: at},
			{TxHash: "TX1", Height: h, Type: decoder.TagDelegate, Fee: decimal.Zero, Timestamp: at},
		},
		Records: decoder.Records{
			Delegations: []models.Delegation{{
				DelegatorAddress: "aura1d", ValidatorAddress: "auravaloper1v",
				Amount: decimal.RequireFromString(amount), Kind: models.DelegationDelegate,
				TxHash: "TX1", MsgIndex: 0, Height: h, Timestamp: at,
			}},
			Rewards: []models.DelegatorReward{{
				DelegatorAddress: "aura1d", ValidatorAddress: "auravaloper1v",
				Amount: decimal.NewFromInt(1000), TxHash: "TX1", Height: h, Timestamp: at,
			}},
		},
	}
}

func count(t *testing.T, gdb *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(model).Count(&n).Error)
	return n
}

func TestSaveHeight_Idempotent(t *testing.T) {
	s, gdb := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHeight(ctx, heightData(10, "5.000000")))
	require.NoError(t, s.SaveHeight(ctx, heightData(10, "5.000000")))

	assert.Equal(t, int64(1), count(t, gdb, &models.Block{}))
	assert.Equal(t, int64(1), count(t, gdb, &models.Transaction{}))
	assert.Equal(t, int64(1), count(t, gdb, &models.Delegation{}))
	assert.Equal(t, int64(1), count(t, gdb, &models.DelegatorReward{}))

	var d models.Delegation
	require.NoError(t, gdb.First(&d).Error)
	assert.True(t, decimal.RequireFromString("5").Equal(d.Amount))
}

func TestProposalVote_OlderHeightDoesNotOverwrite(t *testing.T) {
	s, gdb := setupStore(t)
	ctx := context.Background()

	vote := func(h int64, option string) *store.HeightData {
		return &store.HeightData{
			Block: models.Block{Height: h, Hash: "V" + option, Timestamp: at},
			Records: decoder.Records{Votes: []models.ProposalVote{{
				ProposalID: 7, Voter: "aura1voter", Option: option, TxHash: "VT" + option, Height: h, Timestamp: at,
			}}},
		}
	}
	require.NoError(t, s.SaveHeight(ctx, vote(20, "NO")))
	require.NoError(t, s.SaveHeight(ctx, vote(15, "YES")))

	var v models.ProposalVote
	require.NoError(t, gdb.Where("proposal_id = ? AND voter = ?", 7, "aura1voter").First(&v).Error)
	assert.Equal(t, "NO", v.Option)
	assert.Equal(t, int64(20), v.Height)
}

func TestEnqueueHeights_NoopOnExisting(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	n, err := s.EnqueueHeights(ctx, 101, 105)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = s.EnqueueHeights(ctx, 103, 108)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rows, err := s.PendingHeights(ctx, 4)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, int64(101), rows[0].Height)
	assert.Equal(t, int64(104), rows[3].Height)

	total, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)
}

func TestCursor_SeedAndMonotonicAdvance(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, ok, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SeedCursor(ctx, 100))
	require.NoError(t, s.SeedCursor(ctx, 5))
	cursor, ok, err := s.Cursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), cursor)

	_, err = s.EnqueueHeights(ctx, 101, 120)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for h := int64(120); h > 100; h-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.CompleteHeight(ctx, h))
		}()
	}
	wg.Wait()

	cursor, _, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120), cursor)

	require.NoError(t, s.AdvanceCursor(ctx, 110))
	cursor, _, _ = s.Cursor(ctx)
	assert.Equal(t, int64(120), cursor, "advance never regresses")

	total, _ := s.CountPending(ctx)
	assert.Zero(t, total)
}

func TestMarkFailed_KeepsRow(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.EnqueueHeights(ctx, 50, 51)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, 50, errors.New("node timeout")))
	require.NoError(t, s.MarkFailed(ctx, 50, errors.New("node timeout again")))

	rows, err := s.PendingHeights(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.PendingStatusFailed, rows[0].Status)
	assert.Equal(t, 2, rows[0].Attempts)
	assert.Equal(t, "node timeout again", rows[0].LastError)

	stuck, err := s.StuckHeights(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1, "height 51 was never attempted")
	assert.Equal(t, int64(50), stuck[0].Height)

	stuck, err = s.StuckHeights(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}
