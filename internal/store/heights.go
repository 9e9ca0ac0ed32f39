package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chain-indexer/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	enqueueBatchSize = 500
	maxErrorLength   = 2000
)

// Cursor returns the height cursor; ok is false when it was never seeded.
func (s *Store) Cursor(ctx context.Context) (int64, bool, error) {
	var st models.SyncStatus
	err := s.db.WithContext(ctx).First(&st, models.SyncStatusID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	return st.CurrentHeight, true, nil
}

// SeedCursor creates the cursor row at height unless it already exists.
func (s *Store) SeedCursor(ctx context.Context, height int64) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: columns("id"), DoNothing: true}).
		Create(&models.SyncStatus{ID: models.SyncStatusID, CurrentHeight: height}).Error
	if err != nil {
		return fmt.Errorf("seed cursor: %w", err)
	}
	return nil
}

// AdvanceCursor sets the cursor to max(current, height).
func (s *Store) AdvanceCursor(ctx context.Context, height int64) error {
	return advanceCursor(s.db.WithContext(ctx), height)
}

func advanceCursor(tx *gorm.DB, height int64) error {
	err := tx.Clauses(clause.OnConflict{
		Columns: columns("id"),
		DoUpdates: clause.Assignments(map[string]any{
			"current_height": gorm.Expr("GREATEST(sync_status.current_height, excluded.current_height)"),
			"updated_at":     gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&models.SyncStatus{ID: models.SyncStatusID, CurrentHeight: height}).Error
	if err != nil {
		return fmt.Errorf("advance cursor to %d: %w", height, err)
	}
	return nil
}

// EnqueueHeights inserts a pending row for every height in [from, to] that
// has none yet, returning how many were new.
func (s *Store) EnqueueHeights(ctx context.Context, from, to int64) (int64, error) {
	if to < from {
		return 0, nil
	}
	rows := make([]models.BlockSyncError, 0, to-from+1)
	for h := from; h <= to; h++ {
		rows = append(rows, models.BlockSyncError{Height: h, Status: models.PendingStatusPending})
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: columns("height"), DoNothing: true}).
		CreateInBatches(rows, enqueueBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("enqueue heights %d..%d: %w", from, to, res.Error)
	}
	return res.RowsAffected, nil
}

// PendingHeights returns up to limit pending rows, lowest height first.
func (s *Store) PendingHeights(ctx context.Context, limit int) ([]models.BlockSyncError, error) {
	var rows []models.BlockSyncError
	err := s.db.WithContext(ctx).Order("height ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending heights: %w", err)
	}
	return rows, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.BlockSyncError{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count pending heights: %w", err)
	}
	return n, nil
}

// MarkFailed records a failed attempt. The row stays so the height is retried.
func (s *Store) MarkFailed(ctx context.Context, height int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	err := s.db.WithContext(ctx).Model(&models.BlockSyncError{}).
		Where("height = ?", height).
		Updates(map[string]any{
			"status":     models.PendingStatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error
	if err != nil {
		return fmt.Errorf("mark height %d failed: %w", height, err)
	}
	return nil
}

// CompleteHeight removes the pending row and advances the cursor atomically.
func (s *Store) CompleteHeight(ctx context.Context, height int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("height = ?", height).Delete(&models.BlockSyncError{}).Error; err != nil {
			return fmt.Errorf("delete pending height %d: %w", height, err)
		}
		return advanceCursor(tx, height)
	})
}

// StuckHeights lists pending rows created before olderThan that have failed
// at least once. Rows never attempted are queue depth, not stuck.
func (s *Store) StuckHeights(ctx context.Context, olderThan time.Time, limit int) ([]models.BlockSyncError, error) {
	var rows []models.BlockSyncError
	err := s.db.WithContext(ctx).
		Where("created_at < ? AND attempts > 0", olderThan).
		Order("height ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list stuck heights: %w", err)
	}
	return rows, nil
}
