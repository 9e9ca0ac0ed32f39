// Package models defines the database models for chain ingestion.
package models

import "time"

// SyncStatusID is the primary key of the singleton cursor row.
const SyncStatusID = 1

// SyncStatus is the height cursor: the highest height fully ingested.
// CurrentHeight only ever moves forward.
type SyncStatus struct {
	ID            uint  `gorm:"primaryKey;autoIncrement:false"`
	CurrentHeight int64 `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (SyncStatus) TableName() string { return "sync_status" }

type PendingStatus string

const (
	PendingStatusPending PendingStatus = "pending"
	PendingStatusFailed  PendingStatus = "failed"
)

// BlockSyncError is a pending height. Its existence means the height still
// needs work; it is deleted only when the height has been fully persisted.
type BlockSyncError struct {
	ID        uint          `gorm:"primaryKey"`
	Height    int64         `gorm:"uniqueIndex;not null"`
	BlockHash *string       `gorm:"size:128"`
	Status    PendingStatus `gorm:"size:16;index;default:pending"`
	Attempts  int           `gorm:"not null;default:0"`
	LastError string        `gorm:"type:text"`
	CreatedAt time.Time     `gorm:"index"`
	UpdatedAt time.Time
}

func (BlockSyncError) TableName() string { return "block_sync_error" }
