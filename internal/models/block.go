package models

import "time"

type Block struct {
	ID              uint      `gorm:"primaryKey"`
	Height          int64     `gorm:"uniqueIndex;not null"`
	Hash            string    `gorm:"size:128;uniqueIndex;not null"`
	ChainID         string    `gorm:"size:64;index"`
	Timestamp       time.Time `gorm:"index"`
	Proposer        string    `gorm:"size:128;index"`
	ProposerMoniker string    `gorm:"size:128"`
	GasUsed         int64
	GasWanted       int64
	NumTxs          int
	Round           int32
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Block) TableName() string { return "blocks" }
