package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one executed transaction. Code 0 means success; on failure
// Type still carries the first message's type tag.
type Transaction struct {
	ID              uint              `gorm:"primaryKey"`
	TxHash          string            `gorm:"size:128;uniqueIndex;not null"`
	Height          int64             `gorm:"index;not null"`
	Type            string            `gorm:"size:128;index"`
	Code            uint32            `gorm:"index"`
	RawLog          string            `gorm:"type:text"`
	Fee             decimal.Decimal   `gorm:"type:numeric"`
	GasUsed         int64
	GasWanted       int64
	Messages        []json.RawMessage `gorm:"serializer:json;type:jsonb"`
	Timestamp       time.Time         `gorm:"index"`
	ContractAddress *string           `gorm:"size:128;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Transaction) TableName() string { return "transactions" }

func (t Transaction) Succeeded() bool { return t.Code == 0 }
