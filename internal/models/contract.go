package models

import "time"

type SmartContract struct {
	ID              uint   `gorm:"primaryKey"`
	ContractAddress string `gorm:"size:128;uniqueIndex;not null"`
	CodeID          int64  `gorm:"index"`
	CreatorAddress  string `gorm:"size:128;index"`
	Height          int64  `gorm:"index"`
	TxHash          string `gorm:"size:128;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (SmartContract) TableName() string { return "smart_contracts" }
