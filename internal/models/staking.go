package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DelegationKind distinguishes how stake moved.
type DelegationKind string

const (
	DelegationDelegate        DelegationKind = "Delegate"
	DelegationUndelegate      DelegationKind = "Undelegate"
	DelegationRedelegate      DelegationKind = "Redelegate"
	DelegationCreateValidator DelegationKind = "CreateValidator"
)

// Delegation records a signed stake change; negative amounts leave a validator.
type Delegation struct {
	ID               uint            `gorm:"primaryKey"`
	DelegatorAddress string          `gorm:"size:128;index"`
	ValidatorAddress string          `gorm:"size:128;index:ux_delegation_tx_msg_validator,unique"`
	Amount           decimal.Decimal `gorm:"type:numeric"`
	Kind             DelegationKind  `gorm:"size:32;index"`
	TxHash           string          `gorm:"size:128;index:ux_delegation_tx_msg_validator,unique"`
	MsgIndex         int             `gorm:"index:ux_delegation_tx_msg_validator,unique"`
	Height           int64           `gorm:"index"`
	Timestamp        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Delegation) TableName() string { return "delegations" }

type DelegatorReward struct {
	ID               uint            `gorm:"primaryKey"`
	DelegatorAddress string          `gorm:"size:128;index:ux_reward_tx_delegator_validator,unique"`
	ValidatorAddress string          `gorm:"size:128;index:ux_reward_tx_delegator_validator,unique"`
	Amount           decimal.Decimal `gorm:"type:numeric"`
	TxHash           string          `gorm:"size:128;index:ux_reward_tx_delegator_validator,unique"`
	Height           int64           `gorm:"index"`
	Timestamp        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DelegatorReward) TableName() string { return "delegator_rewards" }
