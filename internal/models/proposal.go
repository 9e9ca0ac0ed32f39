package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProposalVote keeps the latest option per (proposal, voter).
type ProposalVote struct {
	ID         uint   `gorm:"primaryKey"`
	ProposalID int64  `gorm:"index:ux_vote_proposal_voter,unique"`
	Voter      string `gorm:"size:128;index:ux_vote_proposal_voter,unique"`
	Option     string `gorm:"size:64"`
	TxHash     string `gorm:"size:128;index"`
	Height     int64  `gorm:"index"`
	Timestamp  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ProposalVote) TableName() string { return "proposal_votes" }

type ProposalDeposit struct {
	ID         uint            `gorm:"primaryKey"`
	ProposalID int64           `gorm:"index"`
	Depositor  string          `gorm:"size:128;index"`
	Amount     decimal.Decimal `gorm:"type:numeric"`
	TxHash     string          `gorm:"size:128;uniqueIndex"`
	Height     int64           `gorm:"index"`
	Timestamp  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ProposalDeposit) TableName() string { return "proposal_deposits" }

// HistoryProposal is the submission record of a governance proposal.
type HistoryProposal struct {
	ID             uint            `gorm:"primaryKey"`
	ProposalID     int64           `gorm:"index"`
	TxHash         string          `gorm:"size:128;uniqueIndex"`
	Proposer       string          `gorm:"size:128;index"`
	Title          string          `gorm:"type:text"`
	Description    string          `gorm:"type:text"`
	ProposalType   string          `gorm:"size:128"`
	Recipient      string          `gorm:"size:128"`
	Amount         decimal.Decimal `gorm:"type:numeric"`
	InitialDeposit decimal.Decimal `gorm:"type:numeric"`
	Height         int64           `gorm:"index"`
	Timestamp      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (HistoryProposal) TableName() string { return "history_proposals" }
