// Package store persists ingested heights. Every write is an upsert keyed by
// a natural key, so replaying a height converges to the same rows.
package store

import (
	"context"
	"fmt"
	"strconv"

	"chain-indexer/internal/decoder"
	"chain-indexer/internal/models"

	"gorm.io/gorm"
)

// HeightData is everything one height job writes.
type HeightData struct {
	Block        models.Block
	Transactions []models.Transaction
	Records      decoder.Records
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SaveHeight upserts a height's block, transactions and decoded records in
// one database transaction.
func (s *Store) SaveHeight(ctx context.Context, data *HeightData) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsert(tx, []models.Block{data.Block}, onConflictUpdateAll("hash")); err != nil {
			return fmt.Errorf("blocks: %w", err)
		}
		txs := dedupe(data.Transactions, func(t models.Transaction) string { return t.TxHash })
		if err := upsert(tx, txs, onConflictUpdateAll("tx_hash")); err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		return saveRecords(tx, data.Records)
	})
	if err != nil {
		return fmt.Errorf("save height %d: %w", data.Block.Height, err)
	}
	return nil
}

func saveRecords(tx *gorm.DB, r decoder.Records) error {
	delegations := dedupe(r.Delegations, func(d models.Delegation) string {
		return key(d.TxHash, strconv.Itoa(d.MsgIndex), d.ValidatorAddress)
	})
	if err := upsert(tx, delegations, onConflictUpdateAll("tx_hash", "msg_index", "validator_address")); err != nil {
		return fmt.Errorf("delegations: %w", err)
	}

	rewards := dedupe(r.Rewards, func(d models.DelegatorReward) string {
		return key(d.TxHash, d.DelegatorAddress, d.ValidatorAddress)
	})
	if err := upsert(tx, rewards, onConflictUpdateAll("tx_hash", "delegator_address", "validator_address")); err != nil {
		return fmt.Errorf("delegator_rewards: %w", err)
	}

	votes := dedupe(r.Votes, func(v models.ProposalVote) string {
		return key(strconv.FormatInt(v.ProposalID, 10), v.Voter)
	})
	if err := upsert(tx, votes, onConflictNotOlder("proposal_votes", "proposal_id", "voter")); err != nil {
		return fmt.Errorf("proposal_votes: %w", err)
	}

	deposits := dedupe(r.Deposits, func(d models.ProposalDeposit) string { return d.TxHash })
	if err := upsert(tx, deposits, onConflictUpdateAll("tx_hash")); err != nil {
		return fmt.Errorf("proposal_deposits: %w", err)
	}

	proposals := dedupe(r.Proposals, func(p models.HistoryProposal) string { return p.TxHash })
	if err := upsert(tx, proposals, onConflictUpdateAll("tx_hash")); err != nil {
		return fmt.Errorf("history_proposals: %w", err)
	}

	contracts := dedupe(r.Contracts, func(c models.SmartContract) string { return c.ContractAddress })
	if err := upsert(tx, contracts, onConflictUpdateAll("contract_address")); err != nil {
		return fmt.Errorf("smart_contracts: %w", err)
	}
	return nil
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

