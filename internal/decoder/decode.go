// Package decoder turns executed transactions into typed domain records.
// It performs no I/O; the same input always yields the same records.
package decoder

import (
	"strconv"

	"chain-indexer/internal/chain"
	"chain-indexer/internal/models"

	"github.com/shopspring/decimal"
)

// Event types and attribute keys the rules read.
const (
	eventTransfer        = "transfer"
	eventWithdrawRewards = "withdraw_rewards"
	eventSubmitProposal  = "submit_proposal"
	eventInstantiate     = "instantiate"
	eventExecute         = "execute"

	attrProposalID      = "proposal_id"
	attrContractAddress = "_contract_address"
	attrCodeID          = "code_id"

	// Positions inside the transfer event emitted alongside a staking message:
	// recipient, sender, amount for the first transfer, then the same triple
	// for the second one.
	transferFirstAmountPos  = 2
	transferSecondAmountPos = 5
	withdrawAmountPos       = 0
)

// Records are the domain rows derived from one or more transactions.
type Records struct {
	Delegations []models.Delegation
	Rewards     []models.DelegatorReward
	Votes       []models.ProposalVote
	Deposits    []models.ProposalDeposit
	Proposals   []models.HistoryProposal
	Contracts   []models.SmartContract
}

func (r *Records) Append(o Records) {
	r.Delegations = append(r.Delegations, o.Delegations...)
	r.Rewards = append(r.Rewards, o.Rewards...)
	r.Votes = append(r.Votes, o.Votes...)
	r.Deposits = append(r.Deposits, o.Deposits...)
	r.Proposals = append(r.Proposals, o.Proposals...)
	r.Contracts = append(r.Contracts, o.Contracts...)
}

func (r Records) Len() int {
	return len(r.Delegations) + len(r.Rewards) + len(r.Votes) +
		len(r.Deposits) + len(r.Proposals) + len(r.Contracts)
}

// Counts reports the number of records per table, for metrics.
func (r Records) Counts() map[string]int {
	return map[string]int{
		"delegations":       len(r.Delegations),
		"delegator_rewards": len(r.Rewards),
		"proposal_votes":    len(r.Votes),
		"proposal_deposits": len(r.Deposits),
		"history_proposals": len(r.Proposals),
		"smart_contracts":   len(r.Contracts),
	}
}

type Decoder struct {
	amounts Amounts
}

func New(minimalDenom string, decimals int) *Decoder {
	return &Decoder{amounts: NewAmounts(minimalDenom, decimals)}
}

func (d *Decoder) Amounts() Amounts { return d.amounts }

// Transaction builds the transactions row. Failed transactions keep the type
// of their first message.
func (d *Decoder) Transaction(tx *chain.TxResult) models.Transaction {
	row := models.Transaction{
		TxHash:    tx.Hash,
		Height:    tx.Height,
		Code:      tx.Code,
		RawLog:    tx.RawLog,
		GasUsed:   tx.GasUsed,
		GasWanted: tx.GasWanted,
		Messages:  tx.Messages,
		Timestamp: tx.Timestamp,
		Fee:       decimal.Zero,
	}
	if len(tx.Messages) > 0 {
		row.Type = MessageTypeTag(tx.Messages[0])
	}
	if len(tx.Fee) > 0 {
		row.Fee = d.amounts.Normalize(tx.Fee[0].Amount)
	}
	if addr := d.contractAddress(tx); addr != "" {
		row.ContractAddress = &addr
	}
	return row
}

// contractAddress is the contract a transaction touched: the executed
// contract, or the first one it instantiated.
func (d *Decoder) contractAddress(tx *chain.TxResult) string {
	for i, raw := range tx.Messages {
		switch m := ParseMessage(raw).(type) {
		case *ExecuteContract:
			if m.Contract != "" {
				return m.Contract
			}
		case *InstantiateContract:
			if tx.Code != 0 {
				continue
			}
			for _, ev := range tx.MessageEvents(i).FindAll(eventInstantiate) {
				if addr, ok := chain.FindAttribute(ev, attrContractAddress); ok {
					return addr
				}
			}
		}
	}
	return ""
}

// DecodeTx returns the records of every recognized message of a successful
// transaction. Failed transactions produce none.
func (d *Decoder) DecodeTx(tx *chain.TxResult) Records {
	var out Records
	if tx == nil || tx.Code != 0 {
		return out
	}
	for i := range tx.Messages {
		out.Append(d.DecodeMessage(tx, i))
	}
	return out
}

// DecodeMessage applies the rule of the message at index i.
func (d *Decoder) DecodeMessage(tx *chain.TxResult, i int) Records {
	if tx == nil || i < 0 || i >= len(tx.Messages) {
		return Records{}
	}
	c := &msgContext{
		tx:      tx,
		index:   i,
		events:  tx.MessageEvents(i),
		amounts: d.amounts,
	}
	return ParseMessage(tx.Messages[i]).records(c)
}

type msgContext struct {
	tx      *chain.TxResult
	index   int
	events  chain.Events
	amounts Amounts
}

// coinAt reads the coin amount at a position of the message's first event of
// type typ, denom stripped. Missing event or attribute yields 0.
func (c *msgContext) coinAt(typ string, pos int) (decimal.Decimal, bool) {
	ev, ok := c.events.Find(typ)
	if !ok {
		return decimal.Zero, false
	}
	attr, ok := chain.AttributeAt(ev, pos)
	if !ok {
		return decimal.Zero, false
	}
	return c.amounts.StripDenom(attr.Value), true
}

func (c *msgContext) attributeCount(typ string) int {
	ev, ok := c.events.Find(typ)
	if !ok {
		return 0
	}
	return len(ev.Attributes)
}

func (c *msgContext) delegation(delegator, validator string, amount decimal.Decimal, kind models.DelegationKind) models.Delegation {
	return models.Delegation{
		DelegatorAddress: delegator,
		ValidatorAddress: validator,
		Amount:           amount,
		Kind:             kind,
		TxHash:           c.tx.Hash,
		MsgIndex:         c.index,
		Height:           c.tx.Height,
		Timestamp:        c.tx.Timestamp,
	}
}

func (c *msgContext) reward(delegator, validator string, amount decimal.Decimal) models.DelegatorReward {
	return models.DelegatorReward{
		DelegatorAddress: delegator,
		ValidatorAddress: validator,
		Amount:           amount,
		TxHash:           c.tx.Hash,
		Height:           c.tx.Height,
		Timestamp:        c.tx.Timestamp,
	}
}

func (m *Delegate) records(c *msgContext) Records {
	reward, _ := c.coinAt(eventTransfer, transferFirstAmountPos)
	return Records{
		Delegations: []models.Delegation{
			c.delegation(m.DelegatorAddress, m.ValidatorAddress, c.amounts.Normalize(m.Amount.Amount), models.DelegationDelegate),
		},
		Rewards: []models.DelegatorReward{c.reward(m.DelegatorAddress, m.ValidatorAddress, reward)},
	}
}

func (m *Undelegate) records(c *msgContext) Records {
	reward, _ := c.coinAt(eventTransfer, transferFirstAmountPos)
	// Two transfers: the second one carries the reward.
	if c.attributeCount(eventTransfer) > 3 {
		reward, _ = c.coinAt(eventTransfer, transferSecondAmountPos)
	}
	return Records{
		Delegations: []models.Delegation{
			c.delegation(m.DelegatorAddress, m.ValidatorAddress, c.amounts.Negate(m.Amount.Amount), models.DelegationUndelegate),
		},
		Rewards: []models.DelegatorReward{c.reward(m.DelegatorAddress, m.ValidatorAddress, reward)},
	}
}

func (m *Redelegate) records(c *msgContext) Records {
	srcReward, _ := c.coinAt(eventTransfer, transferFirstAmountPos)
	dstReward, _ := c.coinAt(eventTransfer, transferSecondAmountPos)
	return Records{
		Delegations: []models.Delegation{
			c.delegation(m.DelegatorAddress, m.ValidatorSrcAddress, c.amounts.Negate(m.Amount.Amount), models.DelegationRedelegate),
			c.delegation(m.DelegatorAddress, m.ValidatorDstAddress, c.amounts.Normalize(m.Amount.Amount), models.DelegationRedelegate),
		},
		Rewards: []models.DelegatorReward{
			c.reward(m.DelegatorAddress, m.ValidatorSrcAddress, srcReward),
			c.reward(m.DelegatorAddress, m.ValidatorDstAddress, dstReward),
		},
	}
}

func (m *WithdrawDelegatorReward) records(c *msgContext) Records {
	amount, _ := c.coinAt(eventWithdrawRewards, withdrawAmountPos)
	return Records{
		Rewards: []models.DelegatorReward{c.reward(m.DelegatorAddress, m.ValidatorAddress, amount)},
	}
}

func (m *Vote) records(c *msgContext) Records {
	return Records{
		Votes: []models.ProposalVote{{
			ProposalID: int64(m.ProposalID),
			Voter:      m.Voter,
			Option:     string(m.Option),
			TxHash:     c.tx.Hash,
			Height:     c.tx.Height,
			Timestamp:  c.tx.Timestamp,
		}},
	}
}

func (m *SubmitProposal) records(c *msgContext) Records {
	var proposalID int64
	if ev, ok := c.events.Find(eventSubmitProposal); ok {
		if v, ok := chain.FindAttribute(ev, attrProposalID); ok {
			proposalID, _ = strconv.ParseInt(v, 10, 64)
		}
	}

	content := m.content()
	initialDeposit := decimal.Zero
	if len(m.InitialDeposit) > 0 {
		initialDeposit = c.amounts.Normalize(m.InitialDeposit[0].Amount)
	}
	proposal := models.HistoryProposal{
		ProposalID:     proposalID,
		TxHash:         c.tx.Hash,
		Proposer:       m.Proposer,
		Title:          content.Title,
		Description:    content.Description,
		ProposalType:   TypeTag(content.Type),
		InitialDeposit: initialDeposit,
		Amount:         decimal.Zero,
		Height:         c.tx.Height,
		Timestamp:      c.tx.Timestamp,
	}

	out := Records{}
	switch proposal.ProposalType {
	case tagCommunityPoolSpendProposal, tagCommunityPoolSpend:
		proposal.Recipient = content.Recipient
		if len(content.Amount) > 0 {
			proposal.Amount = c.amounts.Normalize(content.Amount[0].Amount)
		}
	default:
		if len(m.InitialDeposit) > 0 {
			proposal.Amount = initialDeposit
			out.Deposits = []models.ProposalDeposit{{
				ProposalID: proposalID,
				Depositor:  m.Proposer,
				Amount:     initialDeposit,
				TxHash:     c.tx.Hash,
				Height:     c.tx.Height,
				Timestamp:  c.tx.Timestamp,
			}}
		}
	}
	out.Proposals = []models.HistoryProposal{proposal}
	return out
}

func (m *Deposit) records(c *msgContext) Records {
	amount := decimal.Zero
	if len(m.Amount) > 0 {
		amount = c.amounts.Normalize(m.Amount[0].Amount)
	}
	return Records{
		Deposits: []models.ProposalDeposit{{
			ProposalID: int64(m.ProposalID),
			Depositor:  m.Depositor,
			Amount:     amount,
			TxHash:     c.tx.Hash,
			Height:     c.tx.Height,
			Timestamp:  c.tx.Timestamp,
		}},
	}
}

func (m *InstantiateContract) records(c *msgContext) Records {
	return Records{Contracts: c.instantiated(m.Sender)}
}

func (m *ExecuteContract) records(c *msgContext) Records {
	creator := m.Contract
	if ev, ok := c.events.Find(eventExecute); ok {
		if addr, ok := chain.FindAttribute(ev, attrContractAddress); ok {
			creator = addr
		}
	}
	return Records{Contracts: c.instantiated(creator)}
}

// instantiated pairs every _contract_address of the message's instantiate
// events with the code_id at the same position.
func (c *msgContext) instantiated(creator string) []models.SmartContract {
	var out []models.SmartContract
	for _, ev := range c.events.FindAll(eventInstantiate) {
		addrs := chain.FindAttributes(ev, attrContractAddress)
		codeIDs := chain.FindAttributes(ev, attrCodeID)
		for i, addr := range addrs {
			var codeID int64
			if i < len(codeIDs) {
				codeID, _ = strconv.ParseInt(codeIDs[i], 10, 64)
			}
			out = append(out, models.SmartContract{
				ContractAddress: addr,
				CodeID:          codeID,
				CreatorAddress:  creator,
				Height:          c.tx.Height,
				TxHash:          c.tx.Hash,
			})
		}
	}
	return out
}

func (m *CreateValidator) records(c *msgContext) Records {
	return Records{
		Delegations: []models.Delegation{
			c.delegation(m.DelegatorAddress, m.ValidatorAddress, c.amounts.Normalize(m.Value.Amount), models.DelegationCreateValidator),
		},
	}
}
