package decoder

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"chain-indexer/internal/chain"
)

// Type tags of the messages the decoder understands. Anything else parses
// to Unrecognized and produces no records.
const (
	TagDelegate                = "MsgDelegate"
	TagUndelegate              = "MsgUndelegate"
	TagRedelegate              = "MsgBeginRedelegate"
	TagWithdrawDelegatorReward = "MsgWithdrawDelegatorReward"
	TagVote                    = "MsgVote"
	TagSubmitProposal          = "MsgSubmitProposal"
	TagDeposit                 = "MsgDeposit"
	TagInstantiateContract     = "MsgInstantiateContract"
	TagInstantiateContract2    = "MsgInstantiateContract2"
	TagExecuteContract         = "MsgExecuteContract"
	TagCreateValidator         = "MsgCreateValidator"

	tagCommunityPoolSpendProposal = "CommunityPoolSpendProposal"
	tagCommunityPoolSpend         = "MsgCommunityPoolSpend"
)

// Message is one decoded transaction message. The set of implementations is
// closed: only types in this package satisfy it.
type Message interface {
	TypeTag() string
	records(c *msgContext) Records
}

// TypeTag returns the last segment of a fully-qualified type URL, e.g.
// "/cosmos.staking.v1beta1.MsgDelegate" -> "MsgDelegate".
func TypeTag(typeURL string) string {
	typeURL = strings.TrimSpace(typeURL)
	if i := strings.LastIndexAny(typeURL, "./"); i >= 0 {
		return typeURL[i+1:]
	}
	return typeURL
}

// MessageTypeTag reads the @type of a raw message payload.
func MessageTypeTag(raw json.RawMessage) string {
	var head struct {
		Type string `json:"@type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return TypeTag(head.Type)
}

// ParseMessage maps a raw message payload to its variant. Unknown or
// malformed payloads become Unrecognized.
func ParseMessage(raw json.RawMessage) Message {
	tag := MessageTypeTag(raw)
	var msg Message
	switch tag {
	case TagDelegate:
		msg = &Delegate{}
	case TagUndelegate:
		msg = &Undelegate{}
	case TagRedelegate:
		msg = &Redelegate{}
	case TagWithdrawDelegatorReward:
		msg = &WithdrawDelegatorReward{}
	case TagVote:
		msg = &Vote{}
	case TagSubmitProposal:
		msg = &SubmitProposal{}
	case TagDeposit:
		msg = &Deposit{}
	case TagInstantiateContract, TagInstantiateContract2:
		msg = &InstantiateContract{Tag: tag}
	case TagExecuteContract:
		msg = &ExecuteContract{}
	case TagCreateValidator:
		msg = &CreateValidator{}
	default:
		return Unrecognized{Type: tag}
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return Unrecognized{Type: tag, Malformed: true}
	}
	return msg
}

type Delegate struct {
	DelegatorAddress string     `json:"delegator_address"`
	ValidatorAddress string     `json:"validator_address"`
	Amount           chain.Coin `json:"amount"`
}

func (*Delegate) TypeTag() string { return TagDelegate }

type Undelegate struct {
	DelegatorAddress string     `json:"delegator_address"`
	ValidatorAddress string     `json:"validator_address"`
	Amount           chain.Coin `json:"amount"`
}

func (*Undelegate) TypeTag() string { return TagUndelegate }

type Redelegate struct {
	DelegatorAddress    string     `json:"delegator_address"`
	ValidatorSrcAddress string     `json:"validator_src_address"`
	ValidatorDstAddress string     `json:"validator_dst_address"`
	Amount              chain.Coin `json:"amount"`
}

func (*Redelegate) TypeTag() string { return TagRedelegate }

type WithdrawDelegatorReward struct {
	DelegatorAddress string `json:"delegator_address"`
	ValidatorAddress string `json:"validator_address"`
}

func (*WithdrawDelegatorReward) TypeTag() string { return TagWithdrawDelegatorReward }

type Vote struct {
	ProposalID flexInt    `json:"proposal_id"`
	Voter      string     `json:"voter"`
	Option     flexString `json:"option"`
}

func (*Vote) TypeTag() string { return TagVote }

// proposalContent covers both the legacy content payload and the inner
// messages of a gov v1 proposal.
type proposalContent struct {
	Type        string       `json:"@type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Recipient   string       `json:"recipient"`
	Amount      []chain.Coin `json:"amount"`
}

type SubmitProposal struct {
	Content        *proposalContent  `json:"content"`
	Messages       []proposalContent `json:"messages"`
	InitialDeposit []chain.Coin      `json:"initial_deposit"`
	Proposer       string            `json:"proposer"`
	Title          string            `json:"title"`
	Summary        string            `json:"summary"`
}

func (*SubmitProposal) TypeTag() string { return TagSubmitProposal }

// content returns the legacy content or, for gov v1, the first inner message.
func (m *SubmitProposal) content() proposalContent {
	if m.Content != nil {
		return *m.Content
	}
	c := proposalContent{Title: m.Title, Description: m.Summary}
	if len(m.Messages) > 0 {
		inner := m.Messages[0]
		c.Type, c.Recipient, c.Amount = inner.Type, inner.Recipient, inner.Amount
	}
	return c
}

type Deposit struct {
	ProposalID flexInt      `json:"proposal_id"`
	Depositor  string       `json:"depositor"`
	Amount     []chain.Coin `json:"amount"`
}

func (*Deposit) TypeTag() string { return TagDeposit }

type InstantiateContract struct {
	Tag    string  `json:"-"`
	Sender string  `json:"sender"`
	Admin  string  `json:"admin"`
	CodeID flexInt `json:"code_id"`
	Label  string  `json:"label"`
}

func (m *InstantiateContract) TypeTag() string {
	if m.Tag != "" {
		return m.Tag
	}
	return TagInstantiateContract
}

type ExecuteContract struct {
	Sender   string `json:"sender"`
	Contract string `json:"contract"`
}

func (*ExecuteContract) TypeTag() string { return TagExecuteContract }

type CreateValidator struct {
	DelegatorAddress string     `json:"delegator_address"`
	ValidatorAddress string     `json:"validator_address"`
	Value            chain.Coin `json:"value"`
}

func (*CreateValidator) TypeTag() string { return TagCreateValidator }

// Unrecognized stands for any message outside the allow-list. The
// surrounding transaction is still stored.
type Unrecognized struct {
	Type      string
	Malformed bool
}

func (u Unrecognized) TypeTag() string { return u.Type }

func (Unrecognized) records(*msgContext) Records { return Records{} }

// flexInt accepts both quoted and bare JSON integers.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

// flexString accepts a JSON string or number (enum values may be either).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(b)
	return nil
}
