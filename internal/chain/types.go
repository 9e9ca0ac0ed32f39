// Package chain talks to a CometBFT/Cosmos SDK node: blocks over the RPC
// endpoint and transaction results over the REST query endpoint.
package chain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	cmttypes "github.com/cometbft/cometbft/types"
)

// RawBlock is a block header plus its raw transaction bytes.
type RawBlock struct {
	Height          int64
	Hash            string
	ChainID         string
	Time            time.Time
	ProposerAddress string
	Round           int32
	Txs             [][]byte
}

// TxHashes returns the hashes of the block's transactions in block order.
func (b *RawBlock) TxHashes() []string {
	hashes := make([]string, len(b.Txs))
	for i, raw := range b.Txs {
		hashes[i] = TxHash(raw)
	}
	return hashes
}

// TxHash hashes raw transaction bytes the way the node indexes them
// (SHA-256, upper-case hex).
func TxHash(raw []byte) string {
	return fmt.Sprintf("%X", cmttypes.Tx(raw).Hash())
}

type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// ABCIMessageLog groups the events emitted by one message of a transaction.
type ABCIMessageLog struct {
	MsgIndex int    `json:"msg_index"`
	Log      string `json:"log"`
	Events   Events `json:"events"`
}

// TxResult is the execution result of a transaction together with its body.
type TxResult struct {
	Hash      string
	Height    int64
	Code      uint32
	Codespace string
	RawLog    string
	GasWanted int64
	GasUsed   int64
	Timestamp time.Time
	Logs      []ABCIMessageLog
	Events    Events
	Messages  []json.RawMessage
	Fee       []Coin
	Memo      string
}

// MessageEvents returns the events emitted by the message at index i. Legacy
// nodes group them in logs; newer ones tag flat events with msg_index. Flat
// events are folded back into the log shape: one event per type, attributes
// concatenated in emission order, msg_index dropped. Missing data yields an
// empty list, never an error.
func (r *TxResult) MessageEvents(i int) Events {
	if r == nil {
		return nil
	}
	if len(r.Logs) > 0 {
		for _, l := range r.Logs {
			if l.MsgIndex == i {
				return l.Events
			}
		}
		return nil
	}
	want := strconv.Itoa(i)
	var out Events
	byType := make(map[string]int)
	for _, ev := range r.Events {
		if v, ok := FindAttribute(ev, msgIndexKey); !ok || v != want {
			continue
		}
		pos, seen := byType[ev.Type]
		if !seen {
			pos = len(out)
			byType[ev.Type] = pos
			out = append(out, Event{Type: ev.Type})
		}
		for _, a := range ev.Attributes {
			if a.Key != msgIndexKey {
				out[pos].Attributes = append(out[pos].Attributes, a)
			}
		}
	}
	return out
}

type txResponse struct {
	Height    int64            `json:"height,string"`
	TxHash    string           `json:"txhash"`
	Codespace string           `json:"codespace"`
	Code      uint32           `json:"code"`
	RawLog    string           `json:"raw_log"`
	Logs      []ABCIMessageLog `json:"logs"`
	GasWanted int64            `json:"gas_wanted,string"`
	GasUsed   int64            `json:"gas_used,string"`
	Timestamp string           `json:"timestamp"`
	Events    Events           `json:"events"`
}

type getTxResponse struct {
	Tx struct {
		Body struct {
			Messages []json.RawMessage `json:"messages"`
			Memo     string            `json:"memo"`
		} `json:"body"`
		AuthInfo struct {
			Fee struct {
				Amount []Coin `json:"amount"`
			} `json:"fee"`
		} `json:"auth_info"`
	} `json:"tx"`
	TxResponse txResponse `json:"tx_response"`
}

func (g getTxResponse) toResult() *TxResult {
	res := &TxResult{
		Hash:      g.TxResponse.TxHash,
		Height:    g.TxResponse.Height,
		Code:      g.TxResponse.Code,
		Codespace: g.TxResponse.Codespace,
		RawLog:    g.TxResponse.RawLog,
		GasWanted: g.TxResponse.GasWanted,
		GasUsed:   g.TxResponse.GasUsed,
		Logs:      g.TxResponse.Logs,
		Events:    g.TxResponse.Events,
		Messages:  g.Tx.Body.Messages,
		Fee:       g.Tx.AuthInfo.Fee.Amount,
		Memo:      g.Tx.Body.Memo,
	}
	if ts, err := time.Parse(time.RFC3339Nano, g.TxResponse.Timestamp); err == nil {
		res.Timestamp = ts
	}
	return res
}

type latestBlockResponse struct {
	Block struct {
		Header struct {
			Height int64 `json:"height,string"`
		} `json:"header"`
	} `json:"block"`
}
