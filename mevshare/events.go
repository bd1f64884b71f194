package mevshare

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type EventKind string

const (
	TransactionEvent EventKind = "transaction"
	BundleEvent      EventKind = "bundle"
)

// Event is a classified message from the event stream, either *PendingTransaction or *PendingBundle.
type Event interface {
	Kind() EventKind
	EventHash() common.Hash
}

// PendingTransaction is a hint about a single transaction.
// To, FunctionSelector and CallData are only present when the sender shared them.
type PendingTransaction struct {
	Hash             common.Hash     `json:"hash"`
	Logs             []CleanLog      `json:"logs,omitempty"`
	To               *common.Address `json:"to,omitempty"`
	FunctionSelector *hexutil.Bytes  `json:"functionSelector,omitempty"`
	CallData         *hexutil.Bytes  `json:"callData,omitempty"`
	MevGasPrice      *hexutil.Big    `json:"mevGasPrice,omitempty"`
	GasUsed          *hexutil.Uint64 `json:"gasUsed,omitempty"`
}

func (p *PendingTransaction) Kind() EventKind { return TransactionEvent }

func (p *PendingTransaction) EventHash() common.Hash { return p.Hash }

// PendingBundle is a hint about a bundle of two or more transactions.
type PendingBundle struct {
	Hash        common.Hash     `json:"hash"`
	Logs        []CleanLog      `json:"logs,omitempty"`
	Txs         []TxHint        `json:"txs"`
	MevGasPrice *hexutil.Big    `json:"mevGasPrice,omitempty"`
	GasUsed     *hexutil.Uint64 `json:"gasUsed,omitempty"`
}

func (p *PendingBundle) Kind() EventKind { return BundleEvent }

func (p *PendingBundle) EventHash() common.Hash { return p.Hash }

// ParseEventKind returns an error wrapping ErrUnsupportedEventKind for unknown kinds.
func ParseEventKind(kind string) (EventKind, error) {
	switch EventKind(kind) {
	case TransactionEvent, BundleEvent:
		return EventKind(kind), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEventKind, kind)
	}
}

// ClassifyEvent turns a stream message into exactly one event variant.
// Messages with zero or one tx are transactions, anything larger is a bundle.
func ClassifyEvent(hint *Hint) Event {
	if len(hint.Txs) <= 1 {
		tx := &PendingTransaction{
			Hash:        hint.Hash,
			Logs:        hint.Logs,
			MevGasPrice: hint.MevGasPrice,
			GasUsed:     hint.GasUsed,
		}
		if len(hint.Txs) == 1 {
			tx.To = hint.Txs[0].To
			tx.FunctionSelector = hint.Txs[0].FunctionSelector
			tx.CallData = hint.Txs[0].CallData
		}
		return tx
	}
	return &PendingBundle{
		Hash:        hint.Hash,
		Logs:        hint.Logs,
		Txs:         hint.Txs,
		MevGasPrice: hint.MevGasPrice,
		GasUsed:     hint.GasUsed,
	}
}
