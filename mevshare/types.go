package mevshare

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	SendPrivateTransactionEndpointName = "eth_sendPrivateTransaction"
	SendBundleEndpointName             = "mev_sendBundle"
	SimBundleEndpointName              = "mev_simBundle"

	DefaultBundleVersion = "v0.1"
)

// SendMevBundleArgs is the first and only param of mev_sendBundle, and the first param of mev_simBundle.
type SendMevBundleArgs struct {
	Version         string             `json:"version"`
	ReplacementUUID string             `json:"replacementUuid,omitempty"`
	Inclusion       MevBundleInclusion `json:"inclusion"`
	Body            []MevBundleBody    `json:"body"`
	Validity        *MevBundleValidity `json:"validity,omitempty"`
	Privacy         *MevBundlePrivacy  `json:"privacy,omitempty"`
}

// BundleParams is what callers build to send or simulate a bundle.
type BundleParams = SendMevBundleArgs

type MevBundleInclusion struct {
	BlockNumber hexutil.Uint64 `json:"block"`
	MaxBlock    hexutil.Uint64 `json:"maxBlock,omitempty"`
}

// MevBundleBody is one element of the bundle body.
// Exactly one of Hash, Tx or Bundle must be set.
type MevBundleBody struct {
	Hash      *common.Hash       `json:"hash,omitempty"`
	Tx        *hexutil.Bytes     `json:"tx,omitempty"`
	Bundle    *SendMevBundleArgs `json:"bundle,omitempty"`
	CanRevert bool               `json:"canRevert"`
}

// MarshalJSON always writes canRevert on tx entries, on hash and bundle entries only when set.
func (b MevBundleBody) MarshalJSON() ([]byte, error) {
	type bodyEntry struct {
		Hash      *common.Hash       `json:"hash,omitempty"`
		Tx        *hexutil.Bytes     `json:"tx,omitempty"`
		Bundle    *SendMevBundleArgs `json:"bundle,omitempty"`
		CanRevert *bool              `json:"canRevert,omitempty"`
	}
	entry := bodyEntry{Hash: b.Hash, Tx: b.Tx, Bundle: b.Bundle}
	if b.Tx != nil || b.CanRevert {
		canRevert := b.CanRevert
		entry.CanRevert = &canRevert
	}
	return json.Marshal(entry)
}

type MevBundleValidity struct {
	Refund       []RefundConstraint `json:"refund,omitempty"`
	RefundConfig []RefundConfig     `json:"refundConfig,omitempty"`
}

type RefundConstraint struct {
	BodyIdx int `json:"bodyIdx"`
	Percent int `json:"percent"`
}

type RefundConfig struct {
	Address common.Address `json:"address"`
	Percent int            `json:"percent"`
}

type MevBundlePrivacy struct {
	Hints    HintIntent `json:"hints,omitempty"`
	Builders []string   `json:"builders,omitempty"`
}

type SendMevBundleResponse struct {
	BundleHash common.Hash `json:"bundleHash"`
}

// SendBundleResult is returned by Client.SendBundle.
type SendBundleResult = SendMevBundleResponse

// TransactionOptions are the caller facing options of eth_sendPrivateTransaction.
type TransactionOptions struct {
	Hints *HintPreferences
	// MaxBlockNumber is the highest block the tx may be included in, 0 means relay default.
	MaxBlockNumber uint64
	Builders       []string
}

type SendPrivateTxArgs struct {
	Tx             hexutil.Bytes         `json:"tx"`
	MaxBlockNumber *hexutil.Uint64       `json:"maxBlockNumber,omitempty"`
	Preferences    *PrivateTxPreferences `json:"preferences,omitempty"`
}

type PrivateTxPreferences struct {
	Fast    bool              `json:"fast"`
	Privacy *PrivateTxPrivacy `json:"privacy,omitempty"`
}

type PrivateTxPrivacy struct {
	Hints    HintIntent `json:"hints,omitempty"`
	Builders []string   `json:"builders,omitempty"`
}

// SimBundleOptions override the block header used for simulation.
// Nil fields are left to the relay.
type SimBundleOptions struct {
	ParentBlock *uint64
	BlockNumber *uint64
	Coinbase    *common.Address
	Timestamp   *uint64
	GasLimit    *uint64
	BaseFee     *uint64
	// Timeout is the relay side simulation timeout in seconds.
	Timeout *uint64
}

// SimMevBundleAuxArgs is the second param of mev_simBundle.
type SimMevBundleAuxArgs struct {
	ParentBlock *hexutil.Uint64 `json:"parentBlock,omitempty"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber,omitempty"`
	Coinbase    *common.Address `json:"coinbase,omitempty"`
	Timestamp   *hexutil.Uint64 `json:"timestamp,omitempty"`
	GasLimit    *hexutil.Uint64 `json:"gasLimit,omitempty"`
	BaseFee     *hexutil.Uint64 `json:"baseFee,omitempty"`
	Timeout     *hexutil.Uint64 `json:"timeout,omitempty"`
}

type SimMevBundleResponse struct {
	Success         bool             `json:"success"`
	Error           string           `json:"error,omitempty"`
	StateBlock      hexutil.Uint64   `json:"stateBlock"`
	MevGasPrice     hexutil.Big      `json:"mevGasPrice"`
	Profit          hexutil.Big      `json:"profit"`
	RefundableValue hexutil.Big      `json:"refundableValue"`
	GasUsed         hexutil.Uint64   `json:"gasUsed"`
	BodyLogs        []SimMevBodyLogs `json:"logs,omitempty"`
}

// SimBundleResult is returned by Client.SimulateBundle.
type SimBundleResult = SimMevBundleResponse

type SimMevBodyLogs struct {
	TxLogs     []*types.Log     `json:"txLogs,omitempty"`
	BundleLogs []SimMevBodyLogs `json:"bundleLogs,omitempty"`
}

// Hint is the payload of a single event on the stream, it is also nested in history entries.
type Hint struct {
	Hash        common.Hash     `json:"hash"`
	Logs        []CleanLog      `json:"logs"`
	Txs         []TxHint        `json:"txs"`
	MevGasPrice *hexutil.Big    `json:"mevGasPrice,omitempty"`
	GasUsed     *hexutil.Uint64 `json:"gasUsed,omitempty"`
}

type TxHint struct {
	Hash             *common.Hash    `json:"hash,omitempty"`
	To               *common.Address `json:"to,omitempty"`
	FunctionSelector *hexutil.Bytes  `json:"functionSelector,omitempty"`
	CallData         *hexutil.Bytes  `json:"callData,omitempty"`
}

type CleanLog struct {
	// address of the contract that generated the event
	Address common.Address `json:"address"`
	// list of topics provided by the contract.
	Topics []common.Hash `json:"topics"`
	// supplied by the contract, usually ABI-encoded
	Data hexutil.Bytes `json:"data"`
}

type EventHistoryInfo struct {
	Count        uint64 `json:"count"`
	MinBlock     uint64 `json:"minBlock"`
	MaxBlock     uint64 `json:"maxBlock"`
	MinTimestamp uint64 `json:"minTimestamp"`
	MaxTimestamp uint64 `json:"maxTimestamp"`
	MaxLimit     uint64 `json:"maxLimit"`
}

// EventHistoryParams filter the history query. Zero values are not sent.
type EventHistoryParams struct {
	BlockStart     uint64
	BlockEnd       uint64
	TimestampStart uint64
	TimestampEnd   uint64
	Limit          uint64
	Offset         uint64
}

type EventHistoryEntry struct {
	Block     uint64 `json:"block"`
	Timestamp uint64 `json:"timestamp"`
	Hint      Hint   `json:"hint"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *jsonRPCError   `json:"error,omitempty"`
}
