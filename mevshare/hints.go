package mevshare

import (
	"encoding/json"
	"errors"
)

var ErrInvalidHintIntent = errors.New("invalid hint intent")

// HintIntent is a set of hint intents
// its marshalled as an array of strings
type HintIntent uint8

const (
	HintContractAddress HintIntent = 1 << iota
	HintFunctionSelector
	HintLogs
	HintCallData
	HintHash
	HintSpecialLogs
	HintTxHash
	HintDefaultLogs
	HintNone = 0
)

func (b *HintIntent) SetHint(flag HintIntent) {
	*b = *b | flag
}

func (b *HintIntent) HasHint(flag HintIntent) bool {
	return *b&flag != 0
}

func (b HintIntent) MarshalJSON() ([]byte, error) {
	arr := []string{}
	if b.HasHint(HintContractAddress) {
		arr = append(arr, "contract_address")
	}
	if b.HasHint(HintFunctionSelector) {
		arr = append(arr, "function_selector")
	}
	if b.HasHint(HintLogs) {
		arr = append(arr, "logs")
	}
	if b.HasHint(HintCallData) {
		arr = append(arr, "calldata")
	}
	if b.HasHint(HintHash) {
		arr = append(arr, "hash")
	}
	if b.HasHint(HintSpecialLogs) {
		arr = append(arr, "special_logs")
	}
	if b.HasHint(HintTxHash) {
		arr = append(arr, "tx_hash")
	}
	if b.HasHint(HintDefaultLogs) {
		arr = append(arr, "default_logs")
	}
	return json.Marshal(arr)
}

func (b *HintIntent) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	for _, v := range arr {
		switch v {
		case "contract_address":
			b.SetHint(HintContractAddress)
		case "function_selector":
			b.SetHint(HintFunctionSelector)
		case "logs":
			b.SetHint(HintLogs)
		case "calldata":
			b.SetHint(HintCallData)
		case "hash":
			b.SetHint(HintHash)
		case "special_logs":
			b.SetHint(HintSpecialLogs)
		case "tx_hash":
			b.SetHint(HintTxHash)
		case "default_logs":
			b.SetHint(HintDefaultLogs)
		default:
			return ErrInvalidHintIntent
		}
	}
	return nil
}

// HintPreferences select which data about a transaction or bundle is shared on the event stream.
type HintPreferences struct {
	CallData         bool
	ContractAddress  bool
	FunctionSelector bool
	Logs             bool
	DefaultLogs      bool
	TxHash           bool
}

// Intent converts preferences to the wire representation.
// The relay needs the hash hint to match anything, so it is always added when any hint is requested.
func (p *HintPreferences) Intent() HintIntent {
	var want HintIntent = HintNone
	if p == nil {
		return want
	}
	if p.CallData {
		want.SetHint(HintCallData)
	}
	if p.ContractAddress {
		want.SetHint(HintContractAddress)
	}
	if p.FunctionSelector {
		want.SetHint(HintFunctionSelector)
	}
	if p.Logs {
		want.SetHint(HintLogs)
	}
	if p.DefaultLogs {
		want.SetHint(HintDefaultLogs)
	}
	if p.TxHash {
		want.SetHint(HintTxHash)
	}
	if want != HintNone {
		want.SetHint(HintHash)
	}
	return want
}
