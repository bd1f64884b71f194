package mevshare

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHintIntentJSON(t *testing.T) {
	tests := []struct {
		name   string
		intent HintIntent
		want   string
	}{
		{
			name:   "none",
			intent: HintNone,
			want:   `[]`,
		},
		{
			name:   "calldata and hash",
			intent: HintCallData | HintHash,
			want:   `["calldata","hash"]`,
		},
		{
			name:   "all",
			intent: HintContractAddress | HintFunctionSelector | HintLogs | HintCallData | HintHash | HintSpecialLogs | HintTxHash | HintDefaultLogs,
			want:   `["contract_address","function_selector","logs","calldata","hash","special_logs","tx_hash","default_logs"]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.intent)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(data))

			var decoded HintIntent
			require.NoError(t, json.Unmarshal(data, &decoded))
			require.Equal(t, tt.intent, decoded)
		})
	}
}

func TestHintIntentUnmarshalInvalid(t *testing.T) {
	var intent HintIntent
	err := json.Unmarshal([]byte(`["calldata","everything"]`), &intent)
	require.ErrorIs(t, err, ErrInvalidHintIntent)
}

func TestHintPreferencesIntent(t *testing.T) {
	tests := []struct {
		name  string
		prefs *HintPreferences
		want  HintIntent
	}{
		{
			name:  "nil",
			prefs: nil,
			want:  HintNone,
		},
		{
			name:  "nothing requested",
			prefs: &HintPreferences{},
			want:  HintNone,
		},
		{
			name:  "hash is added",
			prefs: &HintPreferences{CallData: true},
			want:  HintCallData | HintHash,
		},
		{
			name:  "tx hash and default logs",
			prefs: &HintPreferences{TxHash: true, DefaultLogs: true},
			want:  HintTxHash | HintDefaultLogs | HintHash,
		},
		{
			name: "everything",
			prefs: &HintPreferences{
				CallData:         true,
				ContractAddress:  true,
				FunctionSelector: true,
				Logs:             true,
				DefaultLogs:      true,
				TxHash:           true,
			},
			want: HintCallData | HintContractAddress | HintFunctionSelector | HintLogs | HintDefaultLogs | HintTxHash | HintHash,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.prefs.Intent())
		})
	}
}
