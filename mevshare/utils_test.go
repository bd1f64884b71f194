package mevshare

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeBuilders(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "lowercase",
			in:   []string{"Flashbots", "rsync"},
			want: []string{"flashbots", "rsync"},
		},
		{
			name: "duplicates",
			in:   []string{"flashbots", "FLASHBOTS", "titan", "flashbots"},
			want: []string{"flashbots", "titan"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, normalizeBuilders(tt.in))
		})
	}
}

func TestFormatUnits(t *testing.T) {
	oneAndHalfEth, _ := new(big.Int).SetString("1500000000000000000", 10)
	require.Equal(t, "1.5", FormatUnits(oneAndHalfEth, "eth"))
	require.Equal(t, "2", FormatUnits(big.NewInt(2e9), "gwei"))
	require.Equal(t, "", FormatUnits(big.NewInt(1), "wei"))
	require.Equal(t, "0", FormatUnits(nil, "eth"))
}
