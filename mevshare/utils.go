package mevshare

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

var (
	ethDivisor  = new(big.Float).SetUint64(params.Ether)
	gweiDivisor = new(big.Float).SetUint64(params.GWei)
)

// FormatUnits renders a wei value in "eth" or "gwei", other units give an empty string
func FormatUnits(value *big.Int, unit string) string {
	if value == nil {
		return "0"
	}
	float := new(big.Float).SetInt(value)
	switch unit {
	case "eth":
		return float.Quo(float, ethDivisor).String()
	case "gwei":
		return float.Quo(float, gweiDivisor).String()
	default:
		return ""
	}
}

// normalizeBuilders lowercases builder names and drops duplicates, keeping the first occurrence order
func normalizeBuilders(builders []string) []string {
	if len(builders) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(builders))
	ret := make([]string, 0, len(builders))
	for _, b := range builders {
		b = strings.ToLower(b)
		if seen[b] {
			continue
		}
		seen[b] = true
		ret = append(ret, b)
	}
	return ret
}
