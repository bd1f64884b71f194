package mevshare

import (
	"crypto/ecdsa"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/flashbots/mev-share-client-go/jsonrpcserver"
	"github.com/stretchr/testify/require"
)

var testChainID = big.NewInt(1)

func signedTestTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64) *types.Transaction {
	t.Helper()
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(testChainID), &types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(1e9),
		GasFeeCap: big.NewInt(30e9),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	require.NoError(t, err)
	return tx
}

func mustMarshalTx(t *testing.T, tx *types.Transaction) []byte {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

// newFakeRelay serves methods behind signature verification, like the relay does.
func newFakeRelay(t *testing.T, methods jsonrpcserver.Methods) *httptest.Server {
	t.Helper()
	handler, err := jsonrpcserver.NewHandler(methods, jsonrpcserver.WithSignatureVerifier(RecoverSigner))
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}
