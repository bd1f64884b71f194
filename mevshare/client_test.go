package mevshare

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flashbots/mev-share-client-go/jsonrpcserver"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, relayURL string, chain ChainProvider, opts ...ClientOption) (*Client, *PrivateKeySigner) {
	t.Helper()
	signer, err := NewRandomSigner()
	require.NoError(t, err)
	network, err := CustomNetwork(1, "test", relayURL, relayURL)
	require.NoError(t, err)
	client, err := NewClient(zap.NewNop(), signer, network, chain, opts...)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, signer
}

func TestClientSendTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signedTestTx(t, key, 0)
	raw := hexutil.Bytes(mustMarshalTx(t, tx))

	var (
		received []json.RawMessage
		signers  []common.Address
	)
	relay := newFakeRelay(t, jsonrpcserver.Methods{
		SendPrivateTransactionEndpointName: func(ctx context.Context, args json.RawMessage) (common.Hash, error) {
			received = append(received, args)
			signers = append(signers, jsonrpcserver.GetSigner(ctx))
			return tx.Hash(), nil
		},
	})
	client, signer := newTestClient(t, relay.URL, newFakeChain())

	hash, err := client.SendTransaction(context.Background(), raw, &TransactionOptions{
		Hints:          &HintPreferences{CallData: true, Logs: true},
		MaxBlockNumber: 17000010,
		Builders:       []string{"Flashbots", "flashbots"},
	})
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), hash)

	_, err = client.SendTransaction(context.Background(), raw, nil)
	require.NoError(t, err)

	require.Len(t, received, 2)
	require.Equal(t, []common.Address{signer.Address(), signer.Address()}, signers)
	require.JSONEq(t, `{"tx":"`+raw.String()+`","maxBlockNumber":"0x103664a",`+
		`"preferences":{"fast":true,"privacy":{"hints":["logs","calldata","hash"],"builders":["flashbots"]}}}`, string(received[0]))
	require.JSONEq(t, `{"tx":"`+raw.String()+`","preferences":{"fast":true}}`, string(received[1]))
}

func TestClientSendBundle(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw1 := hexutil.Bytes(mustMarshalTx(t, signedTestTx(t, key, 0)))
	raw2 := hexutil.Bytes(mustMarshalTx(t, signedTestTx(t, key, 1)))
	bundleHash := common.HexToHash("0xb0b")

	var received SendMevBundleArgs
	relay := newFakeRelay(t, jsonrpcserver.Methods{
		SendBundleEndpointName: func(ctx context.Context, args SendMevBundleArgs) (SendMevBundleResponse, error) {
			received = args
			return SendMevBundleResponse{BundleHash: bundleHash}, nil
		},
	})
	client, _ := newTestClient(t, relay.URL, newFakeChain())

	params := BundleParams{
		Inclusion:       MevBundleInclusion{BlockNumber: 17000000, MaxBlock: 17000005},
		Body:            []MevBundleBody{{Tx: &raw1}, {Tx: &raw2, CanRevert: true}},
		ReplacementUUID: "b8a2b8c9-5e5b-4a4b-9b5d-6a5b5c5d5e5f",
	}
	res, err := client.SendBundle(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, bundleHash, res.BundleHash)
	require.Equal(t, DefaultBundleVersion, received.Version)
	require.Equal(t, params.ReplacementUUID, received.ReplacementUUID)
	require.Len(t, received.Body, 2)
	require.True(t, received.Body[1].CanRevert)

	// invalid bundles never reach the relay
	received = SendMevBundleArgs{}
	_, err = client.SendBundle(context.Background(), BundleParams{Inclusion: MevBundleInclusion{BlockNumber: 1}})
	require.ErrorIs(t, err, ErrInvalidBundleBodySize)
	require.Empty(t, received.Version)
}

func TestClientRelayRejection(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := hexutil.Bytes(mustMarshalTx(t, signedTestTx(t, key, 0)))

	relay := newFakeRelay(t, jsonrpcserver.Methods{
		SendPrivateTransactionEndpointName: func(ctx context.Context, args SendPrivateTxArgs) (common.Hash, error) {
			return common.Hash{}, &jsonrpcserver.Error{Code: -32000, Message: "insufficient funds"}
		},
	})
	client, _ := newTestClient(t, relay.URL, newFakeChain())

	_, err = client.SendTransaction(context.Background(), raw, nil)
	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))
	require.Equal(t, -32000, relayErr.Code)
	require.Equal(t, "insufficient funds", relayErr.Message)
}

func TestClientSimulateBackrun(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	target := signedTestTx(t, key, 0)
	targetHash := target.Hash()
	backrun := hexutil.Bytes(mustMarshalTx(t, signedTestTx(t, key, 1)))

	chain := newFakeChain()
	chain.mine(target, 99)

	var params []json.RawMessage
	relay := newFakeRelay(t, jsonrpcserver.Methods{
		SimBundleEndpointName: func(ctx context.Context, bundle, aux json.RawMessage) (SimMevBundleResponse, error) {
			params = []json.RawMessage{bundle, aux}
			return SimMevBundleResponse{Success: true, StateBlock: 98, GasUsed: 42000}, nil
		},
	})
	client, _ := newTestClient(t, relay.URL, chain, WithInclusionTimeout(time.Second))

	res, err := client.SimulateBundle(context.Background(), BundleParams{
		Inclusion: MevBundleInclusion{BlockNumber: 100},
		Body:      []MevBundleBody{{Hash: &targetHash}, {Tx: &backrun}},
	}, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, hexutil.Uint64(42000), res.GasUsed)

	require.Len(t, params, 2)
	require.JSONEq(t, `{"version":"v0.1","inclusion":{"block":"0x64"},"body":[`+
		`{"tx":"`+hexutil.Encode(mustMarshalTx(t, target))+`","canRevert":false},`+
		`{"tx":"`+backrun.String()+`","canRevert":false}]}`, string(params[0]))
	require.JSONEq(t, `{"parentBlock":"0x62"}`, string(params[1]))
}

func TestFromChainID(t *testing.T) {
	signer, err := NewRandomSigner()
	require.NoError(t, err)

	client, err := FromChainID(zap.NewNop(), signer, 17000, newFakeChain())
	require.NoError(t, err)
	defer client.Close()
	require.Equal(t, Holesky, client.Network())

	_, err = FromChainID(zap.NewNop(), signer, 10, newFakeChain())
	require.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestClientOnUnsupportedKind(t *testing.T) {
	client, _ := newTestClient(t, "http://127.0.0.1:0", newFakeChain())
	require.ErrorIs(t, client.On("blocks", func(ctx context.Context, ev Event) {}), ErrUnsupportedEventKind)
	require.NoError(t, client.On("transaction", func(ctx context.Context, ev Event) {}))
}

func TestClientCloseReleasesGoroutines(t *testing.T) {
	signer, err := NewRandomSigner()
	require.NoError(t, err)
	baseline := runtime.NumGoroutine()

	clients := make([]*Client, 0, 50)
	for i := 0; i < 50; i++ {
		client, err := NewClient(zap.NewNop(), signer, Holesky, newFakeChain())
		require.NoError(t, err)
		clients = append(clients, client)
	}
	require.Greater(t, runtime.NumGoroutine(), baseline+25)

	for _, client := range clients {
		client.Close()
	}
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond)
}
