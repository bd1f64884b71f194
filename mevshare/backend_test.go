package mevshare

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flashbots/mev-share-client-go/jsonrpcserver"
	"github.com/stretchr/testify/require"
)

func TestNodeSimulationBackend(t *testing.T) {
	handler, err := jsonrpcserver.NewHandler(jsonrpcserver.Methods{
		SimBundleEndpointName: func(ctx context.Context, bundle SendMevBundleArgs, aux SimMevBundleAuxArgs) (SimMevBundleResponse, error) {
			if bundle.Inclusion.BlockNumber == 0 {
				return SimMevBundleResponse{}, &jsonrpcserver.Error{Code: -32602, Message: "missing block"}
			}
			return SimMevBundleResponse{Success: true, StateBlock: *aux.ParentBlock, GasUsed: 21000}, nil
		},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	backend := NewNodeSimulationBackend(srv.URL)
	parent := hexutil.Uint64(99)

	res, err := backend.SimulateBundle(context.Background(), &SendMevBundleArgs{
		Version:   DefaultBundleVersion,
		Inclusion: MevBundleInclusion{BlockNumber: 100},
	}, &SimMevBundleAuxArgs{ParentBlock: &parent})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, parent, res.StateBlock)
	require.Equal(t, hexutil.Uint64(21000), res.GasUsed)

	_, err = backend.SimulateBundle(context.Background(), &SendMevBundleArgs{Version: DefaultBundleVersion}, &SimMevBundleAuxArgs{})
	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))
	require.Equal(t, -32602, relayErr.Code)
	require.Equal(t, "missing block", relayErr.Message)

	unreachable := NewNodeSimulationBackend("http://127.0.0.1:0")
	_, err = unreachable.SimulateBundle(context.Background(), &SendMevBundleArgs{}, &SimMevBundleAuxArgs{})
	require.ErrorIs(t, err, ErrTransportFailure)
}
