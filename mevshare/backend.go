package mevshare

import (
	"context"
	"errors"

	"github.com/ybbus/jsonrpc/v3"
)

// SimulationBackend is an interface for simulating bundles
type SimulationBackend interface {
	SimulateBundle(ctx context.Context, bundle *SendMevBundleArgs, aux *SimMevBundleAuxArgs) (*SimMevBundleResponse, error)
}

// RelaySimulationBackend simulates through the relay with signed mev_simBundle calls.
type RelaySimulationBackend struct {
	api    *ApiClient
	signer *RequestSigner
}

func NewRelaySimulationBackend(api *ApiClient, signer *RequestSigner) *RelaySimulationBackend {
	return &RelaySimulationBackend{
		api:    api,
		signer: signer,
	}
}

func (b *RelaySimulationBackend) SimulateBundle(ctx context.Context, bundle *SendMevBundleArgs, aux *SimMevBundleAuxArgs) (*SimMevBundleResponse, error) {
	var result SimMevBundleResponse
	if err := b.api.Call(ctx, b.signer, &result, SimBundleEndpointName, bundle, aux); err != nil {
		return nil, err
	}
	return &result, nil
}

// NodeSimulationBackend simulates on a self-hosted node that serves mev_simBundle without authentication.
type NodeSimulationBackend struct {
	client jsonrpc.RPCClient
}

func NewNodeSimulationBackend(url string) *NodeSimulationBackend {
	return &NodeSimulationBackend{
		client: jsonrpc.NewClient(url),
	}
}

func (b *NodeSimulationBackend) SimulateBundle(ctx context.Context, bundle *SendMevBundleArgs, aux *SimMevBundleAuxArgs) (*SimMevBundleResponse, error) {
	var result SimMevBundleResponse
	err := b.client.CallFor(ctx, &result, SimBundleEndpointName, bundle, aux)
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return nil, &RelayError{Code: rpcErr.Code, Message: rpcErr.Message}
		}
		return nil, newTransportError(err)
	}
	return &result, nil
}
