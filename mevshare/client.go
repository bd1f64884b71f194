package mevshare

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Client is the entry point to a mev-share relay: it sends private transactions and bundles,
// simulates bundles and reads the event stream and its history.
type Client struct {
	log *zap.Logger

	network   Network
	signer    *RequestSigner
	api       *ApiClient
	stream    *EventStream
	history   *HistoryClient
	simulator *BundleSimulator
}

type clientConfig struct {
	apiOptions    []ApiClientOption
	streamOptions []EventStreamOption
	httpClient    *http.Client
	simBackend    SimulationBackend
	inclusionWait time.Duration
}

type ClientOption func(*clientConfig)

func WithApiOptions(opts ...ApiClientOption) ClientOption {
	return func(c *clientConfig) {
		c.apiOptions = append(c.apiOptions, opts...)
	}
}

func WithStreamOptions(opts ...EventStreamOption) ClientOption {
	return func(c *clientConfig) {
		c.streamOptions = append(c.streamOptions, opts...)
	}
}

// WithHistoryHTTPClient sets the client used for history requests.
func WithHistoryHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithSimulationBackend replaces the relay as simulation backend, e.g. with a NodeSimulationBackend.
func WithSimulationBackend(backend SimulationBackend) ClientOption {
	return func(c *clientConfig) {
		c.simBackend = backend
	}
}

func WithInclusionTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.inclusionWait = timeout
	}
}

func NewClient(log *zap.Logger, signer Signer, network Network, provider ChainProvider, opts ...ClientOption) (*Client, error) {
	if err := network.Validate(); err != nil {
		return nil, err
	}
	cfg := clientConfig{inclusionWait: DefaultInclusionTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	log = log.With(zap.String("network", network.Name))
	requestSigner := NewRequestSigner(signer)
	api := NewApiClient(log, network.APIURL, cfg.apiOptions...)
	backend := cfg.simBackend
	if backend == nil {
		backend = NewRelaySimulationBackend(api, requestSigner)
	}
	simulator := NewBundleSimulator(log, provider, backend)
	simulator.InclusionTimeout = cfg.inclusionWait

	return &Client{
		log:       log,
		network:   network,
		signer:    requestSigner,
		api:       api,
		stream:    NewEventStream(log, network.StreamURL, cfg.streamOptions...),
		history:   NewHistoryClient(log, network.StreamURL, cfg.httpClient),
		simulator: simulator,
	}, nil
}

// FromChainID creates a client for one of the preset networks.
func FromChainID(log *zap.Logger, signer Signer, chainID uint64, provider ChainProvider, opts ...ClientOption) (*Client, error) {
	network, err := DefaultNetworks().ByChainID(chainID)
	if err != nil {
		return nil, err
	}
	return NewClient(log, signer, network, provider, opts...)
}

// Close releases the background resources of the client. Running subscriptions are not cancelled.
func (c *Client) Close() {
	c.simulator.Close()
}

func (c *Client) Network() Network {
	return c.network
}

// SendTransaction sends a signed transaction to the relay and returns its hash. opts may be nil.
func (c *Client) SendTransaction(ctx context.Context, signedTx hexutil.Bytes, opts *TransactionOptions) (common.Hash, error) {
	args := SendPrivateTxArgs{
		Tx:          signedTx,
		Preferences: &PrivateTxPreferences{Fast: true},
	}
	if opts != nil {
		if opts.MaxBlockNumber != 0 {
			maxBlock := hexutil.Uint64(opts.MaxBlockNumber)
			args.MaxBlockNumber = &maxBlock
		}
		hints := opts.Hints.Intent()
		builders := normalizeBuilders(opts.Builders)
		if hints != HintNone || len(builders) > 0 {
			args.Preferences.Privacy = &PrivateTxPrivacy{Hints: hints, Builders: builders}
		}
	}

	var hash common.Hash
	if err := c.api.Call(ctx, c.signer, &hash, SendPrivateTransactionEndpointName, args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// SendBundle checks the structure of params and sends them to the relay.
// An empty version defaults to DefaultBundleVersion.
func (c *Client) SendBundle(ctx context.Context, params BundleParams) (*SendBundleResult, error) {
	if params.Version == "" {
		params.Version = DefaultBundleVersion
	}
	localHash, _, err := ValidateBundleParams(&params)
	if err != nil {
		return nil, err
	}

	var result SendBundleResult
	if err := c.api.Call(ctx, c.signer, &result, SendBundleEndpointName, &params); err != nil {
		return nil, err
	}
	c.log.Debug("Bundle sent", zap.String("bundleHash", result.BundleHash.Hex()), zap.String("localHash", localHash.Hex()))
	return &result, nil
}

// SimulateBundle simulates params, waiting for the referenced transaction first if the bundle is a backrun.
// opts may be nil.
func (c *Client) SimulateBundle(ctx context.Context, params BundleParams, opts *SimBundleOptions) (*SimBundleResult, error) {
	if params.Version == "" {
		params.Version = DefaultBundleVersion
	}
	return c.simulator.Simulate(ctx, &params, opts)
}

// On registers handler for events of kind, see EventStream.On.
func (c *Client) On(kind string, handler EventHandler) error {
	return c.stream.On(kind, handler)
}

func (c *Client) OnTransaction(handler func(ctx context.Context, tx *PendingTransaction)) {
	c.stream.OnTransaction(handler)
}

func (c *Client) OnBundle(handler func(ctx context.Context, bundle *PendingBundle)) {
	c.stream.OnBundle(handler)
}

func (c *Client) Subscribe(ctx context.Context) *Subscription {
	return c.stream.Subscribe(ctx)
}

func (c *Client) GetEventHistoryInfo(ctx context.Context) (*EventHistoryInfo, error) {
	return c.history.GetEventHistoryInfo(ctx)
}

func (c *Client) GetEventHistory(ctx context.Context, params *EventHistoryParams) ([]EventHistoryEntry, error) {
	return c.history.GetEventHistory(ctx, params)
}
