package mevshare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flashbots/mev-share-client-go/metrics"
	"github.com/flashbots/mev-share-client-go/spike"
	"go.uber.org/zap"
)

const (
	// DefaultInclusionTimeout is how long a simulation waits for its target transaction to be mined.
	DefaultInclusionTimeout = 5 * time.Minute

	resolvedTxCacheTime = 12 * time.Second
	newBlockChanSize    = 16
)

var (
	errTxNotResolved         = errors.New("transaction not resolved")
	errBlockSubscriptionDone = errors.New("block subscription closed")
)

type resolvedTx struct {
	raw   hexutil.Bytes
	block uint64
}

// BundleSimulator simulates bundles, waiting for the referenced transaction
// to be mined when a bundle starts with a hash.
type BundleSimulator struct {
	log *zap.Logger

	provider ChainProvider
	backend  SimulationBackend
	lookups  *spike.Manager[common.Hash, *resolvedTx]

	// InclusionTimeout bounds the wait for a referenced transaction.
	InclusionTimeout time.Duration
}

func NewBundleSimulator(log *zap.Logger, provider ChainProvider, backend SimulationBackend) *BundleSimulator {
	s := &BundleSimulator{
		log:              log.Named("simulator"),
		provider:         provider,
		backend:          backend,
		InclusionTimeout: DefaultInclusionTimeout,
	}
	s.lookups = spike.NewManager(s.fetchTx, resolvedTxCacheTime, 0)
	return s
}

// Close releases the shared lookup loop. Simulations still waiting fail.
func (s *BundleSimulator) Close() {
	s.lookups.Close()
}

// Simulate runs one simulation attempt of params. opts may be nil.
func (s *BundleSimulator) Simulate(ctx context.Context, params *BundleParams, opts *SimBundleOptions) (*SimBundleResult, error) {
	if len(params.Body) == 0 {
		return nil, ErrInvalidBundleBodySize
	}

	first := params.Body[0]
	if first.Hash == nil {
		return s.backend.SimulateBundle(ctx, params, opts.auxArgs())
	}

	hash := *first.Hash
	s.log.Info("Transaction must appear onchain before simulation, waiting", zap.String("hash", hash.Hex()))
	resolved, err := s.waitForOnchain(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.log.Info("Found transaction onchain", zap.String("hash", hash.Hex()), zap.Uint64("block", resolved.block))

	aux := opts.auxArgs()
	if aux.ParentBlock == nil {
		parent := hexutil.Uint64(resolved.block - 1)
		aux.ParentBlock = &parent
	}
	return s.backend.SimulateBundle(ctx, substituteFirst(params, resolved.raw), aux)
}

// waitForOnchain settles exactly once: resolved, lookup failure, timeout or ctx done.
// The block subscription and the timer are released on every path.
// The subscription is armed before the first lookup so a block mined in between is not missed.
func (s *BundleSimulator) waitForOnchain(ctx context.Context, hash common.Hash) (*resolvedTx, error) {
	blocks := make(chan uint64, newBlockChanSize)
	sub, err := s.provider.SubscribeNewBlock(ctx, blocks)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer sub.Unsubscribe()

	resolved, err := s.lookup(ctx, hash)
	if err != nil || resolved != nil {
		return resolved, err
	}

	timer := time.NewTimer(s.InclusionTimeout)
	defer timer.Stop()

	for {
		select {
		case block := <-blocks:
			metrics.IncSimBlocksWaited()
			resolved, err := s.lookup(ctx, hash)
			if err != nil || resolved != nil {
				return resolved, err
			}
			s.log.Debug("Transaction not onchain yet", zap.String("hash", hash.Hex()), zap.Uint64("block", block))
		case err := <-sub.Err():
			if err == nil {
				err = errBlockSubscriptionDone
			}
			return nil, newTransportError(err)
		case <-timer.C:
			metrics.IncSimInclusionTimeouts()
			s.log.Error("Gave up waiting for transaction", zap.String("hash", hash.Hex()))
			return nil, fmt.Errorf("%w: %s", ErrInclusionTimeout, hash.Hex())
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// lookup returns nil, nil while the transaction is not mined.
func (s *BundleSimulator) lookup(ctx context.Context, hash common.Hash) (*resolvedTx, error) {
	res, err := s.lookups.GetResult(ctx, hash)
	if errors.Is(err, errTxNotResolved) {
		return nil, nil
	}
	return res, err
}

func (s *BundleSimulator) fetchTx(ctx context.Context, hash common.Hash) (*resolvedTx, error) {
	metrics.IncSimTxLookups()
	tx, _, err := s.provider.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, errTxNotResolved
	}
	if err != nil {
		return nil, newTransportError(err)
	}

	receipt, err := s.provider.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, errTxNotResolved
	}
	if err != nil {
		return nil, newTransportError(err)
	}
	if receipt.BlockNumber == nil || receipt.BlockNumber.Sign() == 0 {
		return nil, errTxNotResolved
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &resolvedTx{raw: raw, block: receipt.BlockNumber.Uint64()}, nil
}

// substituteFirst returns a copy of params with the first body entry replaced by the signed transaction.
func substituteFirst(params *BundleParams, raw hexutil.Bytes) *BundleParams {
	substituted := *params
	substituted.Body = make([]MevBundleBody, len(params.Body))
	copy(substituted.Body, params.Body)
	substituted.Body[0] = MevBundleBody{Tx: &raw, CanRevert: false}
	return &substituted
}

func (o *SimBundleOptions) auxArgs() *SimMevBundleAuxArgs {
	aux := &SimMevBundleAuxArgs{}
	if o == nil {
		return aux
	}
	aux.ParentBlock = hexUint64Ptr(o.ParentBlock)
	aux.BlockNumber = hexUint64Ptr(o.BlockNumber)
	aux.Coinbase = o.Coinbase
	aux.Timestamp = hexUint64Ptr(o.Timestamp)
	aux.GasLimit = hexUint64Ptr(o.GasLimit)
	aux.BaseFee = hexUint64Ptr(o.BaseFee)
	aux.Timeout = hexUint64Ptr(o.Timeout)
	return aux
}

func hexUint64Ptr(v *uint64) *hexutil.Uint64 {
	if v == nil {
		return nil
	}
	h := hexutil.Uint64(*v)
	return &h
}
