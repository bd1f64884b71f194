package mevshare

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
)

const (
	defaultBlockPollInterval = 2 * time.Second
	blockPollRetries         = 3
)

// ChainProvider is the read access to the chain needed to wait for and simulate backruns.
type ChainProvider interface {
	// TransactionByHash returns ethereum.NotFound for unknown transactions.
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	// TransactionReceipt returns ethereum.NotFound for transactions that are not mined.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	// SubscribeNewBlock sends the number of every new block to ch until the subscription is released.
	SubscribeNewBlock(ctx context.Context, ch chan<- uint64) (ethereum.Subscription, error)
}

// EthProvider is a ChainProvider backed by an execution client.
// Websocket connections use head subscriptions, other transports poll for the block number.
type EthProvider struct {
	log *zap.Logger

	client       *ethclient.Client
	useHeads     bool
	pollInterval time.Duration

	feed      event.Feed
	pollOnce  sync.Once
	stopPoll  context.CancelFunc
	pollCtx   context.Context
	lastBlock uint64
}

func NewEthProvider(log *zap.Logger, client *ethclient.Client, useHeads bool, pollInterval time.Duration) *EthProvider {
	if pollInterval <= 0 {
		pollInterval = defaultBlockPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EthProvider{
		log:          log.Named("eth"),
		client:       client,
		useHeads:     useHeads,
		pollInterval: pollInterval,
		pollCtx:      ctx,
		stopPoll:     cancel,
	}
}

func DialEthProvider(ctx context.Context, log *zap.Logger, url string, pollInterval time.Duration) (*EthProvider, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	useHeads := strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://")
	return NewEthProvider(log, client, useHeads, pollInterval), nil
}

func (p *EthProvider) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return p.client.TransactionByHash(ctx, hash)
}

func (p *EthProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return p.client.TransactionReceipt(ctx, hash)
}

func (p *EthProvider) BlockNumber(ctx context.Context) (uint64, error) {
	return p.client.BlockNumber(ctx)
}

func (p *EthProvider) SubscribeNewBlock(ctx context.Context, ch chan<- uint64) (ethereum.Subscription, error) {
	if p.useHeads {
		return p.subscribeHeads(ctx, ch)
	}
	p.pollOnce.Do(func() {
		go p.pollBlocks()
	})
	return p.feed.Subscribe(ch), nil
}

func (p *EthProvider) subscribeHeads(ctx context.Context, ch chan<- uint64) (ethereum.Subscription, error) {
	heads := make(chan *types.Header, 16)
	headSub, err := p.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return nil, err
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer headSub.Unsubscribe()
		for {
			select {
			case head := <-heads:
				select {
				case ch <- head.Number.Uint64():
				case <-quit:
					return nil
				}
			case err := <-headSub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (p *EthProvider) pollBlocks() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.pollCtx.Done():
			return
		case <-ticker.C:
		}

		var number uint64
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), blockPollRetries), p.pollCtx)
		err := backoff.Retry(func() error {
			var err error
			number, err = p.client.BlockNumber(p.pollCtx)
			return err
		}, b)
		if err != nil {
			p.log.Warn("Failed to poll block number", zap.Error(err))
			continue
		}

		if number <= p.lastBlock {
			continue
		}
		if p.lastBlock != 0 {
			p.feed.Send(number)
		}
		p.lastBlock = number
	}
}

// Close stops block polling and closes the underlying client.
func (p *EthProvider) Close() {
	p.stopPoll()
	p.client.Close()
}
