// Package redis provides an adapter to redis client
package redis

import (
	"context"
	"encoding/json"

	"github.com/flashbots/mev-share-client-go/metrics"
	"github.com/flashbots/mev-share-client-go/mevshare"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PublishedEvent is the payload written to the pub/sub channel.
type PublishedEvent struct {
	Kind  mevshare.EventKind `json:"kind"`
	Event json.RawMessage    `json:"event"`
}

// EventPublisher re-publishes classified stream events to a redis pub/sub channel.
type EventPublisher struct {
	log     *zap.Logger
	client  *redis.Client
	channel string
}

func NewEventPublisher(log *zap.Logger, client *redis.Client, channel string) *EventPublisher {
	return &EventPublisher{
		log:     log.Named("publisher"),
		client:  client,
		channel: channel,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event mevshare.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(PublishedEvent{Kind: event.Kind(), Event: data})
	if err != nil {
		return err
	}
	err = p.client.Publish(ctx, p.channel, payload).Err()
	if err != nil {
		metrics.IncPublishFailures()
		return err
	}
	metrics.IncPublishedEvents()
	return nil
}

// Handler adapts the publisher to a stream handler. Publish errors are logged and the event is dropped.
func (p *EventPublisher) Handler() mevshare.EventHandler {
	return func(ctx context.Context, event mevshare.Event) {
		if err := p.Publish(ctx, event); err != nil {
			p.log.Warn("Failed to publish event", zap.Error(err), zap.String("hash", event.EventHash().Hex()))
		}
	}
}
