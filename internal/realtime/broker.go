package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

const defaultChannelPrefix = "preorder:realtime"

type redisPubSub interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
	PSubscribe(ctx context.Context, patterns ...string) (*goredis.PubSub, error)
}

// RedisBroker publishes through Redis so every API replica relays the event
// into its own Hub.
type RedisBroker struct {
	client redisPubSub
	hub    *Hub
	prefix string
	logg   *logger.Logger
}

// NewRedisBroker bridges hub across replicas using Redis pub/sub.
func NewRedisBroker(client redisPubSub, hub *Hub, prefix string, logg *logger.Logger) (*RedisBroker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub required")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisBroker{client: client, hub: hub, prefix: prefix, logg: logg}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, event Event) error {
	event.Topic = topic
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode realtime event: %w", err)
	}
	if _, err := b.client.Publish(ctx, b.channel(topic), payload); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	return b.hub.Subscribe(ctx, topic)
}

// Run relays Redis messages into the local hub until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	ps, err := b.client.PSubscribe(ctx, b.prefix+":*")
	if err != nil {
		return fmt.Errorf("subscribe realtime channels: %w", err)
	}
	defer ps.Close()

	if b.logg != nil {
		b.logg.Info(b.logg.WithField(ctx, "pattern", b.prefix+":*"), "realtime.relay.started")
	}

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("realtime relay channel closed")
			}
			b.relay(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (b *RedisBroker) relay(ctx context.Context, channel, payload string) int {
	topic := strings.TrimPrefix(channel, b.prefix+":")
	if topic == channel || topic == "" {
		return 0
	}
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		if b.logg != nil {
			b.logg.Error(b.logg.WithField(ctx, "channel", channel), "realtime.relay.decode_failed", err)
		}
		return 0
	}
	return b.hub.Deliver(ctx, topic, event)
}

func (b *RedisBroker) channel(topic string) string {
	return b.prefix + ":" + topic
}
