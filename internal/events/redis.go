package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tracklab/relay/internal/logger"
)

// DefaultChannel is the redis pub/sub channel job updates are mirrored on
const DefaultChannel = "relay:job-updates"

// Bridge mirrors the local bus over a redis pub/sub channel so that a job
// mutated in another process still reaches this process's observers. Locally
// produced events (empty Origin) are forwarded outward; inbound events are
// republished on the local bus unless this process produced them.
type Bridge struct {
	bus     *Bus
	client  *redis.Client
	channel string
	origin  string
}

// NewBridge creates a bridge from a redis URL
func NewBridge(bus *Bus, redisURL, channel string) (*Bridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bridge{
		bus:     bus,
		client:  redis.NewClient(opts),
		channel: channel,
		origin:  uuid.NewString(),
	}, nil
}

// Start launches the outbound and inbound relay loops. They stop when ctx is
// cancelled.
func (b *Bridge) Start(ctx context.Context) {
	go b.forward(ctx)
	go b.receive(ctx)
	logger.Infof("Redis bridge started on channel %s", b.channel)
}

// Ping verifies the redis connection
func (b *Bridge) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the redis client
func (b *Bridge) Close() error {
	return b.client.Close()
}

func (b *Bridge) forward(ctx context.Context) {
	ch, cancel := b.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			if update.Origin != "" {
				// Came in from another process; never re-forward
				continue
			}
			update.Origin = b.origin
			payload, err := json.Marshal(update)
			if err != nil {
				logger.Errorf("Failed to marshal update for redis: %v", err)
				continue
			}
			if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
				logger.Warnf("Failed to publish update to redis: %v", err)
			}
		}
	}
}

func (b *Bridge) receive(ctx context.Context) {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var update JobUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				logger.Warnf("Dropping malformed update from redis: %v", err)
				continue
			}
			if update.Origin == b.origin {
				continue
			}
			b.bus.Publish(update)
		}
	}
}
