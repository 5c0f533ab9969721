package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/storage"
)

// RedisClient carries ranked entry events and caches latest snapshots
type RedisClient struct {
	client  *redis.Client
	channel string
	ttl     map[string]time.Duration
}

// NewRedisClient creates a new Redis client and verifies connectivity
func NewRedisClient(ctx context.Context, cfg storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisClientFrom(client, cfg), nil
}

// NewRedisClientFrom wraps an existing client
func NewRedisClientFrom(client *redis.Client, cfg storage.Config) *RedisClient {
	channel := cfg.RedisChannel
	if channel == "" {
		channel = storage.DefaultConfig().RedisChannel
	}
	return &RedisClient{
		client:  client,
		channel: channel,
		ttl:     cfg.CacheTTL,
	}
}

// PublishRankedEntries publishes one message per event in a single pipeline.
// Pub/sub has no persistence; events published while no warmer is
// subscribed are lost, and the warmer's backfill mode picks those entries up.
func (c *RedisClient) PublishRankedEntries(ctx context.Context, events []analytics.RankedEntryCreated) error {
	if len(events) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event for entry %s: %w", ev.EntryID, err)
		}
		pipe.Publish(ctx, c.channel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish %d ranked entry events: %w", len(events), err)
	}
	return nil
}

// ConsumeRankedEntries subscribes to the event channel and calls handle for
// every decoded event until ctx is done. Undecodable payloads are reported to
// onBadMessage (if non-nil) and skipped. handle runs on the receive loop, so
// it should hand work off rather than block.
func (c *RedisClient) ConsumeRankedEntries(
	ctx context.Context,
	handle func(context.Context, analytics.RankedEntryCreated),
	onBadMessage func(payload string, err error),
) error {
	pubsub := c.client.Subscribe(ctx, c.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before draining
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var ev analytics.RankedEntryCreated
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.EntryID == "" {
				if err == nil {
					err = errors.New("missing entryId")
				}
				if onBadMessage != nil {
					onBadMessage(msg.Payload, err)
				}
				continue
			}
			handle(ctx, ev)
		}
	}
}

// Client returns the underlying Redis client for health checks
func (c *RedisClient) Client() *redis.Client {
	return c.client
}

// Ping checks Redis connectivity
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}
