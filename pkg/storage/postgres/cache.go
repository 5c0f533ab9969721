package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
)

const defaultSnapshotTTL = time.Minute

func snapshotKey(kind analytics.SnapshotKind) string {
	return "snapflow:snapshot:latest:" + string(kind)
}

// GetSnapshot returns the cached latest snapshot of kind, or nil on a miss
func (c *RedisClient) GetSnapshot(ctx context.Context, kind analytics.SnapshotKind) (*analytics.Snapshot, error) {
	key := snapshotKey(kind)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap analytics.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Drop corrupt data so the next read repopulates it
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func snapshotWatermarkKey(kind analytics.SnapshotKind) string {
	return "snapflow:snapshot:written:" + string(kind)
}

// setIfCurrent stores ARGV[1] under KEYS[1] unless the watermark in KEYS[2]
// is newer than ARGV[2] (created_at in unix millis)
var setIfCurrent = redis.NewScript(`
local mark = redis.call("GET", KEYS[2])
if mark and tonumber(mark) > tonumber(ARGV[2]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

func (c *RedisClient) snapshotTTL() time.Duration {
	if ttl := c.ttl["snapshot"]; ttl > 0 {
		return ttl
	}
	return defaultSnapshotTTL
}

// SetSnapshot caches snap as the latest of its kind. A snapshot older than
// the last one written for the kind is dropped.
func (c *RedisClient) SetSnapshot(ctx context.Context, snap *analytics.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	keys := []string{snapshotKey(snap.Kind), snapshotWatermarkKey(snap.Kind)}
	err = setIfCurrent.Run(ctx, c.client, keys,
		data, snap.CreatedAt.UnixMilli(), c.snapshotTTL().Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateSnapshots drops the cached latest snapshot of every written kind
// and records the newest created_at per kind as its watermark
func (c *RedisClient) InvalidateSnapshots(ctx context.Context, written ...*analytics.Snapshot) error {
	if len(written) == 0 {
		return nil
	}
	marks := make(map[analytics.SnapshotKind]int64, len(written))
	for _, snap := range written {
		ms := snap.CreatedAt.UnixMilli()
		if cur, ok := marks[snap.Kind]; !ok || ms > cur {
			marks[snap.Kind] = ms
		}
	}

	// Outlives any cached entry a racing reader could still write
	markTTL := 2 * c.snapshotTTL()
	pipe := c.client.TxPipeline()
	for kind, ms := range marks {
		pipe.Set(ctx, snapshotWatermarkKey(kind), ms, markTTL)
		pipe.Del(ctx, snapshotKey(kind))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

var (
	_ analytics.SnapshotCache  = (*RedisClient)(nil)
	_ analytics.EventPublisher = (*RedisClient)(nil)
	_ SnapshotInvalidator      = (*RedisClient)(nil)
)
