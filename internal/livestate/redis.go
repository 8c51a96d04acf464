package livestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned when a session has no stored snapshot.
var ErrNoSnapshot = errors.New("no live snapshot")

// RedisSink keeps the latest snapshot under session:<id> and publishes each
// one on session-events:<id>.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, ttl: ttl}
}

func snapshotKey(callID string) string {
	return fmt.Sprintf("session:%s", callID)
}

func channelName(callID string) string {
	return fmt.Sprintf("session-events:%s", callID)
}

func (r *RedisSink) Write(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(s.CallID), data, r.ttl)
	pipe.Publish(ctx, channelName(s.CallID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot written for callID.
func (r *RedisSink) Latest(ctx context.Context, callID string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(callID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}
