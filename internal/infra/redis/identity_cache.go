package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/eventsync/internal/core/domain"
)

// IdentityCache stores resolved identity records as JSON with a TTL.
type IdentityCache struct {
	client *Client
}

// NewIdentityCache creates a Redis-backed identity cache.
func NewIdentityCache(client *Client) *IdentityCache {
	return &IdentityCache{client: client}
}

// Get returns the cached record, or nil on a miss.
func (c *IdentityCache) Get(ctx context.Context, key string) (*domain.IdentityRecord, error) {
	data, err := c.client.rdb.Get(ctx, c.client.identityKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity failed: %w", err)
	}

	var rec domain.IdentityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity record: %w", err)
	}
	return &rec, nil
}

// Put stores rec unless a live entry already exists, so a late write from
// an abandoned attempt never replaces an earlier result.
func (c *IdentityCache) Put(ctx context.Context, key string, rec domain.IdentityRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal identity record: %w", err)
	}
	if err := c.client.rdb.SetNX(ctx, c.client.identityKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("setnx identity failed: %w", err)
	}
	return nil
}
