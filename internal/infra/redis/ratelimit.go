package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/eventsync/internal/core/domain"
)

// rollingWindow trims hits older than the window, then records a new hit
// if the caller is under quota. Returns {allowed, oldest hit in ms}.
var rollingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local quota = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local allowed = 0
if redis.call('ZCARD', key) < quota then
	redis.call('ZADD', key, now, ARGV[4])
	allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then
	first = tonumber(oldest[2])
end
return {allowed, first}
`)

// RateLimitStore is an atomic rolling-window counter backed by a sorted set
// per caller.
type RateLimitStore struct {
	client *Client
	now    func() time.Time
}

// NewRateLimitStore creates a Redis-backed rate limit store.
func NewRateLimitStore(client *Client) *RateLimitStore {
	return &RateLimitStore{client: client, now: time.Now}
}

// CheckAndIncrement counts a call in callerID's rolling window if quota allows.
func (s *RateLimitStore) CheckAndIncrement(
	ctx context.Context,
	callerID string,
	quota int,
	window time.Duration,
) (domain.RateLimitDecision, error) {
	now := s.now()
	if quota <= 0 {
		return domain.RateLimitDecision{Allowed: true, ResetAt: now.Add(window)}, nil
	}

	res, err := rollingWindow.Run(ctx, s.client.rdb,
		[]string{s.client.rateKey(callerID)},
		now.UnixMilli(),
		window.Milliseconds(),
		quota,
		fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 2 {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	return domain.RateLimitDecision{
		Allowed: res[0] == 1,
		ResetAt: time.UnixMilli(res[1]).Add(window),
	}, nil
}
