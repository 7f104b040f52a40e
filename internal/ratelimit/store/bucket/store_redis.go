package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vouch/internal/ratelimit/models"
	"vouch/pkg/requestcontext"
)

// slidingWindowScript trims, counts and conditionally appends in one step so
// concurrent callers on different instances can never both take the last slot.
//
// KEYS[1] bucket key
// ARGV: now_ms, window_ms, limit, cost, member
// Returns {allowed, remaining, reset_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count + cost <= limit then
  for i = 1, cost do
    redis.call('ZADD', key, now, member .. ':' .. i)
  end
  redis.call('PEXPIRE', key, window)
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {1, limit - count - cost, tonumber(oldest[2]) + window}
end

local idx = count + cost - limit - 1
local entry = redis.call('ZRANGE', key, idx, idx, 'WITHSCORES')
return {0, 0, tonumber(entry[2]) + window}
`)

// RedisStore implements BucketStore with a sorted set per key, scored by
// request time in milliseconds.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

func (s *RedisStore) AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := requestcontext.Now(ctx)
	if cost > limit {
		resetAt := now.Add(window)
		return &models.RateLimitResult{
			Limit:      limit,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(window),
		}, nil
	}

	res, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		cost,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run sliding window script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("sliding window script returned %d values", len(res))
	}

	resetAt := time.UnixMilli(res[2])
	result := &models.RateLimitResult{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: int(res[1]),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = retryAfterSeconds(resetAt.Sub(now))
	}
	return result, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) GetCurrentCount(ctx context.Context, key string, window time.Duration) (int, error) {
	cutoff := requestcontext.Now(ctx).Add(-window).UnixMilli()
	n, err := s.client.ZCount(ctx, key, "("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count bucket entries: %w", err)
	}
	return int(n), nil
}
