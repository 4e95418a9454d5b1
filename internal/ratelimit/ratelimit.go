package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Request categories counted by the limiter
const (
	KeyEmbeddings = "embeddings"
	KeyRetrieval  = "retrieval"
)

const defaultPrefix = "medchat:ratelimit:"

// Result describes the outcome of one limiter check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
}

// Limiter counts requests per category against a quota
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// slidingWindowScript trims entries older than the window, then records the
// request only if the quota still has room. Rejected requests are not stored.
var slidingWindowScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return {0, count}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, count + 1}
`)

// SlidingWindow is a durable sliding-log limiter backed by a Redis sorted set,
// shared by every instance that points at the same Redis.
type SlidingWindow struct {
	rdb    goredis.Scripter
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewSlidingWindow(rdb goredis.Scripter, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: defaultPrefix,
		now:    time.Now,
	}
}

func (s *SlidingWindow) Allow(ctx context.Context, key string) (Result, error) {
	now := s.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	vals, err := slidingWindowScript.Run(ctx, s.rdb,
		[]string{s.prefix + key},
		now, s.window.Milliseconds(), s.limit, member,
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit check: unexpected reply %v", vals)
	}

	count := int(vals[1])
	return Result{
		Allowed:   vals[0] == 1,
		Limit:     s.limit,
		Remaining: max(s.limit-count, 0),
	}, nil
}

// Unlimited allows every request
type Unlimited struct{}

func (Unlimited) Allow(ctx context.Context, key string) (Result, error) {
	return Result{Allowed: true, Limit: -1, Remaining: -1}, nil
}
