package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
)

const defaultKeyPrefix = "sms:ratelimit:"

// slidingWindowScript атомарно чистит окно, проверяет лимит и добавляет событие.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Redis — скользящее окно на sorted set, общее для всех процессов.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

var _ domain.RateLimiter = (*Redis)(nil)

// NewRedis создаёт лимитер поверх Redis.
func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: limit, window: window, prefix: defaultKeyPrefix, now: time.Now}
}

// Allow регистрирует событие, если окно ключа ещё не заполнено.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.key(key)},
		r.now().UnixMilli(),
		r.window.Milliseconds(),
		r.limit,
		uuid.NewString(),
	).Int()
	metrics.ObserveNetworkRequest("redis", "ratelimit_allow", r.prefix, start, err)
	if err != nil {
		return false, fmt.Errorf("ratelimit: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}
