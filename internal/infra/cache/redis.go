package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"guest-messaging/internal/infra/metrics"
)

// Guard — отметки «уже обработано» в Redis.
type Guard struct {
	client *redis.Client
	prefix string
}

// NewGuard создаёт отметки с префиксом ключей.
func NewGuard(client *redis.Client, prefix string) *Guard {
	return &Guard{client: client, prefix: prefix}
}

// Once выполняет fn, если ключ ещё не отмечен. При ошибке fn отметка снимается,
// чтобы повтор мог выполнить работу заново. Возвращает false, если работа уже была.
func (g *Guard) Once(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	full := g.prefix + key
	start := time.Now()
	ok, err := g.client.SetNX(ctx, full, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", g.prefix, start, err)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		_ = g.client.Del(context.WithoutCancel(ctx), full).Err()
		return true, err
	}
	return true, nil
}
