package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
)

// RedisBulkQueue хранит задачи массовой рассылки в Redis list.
type RedisBulkQueue struct {
	client *redis.Client
	key    string
}

var _ domain.BulkQueue = (*RedisBulkQueue)(nil)

// NewRedisBulkQueue создаёт очередь по указанному ключу.
func NewRedisBulkQueue(client *redis.Client, key string) *RedisBulkQueue {
	return &RedisBulkQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisBulkQueue) Enqueue(ctx context.Context, job domain.BulkJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisBulkQueue) Pop(ctx context.Context) (domain.BulkJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.BulkJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.BulkJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.BulkJob{}, err
		}
		if len(res) != 2 {
			return domain.BulkJob{}, errors.New("redis queue: unexpected response")
		}
		return decodeJob([]byte(res[1]))
	}
}

func decodeJob(payload []byte) (domain.BulkJob, error) {
	var job domain.BulkJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return domain.BulkJob{}, fmt.Errorf("decode job: %w", err)
	}
	if job.TemplateName == "" {
		return domain.BulkJob{}, errors.New("decode job: template_name is empty")
	}
	return job, nil
}

// NewRedisClient создаёт клиента из адреса host:port или URL redis://.
func NewRedisClient(addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return redis.NewClient(opts), nil
}
