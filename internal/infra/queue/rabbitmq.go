package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
)

// StatusHandler обрабатывает уведомление о статусе доставки.
type StatusHandler func(ctx context.Context, ev domain.StatusEvent) error

// RabbitStatusQueue публикует и потребляет уведомления о доставке через AMQP.
type RabbitStatusQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger zerolog.Logger
}

// NewRabbitStatusQueue подключается к брокеру и объявляет durable очередь.
func NewRabbitStatusQueue(amqpURL, queue string, logger zerolog.Logger) (*RabbitStatusQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitStatusQueue{conn: conn, ch: ch, queue: queue, logger: logger.With().Str("component", "status_queue").Logger()}, nil
}

// Publish кладёт уведомление в очередь.
func (q *RabbitStatusQueue) Publish(ctx context.Context, ev domain.StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Consume читает уведомления до отмены контекста. Некорректные сообщения и ошибки данных
// подтверждаются и отбрасываются, остальные ошибки возвращают сообщение в очередь.
func (q *RabbitStatusQueue) Consume(ctx context.Context, handle StatusHandler) error {
	if err := q.ch.Qos(16, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("status queue: delivery channel closed")
			}
			q.process(ctx, d, handle)
		}
	}
}

func (q *RabbitStatusQueue) process(ctx context.Context, d amqp.Delivery, handle StatusHandler) {
	ev, err := DecodeStatusEvent(d.Body)
	if err != nil {
		q.logger.Warn().Err(err).Msg("status_queue: некорректное сообщение, отбрасываем")
		_ = d.Ack(false)
		return
	}
	if err := handle(ctx, ev); err != nil {
		if kind, ok := domain.KindOf(err); ok && kind == domain.ErrorKindData {
			q.logger.Warn().Err(err).Str("provider_ref", ev.ProviderRef).Msg("status_queue: уведомление отклонено")
			_ = d.Ack(false)
			return
		}
		q.logger.Error().Err(err).Str("provider_ref", ev.ProviderRef).Msg("status_queue: ошибка обработки, вернём в очередь")
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

// Close закрывает канал и соединение.
func (q *RabbitStatusQueue) Close() error {
	return errors.Join(q.ch.Close(), q.conn.Close())
}

// DecodeStatusEvent разбирает уведомление из JSON.
func DecodeStatusEvent(body []byte) (domain.StatusEvent, error) {
	var ev domain.StatusEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.StatusEvent{}, fmt.Errorf("decode status event: %w", err)
	}
	ev.ProviderRef = strings.TrimSpace(ev.ProviderRef)
	ev.Status = strings.TrimSpace(ev.Status)
	if ev.ProviderRef == "" || ev.Status == "" {
		return domain.StatusEvent{}, errors.New("decode status event: provider_ref and status are required")
	}
	return ev, nil
}
