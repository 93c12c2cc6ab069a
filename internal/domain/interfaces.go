package domain

import (
	"context"
	"time"
)

// SMSProvider создаёт исходящее сообщение у провайдера. Ошибка означает сбой транспорта или авторизации.
type SMSProvider interface {
	Create(ctx context.Context, to, from, body string) (ProviderMessage, error)
}

// RateLimiter ограничивает число отправок на получателя в скользящем окне.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// DeliveryLedger сохраняет попытки отправки.
type DeliveryLedger interface {
	CreateAttempt(ctx context.Context, attempt DeliveryAttempt) error
	// UpdateStatusByRef идемпотентно продвигает статус попытки; неизвестная ссылка возвращает ErrAttemptNotFound.
	UpdateStatusByRef(ctx context.Context, providerRef string, status DeliveryStatus, deliveredAt *time.Time) (bool, error)
}

// DeliveryStats отдаёт агрегаты журнала для монитора.
type DeliveryStats interface {
	CountAttempts(ctx context.Context, filter AttemptFilter) (int, error)
	CountByStatus(ctx context.Context, since, until time.Time) ([]StatusCount, error)
	CountByTemplate(ctx context.Context, since, until time.Time) ([]TemplateCount, error)
	ProfileDistribution(ctx context.Context, since, until time.Time) ([]ProfileStat, error)
}

// ProfileDetectionRepo сохраняет результаты адаптивной классификации.
type ProfileDetectionRepo interface {
	RecordDetection(ctx context.Context, detection ProfileDetection) error
}
