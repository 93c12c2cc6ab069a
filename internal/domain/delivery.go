package domain

import (
	"strings"
	"time"
)

// DeliveryStatus описывает состояние попытки отправки.
type DeliveryStatus string

const (
	DeliveryQueued      DeliveryStatus = "queued"
	DeliverySent        DeliveryStatus = "sent"
	DeliveryDelivered   DeliveryStatus = "delivered"
	DeliveryFailed      DeliveryStatus = "failed"
	DeliveryUndelivered DeliveryStatus = "undelivered"
	DeliveryRateLimited DeliveryStatus = "rate_limited"
	DeliveryDisabled    DeliveryStatus = "disabled"
	DeliveryRejected    DeliveryStatus = "rejected"
)

// DispatchedStatuses — статусы попыток, дошедших до провайдера. Их считают бюджет и мониторинг.
var DispatchedStatuses = []DeliveryStatus{DeliveryQueued, DeliverySent, DeliveryDelivered, DeliveryFailed, DeliveryUndelivered}

// FailureStatuses — статусы, которые считаются неудачной доставкой.
var FailureStatuses = []DeliveryStatus{DeliveryFailed, DeliveryUndelivered}

// Terminal сообщает, что статус больше не меняется.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case DeliveryDelivered, DeliveryFailed, DeliveryUndelivered, DeliveryRateLimited, DeliveryDisabled, DeliveryRejected:
		return true
	}
	return false
}

// IsFailure сообщает, считается ли статус неудачей для мониторинга.
func (s DeliveryStatus) IsFailure() bool {
	return s == DeliveryFailed || s == DeliveryUndelivered
}

// CanTransition проверяет, что статус движется только вперёд:
// queued -> sent -> {delivered|failed|undelivered}.
func CanTransition(from, to DeliveryStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case DeliveryQueued:
		return to == DeliverySent || to == DeliveryDelivered || to == DeliveryFailed || to == DeliveryUndelivered
	case DeliverySent:
		return to == DeliveryDelivered || to == DeliveryFailed || to == DeliveryUndelivered
	}
	return false
}

// SourceStatuses возвращает статусы, из которых допустим переход в to.
func SourceStatuses(to DeliveryStatus) []DeliveryStatus {
	var out []DeliveryStatus
	for _, from := range []DeliveryStatus{DeliveryQueued, DeliverySent} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// NormalizeProviderStatus приводит статус провайдера к внутреннему.
func NormalizeProviderStatus(raw string) (DeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted", "queued", "scheduled", "sending":
		return DeliveryQueued, true
	case "sent":
		return DeliverySent, true
	case "delivered", "read":
		return DeliveryDelivered, true
	case "failed", "canceled":
		return DeliveryFailed, true
	case "undelivered":
		return DeliveryUndelivered, true
	}
	return "", false
}

// FailureReason — стабильный код причины отказа, на который опираются вызывающие слои.
type FailureReason string

const (
	ReasonInvalidNumber   FailureReason = "NUMERO_INVALIDE"
	ReasonRateLimited     FailureReason = "RATE_LIMIT_DEPASSE"
	ReasonServiceDisabled FailureReason = "SERVICE_DESACTIVE"
	ReasonProviderError   FailureReason = "ERREUR_FOURNISSEUR"
	ReasonUnknownTemplate FailureReason = "TEMPLATE_INCONNU"
	ReasonTimeout         FailureReason = "DELAI_DEPASSE"
)

// DeliveryAttempt — запись журнала о каждой попытке отправки.
type DeliveryAttempt struct {
	ID            string
	Recipient     string
	Body          string
	TemplateName  string
	ProfileUsed   ProfileCode
	Status        DeliveryStatus
	FailureReason FailureReason
	ProviderRef   string
	DurationMs    int64
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}

// SendMeta описывает контекст отправки для журнала.
type SendMeta struct {
	TemplateName string
	Profile      ProfileCode
}

// SendResult — результат одиночной отправки.
type SendResult struct {
	Success       bool           `json:"success"`
	AttemptID     string         `json:"attempt_id,omitempty"`
	Recipient     string         `json:"recipient,omitempty"`
	ProviderRef   string         `json:"provider_ref,omitempty"`
	FailureReason FailureReason  `json:"failure_reason,omitempty"`
	Status        DeliveryStatus `json:"status"`
}

// ProviderMessage — ответ провайдера на создание сообщения.
type ProviderMessage struct {
	Reference string
	Status    string
}

// AttemptFilter задаёт выборку для подсчёта попыток. Пустые поля не фильтруют.
type AttemptFilter struct {
	Since        *time.Time
	Until        *time.Time
	Statuses     []DeliveryStatus
	TemplateName *string
}

// StatusCount — количество попыток с данным статусом.
type StatusCount struct {
	Status DeliveryStatus
	Count  int
}

// TemplateCount — количество попыток по шаблону.
type TemplateCount struct {
	TemplateName string
	Count        int
}

// ProfileStat — агрегат по использованному профилю.
type ProfileStat struct {
	Profile       ProfileCode
	Count         int
	AvgConfidence float64
}
