package domain

import (
	"context"
	"time"
)

// BulkRecipient — получатель массовой рассылки.
type BulkRecipient struct {
	To        string            `json:"to"`
	Variables map[string]any    `json:"variables,omitempty"`
	Signal    *BookingSignalDTO `json:"signal,omitempty"`
}

// BookingSignalDTO — сериализуемая форма BookingSignal для очереди.
type BookingSignalDTO struct {
	GuestCount       int       `json:"guest_count"`
	StayDurationDays int       `json:"stay_duration_days"`
	PropertyCategory string    `json:"property_category"`
	StayDate         time.Time `json:"stay_date"`
	HasChildren      bool      `json:"has_children"`
	FreeTextMessages []string  `json:"free_text_messages,omitempty"`
}

// ToSignal переводит DTO в доменную структуру.
func (d BookingSignalDTO) ToSignal() BookingSignal {
	return BookingSignal{
		GuestCount:       d.GuestCount,
		StayDurationDays: d.StayDurationDays,
		PropertyCategory: PropertyCategory(d.PropertyCategory),
		StayDate:         d.StayDate,
		HasChildren:      d.HasChildren,
		FreeTextMessages: d.FreeTextMessages,
	}
}

// BulkJob описывает задачу массовой рассылки.
type BulkJob struct {
	ID           string          `json:"job_id"`
	TemplateName string          `json:"template_name"`
	Profile      ProfileCode     `json:"profile,omitempty"`
	Adaptive     bool            `json:"adaptive"`
	Recipients   []BulkRecipient `json:"recipients"`
	RequestedAt  time.Time       `json:"requested_at"`
}

// BulkDetail — результат отправки одному получателю в рамках пакета.
type BulkDetail struct {
	To            string        `json:"to"`
	Success       bool          `json:"success"`
	Profile       ProfileCode   `json:"profile,omitempty"`
	ProviderRef   string        `json:"provider_ref,omitempty"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
}

// BulkReport — сводка массовой рассылки.
type BulkReport struct {
	Total            int                 `json:"total"`
	Sent             int                 `json:"sent"`
	Failed           int                 `json:"failed"`
	PerProfileCounts map[ProfileCode]int `json:"per_profile_counts"`
	Details          []BulkDetail        `json:"details"`
}

// BulkQueue — очередь задач массовой рассылки.
type BulkQueue interface {
	Enqueue(ctx context.Context, job BulkJob) error
	Pop(ctx context.Context) (BulkJob, error)
}

// StatusEvent — уведомление провайдера о статусе доставки.
type StatusEvent struct {
	ProviderRef string     `json:"provider_ref"`
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}
