package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
)

// HandleStatusCallback применяет уведомление провайдера о доставке.
// Статус двигается только вперёд; неизвестная ссылка и повтор ничего не меняют.
// Возвращает true, если запись изменилась.
func (s *Service) HandleStatusCallback(ctx context.Context, providerRef, rawStatus string, deliveredAt *time.Time) (bool, error) {
	if s.ledger == nil {
		return false, domain.ErrServiceUnavailable
	}
	providerRef = strings.TrimSpace(providerRef)
	status, ok := domain.NormalizeProviderStatus(rawStatus)
	if providerRef == "" || !ok {
		metrics.StatusCallbacksTotal.WithLabelValues("invalid").Inc()
		return false, domain.NewDeliveryError(domain.ErrorKindData, "", fmt.Errorf("некорректное уведомление: ref=%q status=%q", providerRef, rawStatus))
	}
	if status == domain.DeliveryDelivered && deliveredAt == nil {
		now := s.now().UTC()
		deliveredAt = &now
	}
	if status != domain.DeliveryDelivered {
		deliveredAt = nil
	}

	updated, err := s.ledger.UpdateStatusByRef(context.WithoutCancel(ctx), providerRef, status, deliveredAt)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			metrics.StatusCallbacksTotal.WithLabelValues("unknown_ref").Inc()
			s.logger.Warn().Str("provider_ref", providerRef).Msg("delivery: уведомление для неизвестной попытки")
			return false, nil
		}
		metrics.StatusCallbacksTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("обновление статуса: %w", err)
	}
	if !updated {
		metrics.StatusCallbacksTotal.WithLabelValues("ignored").Inc()
		return false, nil
	}
	metrics.StatusCallbacksTotal.WithLabelValues("applied").Inc()
	s.logger.Debug().Str("provider_ref", providerRef).Str("status", string(status)).Msg("delivery: статус обновлён")
	return true, nil
}
