package delivery

import (
	"context"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/log"
	"guest-messaging/internal/usecase/templates"
)

// SendBulkTemplated отправляет один шаблон списку получателей с паузой между отправками.
// Отказ по одному получателю не прерывает пакет.
func (s *Service) SendBulkTemplated(ctx context.Context, templateName string, profile domain.ProfileCode, recipients []domain.BulkRecipient) (domain.BulkReport, error) {
	if err := s.checkTemplate(templateName); err != nil {
		return domain.BulkReport{}, err
	}
	return s.runBulk(ctx, recipients, func(r domain.BulkRecipient) (domain.SendResult, domain.ProfileCode, error) {
		res, err := s.SendTemplated(ctx, r.To, templateName, profile, templates.Vars(r.Variables))
		used := profile
		if !used.Valid() {
			used = domain.ProfileDefault
		}
		return res, used, err
	})
}

// SendBulkAdaptive классифицирует каждого получателя отдельно. Получатель без сигнала бронирования
// получает вариант Default.
func (s *Service) SendBulkAdaptive(ctx context.Context, templateName string, recipients []domain.BulkRecipient) (domain.BulkReport, error) {
	if err := s.checkTemplate(templateName); err != nil {
		return domain.BulkReport{}, err
	}
	return s.runBulk(ctx, recipients, func(r domain.BulkRecipient) (domain.SendResult, domain.ProfileCode, error) {
		if r.Signal == nil {
			res, err := s.SendTemplated(ctx, r.To, templateName, domain.ProfileDefault, templates.Vars(r.Variables))
			return res, domain.ProfileDefault, err
		}
		res, err := s.SendAdaptive(ctx, r.To, templateName, r.Signal.ToSignal(), templates.Vars(r.Variables))
		return res.SendResult, res.ProfileUsed, err
	})
}

// RunJob выполняет задачу массовой рассылки из очереди.
func (s *Service) RunJob(ctx context.Context, job domain.BulkJob) (domain.BulkReport, error) {
	if job.Adaptive {
		return s.SendBulkAdaptive(ctx, job.TemplateName, job.Recipients)
	}
	return s.SendBulkTemplated(ctx, job.TemplateName, job.Profile, job.Recipients)
}

func (s *Service) checkTemplate(templateName string) error {
	if s.renderer == nil || !s.renderer.Has(templateName) {
		return domain.NewDeliveryError(domain.ErrorKindValidation, domain.ReasonUnknownTemplate, domain.ErrTemplateNotFound)
	}
	return nil
}

type bulkSendFunc func(r domain.BulkRecipient) (domain.SendResult, domain.ProfileCode, error)

func (s *Service) runBulk(ctx context.Context, recipients []domain.BulkRecipient, sendOne bulkSendFunc) (domain.BulkReport, error) {
	report := domain.BulkReport{
		Total:            len(recipients),
		PerProfileCounts: make(map[domain.ProfileCode]int),
		Details:          make([]domain.BulkDetail, 0, len(recipients)),
	}
	for i, r := range recipients {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.BulkDelay); err != nil {
				return report, err
			}
		}
		res, used, err := sendOne(r)
		if err != nil {
			s.logger.Warn().Err(err).Str("to", log.MaskPhone(res.Recipient)).Msg("delivery: ошибка отправки в пакете")
			if res.FailureReason == "" {
				res.FailureReason = domain.ReasonProviderError
			}
			res.Success = false
		}
		detail := domain.BulkDetail{
			To:            r.To,
			Success:       res.Success,
			Profile:       used,
			ProviderRef:   res.ProviderRef,
			FailureReason: res.FailureReason,
		}
		report.Details = append(report.Details, detail)
		if res.Success {
			report.Sent++
			report.PerProfileCounts[used]++
		} else {
			report.Failed++
		}
	}
	s.logger.Info().Int("total", report.Total).Int("sent", report.Sent).Int("failed", report.Failed).Msg("delivery: пакет отправлен")
	return report, nil
}
