package delivery

import (
	"context"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
	"guest-messaging/internal/usecase/templates"
)

// AdaptiveResult — результат адаптивной отправки.
type AdaptiveResult struct {
	domain.SendResult
	Detected    domain.ProfileResult `json:"detected"`
	ProfileUsed domain.ProfileCode   `json:"profile_used"`
}

// SendAdaptive определяет профиль гостя, выбирает вариант шаблона и отправляет его.
// При уверенности ниже порога используется Default. Результат классификации
// сохраняется отдельно для анализа распределения.
func (s *Service) SendAdaptive(ctx context.Context, to, templateName string, signal domain.BookingSignal, vars templates.Vars) (AdaptiveResult, error) {
	detected := s.detect(signal)
	used := s.chooseProfile(detected)

	rendered, err := s.render(templateName, used, vars)
	if err != nil {
		return AdaptiveResult{
			SendResult:  domain.SendResult{Recipient: to, FailureReason: domain.ReasonUnknownTemplate, Status: domain.DeliveryRejected},
			Detected:    detected,
			ProfileUsed: used,
		}, nil
	}

	res, sendErr := s.send(ctx, to, rendered.Body, domain.SendMeta{TemplateName: rendered.Name, Profile: used})
	s.recordDetection(ctx, res, rendered.Name, detected, used)
	return AdaptiveResult{SendResult: res, Detected: detected, ProfileUsed: used}, sendErr
}

func (s *Service) detect(signal domain.BookingSignal) domain.ProfileResult {
	if s.classifier == nil {
		return domain.ProfileResult{Profile: domain.ProfileDefault, Reasons: []string{"classifier_unavailable"}}
	}
	return s.classifier.DetectProfile(signal)
}

func (s *Service) chooseProfile(detected domain.ProfileResult) domain.ProfileCode {
	if detected.Confidence < s.cfg.AdaptiveMinConfidence {
		return domain.ProfileDefault
	}
	return detected.Profile
}

func (s *Service) recordDetection(ctx context.Context, res domain.SendResult, templateName string, detected domain.ProfileResult, used domain.ProfileCode) {
	metrics.ObserveDetection(string(detected.Profile), string(used))
	if s.detections == nil {
		return
	}
	detection := domain.ProfileDetection{
		ID:            s.newID(),
		AttemptID:     res.AttemptID,
		Recipient:     res.Recipient,
		TemplateName:  templateName,
		Detected:      detected.Profile,
		Used:          used,
		Confidence:    detected.Confidence,
		Reasons:       detected.Reasons,
		KeywordsFound: detected.KeywordsFound,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.detections.RecordDetection(context.WithoutCancel(ctx), detection); err != nil {
		s.logger.Error().Err(err).Str("attempt_id", res.AttemptID).Msg("delivery: не удалось сохранить профиль")
	}
}
