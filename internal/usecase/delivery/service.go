package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/log"
	"guest-messaging/internal/infra/metrics"
	"guest-messaging/internal/usecase/templates"
)

// Classifier определяет профиль бронирования.
type Classifier interface {
	DetectProfile(signal domain.BookingSignal) domain.ProfileResult
}

// Renderer рендерит шаблоны сообщений.
type Renderer interface {
	GetTemplate(name string, profile domain.ProfileCode, vars templates.Vars) (templates.Rendered, error)
	Has(name string) bool
}

// Config — параметры отправки.
type Config struct {
	FromNumber            string
	DefaultCountryCode    string
	SendTimeout           time.Duration
	BulkDelay             time.Duration
	AdaptiveMinConfidence float64
}

// Sleeper ждёт d или отмены контекста.
type Sleeper func(ctx context.Context, d time.Duration) error

// Service отправляет сообщения гостям и ведёт журнал попыток.
type Service struct {
	provider   domain.SMSProvider
	limiter    domain.RateLimiter
	ledger     domain.DeliveryLedger
	detections domain.ProfileDetectionRepo
	classifier Classifier
	renderer   Renderer
	cfg        Config
	logger     zerolog.Logger

	now   func() time.Time
	sleep Sleeper
	newID func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleeper подменяет паузу между отправками пакета.
func WithSleeper(sleep Sleeper) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов попыток.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService создаёт сервис доставки. provider может быть nil: тогда отправки
// завершаются мягким отказом SERVICE_DESACTIVE.
func NewService(provider domain.SMSProvider, limiter domain.RateLimiter, ledger domain.DeliveryLedger, detections domain.ProfileDetectionRepo, classifier Classifier, renderer Renderer, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.BulkDelay < 0 {
		cfg.BulkDelay = 0
	}
	if cfg.DefaultCountryCode == "" {
		cfg.DefaultCountryCode = "33"
	}
	s := &Service{
		provider:   provider,
		limiter:    limiter,
		ledger:     ledger,
		detections: detections,
		classifier: classifier,
		renderer:   renderer,
		cfg:        cfg,
		logger:     logger.With().Str("component", "delivery").Logger(),
		now:        time.Now,
		sleep:      sleepContext,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Enabled сообщает, настроен ли провайдер.
func (s *Service) Enabled() bool {
	return s.provider != nil
}

// Send нормализует номер, проверяет лимит, отправляет сообщение и пишет попытку в журнал.
// Ошибки валидации и лимита возвращаются в результате; ошибка провайдера
// дополнительно возвращается как *domain.DeliveryError.
func (s *Service) Send(ctx context.Context, to, body string, meta domain.SendMeta) (domain.SendResult, error) {
	return s.send(ctx, to, body, meta)
}

func (s *Service) send(ctx context.Context, to, body string, meta domain.SendMeta) (domain.SendResult, error) {
	attempt := domain.DeliveryAttempt{
		ID:           s.newID(),
		Recipient:    NormalizePhone(to, s.cfg.DefaultCountryCode),
		Body:         body,
		TemplateName: meta.TemplateName,
		ProfileUsed:  meta.Profile,
		CreatedAt:    s.now().UTC(),
	}
	logger := s.logger.With().Str("attempt_id", attempt.ID).Str("to", log.MaskPhone(attempt.Recipient)).Logger()

	if !ValidatePhone(attempt.Recipient) {
		attempt.Recipient = to
		return s.reject(ctx, attempt, domain.DeliveryRejected, domain.ReasonInvalidNumber), nil
	}

	if s.provider == nil {
		logger.Warn().Msg("delivery: провайдер не настроен, отправка отключена")
		return s.reject(ctx, attempt, domain.DeliveryDisabled, domain.ReasonServiceDisabled), nil
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, attempt.Recipient)
		if err != nil {
			logger.Error().Err(err).Msg("delivery: лимитер недоступен, отправка отклонена")
			allowed = false
		}
		if !allowed {
			metrics.RateLimitRejections.Inc()
			return s.reject(ctx, attempt, domain.DeliveryRateLimited, domain.ReasonRateLimited), nil
		}
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SendTimeout)
	start := time.Now()
	msg, err := s.provider.Create(callCtx, attempt.Recipient, s.cfg.FromNumber, body)
	elapsed := time.Since(start)
	cancel()
	attempt.DurationMs = elapsed.Milliseconds()

	if err != nil {
		attempt.Status = domain.DeliveryFailed
		attempt.FailureReason = domain.ReasonProviderError
		if isTimeout(err) {
			attempt.FailureReason = domain.ReasonTimeout
		}
		logger.Error().Err(err).Str("reason", string(attempt.FailureReason)).Dur("elapsed", elapsed).Msg("delivery: провайдер вернул ошибку")
		s.record(ctx, attempt)
		metrics.ObserveSend(false, string(attempt.FailureReason), elapsed)
		return resultOf(attempt), domain.NewDeliveryError(domain.ErrorKindProvider, attempt.FailureReason, err)
	}

	attempt.ProviderRef = msg.Reference
	attempt.Status = domain.DeliverySent
	status, ok := domain.NormalizeProviderStatus(msg.Status)
	if ok && status.IsFailure() {
		attempt.Status = status
		attempt.FailureReason = domain.ReasonProviderError
		logger.Error().Str("provider_ref", msg.Reference).Str("provider_status", msg.Status).Msg("delivery: провайдер отклонил сообщение")
		s.record(ctx, attempt)
		metrics.ObserveSend(false, string(attempt.FailureReason), elapsed)
		return resultOf(attempt), domain.NewDeliveryError(domain.ErrorKindProvider, attempt.FailureReason, fmt.Errorf("provider status %q", msg.Status))
	}
	if ok {
		attempt.Status = status
	}
	if attempt.Status == domain.DeliveryDelivered {
		deliveredAt := s.now().UTC()
		attempt.DeliveredAt = &deliveredAt
	}
	s.record(ctx, attempt)
	metrics.ObserveSend(true, "", elapsed)
	logger.Debug().Str("provider_ref", attempt.ProviderRef).Dur("elapsed", elapsed).Msg("delivery: сообщение отправлено")
	return resultOf(attempt), nil
}

func (s *Service) reject(ctx context.Context, attempt domain.DeliveryAttempt, status domain.DeliveryStatus, reason domain.FailureReason) domain.SendResult {
	attempt.Status = status
	attempt.FailureReason = reason
	s.record(ctx, attempt)
	metrics.ObserveSend(false, string(reason), 0)
	return resultOf(attempt)
}

// record пишет попытку в журнал даже если вызывающий уже отменил контекст.
func (s *Service) record(ctx context.Context, attempt domain.DeliveryAttempt) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.CreateAttempt(context.WithoutCancel(ctx), attempt); err != nil {
		s.logger.Error().Err(err).Str("attempt_id", attempt.ID).Msg("delivery: не удалось записать попытку")
	}
}

func resultOf(attempt domain.DeliveryAttempt) domain.SendResult {
	return domain.SendResult{
		Success:       attempt.FailureReason == "",
		AttemptID:     attempt.ID,
		Recipient:     attempt.Recipient,
		ProviderRef:   attempt.ProviderRef,
		FailureReason: attempt.FailureReason,
		Status:        attempt.Status,
	}
}

// SendTemplated рендерит шаблон для профиля и отправляет результат.
func (s *Service) SendTemplated(ctx context.Context, to, templateName string, profile domain.ProfileCode, vars templates.Vars) (domain.SendResult, error) {
	rendered, err := s.render(templateName, profile, vars)
	if err != nil {
		return domain.SendResult{Recipient: to, FailureReason: domain.ReasonUnknownTemplate, Status: domain.DeliveryRejected}, nil
	}
	return s.send(ctx, to, rendered.Body, domain.SendMeta{TemplateName: rendered.Name, Profile: rendered.Profile})
}

func (s *Service) render(templateName string, profile domain.ProfileCode, vars templates.Vars) (templates.Rendered, error) {
	if s.renderer == nil {
		return templates.Rendered{}, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, templateName)
	}
	rendered, err := s.renderer.GetTemplate(templateName, profile, vars)
	if err != nil {
		s.logger.Warn().Err(err).Str("template", templateName).Msg("delivery: шаблон не найден")
		return templates.Rendered{}, err
	}
	return rendered, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
