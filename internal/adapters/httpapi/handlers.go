package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"guest-messaging/internal/domain"
	httpinfra "guest-messaging/internal/infra/http"
)

// StatusPublisher передаёт уведомление о доставке в очередь.
type StatusPublisher interface {
	Publish(ctx context.Context, ev domain.StatusEvent) error
}

// StatusApplier применяет уведомление напрямую.
type StatusApplier interface {
	HandleStatusCallback(ctx context.Context, providerRef, rawStatus string, deliveredAt *time.Time) (bool, error)
}

// HealthReporter собирает снимок состояния рассылок.
type HealthReporter interface {
	Snapshot(ctx context.Context) (domain.HealthSnapshot, error)
}

// TemplateChecker проверяет, что шаблон зарегистрирован.
type TemplateChecker interface {
	Has(name string) bool
}

// Deps — зависимости обработчиков. Любая может быть nil.
type Deps struct {
	Publisher StatusPublisher
	Applier   StatusApplier
	Health    HealthReporter
	Bulk      domain.BulkQueue
	Templates TemplateChecker
}

// Handlers обслуживает служебные эндпоинты рассылок.
type Handlers struct {
	deps  Deps
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

// New создаёт обработчики.
func New(deps Deps, logger zerolog.Logger) *Handlers {
	return &Handlers{
		deps:  deps,
		log:   logger.With().Str("component", "httpapi").Logger(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Mount регистрирует маршруты. Маршрут без middleware авторизации не подключается:
// без opsAuth нет /bulk-jobs, а /health/messaging отдаётся открыто; без webhookAuth нет вебхука.
func (h *Handlers) Mount(r chi.Router, opsAuth, webhookAuth func(http.Handler) http.Handler) {
	if opsAuth != nil {
		r.Group(func(ops chi.Router) {
			ops.Use(opsAuth)
			ops.Get("/health/messaging", h.health)
			ops.Post("/bulk-jobs", h.enqueueBulk)
		})
	} else {
		r.Get("/health/messaging", h.health)
	}
	if webhookAuth != nil {
		r.Group(func(wr chi.Router) {
			wr.Use(webhookAuth)
			wr.Post("/webhooks/sms/status", h.statusWebhook)
		})
	}
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health == nil {
		httpinfra.WriteError(w, http.StatusServiceUnavailable, "монитор не настроен")
		return
	}
	snap, err := h.deps.Health.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrServiceUnavailable) {
			httpinfra.WriteError(w, http.StatusServiceUnavailable, "хранилище недоступно")
			return
		}
		h.log.Error().Err(err).Msg("httpapi: не удалось собрать снимок")
		httpinfra.WriteError(w, http.StatusInternalServerError, "не удалось собрать снимок")
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handlers) statusWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "некорректная форма")
		return
	}
	ev := domain.StatusEvent{
		ProviderRef: strings.TrimSpace(r.PostForm.Get("MessageSid")),
		Status:      strings.TrimSpace(r.PostForm.Get("MessageStatus")),
	}
	if ev.ProviderRef == "" || ev.Status == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, "MessageSid и MessageStatus обязательны")
		return
	}
	status, ok := domain.NormalizeProviderStatus(ev.Status)
	if !ok {
		httpinfra.WriteError(w, http.StatusBadRequest, "неизвестный статус")
		return
	}
	if status == domain.DeliveryDelivered {
		at := h.now().UTC()
		ev.DeliveredAt = &at
	}

	if h.deps.Publisher != nil {
		if err := h.deps.Publisher.Publish(r.Context(), ev); err != nil {
			h.log.Error().Err(err).Str("provider_ref", ev.ProviderRef).Msg("httpapi: не удалось поставить уведомление в очередь")
			httpinfra.WriteError(w, http.StatusServiceUnavailable, "очередь недоступна")
			return
		}
		httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	if h.deps.Applier == nil {
		httpinfra.WriteError(w, http.StatusServiceUnavailable, "обработка уведомлений не настроена")
		return
	}
	updated, err := h.deps.Applier.HandleStatusCallback(r.Context(), ev.ProviderRef, ev.Status, ev.DeliveredAt)
	if err != nil {
		switch kind, _ := domain.KindOf(err); {
		case kind == domain.ErrorKindData:
			httpinfra.WriteError(w, http.StatusBadRequest, "некорректное уведомление")
		case errors.Is(err, domain.ErrServiceUnavailable):
			httpinfra.WriteError(w, http.StatusServiceUnavailable, "хранилище недоступно")
		default:
			h.log.Error().Err(err).Str("provider_ref", ev.ProviderRef).Msg("httpapi: ошибка обработки уведомления")
			httpinfra.WriteError(w, http.StatusInternalServerError, "ошибка обработки")
		}
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

type bulkJobRequest struct {
	TemplateName string                 `json:"template_name"`
	Profile      string                 `json:"profile"`
	Adaptive     bool                   `json:"adaptive"`
	Recipients   []domain.BulkRecipient `json:"recipients"`
}

func (h *Handlers) enqueueBulk(w http.ResponseWriter, r *http.Request) {
	if h.deps.Bulk == nil {
		httpinfra.WriteError(w, http.StatusServiceUnavailable, "очередь рассылок не настроена")
		return
	}
	defer r.Body.Close()
	var req bulkJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
		return
	}
	req.TemplateName = strings.TrimSpace(req.TemplateName)
	if req.TemplateName == "" || len(req.Recipients) == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, "template_name и recipients обязательны")
		return
	}
	if h.deps.Templates != nil && !h.deps.Templates.Has(req.TemplateName) {
		httpinfra.WriteError(w, http.StatusBadRequest, "неизвестный шаблон")
		return
	}
	profile := domain.ProfileDefault
	if req.Profile != "" {
		code, ok := domain.ParseProfileCode(req.Profile)
		if !ok {
			httpinfra.WriteError(w, http.StatusBadRequest, "неизвестный профиль")
			return
		}
		profile = code
	}

	job := domain.BulkJob{
		ID:           h.newID(),
		TemplateName: req.TemplateName,
		Profile:      profile,
		Adaptive:     req.Adaptive,
		Recipients:   req.Recipients,
		RequestedAt:  h.now().UTC(),
	}
	if err := h.deps.Bulk.Enqueue(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("job_id", job.ID).Msg("httpapi: не удалось поставить рассылку в очередь")
		httpinfra.WriteError(w, http.StatusServiceUnavailable, "очередь недоступна")
		return
	}
	h.log.Info().Str("job_id", job.ID).Str("template", job.TemplateName).Int("recipients", len(job.Recipients)).Msg("httpapi: рассылка поставлена в очередь")
	httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}
