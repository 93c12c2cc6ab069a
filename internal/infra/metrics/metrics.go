package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	SMSSendTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_send_total",
		Help: "Попытки отправки SMS по результату",
	}, []string{"outcome", "reason"})
	SMSSendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sms_send_duration_seconds",
		Help:    "Длительность отправки SMS через провайдера",
		Buckets: prometheus.DefBuckets,
	})
	RateLimitRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sms_rate_limit_rejections_total",
		Help: "Отправки, отклонённые лимитером",
	})
	ProfileDetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_detections_total",
		Help: "Определённые и использованные профили",
	}, []string{"detected", "used"})
	StatusCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_status_callbacks_total",
		Help: "Обработанные уведомления о доставке",
	}, []string{"result"})
	BulkJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_bulk_jobs_total",
		Help: "Массовые рассылки по результату",
	}, []string{"status"})

	HealthFailureRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_failure_rate",
		Help: "Доля неуспешных отправок за последние 24 часа",
	})
	HealthBudgetUsedRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_budget_used_ratio",
		Help: "Доля месячного бюджета SMS",
	})
	HealthProfileShare = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "messaging_profile_share",
		Help: "Доля отправок по профилям с начала месяца",
	}, []string{"profile"})
	HealthAttentionNeeded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_attention_needed",
		Help: "1, если хотя бы одна проверка подняла тревогу",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SMSSendTotal,
		SMSSendDuration,
		RateLimitRejections,
		ProfileDetectionsTotal,
		StatusCallbacksTotal,
		BulkJobsTotal,
		HealthFailureRate,
		HealthBudgetUsedRatio,
		HealthProfileShare,
		HealthAttentionNeeded,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// Handler отдаёт метрики для встраивания в чужой роутер.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveSend учитывает результат одной отправки.
func ObserveSend(success bool, reason string, duration time.Duration) {
	outcome := "sent"
	if !success {
		outcome = "failed"
	}
	if reason == "" {
		reason = "none"
	}
	SMSSendTotal.WithLabelValues(outcome, reason).Inc()
	if duration > 0 {
		SMSSendDuration.Observe(duration.Seconds())
	}
}

// ObserveDetection учитывает определённый и использованный профиль.
func ObserveDetection(detected, used string) {
	ProfileDetectionsTotal.WithLabelValues(detected, used).Inc()
}

// SetProfileShare обновляет долю профиля.
func SetProfileShare(profile string, share float64) {
	HealthProfileShare.WithLabelValues(profile).Set(share)
}

// SetAttention выставляет флаг тревоги.
func SetAttention(needed bool) {
	if needed {
		HealthAttentionNeeded.Set(1)
		return
	}
	HealthAttentionNeeded.Set(0)
}
