package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"guest-messaging/internal/adapters/httpapi"
	"guest-messaging/internal/adapters/repo"
	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/config"
	"guest-messaging/internal/infra/db"
	httpinfra "guest-messaging/internal/infra/http"
	applog "guest-messaging/internal/infra/log"
	"guest-messaging/internal/infra/metrics"
	"guest-messaging/internal/infra/queue"
	"guest-messaging/internal/usecase/delivery"
	"guest-messaging/internal/usecase/health"
	"guest-messaging/internal/usecase/templates"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		ledger domain.DeliveryLedger
		stats  domain.DeliveryStats
	)
	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к БД")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		ledger, stats = pg, pg
	} else {
		logger.Warn().Msg("api: PG_DSN не задан, журнал и монитор недоступны")
	}

	registry := templates.DefaultRegistry()
	deliveryService := delivery.NewService(nil, nil, ledger, nil, nil, registry, delivery.Config{
		DefaultCountryCode: cfg.SMS.DefaultCountryCode,
	}, logger)
	monitor := health.NewMonitor(stats, nil, health.Thresholds{
		FailureRateMax:  cfg.Health.FailureRateMax,
		ProfileShareMax: cfg.Health.ProfileShareMax,
		DefaultShareMax: cfg.Health.DefaultShareMax,
		MonthlyBudget:   cfg.SMS.MonthlyBudget,
	}, logger, health.WithLocation(cfg.Location()))

	deps := httpapi.Deps{Applier: deliveryService, Health: monitor, Templates: registry}
	if cfg.RabbitMQURL != "" {
		statusQueue, err := queue.NewRabbitStatusQueue(cfg.RabbitMQURL, cfg.Queues.Status, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось инициализировать очередь RabbitMQ")
		}
		defer statusQueue.Close()
		deps.Publisher = statusQueue
	}
	if cfg.RedisAddr != "" {
		client, err := queue.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: некорректный адрес Redis")
		}
		defer client.Close()
		deps.Bulk = queue.NewRedisBulkQueue(client, cfg.Queues.Bulk)
	}

	opsAuth, webhookAuth := authMiddlewares(cfg)
	if opsAuth == nil {
		logger.Warn().Msg("api: OPS_API_TOKEN не задан, /bulk-jobs отключён")
	}
	switch {
	case webhookAuth == nil:
		logger.Error().Msg("api: вебхук статусов отключён, нужны TWILIO_AUTH_TOKEN и PUBLIC_URL")
	case cfg.Twilio.AuthToken == "" || cfg.PublicURL == "":
		logger.Warn().Msg("api: подпись вебхука не проверяется (режим dev)")
	}

	server := httpinfra.NewServer(logger)
	httpapi.New(deps, logger).Mount(server.Router, opsAuth, webhookAuth)

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки сервера")
	}
}

// authMiddlewares подбирает авторизацию для служебных маршрутов и вебхука.
// nil означает, что маршрут не подключается. Вебхук без подписи допускается только в dev.
func authMiddlewares(cfg config.AppConfig) (ops, webhook func(http.Handler) http.Handler) {
	if cfg.OpsAPIToken != "" {
		ops = httpinfra.BearerTokenMiddleware(cfg.OpsAPIToken)
	}
	switch {
	case cfg.Twilio.AuthToken != "" && cfg.PublicURL != "":
		webhook = httpinfra.TwilioSignatureMiddleware(cfg.Twilio.AuthToken, cfg.PublicURL)
	case cfg.Dev():
		webhook = func(next http.Handler) http.Handler { return next }
	}
	return ops, webhook
}
