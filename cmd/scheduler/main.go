package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"guest-messaging/internal/adapters/alerting"
	"guest-messaging/internal/adapters/repo"
	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/config"
	"guest-messaging/internal/infra/db"
	applog "guest-messaging/internal/infra/log"
	"guest-messaging/internal/infra/metrics"
	"guest-messaging/internal/usecase/health"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	var alerter domain.Alerter
	if cfg.AlertsConfigured() {
		bot, err := tgbotapi.NewBotAPI(cfg.Alerts.TelegramToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота оповещений")
		}
		alerter = alerting.NewTelegram(bot, cfg.Alerts.TelegramChatID)
	} else {
		logger.Warn().Msg("scheduler: оповещения в Telegram не настроены")
	}

	monitor := health.NewMonitor(repo.NewPostgres(pool), alerter, health.Thresholds{
		FailureRateMax:  cfg.Health.FailureRateMax,
		ProfileShareMax: cfg.Health.ProfileShareMax,
		DefaultShareMax: cfg.Health.DefaultShareMax,
		MonthlyBudget:   cfg.SMS.MonthlyBudget,
	}, logger, health.WithLocation(cfg.Location()))

	interval := cfg.Health.CheckInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("scheduler: старт проверок")
	for {
		if _, err := monitor.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduler: проверка не выполнена")
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-ticker.C:
		}
	}
}
