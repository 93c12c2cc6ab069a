package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"guest-messaging/internal/adapters/repo"
	"guest-messaging/internal/adapters/sms"
	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/cache"
	"guest-messaging/internal/infra/config"
	"guest-messaging/internal/infra/db"
	applog "guest-messaging/internal/infra/log"
	"guest-messaging/internal/infra/metrics"
	"guest-messaging/internal/infra/queue"
	"guest-messaging/internal/infra/ratelimit"
	"guest-messaging/internal/usecase/delivery"
	"guest-messaging/internal/usecase/profile"
	"guest-messaging/internal/usecase/templates"
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
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var provider domain.SMSProvider
	if cfg.ProviderConfigured() {
		client, err := sms.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.BaseURL, cfg.SMS.SendTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось создать клиента SMS")
		}
		provider = client
	} else {
		logger.Warn().Msg("worker: учётные данные провайдера не заданы, отправка отключена")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = queue.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: некорректный адрес Redis")
		}
		defer redisClient.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	var limiter domain.RateLimiter
	if cfg.SMS.RateBackend == "redis" && redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient, cfg.SMS.RateLimit, cfg.SMS.RateWindow)
	} else {
		memory := ratelimit.NewMemory(cfg.SMS.RateLimit, cfg.SMS.RateWindow)
		g.Go(func() error {
			memory.RunJanitor(gctx, cfg.SMS.RateWindow)
			return nil
		})
		limiter = memory
	}

	detector := profile.NewDetector(profile.WithOverrideKeepsStructuralReasons(cfg.Profile.OverrideKeepReasons))
	deliveryService := delivery.NewService(provider, limiter, repoAdapter, repoAdapter, detector, templates.DefaultRegistry(), delivery.Config{
		FromNumber:            cfg.Twilio.FromNumber,
		DefaultCountryCode:    cfg.SMS.DefaultCountryCode,
		SendTimeout:           cfg.SMS.SendTimeout,
		BulkDelay:             cfg.SMS.BulkDelay,
		AdaptiveMinConfidence: cfg.SMS.AdaptiveMinConfidence,
	}, logger)

	if redisClient != nil {
		bulk := &bulkWorker{
			log:         logger,
			queue:       queue.NewRedisBulkQueue(redisClient, cfg.Queues.Bulk),
			guard:       cache.NewGuard(redisClient, "sms:bulk:done:"),
			service:     deliveryService,
			concurrency: cfg.Worker.Concurrency,
		}
		g.Go(func() error { return bulk.Run(gctx) })
	} else {
		logger.Warn().Msg("worker: REDIS_ADDR не задан, массовые рассылки не обрабатываются")
	}

	if cfg.RabbitMQURL != "" {
		statusQueue, err := queue.NewRabbitStatusQueue(cfg.RabbitMQURL, cfg.Queues.Status, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось инициализировать очередь RabbitMQ")
		}
		defer statusQueue.Close()
		g.Go(func() error {
			err := statusQueue.Consume(gctx, func(ctx context.Context, ev domain.StatusEvent) error {
				_, err := deliveryService.HandleStatusCallback(ctx, ev.ProviderRef, ev.Status, ev.DeliveredAt)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Warn().Msg("worker: RABBITMQ_URL не задан, уведомления о доставке принимает api")
	}

	logger.Info().Msg("worker: запуск обработки очередей")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("worker: остановлен")
}

type bulkWorker struct {
	log         zerolog.Logger
	queue       domain.BulkQueue
	guard       *cache.Guard
	service     *delivery.Service
	concurrency int
}

// Run читает задачи из очереди и выполняет не больше concurrency рассылок одновременно.
func (w *bulkWorker) Run(ctx context.Context) error {
	jobs, jctx := errgroup.WithContext(ctx)
	if w.concurrency > 0 {
		jobs.SetLimit(w.concurrency)
	}
	for {
		job, err := w.queue.Pop(jctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return jobs.Wait()
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			select {
			case <-jctx.Done():
				return jobs.Wait()
			case <-time.After(time.Second):
			}
			continue
		}
		jobs.Go(func() error {
			w.process(jctx, job)
			return nil
		})
	}
}

const jobDedupTTL = 24 * time.Hour

func (w *bulkWorker) process(ctx context.Context, job domain.BulkJob) {
	log := w.log.With().Str("job_id", job.ID).Str("template", job.TemplateName).Logger()
	start := time.Now()

	var report domain.BulkReport
	run := func(ctx context.Context) error {
		var err error
		report, err = w.service.RunJob(ctx, job)
		return err
	}
	var err error
	if w.guard != nil && job.ID != "" {
		var fresh bool
		fresh, err = w.guard.Once(ctx, job.ID, jobDedupTTL, run)
		if err == nil && !fresh {
			metrics.BulkJobsTotal.WithLabelValues("duplicate").Inc()
			log.Warn().Msg("worker: рассылка уже выполнялась, пропускаем")
			return
		}
	} else {
		err = run(ctx)
	}
	if err != nil {
		metrics.BulkJobsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("worker: рассылка не выполнена")
		return
	}
	status := "completed"
	if ctx.Err() != nil {
		status = "interrupted"
	}
	metrics.BulkJobsTotal.WithLabelValues(status).Inc()
	log.Info().
		Int("total", report.Total).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("worker: рассылка завершена")
}
