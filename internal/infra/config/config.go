package config

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Europe/Paris"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	PublicURL   string `envconfig:"PUBLIC_URL"`
	OpsAPIToken string `envconfig:"OPS_API_TOKEN"`

	PGDSN       string `envconfig:"PG_DSN"`
	PGMaxConns  int32  `envconfig:"PG_MAX_CONNS" default:"5"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	Twilio struct {
		AccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
		AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
		FromNumber string `envconfig:"TWILIO_FROM_NUMBER"`
		BaseURL    string `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
	} `envconfig:""`

	SMS struct {
		DefaultCountryCode    string        `envconfig:"SMS_DEFAULT_COUNTRY_CODE" default:"33"`
		RateLimit             int           `envconfig:"SMS_RATE_LIMIT" default:"10"`
		RateWindow            time.Duration `envconfig:"SMS_RATE_WINDOW" default:"60s"`
		RateBackend           string        `envconfig:"SMS_RATE_BACKEND" default:"memory"`
		SendTimeout           time.Duration `envconfig:"SMS_SEND_TIMEOUT" default:"10s"`
		BulkDelay             time.Duration `envconfig:"SMS_BULK_DELAY" default:"1s"`
		AdaptiveMinConfidence float64       `envconfig:"SMS_ADAPTIVE_MIN_CONFIDENCE" default:"0.6"`
		MonthlyBudget         int           `envconfig:"SMS_MONTHLY_BUDGET" default:"1000"`
	} `envconfig:""`

	Health struct {
		FailureRateMax  float64       `envconfig:"HEALTH_FAILURE_RATE_MAX" default:"0.05"`
		ProfileShareMax float64       `envconfig:"HEALTH_PROFILE_SHARE_MAX" default:"0.6"`
		DefaultShareMax float64       `envconfig:"HEALTH_DEFAULT_SHARE_MAX" default:"0.3"`
		CheckInterval   time.Duration `envconfig:"HEALTH_CHECK_INTERVAL" default:"15m"`
	} `envconfig:""`

	Alerts struct {
		TelegramToken  string `envconfig:"ALERT_TG_BOT_TOKEN"`
		TelegramChatID int64  `envconfig:"ALERT_TG_CHAT_ID"`
	} `envconfig:""`

	Queues struct {
		Bulk   string `envconfig:"BULK_QUEUE_KEY" default:"sms_bulk_jobs"`
		Status string `envconfig:"STATUS_QUEUE" default:"sms_status_events"`
	} `envconfig:""`

	Worker struct {
		Concurrency int `envconfig:"WORKER_CONCURRENCY" default:"2"`
	} `envconfig:""`

	Profile struct {
		OverrideKeepReasons bool `envconfig:"PROFILE_OVERRIDE_KEEP_REASONS" default:"false"`
	} `envconfig:""`
}

// Load загружает конфиг из .env (если есть) и окружения.
func Load() AppConfig {
	cfg, err := load()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

func load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// ProviderConfigured сообщает, заданы ли учётные данные провайдера.
func (c AppConfig) ProviderConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.FromNumber != ""
}

// AlertsConfigured сообщает, настроен ли канал оповещений.
func (c AppConfig) AlertsConfigured() bool {
	return c.Alerts.TelegramToken != "" && c.Alerts.TelegramChatID != 0
}

// Location возвращает часовой пояс из TZ; при ошибке используется UTC.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Dev сообщает, запущен ли сервис в режиме разработки.
func (c AppConfig) Dev() bool {
	return c.AppEnv == "dev"
}
