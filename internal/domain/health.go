package domain

import (
	"context"
	"time"
)

// BudgetTier описывает уровень расхода месячного бюджета.
type BudgetTier string

const (
	BudgetTierOK       BudgetTier = "ok"
	BudgetTierInfo     BudgetTier = "info"
	BudgetTierWarning  BudgetTier = "warning"
	BudgetTierCritical BudgetTier = "critical"
)

// HealthCheckName идентифицирует проверку монитора.
type HealthCheckName string

const (
	CheckFailureRate  HealthCheckName = "failure_rate"
	CheckBudget       HealthCheckName = "budget"
	CheckDistribution HealthCheckName = "distribution"
)

// Alert — отдельное замечание монитора.
type Alert struct {
	Check   HealthCheckName `json:"check"`
	Level   BudgetTier      `json:"level"`
	Message string          `json:"message"`
}

// ProfileShare — доля профиля среди отправок.
type ProfileShare struct {
	Count         int     `json:"count"`
	Pct           float64 `json:"pct"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// FailureRateReport — результат проверки доли ошибок.
type FailureRateReport struct {
	WindowStart  time.Time `json:"window_start"`
	TotalSent    int       `json:"total_sent"`
	FailureCount int       `json:"failure_count"`
	FailureRate  float64   `json:"failure_rate"`
	Alert        bool      `json:"alert"`
}

// BudgetReport — результат проверки месячного бюджета.
type BudgetReport struct {
	MonthStart  time.Time  `json:"month_start"`
	BudgetUsed  int        `json:"budget_used"`
	BudgetLimit int        `json:"budget_limit"`
	UsedPct     float64    `json:"used_pct"`
	Tier        BudgetTier `json:"tier"`
	Alert       bool       `json:"alert"`
}

// DistributionReport — результат проверки распределения профилей.
type DistributionReport struct {
	MonthStart   time.Time                    `json:"month_start"`
	Total        int                          `json:"total"`
	Distribution map[ProfileCode]ProfileShare `json:"distribution"`
	Alert        bool                         `json:"alert"`
	Messages     []string                     `json:"messages,omitempty"`
}

// HealthSnapshot собирается по запросу и никогда не сохраняется.
type HealthSnapshot struct {
	WindowStart         time.Time                    `json:"window_start"`
	TotalSent           int                          `json:"total_sent"`
	FailureCount        int                          `json:"failure_count"`
	FailureRate         float64                      `json:"failure_rate"`
	BudgetUsed          int                          `json:"budget_used"`
	BudgetLimit         int                          `json:"budget_limit"`
	BudgetTier          BudgetTier                   `json:"budget_tier"`
	ProfileDistribution map[ProfileCode]ProfileShare `json:"profile_distribution"`
	Alerts              []Alert                      `json:"alerts"`
	AttentionNeeded     bool                         `json:"attention_needed"`
	GeneratedAt         time.Time                    `json:"generated_at"`
}

// Alerter доставляет замечания монитора во внешний канал.
type Alerter interface {
	Notify(ctx context.Context, snapshot HealthSnapshot) error
}
