package health

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
)

const failureWindow = 24 * time.Hour

// Thresholds — пороги проверок. Доли задаются числом от 0 до 1.
type Thresholds struct {
	FailureRateMax  float64
	ProfileShareMax float64
	DefaultShareMax float64
	MonthlyBudget   int
}

// DefaultThresholds возвращает стандартные пороги.
func DefaultThresholds() Thresholds {
	return Thresholds{FailureRateMax: 0.05, ProfileShareMax: 0.6, DefaultShareMax: 0.3, MonthlyBudget: 1000}
}

// Monitor проверяет состояние рассылок по журналу. Между запусками состояния не хранит.
type Monitor struct {
	stats   domain.DeliveryStats
	alerter domain.Alerter
	th      Thresholds
	logger  zerolog.Logger
	now     func() time.Time
	loc     *time.Location
}

// Option настраивает Monitor.
type Option func(*Monitor)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLocation задаёт часовой пояс, в котором считается начало месяца.
func WithLocation(loc *time.Location) Option {
	return func(m *Monitor) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// NewMonitor создаёт монитор. alerter может быть nil.
func NewMonitor(stats domain.DeliveryStats, alerter domain.Alerter, th Thresholds, logger zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		stats:   stats,
		alerter: alerter,
		th:      th,
		logger:  logger.With().Str("component", "health").Logger(),
		now:     time.Now,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// MonthStart возвращает первое число месяца t в поясе loc.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// CheckFailureRate считает долю неудачных доставок за последние сутки. При 0 из 0 тревоги нет.
func (m *Monitor) CheckFailureRate(ctx context.Context) (domain.FailureRateReport, error) {
	if m.stats == nil {
		return domain.FailureRateReport{}, domain.ErrServiceUnavailable
	}
	since := m.now().Add(-failureWindow)
	report := domain.FailureRateReport{WindowStart: since}

	total, err := m.stats.CountAttempts(ctx, domain.AttemptFilter{Since: &since, Statuses: domain.DispatchedStatuses})
	if err != nil {
		return report, fmt.Errorf("подсчёт отправок: %w", err)
	}
	failures, err := m.stats.CountAttempts(ctx, domain.AttemptFilter{Since: &since, Statuses: domain.FailureStatuses})
	if err != nil {
		return report, fmt.Errorf("подсчёт ошибок: %w", err)
	}

	report.TotalSent = total
	report.FailureCount = failures
	if total > 0 {
		report.FailureRate = round(float64(failures) / float64(total))
	}
	report.Alert = total > 0 && report.FailureRate > m.th.FailureRateMax
	return report, nil
}

// CheckBudget сравнивает число отправок с начала месяца с месячным лимитом.
// Счётчик не сбрасывается: начало месяца вычисляется из текущего времени.
func (m *Monitor) CheckBudget(ctx context.Context) (domain.BudgetReport, error) {
	if m.stats == nil {
		return domain.BudgetReport{}, domain.ErrServiceUnavailable
	}
	start := MonthStart(m.now(), m.loc)
	end := start.AddDate(0, 1, 0)
	report := domain.BudgetReport{MonthStart: start, BudgetLimit: m.th.MonthlyBudget, Tier: domain.BudgetTierOK}

	used, err := m.stats.CountAttempts(ctx, domain.AttemptFilter{Since: &start, Until: &end, Statuses: domain.DispatchedStatuses})
	if err != nil {
		return report, fmt.Errorf("подсчёт бюджета: %w", err)
	}
	report.BudgetUsed = used
	if m.th.MonthlyBudget > 0 {
		ratio := float64(used) / float64(m.th.MonthlyBudget)
		report.UsedPct = round(ratio * 100)
		report.Tier = BudgetTierFor(ratio)
	}
	report.Alert = report.Tier != domain.BudgetTierOK
	return report, nil
}

// BudgetTierFor переводит долю использованного бюджета в уровень.
func BudgetTierFor(ratio float64) domain.BudgetTier {
	switch {
	case ratio >= 1:
		return domain.BudgetTierCritical
	case ratio >= 0.9:
		return domain.BudgetTierWarning
	case ratio >= 0.8:
		return domain.BudgetTierInfo
	default:
		return domain.BudgetTierOK
	}
}

// CheckDistribution проверяет перекос профилей с начала месяца. Без отправок тревоги нет.
func (m *Monitor) CheckDistribution(ctx context.Context) (domain.DistributionReport, error) {
	if m.stats == nil {
		return domain.DistributionReport{}, domain.ErrServiceUnavailable
	}
	start := MonthStart(m.now(), m.loc)
	report := domain.DistributionReport{MonthStart: start, Distribution: make(map[domain.ProfileCode]domain.ProfileShare)}

	stats, err := m.stats.ProfileDistribution(ctx, start, start.AddDate(0, 1, 0))
	if err != nil {
		return report, fmt.Errorf("распределение профилей: %w", err)
	}
	for _, st := range stats {
		report.Total += st.Count
	}
	if report.Total == 0 {
		return report, nil
	}

	for _, st := range stats {
		share := float64(st.Count) / float64(report.Total)
		report.Distribution[st.Profile] = domain.ProfileShare{
			Count:         st.Count,
			Pct:           round(share * 100),
			AvgConfidence: round(st.AvgConfidence),
		}
		if share > m.th.ProfileShareMax {
			report.Alert = true
			report.Messages = append(report.Messages, fmt.Sprintf("профиль %s занимает %.1f%% отправок (порог %.0f%%): возможен перекос классификатора", st.Profile, share*100, m.th.ProfileShareMax*100))
		}
		if st.Profile == domain.ProfileDefault && share > m.th.DefaultShareMax {
			report.Alert = true
			report.Messages = append(report.Messages, fmt.Sprintf("профиль Default занимает %.1f%% отправок (порог %.0f%%): классификатору не хватает сигналов", share*100, m.th.DefaultShareMax*100))
		}
	}
	return report, nil
}

// Snapshot выполняет все три проверки и объединяет их в один снимок.
func (m *Monitor) Snapshot(ctx context.Context) (domain.HealthSnapshot, error) {
	failure, err := m.CheckFailureRate(ctx)
	if err != nil {
		return domain.HealthSnapshot{}, err
	}
	budget, err := m.CheckBudget(ctx)
	if err != nil {
		return domain.HealthSnapshot{}, err
	}
	dist, err := m.CheckDistribution(ctx)
	if err != nil {
		return domain.HealthSnapshot{}, err
	}

	snap := domain.HealthSnapshot{
		WindowStart:         failure.WindowStart,
		TotalSent:           failure.TotalSent,
		FailureCount:        failure.FailureCount,
		FailureRate:         failure.FailureRate,
		BudgetUsed:          budget.BudgetUsed,
		BudgetLimit:         budget.BudgetLimit,
		BudgetTier:          budget.Tier,
		ProfileDistribution: dist.Distribution,
		Alerts:              []domain.Alert{},
		GeneratedAt:         m.now().UTC(),
	}
	if failure.Alert {
		snap.Alerts = append(snap.Alerts, domain.Alert{
			Check:   domain.CheckFailureRate,
			Level:   domain.BudgetTierCritical,
			Message: fmt.Sprintf("доля ошибок доставки %.1f%% за 24 ч (%d из %d), порог %.1f%%", failure.FailureRate*100, failure.FailureCount, failure.TotalSent, m.th.FailureRateMax*100),
		})
	}
	if budget.Alert {
		snap.Alerts = append(snap.Alerts, domain.Alert{
			Check:   domain.CheckBudget,
			Level:   budget.Tier,
			Message: fmt.Sprintf("израсходовано %.0f%% месячного бюджета SMS (%d из %d)", budget.UsedPct, budget.BudgetUsed, budget.BudgetLimit),
		})
	}
	for _, msg := range dist.Messages {
		snap.Alerts = append(snap.Alerts, domain.Alert{Check: domain.CheckDistribution, Level: domain.BudgetTierWarning, Message: msg})
	}
	snap.AttentionNeeded = failure.Alert || budget.Alert || dist.Alert

	m.export(snap, budget)
	return snap, nil
}

// Run снимает состояние и, если нужна реакция, отправляет оповещение.
func (m *Monitor) Run(ctx context.Context) (domain.HealthSnapshot, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return snap, err
	}
	if !snap.AttentionNeeded {
		m.logger.Debug().Float64("failure_rate", snap.FailureRate).Int("budget_used", snap.BudgetUsed).Msg("health: всё в норме")
		return snap, nil
	}
	m.logger.Warn().Int("alerts", len(snap.Alerts)).Msg("health: требуется внимание")
	if m.alerter != nil {
		if err := m.alerter.Notify(ctx, snap); err != nil {
			m.logger.Error().Err(err).Msg("health: не удалось отправить оповещение")
		}
	}
	return snap, nil
}

func (m *Monitor) export(snap domain.HealthSnapshot, budget domain.BudgetReport) {
	metrics.HealthFailureRate.Set(snap.FailureRate)
	metrics.HealthBudgetUsedRatio.Set(budget.UsedPct / 100)
	for _, code := range domain.AllProfiles {
		metrics.SetProfileShare(string(code), snap.ProfileDistribution[code].Pct/100)
	}
	metrics.SetAttention(snap.AttentionNeeded)
}

// SortedAlerts возвращает замечания, упорядоченные по важности.
func SortedAlerts(alerts []domain.Alert) []domain.Alert {
	out := slices.Clone(alerts)
	slices.SortStableFunc(out, func(a, b domain.Alert) int {
		return severity(b.Level) - severity(a.Level)
	})
	return out
}

func severity(level domain.BudgetTier) int {
	switch level {
	case domain.BudgetTierCritical:
		return 3
	case domain.BudgetTierWarning:
		return 2
	case domain.BudgetTierInfo:
		return 1
	}
	return 0
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
