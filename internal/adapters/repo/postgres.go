package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
)

// Postgres реализует журнал доставки на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.DeliveryLedger       = (*Postgres)(nil)
	_ domain.DeliveryStats        = (*Postgres)(nil)
	_ domain.ProfileDetectionRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// CreateAttempt сохраняет попытку отправки.
func (p *Postgres) CreateAttempt(ctx context.Context, a domain.DeliveryAttempt) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO delivery_attempts (id, recipient, body, template_name, profile_used, status, failure_reason, provider_ref, duration_ms, created_at, delivered_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $10)
`, a.ID, a.Recipient, a.Body, nullString(a.TemplateName), nullString(string(a.ProfileUsed)), string(a.Status),
		nullString(string(a.FailureReason)), nullString(a.ProviderRef), a.DurationMs, a.CreatedAt, a.DeliveredAt)
	metrics.ObserveNetworkRequest("postgres", "delivery_attempts_insert", "delivery_attempts", start, err)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// UpdateStatusByRef продвигает статус попытки только вперёд. Повтор и откат возвращают false;
// для неизвестной ссылки возвращается domain.ErrAttemptNotFound.
func (p *Postgres) UpdateStatusByRef(ctx context.Context, providerRef string, status domain.DeliveryStatus, deliveredAt *time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	sources := statusStrings(domain.SourceStatuses(status))
	if len(sources) > 0 {
		start := time.Now()
		tag, err := p.pool.Exec(ctx, `
UPDATE delivery_attempts
SET status = $2,
    delivered_at = COALESCE($3, delivered_at),
    updated_at = now()
WHERE provider_ref = $1 AND status = ANY($4)
`, providerRef, string(status), deliveredAt, sources)
		metrics.ObserveNetworkRequest("postgres", "delivery_attempts_update_status", "delivery_attempts", start, err)
		if err != nil {
			return false, fmt.Errorf("update status: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return true, nil
		}
	}

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM delivery_attempts WHERE provider_ref = $1)`, providerRef).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "delivery_attempts_exists", "delivery_attempts", start, err)
	if err != nil {
		return false, fmt.Errorf("check attempt: %w", err)
	}
	if !exists {
		return false, domain.ErrAttemptNotFound
	}
	return false, nil
}

// CountAttempts считает попытки по фильтру.
func (p *Postgres) CountAttempts(ctx context.Context, filter domain.AttemptFilter) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	where, args := buildAttemptFilter(filter)
	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_attempts`+where, args...).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "delivery_attempts_count", "delivery_attempts", start, err)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// CountByStatus группирует попытки окна по статусу.
func (p *Postgres) CountByStatus(ctx context.Context, since, until time.Time) ([]domain.StatusCount, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT status, COUNT(*)
FROM delivery_attempts
WHERE created_at >= $1 AND created_at < $2
GROUP BY status
ORDER BY status
`, since, until)
	metrics.ObserveNetworkRequest("postgres", "delivery_attempts_count_by_status", "delivery_attempts", start, err)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusCount, error) {
		var (
			sc     domain.StatusCount
			status string
		)
		err := row.Scan(&status, &sc.Count)
		sc.Status = domain.DeliveryStatus(status)
		return sc, err
	})
}

// CountByTemplate группирует попытки окна по шаблону. Отправки без шаблона попадают в пустое имя.
func (p *Postgres) CountByTemplate(ctx context.Context, since, until time.Time) ([]domain.TemplateCount, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT COALESCE(template_name, ''), COUNT(*)
FROM delivery_attempts
WHERE created_at >= $1 AND created_at < $2
GROUP BY 1
ORDER BY 1
`, since, until)
	metrics.ObserveNetworkRequest("postgres", "delivery_attempts_count_by_template", "delivery_attempts", start, err)
	if err != nil {
		return nil, fmt.Errorf("count by template: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TemplateCount, error) {
		var tc domain.TemplateCount
		err := row.Scan(&tc.TemplateName, &tc.Count)
		return tc, err
	})
}

// RecordDetection сохраняет результат адаптивной классификации.
func (p *Postgres) RecordDetection(ctx context.Context, d domain.ProfileDetection) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	reasons := d.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	keywords := d.KeywordsFound
	if keywords == nil {
		keywords = []string{}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO profile_detections (id, attempt_id, recipient, template_name, detected, used, confidence, reasons, keywords_found, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, d.ID, nullString(d.AttemptID), d.Recipient, d.TemplateName, string(d.Detected), string(d.Used), d.Confidence, reasons, keywords, d.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "profile_detections_insert", "profile_detections", start, err)
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

// ProfileDistribution возвращает количество и среднюю уверенность по использованному профилю
// среди отправок, дошедших до провайдера.
func (p *Postgres) ProfileDistribution(ctx context.Context, since, until time.Time) ([]domain.ProfileStat, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT d.used, COUNT(*), COALESCE(AVG(d.confidence), 0)
FROM profile_detections d
JOIN delivery_attempts a ON a.id = d.attempt_id
WHERE d.created_at >= $1 AND d.created_at < $2 AND a.status = ANY($3)
GROUP BY d.used
ORDER BY d.used
`, since, until, statusStrings(domain.DispatchedStatuses))
	metrics.ObserveNetworkRequest("postgres", "profile_detections_distribution", "profile_detections", start, err)
	if err != nil {
		return nil, fmt.Errorf("profile distribution: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ProfileStat, error) {
		var (
			ps   domain.ProfileStat
			code string
		)
		err := row.Scan(&code, &ps.Count, &ps.AvgConfidence)
		ps.Profile = domain.ProfileCode(code)
		return ps, err
	})
}

// buildAttemptFilter собирает WHERE для AttemptFilter. Пустой фильтр даёт пустую строку.
func buildAttemptFilter(filter domain.AttemptFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Since != nil {
		add("created_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("created_at < $%d", *filter.Until)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(filter.Statuses))
	}
	if filter.TemplateName != nil {
		add("template_name = $%d", *filter.TemplateName)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func statusStrings(statuses []domain.DeliveryStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
