package alerting

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guest-messaging/internal/adapters/telegram"
	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
	"guest-messaging/internal/usecase/health"
)

// Sender отправляет сообщение в Telegram. *tgbotapi.BotAPI удовлетворяет интерфейсу.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram доставляет замечания монитора в служебный чат.
type Telegram struct {
	bot    Sender
	chatID int64
}

var _ domain.Alerter = (*Telegram)(nil)

// NewTelegram создаёт канал оповещений.
func NewTelegram(bot Sender, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

// Notify отправляет снимок в чат, разбивая длинный текст на части.
func (t *Telegram) Notify(ctx context.Context, snap domain.HealthSnapshot) error {
	for _, part := range telegram.SplitMessage(FormatSnapshot(snap)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		start := time.Now()
		_, err := t.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_alert", "ops_chat", start, err)
		if err != nil {
			return fmt.Errorf("telegram alert: %w", err)
		}
	}
	return nil
}

// FormatSnapshot формирует HTML-текст оповещения.
func FormatSnapshot(snap domain.HealthSnapshot) string {
	var b strings.Builder
	b.WriteString("🚨 <b>Рассылки SMS требуют внимания</b>\n")
	for _, alert := range health.SortedAlerts(snap.Alerts) {
		b.WriteString(fmt.Sprintf("%s %s\n", levelIcon(alert.Level), html.EscapeString(alert.Message)))
	}

	b.WriteString(fmt.Sprintf("\n📊 За 24 ч: %d отправок, ошибок %d (%.1f%%)\n", snap.TotalSent, snap.FailureCount, snap.FailureRate*100))
	if snap.BudgetLimit > 0 {
		b.WriteString(fmt.Sprintf("💶 Бюджет месяца: %d из %d (%s)\n", snap.BudgetUsed, snap.BudgetLimit, snap.BudgetTier))
	}

	if len(snap.ProfileDistribution) > 0 {
		codes := make([]string, 0, len(snap.ProfileDistribution))
		for code := range snap.ProfileDistribution {
			codes = append(codes, string(code))
		}
		sort.Strings(codes)
		b.WriteString("\n<b>Профили с начала месяца</b>\n")
		for _, code := range codes {
			share := snap.ProfileDistribution[domain.ProfileCode(code)]
			b.WriteString(fmt.Sprintf("• %s: %d (%.1f%%), уверенность %.2f\n", code, share.Count, share.Pct, share.AvgConfidence))
		}
	}
	return strings.TrimSpace(b.String())
}

func levelIcon(level domain.BudgetTier) string {
	switch level {
	case domain.BudgetTierCritical:
		return "🔴"
	case domain.BudgetTierWarning:
		return "🟠"
	case domain.BudgetTierInfo:
		return "🔵"
	}
	return "⚪️"
}
