package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guest-messaging/internal/domain"
)

type stubSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *stubSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func testSnapshot() domain.HealthSnapshot {
	return domain.HealthSnapshot{
		TotalSent:    10,
		FailureCount: 7,
		FailureRate:  0.7,
		BudgetUsed:   20,
		BudgetLimit:  20,
		BudgetTier:   domain.BudgetTierCritical,
		ProfileDistribution: map[domain.ProfileCode]domain.ProfileShare{
			domain.ProfileEscape: {Count: 3, Pct: 75, AvgConfidence: 0.7},
			domain.ProfileFamily: {Count: 1, Pct: 25, AvgConfidence: 0.8},
		},
		Alerts: []domain.Alert{
			{Check: domain.CheckBudget, Level: domain.BudgetTierCritical, Message: "budget <100%>"},
			{Check: domain.CheckDistribution, Level: domain.BudgetTierWarning, Message: "skew"},
		},
		AttentionNeeded: true,
	}
}

func TestNotifySendsHTMLToChat(t *testing.T) {
	sender := &stubSender{}
	if err := NewTelegram(sender, -1001).Notify(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("ожидали одно сообщение, получили %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.ChatID != -1001 || msg.ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("неожиданные параметры сообщения: %+v", msg)
	}
	if !strings.Contains(msg.Text, "budget &lt;100%&gt;") {
		t.Fatalf("текст замечаний должен экранироваться: %q", msg.Text)
	}
}

func TestNotifyPropagatesError(t *testing.T) {
	sender := &stubSender{err: errors.New("forbidden")}
	if err := NewTelegram(sender, 1).Notify(context.Background(), testSnapshot()); err == nil {
		t.Fatalf("ожидали ошибку отправки")
	}
}

func TestFormatSnapshotOrdersProfiles(t *testing.T) {
	text := FormatSnapshot(testSnapshot())
	escape := strings.Index(text, "Escape")
	family := strings.Index(text, "Family")
	if escape < 0 || family < 0 || escape > family {
		t.Fatalf("профили должны идти по алфавиту: %q", text)
	}
	if !strings.Contains(text, "20 из 20") {
		t.Fatalf("ожидали строку бюджета: %q", text)
	}
}
