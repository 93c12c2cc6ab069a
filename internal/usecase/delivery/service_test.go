package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/ratelimit"
	"guest-messaging/internal/usecase/profile"
	"guest-messaging/internal/usecase/templates"
)

var testNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

type stubProvider struct {
	mu     sync.Mutex
	calls  []string
	err    error
	delay  time.Duration
	status string
}

func (p *stubProvider) Create(ctx context.Context, to, from, body string) (domain.ProviderMessage, error) {
	p.mu.Lock()
	p.calls = append(p.calls, to)
	n := len(p.calls)
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.ProviderMessage{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return domain.ProviderMessage{}, p.err
	}
	status := p.status
	if status == "" {
		status = "queued"
	}
	return domain.ProviderMessage{Reference: fmt.Sprintf("SM%d", n), Status: status}, nil
}

func (p *stubProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type stubLedger struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
	ctxErr   []error
}

func (l *stubLedger) CreateAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	l.ctxErr = append(l.ctxErr, ctx.Err())
	return nil
}

func (l *stubLedger) UpdateStatusByRef(_ context.Context, ref string, status domain.DeliveryStatus, deliveredAt *time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.attempts {
		if l.attempts[i].ProviderRef != ref {
			continue
		}
		if !domain.CanTransition(l.attempts[i].Status, status) {
			return false, nil
		}
		l.attempts[i].Status = status
		l.attempts[i].DeliveredAt = deliveredAt
		return true, nil
	}
	return false, domain.ErrAttemptNotFound
}

type stubDetections struct {
	items []domain.ProfileDetection
}

func (d *stubDetections) RecordDetection(_ context.Context, detection domain.ProfileDetection) error {
	d.items = append(d.items, detection)
	return nil
}

type stubClassifier struct {
	result domain.ProfileResult
}

func (c stubClassifier) DetectProfile(domain.BookingSignal) domain.ProfileResult {
	return c.result
}

func newTestService(provider domain.SMSProvider, ledger *stubLedger, detections *stubDetections, classifier Classifier, opts ...Option) *Service {
	cfg := Config{
		FromNumber:            "+33700000000",
		DefaultCountryCode:    "33",
		SendTimeout:           time.Second,
		BulkDelay:             time.Second,
		AdaptiveMinConfidence: 0.6,
	}
	limiter := ratelimit.NewMemory(10, time.Minute, ratelimit.WithClock(func() time.Time { return testNow }))
	base := []Option{WithClock(func() time.Time { return testNow })}
	return NewService(provider, limiter, ledger, detections, classifier, templates.DefaultRegistry(), cfg, zerolog.Nop(), append(base, opts...)...)
}

func TestSendRateLimitAfterTenMessages(t *testing.T) {
	provider := &stubProvider{}
	ledger := &stubLedger{}
	svc := newTestService(provider, ledger, nil, nil)

	var last domain.SendResult
	for i := 0; i < 11; i++ {
		res, err := svc.Send(context.Background(), "06 12 34 56 78", "Bonjour", domain.SendMeta{})
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		last = res
	}
	if provider.count() != 10 {
		t.Fatalf("ожидали 10 вызовов провайдера, получили %d", provider.count())
	}
	if last.Success || last.FailureReason != domain.ReasonRateLimited {
		t.Fatalf("ожидали RATE_LIMIT_DEPASSE, получили %+v", last)
	}
	if len(ledger.attempts) != 11 {
		t.Fatalf("каждая попытка должна попасть в журнал, записей %d", len(ledger.attempts))
	}
	if ledger.attempts[10].Status != domain.DeliveryRateLimited {
		t.Fatalf("неожиданный статус: %s", ledger.attempts[10].Status)
	}
}

func TestSendInvalidNumber(t *testing.T) {
	provider := &stubProvider{}
	ledger := &stubLedger{}
	svc := newTestService(provider, ledger, nil, nil)

	res, err := svc.Send(context.Background(), "12", "Bonjour", domain.SendMeta{})
	if err != nil {
		t.Fatalf("ошибка валидации не должна возвращаться как error: %v", err)
	}
	if res.Success || res.FailureReason != domain.ReasonInvalidNumber {
		t.Fatalf("ожидали NUMERO_INVALIDE, получили %+v", res)
	}
	if provider.count() != 0 {
		t.Fatalf("провайдер не должен вызываться")
	}
	if len(ledger.attempts) != 1 || ledger.attempts[0].Status != domain.DeliveryRejected {
		t.Fatalf("ожидали запись об отклонении: %+v", ledger.attempts)
	}
}

func TestSendWithoutProviderIsDisabled(t *testing.T) {
	ledger := &stubLedger{}
	svc := newTestService(nil, ledger, nil, nil)

	res, err := svc.Send(context.Background(), "+33612345678", "Bonjour", domain.SendMeta{})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.FailureReason != domain.ReasonServiceDisabled || svc.Enabled() {
		t.Fatalf("ожидали SERVICE_DESACTIVE, получили %+v", res)
	}
}

func TestSendProviderErrorIsReturned(t *testing.T) {
	provider := &stubProvider{err: errors.New("auth failed")}
	ledger := &stubLedger{}
	svc := newTestService(provider, ledger, nil, nil)

	res, err := svc.Send(context.Background(), "+33612345678", "Bonjour", domain.SendMeta{})
	var de *domain.DeliveryError
	if !errors.As(err, &de) || de.Kind != domain.ErrorKindProvider || de.Reason != domain.ReasonProviderError {
		t.Fatalf("ожидали ошибку провайдера, получили %v", err)
	}
	if res.Success || len(ledger.attempts) != 1 || ledger.attempts[0].Status != domain.DeliveryFailed {
		t.Fatalf("ожидали запись о неудаче: %+v / %+v", res, ledger.attempts)
	}
}

func TestSendProviderFailureStatusIsRecordedAsFailed(t *testing.T) {
	provider := &stubProvider{status: "undelivered"}
	ledger := &stubLedger{}
	svc := newTestService(provider, ledger, nil, nil)

	res, err := svc.Send(context.Background(), "+33612345678", "Bonjour", domain.SendMeta{})
	var de *domain.DeliveryError
	if !errors.As(err, &de) || de.Kind != domain.ErrorKindProvider || de.Reason != domain.ReasonProviderError {
		t.Fatalf("ожидали ошибку провайдера, получили %v", err)
	}
	if res.Success || res.FailureReason != domain.ReasonProviderError || res.ProviderRef != "SM1" {
		t.Fatalf("ожидали неуспешный результат со ссылкой, получили %+v", res)
	}
	if len(ledger.attempts) != 1 || ledger.attempts[0].Status != domain.DeliveryUndelivered {
		t.Fatalf("ожидали запись со статусом undelivered: %+v", ledger.attempts)
	}
}

func TestSendTimeoutCompletesLedgerWrite(t *testing.T) {
	provider := &stubProvider{delay: time.Second}
	ledger := &stubLedger{}
	svc := newTestService(provider, ledger, nil, nil)
	svc.cfg.SendTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := svc.Send(ctx, "+33612345678", "Bonjour", domain.SendMeta{})
	if err == nil || res.FailureReason != domain.ReasonTimeout {
		t.Fatalf("ожидали DELAI_DEPASSE, получили %+v (%v)", res, err)
	}
	if len(ledger.attempts) != 1 || ledger.ctxErr[0] != nil {
		t.Fatalf("запись в журнал должна пройти с живым контекстом: %+v", ledger.ctxErr)
	}
}

func TestSendTemplatedUnknownTemplate(t *testing.T) {
	provider := &stubProvider{}
	svc := newTestService(provider, &stubLedger{}, nil, nil)

	res, err := svc.SendTemplated(context.Background(), "+33612345678", "newsletter", domain.ProfileFamily, nil)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.FailureReason != domain.ReasonUnknownTemplate || provider.count() != 0 {
		t.Fatalf("ожидали TEMPLATE_INCONNU без вызова провайдера, получили %+v", res)
	}
}

func TestSendAdaptiveDowngradesLowConfidence(t *testing.T) {
	ledger := &stubLedger{}
	detections := &stubDetections{}
	classifier := stubClassifier{result: domain.ProfileResult{Profile: domain.ProfileFamily, Confidence: 0.5, Reasons: []string{"children_present"}}}
	svc := newTestService(&stubProvider{}, ledger, detections, classifier)

	res, err := svc.SendAdaptive(context.Background(), "+33612345678", templates.Welcome, domain.BookingSignal{}, templates.Vars{"guestName": "Léa"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.ProfileUsed != domain.ProfileDefault {
		t.Fatalf("ожидали Default при уверенности 0.5, получили %s", res.ProfileUsed)
	}
	if len(detections.items) != 1 {
		t.Fatalf("ожидали одну запись классификации, получили %d", len(detections.items))
	}
	d := detections.items[0]
	if d.Detected != domain.ProfileFamily || d.Used != domain.ProfileDefault || d.AttemptID != res.AttemptID {
		t.Fatalf("неожиданная запись классификации: %+v", d)
	}
	if ledger.attempts[0].ProfileUsed != domain.ProfileDefault {
		t.Fatalf("в журнале должен быть использованный профиль")
	}
}

func TestSendAdaptiveUsesConfidentProfile(t *testing.T) {
	detections := &stubDetections{}
	svc := newTestService(&stubProvider{}, &stubLedger{}, detections, profile.NewDetector())

	signal := domain.BookingSignal{GuestCount: 2, StayDurationDays: 3, PropertyCategory: domain.PropertyApartment, StayDate: testNow}
	res, err := svc.SendAdaptive(context.Background(), "+33612345678", templates.Welcome, signal, templates.Vars{"guestName": "Léa"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.ProfileUsed != domain.ProfileEscape || !res.Success {
		t.Fatalf("ожидали отправку с профилем Escape, получили %+v", res)
	}
}

func TestSendBulkContinuesAfterFailures(t *testing.T) {
	provider := &stubProvider{}
	var slept []time.Duration
	sleeper := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	svc := newTestService(provider, &stubLedger{}, nil, nil, WithSleeper(sleeper))

	recipients := []domain.BulkRecipient{
		{To: "+33612345678", Variables: map[string]any{"guestName": "Léa"}},
		{To: "bad"},
		{To: "0698765432", Variables: map[string]any{"guestName": "Tom"}},
	}
	report, err := svc.SendBulkTemplated(context.Background(), templates.CheckoutReminder, domain.ProfileTraveler, recipients)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if report.Total != 3 || report.Sent != 2 || report.Failed != 1 {
		t.Fatalf("неожиданный отчёт: %+v", report)
	}
	if report.PerProfileCounts[domain.ProfileTraveler] != 2 {
		t.Fatalf("неожиданные счётчики профилей: %v", report.PerProfileCounts)
	}
	if report.Details[1].FailureReason != domain.ReasonInvalidNumber {
		t.Fatalf("ожидали NUMERO_INVALIDE для второго получателя: %+v", report.Details[1])
	}
	if len(slept) != 2 || slept[0] != time.Second {
		t.Fatalf("ожидали две паузы по 1s, получили %v", slept)
	}
}

func TestSendBulkProviderErrorDoesNotAbort(t *testing.T) {
	provider := &stubProvider{err: errors.New("gateway down")}
	svc := newTestService(provider, &stubLedger{}, nil, nil, WithSleeper(func(context.Context, time.Duration) error { return nil }))

	report, err := svc.SendBulkTemplated(context.Background(), templates.OTP, domain.ProfileDefault, []domain.BulkRecipient{
		{To: "+33612345678", Variables: map[string]any{"code": "1"}},
		{To: "+33612345679", Variables: map[string]any{"code": "2"}},
	})
	if err != nil {
		t.Fatalf("ошибка провайдера не должна прерывать пакет: %v", err)
	}
	if report.Failed != 2 || provider.count() != 2 {
		t.Fatalf("ожидали две неудачные попытки, получили %+v", report)
	}
	if report.Details[0].FailureReason != domain.ReasonProviderError {
		t.Fatalf("неожиданная причина: %s", report.Details[0].FailureReason)
	}
}

func TestSendBulkAdaptive(t *testing.T) {
	detections := &stubDetections{}
	svc := newTestService(&stubProvider{}, &stubLedger{}, detections, profile.NewDetector(), WithSleeper(func(context.Context, time.Duration) error { return nil }))

	recipients := []domain.BulkRecipient{
		{To: "+33612345678", Signal: &domain.BookingSignalDTO{GuestCount: 2, StayDurationDays: 3, PropertyCategory: "apartment", StayDate: testNow}},
		{To: "+33612345679"},
	}
	report, err := svc.SendBulkAdaptive(context.Background(), templates.Welcome, recipients)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if report.PerProfileCounts[domain.ProfileEscape] != 1 || report.PerProfileCounts[domain.ProfileDefault] != 1 {
		t.Fatalf("неожиданные счётчики профилей: %v", report.PerProfileCounts)
	}
	if len(detections.items) != 1 {
		t.Fatalf("классификация записывается только для получателей с сигналом, записей %d", len(detections.items))
	}
}

func TestSendBulkUnknownTemplate(t *testing.T) {
	svc := newTestService(&stubProvider{}, &stubLedger{}, nil, nil)
	_, err := svc.SendBulkTemplated(context.Background(), "newsletter", domain.ProfileDefault, []domain.BulkRecipient{{To: "+33612345678"}})
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("ожидали ErrTemplateNotFound, получили %v", err)
	}
}

func TestHandleStatusCallback(t *testing.T) {
	ledger := &stubLedger{}
	svc := newTestService(&stubProvider{}, ledger, nil, nil)
	ctx := context.Background()

	res, err := svc.Send(ctx, "+33612345678", "Bonjour", domain.SendMeta{})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	updated, err := svc.HandleStatusCallback(ctx, res.ProviderRef, "delivered", nil)
	if err != nil || !updated {
		t.Fatalf("ожидали обновление, получили %v (%v)", updated, err)
	}
	if ledger.attempts[0].DeliveredAt == nil || !ledger.attempts[0].DeliveredAt.Equal(testNow) {
		t.Fatalf("ожидали время доставки %s", testNow)
	}

	// повтор и откат назад не меняют запись
	if updated, _ := svc.HandleStatusCallback(ctx, res.ProviderRef, "delivered", nil); updated {
		t.Fatalf("повтор не должен менять запись")
	}
	if updated, _ := svc.HandleStatusCallback(ctx, res.ProviderRef, "sent", nil); updated {
		t.Fatalf("статус не должен двигаться назад")
	}

	if updated, err := svc.HandleStatusCallback(ctx, "SM-unknown", "failed", nil); updated || err != nil {
		t.Fatalf("неизвестная ссылка ничего не меняет, получили %v (%v)", updated, err)
	}

	if _, err := svc.HandleStatusCallback(ctx, res.ProviderRef, "exploded", nil); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного статуса")
	}
}

func TestHandleStatusCallbackWithoutLedger(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, nil, Config{}, zerolog.Nop())
	if _, err := svc.HandleStatusCallback(context.Background(), "SM1", "delivered", nil); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("ожидали ErrServiceUnavailable, получили %v", err)
	}
}
