package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"guest-messaging/internal/domain"
	"guest-messaging/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	apiVersion     = "2010-04-01"
	maxBodyBytes   = 16 * 1024
)

// APIError — ответ Twilio с кодом ошибки.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("twilio: error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("twilio: http %d: %s", e.StatusCode, e.Message)
}

// Temporary сообщает, имеет ли смысл повторить запрос позже.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client отправляет SMS через Twilio Messages API.
type Client struct {
	http       *http.Client
	baseURL    string
	accountSID string
	authToken  string
}

var _ domain.SMSProvider = (*Client)(nil)

// NewClient создаёт клиента Twilio.
func NewClient(accountSID, authToken, baseURL string, timeout time.Duration) (*Client, error) {
	accountSID = strings.TrimSpace(accountSID)
	authToken = strings.TrimSpace(authToken)
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio: account sid and auth token are required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
	}, nil
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Create отправляет сообщение и возвращает идентификатор и статус провайдера.
func (c *Client) Create(ctx context.Context, to, from, body string) (domain.ProviderMessage, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/%s/Accounts/%s/Messages.json", c.baseURL, apiVersion, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.ProviderMessage{}, fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("twilio", "messages_create", "sms", start, err)
		return domain.ProviderMessage{}, fmt.Errorf("twilio: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveNetworkRequest("twilio", "messages_create", "sms", start, err)
		return domain.ProviderMessage{}, fmt.Errorf("twilio: read response: %w", err)
	}

	var parsed messageResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: parsed.Code, Message: parsed.Message}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("twilio", "messages_create", "sms", start, apiErr)
		return domain.ProviderMessage{}, apiErr
	}
	if decodeErr != nil {
		metrics.ObserveNetworkRequest("twilio", "messages_create", "sms", start, decodeErr)
		return domain.ProviderMessage{}, fmt.Errorf("twilio: decode response: %w", decodeErr)
	}
	if parsed.SID == "" {
		err := errors.New("twilio: response without sid")
		metrics.ObserveNetworkRequest("twilio", "messages_create", "sms", start, err)
		return domain.ProviderMessage{}, err
	}
	metrics.ObserveNetworkRequest("twilio", "messages_create", "sms", start, nil)
	return domain.ProviderMessage{Reference: parsed.SID, Status: parsed.Status}, nil
}
