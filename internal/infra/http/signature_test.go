package http

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func sign(token, fullURL string, form url.Values) string {
	return base64.StdEncoding.EncodeToString(twilioSignature(token, fullURL, form))
}

func TestValidTwilioSignature(t *testing.T) {
	form := url.Values{"MessageSid": {"SM42"}, "MessageStatus": {"delivered"}}
	fullURL := "https://ops.example.com/webhooks/sms/status"
	sig := sign("secret", fullURL, form)

	if !ValidTwilioSignature("secret", fullURL, form, sig) {
		t.Fatalf("ожидали валидную подпись")
	}
	if ValidTwilioSignature("other", fullURL, form, sig) {
		t.Fatalf("подпись с чужим токеном не должна проходить")
	}
	form.Set("MessageStatus", "failed")
	if ValidTwilioSignature("secret", fullURL, form, sig) {
		t.Fatalf("изменённая форма не должна проходить")
	}
	if ValidTwilioSignature("secret", fullURL, form, "%%%") {
		t.Fatalf("некорректный base64 не должен проходить")
	}
}

func TestTwilioSignatureMiddleware(t *testing.T) {
	called := false
	handler := TwilioSignatureMiddleware("secret", "https://ops.example.com/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	form := url.Values{"MessageSid": {"SM42"}, "MessageStatus": {"delivered"}}
	newReq := func(sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/sms/status", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			req.Header.Set(TwilioSignatureHeader, sig)
		}
		return req
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq(""))
	if rec.Code != http.StatusUnauthorized || called {
		t.Fatalf("без подписи ожидали 401, получили %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq(sign("secret", "https://ops.example.com/webhooks/sms/status", form)))
	if rec.Code != http.StatusNoContent || !called {
		t.Fatalf("с подписью ожидали 204, получили %d", rec.Code)
	}
}
