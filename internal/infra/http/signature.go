package http

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// TwilioSignatureHeader — заголовок с подписью уведомления Twilio.
const TwilioSignatureHeader = "X-Twilio-Signature"

// TwilioSignatureMiddleware проверяет подпись уведомлений Twilio по auth token.
// publicURL — внешний адрес сервиса, на который Twilio шлёт запросы.
func TwilioSignatureMiddleware(authToken, publicURL string) func(http.Handler) http.Handler {
	base := strings.TrimRight(publicURL, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signature := r.Header.Get(TwilioSignatureHeader)
			if signature == "" {
				WriteError(w, http.StatusUnauthorized, "подпись отсутствует")
				return
			}
			if err := r.ParseForm(); err != nil {
				WriteError(w, http.StatusBadRequest, "некорректная форма")
				return
			}
			if !ValidTwilioSignature(authToken, base+r.URL.RequestURI(), r.PostForm, signature) {
				WriteError(w, http.StatusUnauthorized, "подпись недействительна")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidTwilioSignature сверяет подпись: HMAC-SHA1 от URL и отсортированных пар ключ-значение формы.
func ValidTwilioSignature(authToken, fullURL string, form url.Values, signature string) bool {
	expected, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(twilioSignature(authToken, fullURL, form), expected)
}

func twilioSignature(authToken, fullURL string, form url.Values) []byte {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	h := hmac.New(sha1.New, []byte(authToken))
	h.Write([]byte(b.String()))
	return h.Sum(nil)
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteJSON отправляет JSON-ответ.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
