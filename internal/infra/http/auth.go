package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerTokenMiddleware пропускает только запросы с заголовком Authorization: Bearer <token>.
func BearerTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteError(w, http.StatusUnauthorized, "требуется авторизация")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
