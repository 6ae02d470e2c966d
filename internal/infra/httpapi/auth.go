package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

const unauthorizedMessage = "Invalid or missing authorization token"

// BearerAuth rejects requests whose Authorization header does not carry the
// configured token. Rejected requests never reach next.
func BearerAuth(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerToken(r)
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				logger.Warn("unauthorized request",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", requestIDFrom(r.Context()),
				)
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized, unauthorizedMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
