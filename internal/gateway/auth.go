package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/parserdesk/internal/security"
)

// authMiddleware returns a chi-compatible middleware that validates Bearer token
// or Basic auth credentials using constant-time comparison. Rejected
// requests are recorded in the audit trail.
func authMiddleware(cfg AuthConfig, auditLogger *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authorized(cfg, r) {
				next.ServeHTTP(w, r)
				return
			}

			detail := "invalid credentials"
			if r.Header.Get("Authorization") == "" {
				detail = "missing authorization header"
			}
			auditLogger.Log(security.AuditEvent{
				Type:   security.EventAuthFailure,
				Remote: r.RemoteAddr,
				Detail: detail,
				Metadata: map[string]string{
					"method": r.Method,
					"path":   r.URL.Path,
				},
			})
			w.Header().Set("WWW-Authenticate", `Bearer realm="parserdesk"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func authorized(cfg AuthConfig, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}
	if cfg.BearerToken != "" {
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(after, cfg.BearerToken) {
			return true
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
			return true
		}
	}
	return false
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
