package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/security"
)

// authMiddleware validates a Bearer token or Basic credentials in constant
// time. Attempts are rate limited per client address before credentials are
// checked, so guessing is throttled too.
func authMiddleware(cfg config.AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := limiter.Allow(clientHost(r)); err != nil {
				emitAuthEvent(audit, security.EventRateLimited, r, "")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				emitAuthEvent(audit, security.EventAuthFailure, r, "missing authorization header")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(after, cfg.BearerToken) {
					emitAuthEvent(audit, security.EventAuthSuccess, r, "bearer")
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				// Both comparisons always run.
				userOK := constantTimeEqual(user, cfg.BasicUser)
				passOK := constantTimeEqual(pass, cfg.BasicPass)
				if ok && userOK && passOK {
					emitAuthEvent(audit, security.EventAuthSuccess, r, "basic")
					next.ServeHTTP(w, r)
					return
				}
			}

			emitAuthEvent(audit, security.EventAuthFailure, r, "invalid credentials")
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func emitAuthEvent(audit *security.AuditLogger, eventType security.EventType, r *http.Request, detail string) {
	audit.Log(security.AuditEvent{
		Type:   eventType,
		Actor:  clientHost(r),
		Target: r.Method + " " + r.URL.Path,
		Detail: detail,
	})
}

// clientHost is the remote address without its port.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
