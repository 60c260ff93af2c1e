package gateway

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/security"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.AuthConfig{BearerToken: "my-token", BasicUser: "admin", BasicPass: "pass"}

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    int
	}{
		{"valid bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer my-token") }, http.StatusOK},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"valid basic", func(r *http.Request) { r.SetBasicAuth("admin", "pass") }, http.StatusOK},
		{"wrong basic password", func(r *http.Request) { r.SetBasicAuth("admin", "wrong") }, http.StatusUnauthorized},
		{"wrong basic user", func(r *http.Request) { r.SetBasicAuth("root", "pass") }, http.StatusUnauthorized},
		{"no header", func(*http.Request) {}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := authMiddleware(cfg, nil, nil)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			tt.prepare(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_BasicDisabledWhenIncomplete(t *testing.T) {
	t.Parallel()

	handler := authMiddleware(config.AuthConfig{BearerToken: "tok", BasicUser: "admin"}, nil, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestAuthMiddleware_AuditsOutcomes(t *testing.T) {
	t.Parallel()

	var got []security.AuditEvent
	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) { got = append(got, e) },
	})
	handler := authMiddleware(config.AuthConfig{BearerToken: "tok"}, audit, nil)(okHandler())

	for _, header := range []string{"Bearer tok", "Bearer bad"} {
		req := httptest.NewRequest(http.MethodDelete, "/api/jobs/backup", nil)
		req.RemoteAddr = "192.0.2.7:51234"
		req.Header.Set("Authorization", header)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(got) != 2 {
		t.Fatalf("audit events = %d, want 2", len(got))
	}
	if got[0].Type != security.EventAuthSuccess || got[1].Type != security.EventAuthFailure {
		t.Errorf("types = %s, %s", got[0].Type, got[1].Type)
	}
	if got[0].Actor != "192.0.2.7" || got[0].Target != "DELETE /api/jobs/backup" {
		t.Errorf("actor/target = %q / %q", got[0].Actor, got[0].Target)
	}
}

func TestAuthMiddleware_RateLimitedPerClient(t *testing.T) {
	t.Parallel()

	var types []security.EventType
	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) { types = append(types, e.Type) },
	})
	limiter := security.NewRateLimiter(2, time.Minute)
	handler := authMiddleware(config.AuthConfig{BearerToken: "tok"}, audit, limiter)(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = addr
		req.Header.Set("Authorization", "Bearer wrong")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	codes := []int{send("10.0.0.1:1"), send("10.0.0.1:2"), send("10.0.0.1:3")}
	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}
	if !slices.Equal(codes, want) {
		t.Errorf("codes = %v, want %v", codes, want)
	}
	if code := send("10.0.0.2:1"); code != http.StatusUnauthorized {
		t.Errorf("other client status = %d, want 401", code)
	}
	if types[2] != security.EventRateLimited {
		t.Errorf("third audit event = %s, want rate_limited", types[2])
	}
}
