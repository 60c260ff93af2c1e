package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/events"
	"github.com/flemzord/daybook/internal/widget"
)

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.gw.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	bad := newFixture(t, func(c *Config) { c.Settings.Bind = "not-an-address" })
	if err := bad.gw.Validate(); err == nil {
		t.Error("expected invalid bind address to fail")
	}
	if bad.gw.ModuleInfo().ID != ModuleID {
		t.Errorf("ModuleInfo ID = %q", bad.gw.ModuleInfo().ID)
	}
}

func TestGateway_Health(t *testing.T) {
	t.Parallel()

	ok := newFixture(t)
	if rr := httpRequest(ok.gw.Handler(), http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("healthy status = %d", rr.Code)
	}

	degraded := newFixture(t, func(c *Config) {
		c.Health = func(context.Context) error { return fmt.Errorf("database is locked") }
	})
	rr := httpRequest(degraded.gw.Handler(), http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Error != "database is locked" {
		t.Errorf("response = %+v", resp)
	}
}

func TestGateway_MetricsEndpointCountsRoutes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	httpRequest(f.gw.Handler(), http.MethodGet, "/health", "")
	f.do(http.MethodGet, "/api/jobs/backup", "")

	rr := httpRequest(f.gw.Handler(), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`daybook_http_requests_total{code="200",route="/health"} 1`,
		`daybook_http_requests_total{code="200",route="/api/jobs/{key}"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestGateway_WebhookPublishesExternalEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) {
		c.Settings.Webhooks = map[string]config.WebhookConfig{"phone-unlock": {Secret: "hook"}}
	})

	body := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/phone-unlock", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, Sign(body, "hook"))
	rr := newRecorderFor(f.gw.Handler(), req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}

	got := f.bus.Events()
	if len(got) != 1 {
		t.Fatalf("published %d events, want 1", len(got))
	}
	if ev, ok := got[0].(events.ExternalEvent); !ok || ev.Source != "phone-unlock" {
		t.Errorf("event = %#v", got[0])
	}
}

func TestGateway_ServesOverTCP(t *testing.T) {
	t.Parallel()

	hub := widget.NewHub(widget.HubConfig{Logger: slog.New(slog.DiscardHandler)})
	f := newFixture(t, func(c *Config) { c.Hub = hub })
	if err := f.gw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopped := false
	t.Cleanup(func() {
		if !stopped {
			_ = f.gw.Stop(context.Background())
		}
	})
	base := "http://" + f.gw.Addr().String()

	req, _ := http.NewRequest(http.MethodGet, base+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+f.gw.Addr().String()+"/ws/widgets", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.PushWidgetContent(ctx, widget.WidgetQuote, widget.Content{QuoteID: "q1", Text: "hi"}); err != nil {
		t.Fatalf("PushWidgetContent: %v", err)
	}
	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(msg), `"widget_id":"quote"`) {
		t.Errorf("frame = %s", msg)
	}

	if err := f.gw.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
	stopped = true
	if hub.Subscribers() != 0 {
		t.Errorf("subscribers after stop = %d", hub.Subscribers())
	}
}

func TestGateway_StopBeforeStart(t *testing.T) {
	t.Parallel()

	if err := newFixture(t).gw.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
