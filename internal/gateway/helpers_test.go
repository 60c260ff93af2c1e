package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/daybook/internal/backup"
	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/events"
	"github.com/flemzord/daybook/internal/records"
	"github.com/flemzord/daybook/internal/security"
	"github.com/flemzord/daybook/internal/widget"
)

const testToken = "s3cret-token"

type fakeJobs struct {
	mu      sync.Mutex
	records map[cron.Key]*cron.Record
}

func newFakeJobs(recs ...*cron.Record) *fakeJobs {
	j := &fakeJobs{records: make(map[cron.Key]*cron.Record)}
	for _, r := range recs {
		j.records[r.Key] = r
	}
	return j
}

func (j *fakeJobs) List() []*cron.Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*cron.Record
	for _, r := range j.records {
		out = append(out, r.Clone())
	}
	return out
}

func (j *fakeJobs) Get(key cron.Key) *cron.Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records[key].Clone()
}

func (j *fakeJobs) Cancel(_ context.Context, key cron.Key) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := j.records[key]
	if r == nil || !r.State.Live() {
		return false, nil
	}
	r.State = cron.StateCancelled
	return true, nil
}

type fakeWidgets struct {
	mu   sync.Mutex
	mode widget.Mode
	err  error
}

func (f *fakeWidgets) Mode() widget.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fakeWidgets) SetMode(_ context.Context, m widget.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.mode = m
	return nil
}

type fakeBackups struct {
	runErr error
	arts   []backup.Artifact
}

func (f *fakeBackups) Run(context.Context) (backup.Artifact, error) {
	if f.runErr != nil {
		return backup.Artifact{}, f.runErr
	}
	art := backup.Artifact{Name: "daybook-x.db", Size: 42, CreatedAt: time.Now()}
	f.arts = append(f.arts, art)
	return art, nil
}

func (f *fakeBackups) List() ([]backup.Artifact, error) { return f.arts, nil }

// recordingBus captures published events. A full bus refuses everything.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
	full   bool
}

func (b *recordingBus) Publish(e events.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return false
	}
	b.events = append(b.events, e)
	return true
}

// PublishWait fails at once on a full bus instead of waiting out ctx.
func (b *recordingBus) PublishWait(_ context.Context, e events.Event) error {
	if !b.Publish(e) {
		return errors.New("event queue full")
	}
	return nil
}

func (b *recordingBus) Events() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}

type fixture struct {
	gw      *Gateway
	jobs    *fakeJobs
	widgets *fakeWidgets
	backups *fakeBackups
	tasks   *records.MemoryStore
	bus     *recordingBus
	audit   *[]security.AuditEvent
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	var (
		auditMu sync.Mutex
		audited []security.AuditEvent
	)
	f := &fixture{
		jobs: newFakeJobs(
			&cron.Record{Key: "backup", State: cron.StatePending},
			&cron.Record{Key: "reminder:1", State: cron.StateFailed, LastError: "boom"},
		),
		widgets: &fakeWidgets{mode: widget.ModeEveryDay},
		backups: &fakeBackups{},
		tasks:   records.NewMemoryStore(),
		bus:     &recordingBus{},
		audit:   &audited,
		reg:     prometheus.NewRegistry(),
	}

	settings := config.GatewayConfig{
		Bind: "127.0.0.1:0",
		Auth: config.AuthConfig{BearerToken: testToken},
	}
	cfg := Config{
		Settings: settings,
		Version:  "test",
		Logger:   slog.New(slog.DiscardHandler),
		Jobs:     f.jobs,
		Widgets:  f.widgets,
		Backups:  f.backups,
		Tasks:    f.tasks,
		Events:   f.bus,
		Gatherer: f.reg,
		Audit: security.NewAuditLogger(security.AuditLoggerConfig{
			OnEvent: func(e security.AuditEvent) {
				auditMu.Lock()
				defer auditMu.Unlock()
				audited = append(audited, e)
			},
		}),
		Registerer: f.reg,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.gw = gw
	return f
}

// do sends an authenticated request through the router.
func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	return httpRequest(f.gw.Handler(), method, path, body, "Bearer "+testToken)
}

func httpRequest(h http.Handler, method, path, body string, authorization ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for _, a := range authorization {
		req.Header.Set("Authorization", a)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) auditTypes() []security.EventType {
	var out []security.EventType
	for _, e := range *f.audit {
		out = append(out, e.Type)
	}
	return out
}

var errBoom = errors.New("boom")

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newRecorderFor(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
