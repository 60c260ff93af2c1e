package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/daybook/internal/backup"
	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/events"
	"github.com/flemzord/daybook/internal/records"
	"github.com/flemzord/daybook/internal/security"
	"github.com/flemzord/daybook/internal/widget"
)

func decode[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return v
}

func TestAdmin_RequiresAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, path := range []string{"/api/status", "/api/jobs", "/api/backups"} {
		rr := httpRequest(f.gw.Handler(), http.MethodGet, path, "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without credentials = %d, want 401", path, rr.Code)
		}
	}
}

func TestAdmin_NotMountedWithoutAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) { c.Settings.Auth = config.AuthConfig{} })
	if rr := f.do(http.MethodGet, "/api/jobs", ""); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rr.Code)
	}
}

func TestAdmin_Jobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.do(http.MethodGet, "/api/jobs", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if jobs := decode[[]cron.Record](t, rr.Body.String()); len(jobs) != 2 {
		t.Errorf("listed %d jobs, want 2", len(jobs))
	}

	rr = f.do(http.MethodGet, "/api/jobs/reminder:1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	if rec := decode[cron.Record](t, rr.Body.String()); rec.State != cron.StateFailed || rec.LastError != "boom" {
		t.Errorf("record = %+v", rec)
	}

	if rr := f.do(http.MethodGet, "/api/jobs/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rr.Code)
	}
}

func TestAdmin_CancelJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.do(http.MethodDelete, "/api/jobs/backup", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", rr.Code, rr.Body)
	}
	if rec := decode[cron.Record](t, rr.Body.String()); rec.State != cron.StateCancelled {
		t.Errorf("state after cancel = %s", rec.State)
	}
	if !slices.Contains(f.auditTypes(), security.EventJobCancel) {
		t.Errorf("audit = %v, want a job_cancel event", f.auditTypes())
	}

	// Terminal and unknown jobs are not live.
	for _, key := range []string{"backup", "reminder:1", "nope"} {
		if rr := f.do(http.MethodDelete, "/api/jobs/"+key, ""); rr.Code != http.StatusNotFound {
			t.Errorf("cancel %s status = %d, want 404", key, rr.Code)
		}
	}
}

func TestAdmin_RefreshWidgetsPublishesManualTrigger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if rr := f.do(http.MethodPost, "/api/widgets/refresh", ""); rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	got := f.bus.Events()
	if len(got) != 1 || got[0] != (events.ManualTrigger{Target: events.TargetWidget}) {
		t.Errorf("published %v", got)
	}

	f.bus.full = true
	if rr := f.do(http.MethodPost, "/api/widgets/refresh", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("full queue status = %d, want 503", rr.Code)
	}
}

func TestAdmin_SetWidgetMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.do(http.MethodPut, "/api/widgets/mode", `{"mode":"every_hour"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	if got := decode[ModeRequest](t, rr.Body.String()); got.Mode != "every_hour" {
		t.Errorf("response mode = %q", got.Mode)
	}
	if f.widgets.Mode() != widget.ModeEveryHour {
		t.Errorf("coordinator mode = %q", f.widgets.Mode())
	}

	for _, body := range []string{`{"mode":"hourly"}`, `{"mode":`, `{"mood":"every_day"}`} {
		if rr := f.do(http.MethodPut, "/api/widgets/mode", body); rr.Code != http.StatusBadRequest {
			t.Errorf("body %s status = %d, want 400", body, rr.Code)
		}
	}

	f.widgets.err = errBoom
	if rr := f.do(http.MethodPut, "/api/widgets/mode", `{"mode":"every_day"}`); rr.Code != http.StatusInternalServerError {
		t.Errorf("failing SetMode status = %d, want 500", rr.Code)
	}
}

func TestAdmin_ExternalEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if rr := f.do(http.MethodPost, "/api/events/external", `{"source":"phone-unlock"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr := f.do(http.MethodPost, "/api/events/external", ""); rr.Code != http.StatusAccepted {
		t.Fatalf("empty body status = %d", rr.Code)
	}

	got := f.bus.Events()
	if len(got) != 2 {
		t.Fatalf("published %d events, want 2", len(got))
	}
	sources := []string{got[0].(events.ExternalEvent).Source, got[1].(events.ExternalEvent).Source}
	if !slices.Equal(sources, []string{"phone-unlock", "api"}) {
		t.Errorf("sources = %v", sources)
	}
}

func TestAdmin_Backups(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.do(http.MethodGet, "/api/backups", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty list = %d %q", rr.Code, rr.Body)
	}

	rr = f.do(http.MethodPost, "/api/backups", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("run status = %d", rr.Code)
	}
	if art := decode[backup.Artifact](t, rr.Body.String()); art.Name != "daybook-x.db" {
		t.Errorf("artifact = %+v", art)
	}
	if arts := decode[[]backup.Artifact](t, f.do(http.MethodGet, "/api/backups", "").Body.String()); len(arts) != 1 {
		t.Errorf("listed %d artifacts, want 1", len(arts))
	}

	rr = f.do(http.MethodPost, "/api/backups?wait=false", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("queued status = %d", rr.Code)
	}
	if got := f.bus.Events(); len(got) != 1 || got[0] != (events.ManualTrigger{Target: events.TargetBackup}) {
		t.Errorf("published %v", got)
	}
}

func TestAdmin_BackupErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("source gone: %w", cron.ErrResourceMissing), http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		f := newFixture(t)
		f.backups.runErr = tt.err
		if rr := f.do(http.MethodPost, "/api/backups", ""); rr.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rr.Code, tt.want)
		}
	}
}

func TestAdmin_PutTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	body := `{"title":"dentist","reminder_at":"2026-06-10T09:00:00Z"}`

	rr := f.do(http.MethodPut, "/api/tasks/t1", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}

	stored, err := f.tasks.GetTaskByID(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if stored.Title != "dentist" || stored.UpdatedAt.IsZero() {
		t.Errorf("stored = %+v", stored)
	}

	got := f.bus.Events()
	if len(got) != 1 {
		t.Fatalf("published %d events, want 1", len(got))
	}
	ch := got[0].(events.EntityChanged)
	if ch.Entity != "task" || ch.ID != "t1" || ch.Deleted || ch.Task == nil || ch.Task.Title != "dentist" {
		t.Errorf("EntityChanged = %+v", ch)
	}
	if !slices.Contains(f.auditTypes(), security.EventTaskWrite) {
		t.Errorf("audit = %v", f.auditTypes())
	}
}

func TestAdmin_PutTaskRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"notes":"x"}`},
		{"id mismatch", `{"id":"t2","title":"x"}`},
		{"unknown field", `{"title":"x","priority":1}`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		if rr := f.do(http.MethodPut, "/api/tasks/t1", tt.body); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rr.Code)
		}
	}
	if len(f.bus.Events()) != 0 {
		t.Error("rejected writes must not publish")
	}
}

func TestAdmin_DeleteTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.tasks.UpsertTask(context.Background(), records.Task{ID: "t1", Title: "x"}); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	if rr := f.do(http.MethodDelete, "/api/tasks/t1", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	got := f.bus.Events()
	if len(got) != 1 || got[0] != (events.EntityChanged{Entity: "task", ID: "t1", Deleted: true}) {
		t.Errorf("published %v", got)
	}

	if rr := f.do(http.MethodDelete, "/api/tasks/t1", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestAdmin_SetTaskCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.tasks.UpsertTask(context.Background(), records.Task{ID: "t1", Title: "x"}); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	rr := f.do(http.MethodPut, "/api/tasks/t1/completion", `{"completed":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	stored, _ := f.tasks.GetTaskByID(context.Background(), "t1")
	if !stored.Completed {
		t.Error("task not marked completed")
	}
	got := f.bus.Events()
	if len(got) != 1 {
		t.Fatalf("published %d events, want 1", len(got))
	}
	if ch := got[0].(events.EntityChanged); ch.ID != "t1" || ch.Task == nil || !ch.Task.Completed {
		t.Errorf("EntityChanged = %+v", ch)
	}

	if rr := f.do(http.MethodPut, "/api/tasks/nope/completion", `{"completed":true}`); rr.Code != http.StatusNotFound {
		t.Errorf("unknown task status = %d, want 404", rr.Code)
	}
	if rr := f.do(http.MethodPut, "/api/tasks/t1/completion", `{"done":true}`); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rr.Code)
	}
}

func TestAdmin_TaskWriteUnqueuedChangeIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bus.full = true

	rr := f.do(http.MethodPut, "/api/tasks/t1", `{"title":"dentist","reminder_at":"2026-06-10T09:00:00Z"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("put status = %d, want 503", rr.Code)
	}
	if _, err := f.tasks.GetTaskByID(context.Background(), "t1"); err != nil {
		t.Errorf("task write should stand: %v", err)
	}

	if rr := f.do(http.MethodDelete, "/api/tasks/t1", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("delete status = %d, want 503", rr.Code)
	}

	f.bus.full = false
	if rr := f.do(http.MethodPut, "/api/tasks/t2", `{"title":"retry"}`); rr.Code != http.StatusOK {
		t.Errorf("put after queue drained = %d, want 200", rr.Code)
	}
}

func TestAdmin_Status(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rr := f.do(http.MethodGet, "/api/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	st := decode[StatusResponse](t, rr.Body.String())
	if st.Version != "test" || st.WidgetMode != "every_day" {
		t.Errorf("status = %+v", st)
	}
	if st.Jobs[cron.StatePending] != 1 || st.Jobs[cron.StateFailed] != 1 {
		t.Errorf("job counts = %v", st.Jobs)
	}
}

func TestAdmin_MissingComponentsAreUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) {
		c.Jobs = nil
		c.Widgets = nil
		c.Backups = nil
		c.Tasks = nil
		c.Events = nil
	})
	reqs := []struct{ method, path, body string }{
		{http.MethodGet, "/api/jobs", ""},
		{http.MethodPut, "/api/widgets/mode", `{"mode":"every_day"}`},
		{http.MethodPost, "/api/widgets/refresh", ""},
		{http.MethodGet, "/api/backups", ""},
		{http.MethodPut, "/api/tasks/t1", `{"title":"x"}`},
	}
	for _, r := range reqs {
		if rr := f.do(r.method, r.path, r.body); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s = %d, want 503", r.method, r.path, rr.Code)
		}
	}
}
