package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/events"
	"github.com/flemzord/daybook/internal/records"
	"github.com/flemzord/daybook/internal/security"
	"github.com/flemzord/daybook/internal/widget"
)

const (
	maxBodyBytes       = 1 << 20
	taskPublishTimeout = 5 * time.Second
)

// ModeRequest is the body of PUT /api/widgets/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// CompletionRequest is the body of PUT /api/tasks/{id}/completion.
type CompletionRequest struct {
	Completed bool `json:"completed"`
}

// ExternalEventRequest is the body of POST /api/events/external.
type ExternalEventRequest struct {
	Source string `json:"source"`
}

// AcceptedResponse acknowledges work handed to the event loop.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.cfg.Jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler not available")
			return
		}
		jobs := g.cfg.Jobs.List()
		if jobs == nil {
			jobs = []*cron.Record{}
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func (g *Gateway) handleGetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.Jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler not available")
			return
		}
		rec := g.cfg.Jobs.Get(cron.Key(pathParam(r, "key")))
		if rec == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (g *Gateway) handleCancelJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.Jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler not available")
			return
		}
		key := cron.Key(pathParam(r, "key"))
		found, err := g.cfg.Jobs.Cancel(r.Context(), key)
		if err != nil {
			g.logger.Error("gateway: cancel job failed", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "no live job with that key")
			return
		}
		g.audit(r, security.EventJobCancel, string(key), "")
		writeJSON(w, http.StatusOK, g.cfg.Jobs.Get(key))
	}
}

func (g *Gateway) handleRefreshWidgets() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.publish(w, events.ManualTrigger{Target: events.TargetWidget})
	}
}

func (g *Gateway) handleSetWidgetMode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.Widgets == nil {
			writeError(w, http.StatusServiceUnavailable, "widgets not available")
			return
		}
		var req ModeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode, err := widget.ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := g.cfg.Widgets.SetMode(r.Context(), mode); err != nil {
			g.logger.Error("gateway: set widget mode failed", "mode", mode, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		g.audit(r, security.EventModeChange, string(mode), "")
		writeJSON(w, http.StatusOK, ModeRequest{Mode: string(g.cfg.Widgets.Mode())})
	}
}

func (g *Gateway) handleExternalEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExternalEventRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Source == "" {
			req.Source = "api"
		}
		g.publish(w, events.ExternalEvent{Source: req.Source, At: time.Now()})
	}
}

// handleRunBackup takes a backup synchronously and returns the artifact.
// With ?wait=false the backup is queued as a scheduler job instead.
func (g *Gateway) handleRunBackup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") == "false" {
			g.audit(r, security.EventManualBackup, "queued", "")
			g.publish(w, events.ManualTrigger{Target: events.TargetBackup})
			return
		}
		if g.cfg.Backups == nil {
			writeError(w, http.StatusServiceUnavailable, "backups not available")
			return
		}
		art, err := g.cfg.Backups.Run(r.Context())
		if err != nil {
			g.logger.Error("gateway: manual backup failed", "error", err)
			code := http.StatusInternalServerError
			if errors.Is(err, cron.ErrResourceMissing) {
				code = http.StatusConflict
			}
			writeError(w, code, err.Error())
			return
		}
		g.audit(r, security.EventManualBackup, art.Name, "")
		writeJSON(w, http.StatusCreated, art)
	}
}

func (g *Gateway) handleListBackups() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.cfg.Backups == nil {
			writeError(w, http.StatusServiceUnavailable, "backups not available")
			return
		}
		arts, err := g.cfg.Backups.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if arts == nil {
			writeJSON(w, http.StatusOK, []struct{}{})
			return
		}
		writeJSON(w, http.StatusOK, arts)
	}
}

// handlePutTask creates or replaces a task and tells the reminder
// coordinator about it.
func (g *Gateway) handlePutTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.Tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task store not available")
			return
		}
		id := pathParam(r, "id")
		var task records.Task
		if err := decodeJSON(r, &task); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if task.ID != "" && task.ID != id {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("body id %q does not match path id %q", task.ID, id))
			return
		}
		task.ID = id
		task.UpdatedAt = time.Now().UTC()
		if err := task.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := g.cfg.Tasks.UpsertTask(r.Context(), task); err != nil {
			g.logger.Error("gateway: upsert task failed", "task", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		g.audit(r, security.EventTaskWrite, id, "upsert")
		if !g.notifyTask(w, r, events.EntityChanged{Entity: "task", ID: id, Task: &task}) {
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func (g *Gateway) handleDeleteTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.Tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task store not available")
			return
		}
		id := pathParam(r, "id")
		if err := g.cfg.Tasks.DeleteTask(r.Context(), id); err != nil {
			if errors.Is(err, records.ErrNotFound) {
				writeError(w, http.StatusNotFound, "task not found")
				return
			}
			g.logger.Error("gateway: delete task failed", "task", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		g.audit(r, security.EventTaskWrite, id, "delete")
		if !g.notifyTask(w, r, events.EntityChanged{Entity: "task", ID: id, Deleted: true}) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSetTaskCompletion marks a task done or not done. Completing a task
// cancels its pending reminder.
func (g *Gateway) handleSetTaskCompletion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.Tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task store not available")
			return
		}
		id := pathParam(r, "id")
		var req CompletionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := g.cfg.Tasks.UpdateTaskCompletion(r.Context(), id, req.Completed); err != nil {
			if errors.Is(err, records.ErrNotFound) {
				writeError(w, http.StatusNotFound, "task not found")
				return
			}
			g.logger.Error("gateway: update task completion failed", "task", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		task, err := g.cfg.Tasks.GetTaskByID(r.Context(), id)
		if err != nil {
			g.logger.Error("gateway: reading updated task failed", "task", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		g.audit(r, security.EventTaskWrite, id, fmt.Sprintf("completed=%t", req.Completed))
		if !g.notifyTask(w, r, events.EntityChanged{Entity: "task", ID: id, Task: &task}) {
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// notifyTask queues a task change after the write succeeded, waiting for
// room in the event queue. When the change cannot be queued the write
// stands but the client gets a 503 so it retries; task writes are
// idempotent. It reports whether the change was queued.
func (g *Gateway) notifyTask(w http.ResponseWriter, r *http.Request, e events.EntityChanged) bool {
	if g.cfg.Events == nil {
		g.logger.Error("gateway: no event loop, reminder not updated", "task", e.ID)
		writeError(w, http.StatusServiceUnavailable, "task saved but its reminder was not updated: event loop not available")
		return false
	}
	ctx, cancel := context.WithTimeout(r.Context(), taskPublishTimeout)
	defer cancel()
	if err := g.cfg.Events.PublishWait(ctx, e); err != nil {
		g.logger.Error("gateway: task change not queued, reminder not updated", "task", e.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "task saved but its reminder was not updated, retry the request")
		return false
	}
	return true
}

// publish hands e to the event loop and answers 202, or 503 when the
// queue refused it.
func (g *Gateway) publish(w http.ResponseWriter, e events.Event) {
	if g.cfg.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event loop not available")
		return
	}
	if !g.cfg.Events.Publish(e) {
		writeError(w, http.StatusServiceUnavailable, "event queue full")
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// publishExternal is the webhook handler for configured sources.
func (g *Gateway) publishExternal(source string) error {
	if g.cfg.Events == nil || !g.cfg.Events.Publish(events.ExternalEvent{Source: source, At: time.Now()}) {
		return errors.New("gateway: event queue unavailable")
	}
	return nil
}

func (g *Gateway) audit(r *http.Request, t security.EventType, target, detail string) {
	g.cfg.Audit.Log(security.AuditEvent{
		Type:   t,
		Actor:  clientHost(r),
		Target: target,
		Detail: detail,
	})
}

// pathParam returns the unescaped URL parameter. chi matches against the
// raw path when one is set.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
