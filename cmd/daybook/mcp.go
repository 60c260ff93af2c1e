package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/flemzord/daybook/internal/backup"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/gateway"
	"github.com/flemzord/daybook/internal/records"
)

// adminAPI is the part of the admin client the MCP tools call.
// *client.Client satisfies it.
type adminAPI interface {
	Status(ctx context.Context) (gateway.StatusResponse, error)
	Jobs(ctx context.Context) ([]cron.Record, error)
	CancelJob(ctx context.Context, key string) (cron.Record, error)
	RefreshWidgets(ctx context.Context) error
	SetWidgetMode(ctx context.Context, mode string) (string, error)
	ExternalEvent(ctx context.Context, source string) error
	Backup(ctx context.Context) (backup.Artifact, error)
	Backups(ctx context.Context) ([]backup.Artifact, error)
	PutTask(ctx context.Context, t records.Task) (records.Task, error)
	SetTaskCompletion(ctx context.Context, id string, done bool) (records.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

func mcpCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the admin API as MCP tools over stdio",
		RunE: func(*cobra.Command, []string) error {
			c, err := cc.client()
			if err != nil {
				return err
			}
			return server.ServeStdio(newMCPServer(c))
		},
	}
}

func newMCPServer(api adminAPI) *server.MCPServer {
	s := server.NewMCPServer("daybook", version, server.WithToolCapabilities(false))
	t := mcpTools{api: api}

	s.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Daemon version, uptime, widget mode and job counts by state"),
	), t.status)
	s.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List scheduled jobs with their state and next fire time"),
	), t.listJobs)
	s.AddTool(mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a scheduled job by key"),
		mcp.WithString("key", mcp.Required(), mcp.Description("Job key, e.g. reminder:42")),
	), t.cancelJob)
	s.AddTool(mcp.NewTool("refresh_widgets",
		mcp.WithDescription("Refresh the home-screen widgets now"),
	), t.refreshWidgets)
	s.AddTool(mcp.NewTool("set_widget_mode",
		mcp.WithDescription("Change how often the widgets refresh"),
		mcp.WithString("mode", mcp.Required(), mcp.Enum("every_day", "every_hour", "on_external_event")),
	), t.setWidgetMode)
	s.AddTool(mcp.NewTool("external_event",
		mcp.WithDescription("Report an external event such as a phone unlock"),
		mcp.WithString("source", mcp.Description("Event source, defaults to mcp")),
	), t.externalEvent)
	s.AddTool(mcp.NewTool("backup_now",
		mcp.WithDescription("Write a database backup immediately"),
	), t.backupNow)
	s.AddTool(mcp.NewTool("list_backups",
		mcp.WithDescription("List retained database backups"),
	), t.listBackups)
	s.AddTool(mcp.NewTool("upsert_task",
		mcp.WithDescription("Create or update a task; a future reminder_at schedules a reminder"),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("notes"),
		mcp.WithString("due_at", mcp.Description("RFC 3339 time")),
		mcp.WithString("reminder_at", mcp.Description("RFC 3339 time")),
		mcp.WithBoolean("completed"),
	), t.upsertTask)
	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a task done, or not done; completing it cancels its reminder"),
		mcp.WithString("id", mcp.Required()),
		mcp.WithBoolean("completed", mcp.Description("Defaults to true")),
	), t.completeTask)
	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task and its pending reminder"),
		mcp.WithString("id", mcp.Required()),
	), t.deleteTask)
	return s
}

type mcpTools struct {
	api adminAPI
}

func (t mcpTools) status(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.api.Status(ctx)
	return jsonResult(st, err)
}

func (t mcpTools) listJobs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := t.api.Jobs(ctx)
	return jsonResult(jobs, err)
}

func (t mcpTools) cancelJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := t.api.CancelJob(ctx, key)
	return jsonResult(rec, err)
}

func (t mcpTools) refreshWidgets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.api.RefreshWidgets(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("refresh queued"), nil
}

func (t mcpTools) setWidgetMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := req.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	got, err := t.api.SetWidgetMode(ctx, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("widget mode is now " + got), nil
}

func (t mcpTools) externalEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := req.GetString("source", "mcp")
	if err := t.api.ExternalEvent(ctx, source); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("event %q delivered", source)), nil
}

func (t mcpTools) backupNow(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := t.api.Backup(ctx)
	return jsonResult(a, err)
}

func (t mcpTools) listBackups(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := t.api.Backups(ctx)
	return jsonResult(list, err)
}

func (t mcpTools) upsertTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task := records.Task{
		ID:        id,
		Title:     title,
		Notes:     req.GetString("notes", ""),
		Completed: req.GetBool("completed", false),
	}
	if task.DueAt, err = optionalTime(req, "due_at"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if task.ReminderAt, err = optionalTime(req, "reminder_at"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saved, err := t.api.PutTask(ctx, task)
	return jsonResult(saved, err)
}

func (t mcpTools) completeTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := t.api.SetTaskCompletion(ctx, id, req.GetBool("completed", true))
	return jsonResult(task, err)
}

func (t mcpTools) deleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.api.DeleteTask(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("task " + id + " deleted"), nil
}

func optionalTime(req mcp.CallToolRequest, name string) (time.Time, error) {
	raw := req.GetString(name, "")
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: want an RFC 3339 time: %w", name, err)
	}
	return ts, nil
}

// jsonResult renders v as indented JSON. API errors become tool errors so
// the model sees them instead of a protocol failure.
func jsonResult(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}
