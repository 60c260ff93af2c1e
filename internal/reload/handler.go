package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/core"
	"github.com/flemzord/daybook/internal/security"
)

// Handler reloads the configuration and hands it to every core.Reloader.
type Handler struct {
	app    *core.App
	base   *core.AppContext
	logger *slog.Logger
	audit  *security.AuditLogger

	mu      sync.Mutex
	current *config.Config
}

// NewHandler creates a Handler. current is the configuration in effect.
func NewHandler(app *core.App, base *core.AppContext, current *config.Config, audit *security.AuditLogger) *Handler {
	return &Handler{
		app:     app,
		base:    base,
		logger:  base.Logger.With("component", "reload"),
		audit:   audit,
		current: current,
	}
}

// Current returns the configuration in effect.
func (h *Handler) Current() *config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HandleReload loads, validates and applies the configuration at path. An
// invalid file leaves the running configuration untouched.
func (h *Handler) HandleReload(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return h.Apply(ctx, cfg)
}

// Apply hands an already validated cfg to the modules.
func (h *Handler) Apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		for _, field := range RestartRequired(h.current, cfg) {
			h.logger.Warn("reload: change takes effect after restart", "field", field)
		}
	}

	if err := h.app.ReloadModules(h.base.WithConfig(cfg)); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	h.current = cfg
	h.audit.Log(security.AuditEvent{Type: security.EventConfigReload, Detail: "widget mode " + cfg.Widget.Mode})
	h.logger.Info("reload: configuration applied")
	return nil
}

// Run applies reload events from w until ctx is done. Failed reloads are
// logged and the previous configuration stays active.
func (h *Handler) Run(ctx context.Context, w *Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			h.logger.Info("reload: requested", "trigger", ev.Type, "path", ev.ConfigPath)
			if err := h.HandleReload(ctx, ev.ConfigPath); err != nil {
				h.logger.Error("reload: failed, keeping previous configuration", "error", err)
			}
		}
	}
}

// RestartRequired lists the settings that differ between old and updated
// but are only read at startup.
func RestartRequired(old, updated *config.Config) []string {
	var out []string
	check := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	check("data_dir", old.DataDir != updated.DataDir)
	check("database.path", old.Database.Path != updated.Database.Path)
	check("scheduler.workers", old.Scheduler.Workers != updated.Scheduler.Workers)
	check("gateway.bind", old.Gateway.Bind != updated.Gateway.Bind)
	check("gateway.auth", old.Gateway.Auth != updated.Gateway.Auth)
	check("backup", old.Backup != updated.Backup)
	check("reminders", old.Reminders != updated.Reminders)
	check("notify", old.Notify != updated.Notify)
	check("telemetry", old.Telemetry != updated.Telemetry)
	return out
}
