// Package app assembles the daybook daemon and runs it until shutdown.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/reload"
	"github.com/flemzord/daybook/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides data_dir from the configuration.
	DataDir string

	// LogOutput receives the daemon logs. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled or a shutdown signal is received. SIGHUP and file changes
// trigger a live configuration reload.
func Run(ctx context.Context, params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := security.NewRedactor(cfg.Secrets()...)
	level := new(slog.LevelVar)
	logger := NewLogger(out, cfg.Log, level, redactor)

	dataDir := ResolveDataDir(params.DataDir, cfg)
	logger.Info("app: starting daybook",
		"version", params.Version, "commit", params.Commit, "built", params.Date,
		"config", cfgPath, "data_dir", dataDir)

	d, err := Build(ctx, Options{
		Config:   cfg,
		DataDir:  dataDir,
		Version:  params.Version,
		Logger:   logger,
		Level:    level,
		Redactor: redactor,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("app: release failed", "error", err)
		}
	}()

	if err := d.App.Validate(); err != nil {
		return err
	}
	if err := d.App.Start(); err != nil {
		return err
	}

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// --- config reload ---
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: cfgPath})
	watcher.Start(runCtx)
	defer watcher.Stop()

	handler := reload.NewHandler(d.App, d.Context, cfg, d.Audit)
	reloadDone := make(chan struct{})
	go func() {
		defer close(reloadDone)
		handler.Run(runCtx, watcher)
	}()

	// --- main loop ---
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("app: SIGHUP received, reloading configuration")
				watcher.Trigger()
				continue
			}
			logger.Info("app: shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("app: shutdown requested")
		}
		cancel()
		<-reloadDone
		d.App.Stop()
		logger.Info("app: shutdown complete")
		return nil
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/daybook/daybook.yaml → ~/.config/daybook/daybook.yaml → ./daybook.yaml
func ResolveConfigPath() (string, error) {
	candidates := ConfigCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// ConfigCandidates lists the locations ResolveConfigPath searches, in order.
func ConfigCandidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "daybook", "daybook.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "daybook", "daybook.yaml"))
	}
	return append(candidates, "daybook.yaml")
}

// ResolveDataDir picks the data directory: the explicit override, then
// data_dir from cfg, then DefaultDataDir.
func ResolveDataDir(override string, cfg *config.Config) string {
	switch {
	case override != "":
		return override
	case cfg != nil && cfg.DataDir != "":
		return cfg.DataDir
	default:
		return DefaultDataDir()
	}
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/daybook if set, otherwise ~/.local/share/daybook, following the XDG base directory layout.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "daybook")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "daybook")
}
