package core

import (
	"log/slog"

	"github.com/flemzord/daybook/internal/config"
)

// AppContext carries shared resources available to modules at runtime and
// on reload.
type AppContext struct {
	// Logger for the current module scope.
	Logger *slog.Logger

	// DataDir is the root directory for persistent data.
	DataDir string

	// Config is the configuration in effect. On reload it is the newly
	// loaded and validated configuration.
	Config *config.Config

	parentLogger *slog.Logger
}

// NewAppContext creates a new AppContext with the given base logger.
func NewAppContext(logger *slog.Logger, dataDir string, cfg *config.Config) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:       logger,
		DataDir:      dataDir,
		Config:       cfg,
		parentLogger: logger,
	}
}

// WithConfig returns a copy of the AppContext carrying cfg.
func (ctx *AppContext) WithConfig(cfg *config.Config) *AppContext {
	cp := *ctx
	cp.Config = cfg
	return &cp
}

// ForModule returns a new AppContext scoped to the given module ID,
// with a child logger that includes the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	return &AppContext{
		Logger:       ctx.parentLogger.With("module", string(id)),
		DataDir:      ctx.DataDir,
		Config:       ctx.Config,
		parentLogger: ctx.parentLogger,
	}
}
