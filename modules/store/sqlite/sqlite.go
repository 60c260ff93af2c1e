// Package sqlite persists jobs, tasks, quotes, habits and widget selection
// state in a single SQLite database. It uses modernc.org/sqlite (pure Go,
// no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/daybook/internal/core"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/quote"
	"github.com/flemzord/daybook/internal/records"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// ModuleID identifies the store in the app lifecycle.
const ModuleID core.ModuleID = "store.sqlite"

// timeLayout is fixed width so stored timestamps compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Compile-time interface guards.
var (
	_ cron.Store       = (*jobStore)(nil)
	_ records.Store    = (*recordStore)(nil)
	_ quote.StateStore = (*quoteStateStore)(nil)
	_ core.Validator   = (*Module)(nil)
	_ core.Stopper     = (*Module)(nil)
)

// Module owns the database handle and the stores built on it.
type Module struct {
	config Config
	db     *sql.DB
	logger *slog.Logger

	jobs       *jobStore
	records    *recordStore
	quoteState *quoteStateStore
}

type jobStore struct{ db *sql.DB }

type recordStore struct{ db *sql.DB }

type quoteStateStore struct{ db *sql.DB }

// Open opens (creating if needed) the database at cfg.Path and migrates
// the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Module, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite: store opened", "path", cfg.Path, "wal", cfg.walEnabled())

	return &Module{
		config:     cfg,
		db:         db,
		logger:     logger,
		jobs:       &jobStore{db: db},
		records:    &recordStore{db: db},
		quoteState: &quoteStateStore{db: db},
	}, nil
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ModuleID}
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite: store closing")
	return m.db.Close()
}

// Checkpoint flushes the WAL into the main database file so a file copy is
// complete. Implements backup.Checkpointer.
func (m *Module) Checkpoint(ctx context.Context) error {
	if !m.config.walEnabled() {
		return nil
	}
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("sqlite: checkpoint: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (m *Module) Path() string { return m.config.Path }

// Jobs returns the scheduler job store.
func (m *Module) Jobs() cron.Store { return m.jobs }

// Records returns the task, quote and habit store.
func (m *Module) Records() records.Store { return m.records }

// QuoteState returns the quote selection state store.
func (m *Module) QuoteState() quote.StateStore { return m.quoteState }

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s.String, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}
