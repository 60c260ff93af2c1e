// Package backup takes verified copies of the database file and keeps the
// newest few.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/daybook/internal/clock"
	"github.com/flemzord/daybook/internal/cron"
)

// JobKey is the key of the periodic backup job.
const JobKey cron.Key = "backup"

// ManualJobKey is the key of a backup queued by RequestRun.
const ManualJobKey cron.Key = JobKey + ":manual"

// Defaults applied by New.
const (
	DefaultRetain   = 2
	DefaultInterval = 24 * time.Hour
	DefaultPrefix   = "daybook"
)

// timeLayout is fixed width so artifact names sort chronologically.
const timeLayout = "20060102T150405.000000000Z"

// Checkpointer flushes pending writes into the source file before a copy.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Config wires a Manager. Source and Dir are required.
type Config struct {
	Source string
	Dir    string
	Prefix string
	Retain int

	Interval     time.Duration
	Checkpointer Checkpointer
	Scheduler    cron.Submitter
	Clock        clock.Clock
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Artifact is one backup file on disk.
type Artifact struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager creates backups and enforces retention.
type Manager struct {
	source     string
	dir        string
	prefix     string
	ext        string
	retain     int
	interval   time.Duration
	checkpoint Checkpointer
	scheduler  cron.Submitter
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *Metrics

	mu sync.Mutex
}

// New creates a Manager.
func New(cfg Config) (*Manager, error) {
	var errs []error
	if cfg.Source == "" {
		errs = append(errs, errors.New("backup: source path is required"))
	}
	if cfg.Dir == "" {
		errs = append(errs, errors.New("backup: directory is required"))
	}
	if cfg.Retain < 0 {
		errs = append(errs, fmt.Errorf("backup: retain must be >= 0, got %d", cfg.Retain))
	}
	if strings.ContainsRune(cfg.Prefix, filepath.Separator) {
		errs = append(errs, fmt.Errorf("backup: prefix %q contains a path separator", cfg.Prefix))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Retain == 0 {
		cfg.Retain = DefaultRetain
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		source:     cfg.Source,
		dir:        cfg.Dir,
		prefix:     cfg.Prefix,
		ext:        filepath.Ext(cfg.Source),
		retain:     cfg.Retain,
		interval:   cfg.Interval,
		checkpoint: cfg.Checkpointer,
		scheduler:  cfg.Scheduler,
		clock:      cfg.Clock,
		logger:     cfg.Logger.With("component", "backup"),
		metrics:    cfg.Metrics,
	}, nil
}

// Run takes one backup and prunes old artifacts. A missing source is
// reported as cron.ErrResourceMissing.
func (m *Manager) Run(ctx context.Context) (Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	art, err := m.run(ctx)
	m.metrics.observe(err)
	if err != nil {
		return Artifact{}, err
	}
	m.logger.Info("backup: created", "name", art.Name, "size", art.Size)

	m.pruneLocked()
	return art, nil
}

func (m *Manager) run(ctx context.Context) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	info, err := os.Stat(m.source)
	if errors.Is(err, fs.ErrNotExist) {
		return Artifact{}, fmt.Errorf("backup: source %s: %w", m.source, cron.ErrResourceMissing)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("backup: stat source: %w", err)
	}
	if info.IsDir() {
		return Artifact{}, cron.Fatalf("backup: source %s is a directory", m.source)
	}

	if m.checkpoint != nil {
		if err := m.checkpoint.Checkpoint(ctx); err != nil {
			return Artifact{}, fmt.Errorf("backup: checkpoint: %w", err)
		}
	}

	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return Artifact{}, fmt.Errorf("backup: create dir: %w", err)
	}

	tmp, size, sum, err := copyVerified(ctx, m.source, m.dir, m.prefix)
	if err != nil {
		return Artifact{}, err
	}

	created := m.clock.Now().UTC()
	name, path := m.freeName(created)
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Artifact{}, fmt.Errorf("backup: rename: %w", err)
	}

	return Artifact{Name: name, Path: path, Size: size, SHA256: sum, CreatedAt: created}, nil
}

// freeName returns the artifact name for t, nudging t forward while a file
// with that name already exists.
func (m *Manager) freeName(t time.Time) (string, string) {
	for {
		name := m.artifactName(t)
		path := filepath.Join(m.dir, name)
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			return name, path
		}
		t = t.Add(time.Nanosecond)
	}
}

func (m *Manager) artifactName(t time.Time) string {
	return m.prefix + "-" + t.UTC().Format(timeLayout) + m.ext
}

// parseName extracts the timestamp from an artifact name.
func (m *Manager) parseName(name string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, m.prefix+"-")
	if !ok {
		return time.Time{}, false
	}
	rest, ok = strings.CutSuffix(rest, m.ext)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, rest)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// RegisterActions binds the backup job on r.
func (m *Manager) RegisterActions(r *cron.Resolver) error {
	return r.Register(string(JobKey), cron.ActionFunc(func(ctx context.Context, run cron.Run) error {
		_, err := m.Run(ctx)
		if err != nil {
			return err
		}
		m.logger.Debug("backup: job completed", "run_id", run.ID)
		return nil
	}))
}

// Register installs the periodic backup job, keeping a live one whose
// interval is unchanged.
func (m *Manager) Register(ctx context.Context) error {
	if m.scheduler == nil {
		return errors.New("backup: no scheduler configured")
	}
	def := cron.Definition{Key: JobKey, Kind: cron.Periodic, Interval: m.interval}
	res, err := cron.Ensure(ctx, m.scheduler, def)
	if err != nil {
		return fmt.Errorf("backup: registering job: %w", err)
	}
	m.logger.Debug("backup: periodic job registered", "interval", m.interval, "result", res)
	return nil
}

// RequestRun queues a one-off backup on the scheduler. A request made while
// an earlier one is still pending or running is folded into it.
func (m *Manager) RequestRun(ctx context.Context) error {
	if m.scheduler == nil {
		return errors.New("backup: no scheduler configured")
	}
	def := cron.Definition{
		Key:     ManualJobKey,
		Kind:    cron.OneShot,
		Policy:  cron.KeepExisting,
		Payload: map[string]string{cron.PayloadAction: string(JobKey)},
	}
	res, err := m.scheduler.Submit(ctx, def)
	if err != nil {
		return fmt.Errorf("backup: queueing manual run: %w", err)
	}
	m.logger.Info("backup: manual run queued", "result", res)
	return nil
}

// Retain returns the number of artifacts kept after each run.
func (m *Manager) Retain() int { return m.retain }
