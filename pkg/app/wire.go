package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/daybook/internal/backup"
	"github.com/flemzord/daybook/internal/clock"
	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/core"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/daemon"
	"github.com/flemzord/daybook/internal/events"
	"github.com/flemzord/daybook/internal/gateway"
	"github.com/flemzord/daybook/internal/notify"
	"github.com/flemzord/daybook/internal/quote"
	"github.com/flemzord/daybook/internal/reminder"
	"github.com/flemzord/daybook/internal/security"
	"github.com/flemzord/daybook/internal/telemetry"
	"github.com/flemzord/daybook/internal/widget"
	"github.com/flemzord/daybook/modules/store/sqlite"
)

const (
	auditFileName = "audit.log"
	backupDirName = "backups"

	// Admin requests allowed per client within authWindow.
	authLimit  = 60
	authWindow = time.Minute
)

// Options configures Build.
type Options struct {
	Config  *config.Config
	DataDir string
	Version string
	Logger  *slog.Logger

	// Level and Redactor are updated on config reload when set.
	Level    *slog.LevelVar
	Redactor *security.Redactor

	// Audit receives admin and reload events. Nil writes {DataDir}/audit.log.
	Audit *security.AuditLogger

	Clock    clock.Clock          // nil = clock.Real()
	Registry *prometheus.Registry // nil = a fresh registry with Go and process collectors
}

// Daemon is the assembled application. Modules start in the order they
// were appended: lock, store, telemetry, scheduler, bus, gateway.
type Daemon struct {
	App     *core.App
	Context *core.AppContext
	Config  *config.Config

	Lock      *daemon.Lock
	Store     *sqlite.Module
	Telemetry *telemetry.Provider
	Scheduler *cron.Scheduler
	Bus       *events.Bus
	Hub       *widget.Hub
	Widgets   *widget.Coordinator
	Reminders *reminder.Coordinator
	Backups   *backup.Manager
	Gateway   *gateway.Gateway
	Registry  *prometheus.Registry
	Audit     *security.AuditLogger

	closers []io.Closer
}

// Build assembles the daemon. The instance lock is taken before the
// database is opened, so a second daemon on the same data directory fails
// here without touching the store.
func Build(ctx context.Context, opts Options) (_ *Daemon, err error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.DataDir == "" {
		return nil, errors.New("app: data directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	cfg := opts.Config

	d := &Daemon{Config: cfg, Registry: reg}
	defer func() {
		if err != nil {
			_ = d.release()
		}
	}()

	d.Lock = daemon.NewLock(opts.DataDir, logger.With("component", "lock"))
	if err := d.Lock.Start(); err != nil {
		return nil, err
	}

	d.Audit = opts.Audit
	if d.Audit == nil {
		f, err := os.OpenFile(filepath.Join(opts.DataDir, auditFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("app: open audit log: %w", err)
		}
		d.closers = append(d.closers, f)
		d.Audit = security.NewAuditLogger(security.AuditLoggerConfig{Writer: f, Redactor: opts.Redactor})
	}

	d.Store, err = sqlite.Open(ctx, sqlite.ConfigFrom(cfg.Database, opts.DataDir), logger.With("component", "store"))
	if err != nil {
		return nil, err
	}

	d.Telemetry, err = telemetry.New(ctx, cfg.Telemetry, opts.Version, logger.With("component", "telemetry"))
	if err != nil {
		return nil, err
	}

	d.Bus, err = events.NewBus(events.BusConfig{
		Logger:     logger.With("component", "events"),
		Registerer: reg,
	})
	if err != nil {
		return nil, err
	}

	resolver := cron.NewResolver()
	cronMetrics, err := cron.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	d.Scheduler, err = cron.New(cron.Config{
		Store:       d.Store.Jobs(),
		Resolver:    resolver,
		Clock:       clk,
		Workers:     cfg.Scheduler.Workers,
		Backoff:     cron.Backoff{Base: cfg.Scheduler.BackoffBase, Max: cfg.Scheduler.BackoffMax},
		MaxAttempts: cfg.Scheduler.MaxAttempts,
		Logger:      logger.With("component", "cron"),
		Metrics:     cronMetrics,
		Publisher:   d.Bus,
		Tracer:      d.Telemetry.Tracer("github.com/flemzord/daybook/internal/cron"),
	})
	if err != nil {
		return nil, err
	}

	d.Hub = widget.NewHub(widget.HubConfig{
		Logger:         logger.With("component", "hub"),
		OriginPatterns: cfg.Gateway.WidgetOrigins,
	})

	if err := d.buildCoordinators(cfg, opts.DataDir, clk, logger, reg); err != nil {
		return nil, err
	}
	for _, r := range []interface{ RegisterActions(*cron.Resolver) error }{d.Reminders, d.Widgets, d.Backups} {
		if err := r.RegisterActions(resolver); err != nil {
			return nil, err
		}
	}
	routeEvents(d.Bus, d.Widgets, d.Reminders, d.Backups, logger.With("component", "router"))

	d.Gateway, err = gateway.New(gateway.Config{
		Settings:   cfg.Gateway,
		Version:    opts.Version,
		Logger:     logger.With("component", "gateway"),
		Jobs:       d.Scheduler,
		Widgets:    d.Widgets,
		Backups:    d.Backups,
		Tasks:      d.Store.Records(),
		Events:     d.Bus,
		Hub:        d.Hub,
		Health:     func(context.Context) error { return d.Store.Validate() },
		Gatherer:   reg,
		Registerer: reg,
		Audit:      d.Audit,
		Limiter:    security.NewRateLimiter(authLimit, authWindow),
	})
	if err != nil {
		return nil, err
	}

	d.Context = core.NewAppContext(logger, opts.DataDir, cfg)
	d.App = core.NewApp(d.Context)
	modules := []core.Module{
		d.Lock,
		d.Store,
		d.Telemetry,
		&schedulerModule{scheduler: d.Scheduler, registrars: []registrar{d.Reminders, d.Widgets, d.Backups}},
		busModule{d.Bus},
		d.Gateway,
		&settingsModule{widgets: d.Widgets, level: opts.Level, redactor: opts.Redactor},
	}
	for _, m := range modules {
		if err := d.App.AppendModule(m); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Daemon) buildCoordinators(cfg *config.Config, dataDir string, clk clock.Clock, logger *slog.Logger, reg prometheus.Registerer) error {
	sinks := notify.Multi{notify.LogSink{Logger: logger.With("component", "notify")}, d.Hub}
	if cfg.Notify.Ntfy.Enabled() {
		sinks = append(sinks, notify.NewNtfy(notify.NtfyConfig{
			URL:   cfg.Notify.Ntfy.URL,
			Topic: cfg.Notify.Ntfy.Topic,
			Token: cfg.Notify.Ntfy.Token,
		}))
	}

	var quiet *reminder.QuietHours
	if cfg.Reminders.QuietHours != "" {
		q, err := reminder.ParseQuietHours(cfg.Reminders.QuietHours)
		if err != nil {
			return err
		}
		quiet = &q
	}

	var err error
	d.Reminders, err = reminder.New(reminder.Config{
		Scheduler:       d.Scheduler,
		Store:           d.Store.Records(),
		Sink:            sinks,
		Clock:           clk,
		Logger:          logger.With("component", "reminder"),
		Location:        cfg.Reminders.Location(),
		QuietHours:      quiet,
		OverdueInterval: cfg.Reminders.OverdueInterval,
		SummaryInterval: cfg.Reminders.SummaryInterval,
		SummaryCron:     cfg.Reminders.SummaryCron,
	})
	if err != nil {
		return err
	}

	mode, err := widget.ParseMode(cfg.Widget.Mode)
	if err != nil {
		return err
	}
	d.Widgets, err = widget.New(widget.Config{
		Scheduler: d.Scheduler,
		Store:     d.Store.Records(),
		Rotator:   quote.NewRotator(d.Store.QuoteState(), quote.NewSelector(nil), logger.With("component", "quote")),
		Target:    d.Hub,
		Mode:      mode,
		Logger:    logger.With("component", "widget"),
	})
	if err != nil {
		return err
	}

	backupMetrics, err := backup.NewMetrics(reg)
	if err != nil {
		return err
	}
	dir := cfg.Backup.Dir
	if dir == "" {
		dir = filepath.Join(dataDir, backupDirName)
	}
	d.Backups, err = backup.New(backup.Config{
		Source:       d.Store.Path(),
		Dir:          dir,
		Prefix:       cfg.Backup.Prefix,
		Retain:       cfg.Backup.Retain,
		Interval:     cfg.Backup.Interval,
		Checkpointer: d.Store,
		Scheduler:    d.Scheduler,
		Clock:        clk,
		Logger:       logger.With("component", "backup"),
		Metrics:      backupMetrics,
	})
	return err
}

// Close releases what Build acquired outside the module lifecycle. Call it
// after App.Stop, or instead of it when the app never started.
func (d *Daemon) Close() error {
	return d.release()
}

func (d *Daemon) release() error {
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Stop(context.Background()))
	}
	for _, c := range d.closers {
		errs = append(errs, c.Close())
	}
	d.closers = nil
	if d.Lock != nil {
		errs = append(errs, d.Lock.Stop(context.Background()))
	}
	return errors.Join(errs...)
}

// registrar ensures a coordinator's standing jobs exist.
type registrar interface {
	Register(ctx context.Context) error
}

// schedulerModule loads persisted jobs, lets coordinators ensure their
// standing jobs and then starts the fire loop.
type schedulerModule struct {
	scheduler  *cron.Scheduler
	registrars []registrar
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "scheduler"}
}

func (m *schedulerModule) Start() error {
	ctx := context.Background()
	if err := m.scheduler.Load(ctx); err != nil {
		return err
	}
	var errs []error
	for _, r := range m.registrars {
		errs = append(errs, r.Register(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return m.scheduler.Start()
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

type busModule struct {
	bus *events.Bus
}

func (m busModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "events"}
}

func (m busModule) Start() error { return m.bus.Start() }

func (m busModule) Stop(ctx context.Context) error { return m.bus.Stop(ctx) }

// settingsModule applies the reloadable settings: log level, redaction
// literals and the widget refresh mode.
type settingsModule struct {
	widgets  *widget.Coordinator
	level    *slog.LevelVar
	redactor *security.Redactor
}

func (m *settingsModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "settings"}
}

func (m *settingsModule) Reload(ctx *core.AppContext) error {
	cfg := ctx.Config
	if m.level != nil {
		if err := m.level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return fmt.Errorf("app: log level: %w", err)
		}
	}
	if m.redactor != nil {
		m.redactor.SetLiterals(cfg.Secrets())
	}
	mode, err := widget.ParseMode(cfg.Widget.Mode)
	if err != nil {
		return err
	}
	if mode == m.widgets.Mode() {
		return nil
	}
	ctx.Logger.Info("app: widget mode changed", "mode", mode)
	return m.widgets.SetMode(context.Background(), mode)
}
