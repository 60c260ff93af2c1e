package gateway

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/daybook/internal/backup"
	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/events"
	"github.com/flemzord/daybook/internal/records"
	"github.com/flemzord/daybook/internal/security"
	"github.com/flemzord/daybook/internal/widget"
)

// Jobs is the job table view the admin API needs. *cron.Scheduler
// satisfies it.
type Jobs interface {
	List() []*cron.Record
	Get(key cron.Key) *cron.Record
	Cancel(ctx context.Context, key cron.Key) (bool, error)
}

// Widgets is the widget coordinator surface. *widget.Coordinator satisfies it.
type Widgets interface {
	Mode() widget.Mode
	SetMode(ctx context.Context, mode widget.Mode) error
}

// Backups is the backup surface. *backup.Manager satisfies it.
type Backups interface {
	Run(ctx context.Context) (backup.Artifact, error)
	List() ([]backup.Artifact, error)
}

// Tasks is the subset of records.Store the entity API writes through.
type Tasks interface {
	GetTaskByID(ctx context.Context, id string) (records.Task, error)
	UpsertTask(ctx context.Context, t records.Task) error
	UpdateTaskCompletion(ctx context.Context, id string, done bool) error
	DeleteTask(ctx context.Context, id string) error
}

// Publisher accepts events for the dispatch loop. *events.Bus satisfies it.
type Publisher interface {
	Publish(e events.Event) bool
	PublishWait(ctx context.Context, e events.Event) error
}

// Config holds the gateway settings and the components it serves.
type Config struct {
	Settings config.GatewayConfig
	Version  string
	Logger   *slog.Logger

	Jobs    Jobs
	Widgets Widgets
	Backups Backups
	Tasks   Tasks
	Events  Publisher

	// Hub serves /ws/widgets when set.
	Hub *widget.Hub

	// Health, when set, is consulted by GET /health.
	Health func(ctx context.Context) error

	// Gatherer serves /metrics; Registerer receives the HTTP metrics.
	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer

	Audit   *security.AuditLogger
	Limiter *security.RateLimiter
}
