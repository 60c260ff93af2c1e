// Package reminder keeps per-task reminder jobs in step with task edits and
// runs the periodic overdue and daily-summary digests.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/daybook/internal/clock"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/notify"
	"github.com/flemzord/daybook/internal/records"
)

// Periodic job keys owned by the coordinator.
const (
	KeyOverdue      cron.Key = "overdue-check"
	KeyDailySummary cron.Key = "daily-summary"
)

// Defaults for the periodic digests.
const (
	DefaultOverdueInterval = 6 * time.Hour
	DefaultSummaryInterval = 24 * time.Hour
)

// maxListed bounds the task titles quoted in a digest body.
const maxListed = 5

// Config wires a Coordinator. Scheduler, Store and Sink are required.
type Config struct {
	Scheduler cron.Submitter
	Store     records.Store
	Sink      notify.Sink
	Clock     clock.Clock
	Logger    *slog.Logger

	// Location is used for quiet hours and the daily-summary day window.
	Location   *time.Location
	QuietHours *QuietHours

	OverdueInterval time.Duration
	SummaryInterval time.Duration
	// SummaryCron replaces SummaryInterval when set.
	SummaryCron string
}

// Coordinator translates task writes into reminder jobs and implements the
// reminder, overdue-check and daily-summary actions.
type Coordinator struct {
	scheduler cron.Submitter
	store     records.Store
	sink      notify.Sink
	clock     clock.Clock
	logger    *slog.Logger

	loc         *time.Location
	quiet       *QuietHours
	overdue     time.Duration
	summary     time.Duration
	summaryCron string
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	var errs []error
	if cfg.Scheduler == nil {
		errs = append(errs, errors.New("reminder: nil Scheduler"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("reminder: nil Store"))
	}
	if cfg.Sink == nil {
		errs = append(errs, errors.New("reminder: nil Sink"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.OverdueInterval <= 0 {
		cfg.OverdueInterval = DefaultOverdueInterval
	}
	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = DefaultSummaryInterval
	}

	return &Coordinator{
		scheduler:   cfg.Scheduler,
		store:       cfg.Store,
		sink:        cfg.Sink,
		clock:       cfg.Clock,
		logger:      cfg.Logger.With("component", "reminder"),
		loc:         cfg.Location,
		quiet:       cfg.QuietHours,
		overdue:     cfg.OverdueInterval,
		summary:     cfg.SummaryInterval,
		summaryCron: cfg.SummaryCron,
	}, nil
}

// OnTaskUpserted reconciles the reminder job of task after a write.
func (c *Coordinator) OnTaskUpserted(ctx context.Context, task records.Task) error {
	return c.apply(ctx, Plan(task, c.clock.Now()))
}

// OnTaskDeleted cancels the reminder job of a deleted task.
func (c *Coordinator) OnTaskDeleted(ctx context.Context, taskID string) error {
	return c.apply(ctx, []Effect{{Kind: EffectCancel, Key: KeyFor(taskID), Reason: "task deleted"}})
}

func (c *Coordinator) apply(ctx context.Context, effects []Effect) error {
	for _, e := range effects {
		switch e.Kind {
		case EffectSubmit:
			if _, err := c.scheduler.Submit(ctx, e.Definition); err != nil {
				return fmt.Errorf("reminder: scheduling %s: %w", e.Key, err)
			}
			c.logger.Debug("reminder: scheduled", "key", e.Key, "at", e.Definition.NotBefore)
		case EffectCancel:
			cancelled, err := c.scheduler.Cancel(ctx, e.Key)
			if err != nil {
				return fmt.Errorf("reminder: cancelling %s: %w", e.Key, err)
			}
			if cancelled {
				c.logger.Debug("reminder: cancelled", "key", e.Key, "reason", e.Reason)
			}
		case EffectSkip:
			c.logger.Debug("reminder: not scheduled", "key", e.Key, "reason", e.Reason)
		}
	}
	return nil
}

// RegisterActions binds the reminder prefix and both digests on r.
func (c *Coordinator) RegisterActions(r *cron.Resolver) error {
	return errors.Join(
		r.Register(KeyPrefix, cron.ActionFunc(c.runReminder)),
		r.Register(string(KeyOverdue), cron.ActionFunc(c.runOverdue)),
		r.Register(string(KeyDailySummary), cron.ActionFunc(c.runDailySummary)),
	)
}

// Register installs the periodic overdue-check and daily-summary jobs,
// keeping live ones whose schedule is unchanged.
func (c *Coordinator) Register(ctx context.Context) error {
	for _, def := range []cron.Definition{c.overdueDefinition(), c.summaryDefinition()} {
		res, err := cron.Ensure(ctx, c.scheduler, def)
		if err != nil {
			return fmt.Errorf("reminder: registering %s: %w", def.Key, err)
		}
		c.logger.Debug("reminder: periodic job registered", "key", def.Key, "result", res)
	}
	return nil
}

func (c *Coordinator) overdueDefinition() cron.Definition {
	return cron.Definition{Key: KeyOverdue, Kind: cron.Periodic, Interval: c.overdue}
}

func (c *Coordinator) summaryDefinition() cron.Definition {
	def := cron.Definition{Key: KeyDailySummary, Kind: cron.Periodic}
	if c.summaryCron == "" {
		def.Interval = c.summary
		return def
	}
	def.Cron = c.summaryCron
	if !strings.HasPrefix(def.Cron, "CRON_TZ=") && !strings.HasPrefix(def.Cron, "TZ=") {
		def.Cron = "CRON_TZ=" + c.loc.String() + " " + def.Cron
	}
	return def
}

func (c *Coordinator) runReminder(ctx context.Context, run cron.Run) error {
	id := run.Payload[payloadTaskID]
	if id == "" {
		id = taskIDFromKey(run.Key)
	}
	if id == "" {
		return cron.Fatalf("reminder: job %s carries no task id", run.Key)
	}

	task, err := c.store.GetTaskByID(ctx, id)
	if errors.Is(err, records.ErrNotFound) {
		return fmt.Errorf("reminder: task %s no longer exists: %w", id, cron.ErrStale)
	}
	if err != nil {
		return fmt.Errorf("reminder: loading task %s: %w", id, err)
	}
	if task.Completed {
		return fmt.Errorf("reminder: task %s already completed: %w", id, cron.ErrStale)
	}
	if want := run.Payload[payloadReminderAt]; want != "" && want != task.ReminderAt.UTC().Format(time.RFC3339Nano) {
		return fmt.Errorf("reminder: task %s was rescheduled: %w", id, cron.ErrStale)
	}

	err = c.sink.Notify(ctx, notify.Notification{
		ID:     NotificationID(id),
		Title:  "Reminder",
		Body:   task.Title,
		Action: "task:" + id,
	})
	if err != nil {
		return fmt.Errorf("reminder: notifying task %s: %w", id, err)
	}
	c.logger.Info("reminder: sent", "task_id", id, "run_id", run.ID)
	return nil
}

func (c *Coordinator) runOverdue(ctx context.Context, run cron.Run) error {
	now := c.clock.Now().In(c.loc)
	if c.quiet != nil && c.quiet.Contains(now) {
		c.logger.Debug("reminder: overdue check skipped during quiet hours", "run_id", run.ID)
		return nil
	}

	tasks, err := c.store.ListTasksDueBetween(ctx, time.Unix(0, 0), now)
	if err != nil {
		return fmt.Errorf("reminder: listing overdue tasks: %w", err)
	}
	open := incomplete(tasks)
	if len(open) == 0 {
		return nil
	}

	return c.digest(ctx, notify.Notification{
		ID:     overdueNotificationID,
		Title:  "Overdue tasks",
		Body:   describe(open, "overdue"),
		Action: "tasks:overdue",
	})
}

func (c *Coordinator) runDailySummary(ctx context.Context, _ cron.Run) error {
	now := c.clock.Now().In(c.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	end := start.AddDate(0, 0, 1)

	tasks, err := c.store.ListTasksDueBetween(ctx, start, end)
	if err != nil {
		return fmt.Errorf("reminder: listing today's tasks: %w", err)
	}
	open := incomplete(tasks)
	if len(open) == 0 {
		return nil
	}

	return c.digest(ctx, notify.Notification{
		ID:     summaryNotificationID,
		Title:  "Today",
		Body:   describe(open, "due today"),
		Action: "tasks:today",
	})
}

func (c *Coordinator) digest(ctx context.Context, n notify.Notification) error {
	if err := c.sink.Notify(ctx, n); err != nil {
		return fmt.Errorf("reminder: sending %q: %w", n.Title, err)
	}
	c.logger.Info("reminder: digest sent", "title", n.Title)
	return nil
}

func incomplete(tasks []records.Task) []records.Task {
	out := tasks[:0:0]
	for _, t := range tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

func describe(tasks []records.Task, what string) string {
	noun := "tasks"
	if len(tasks) == 1 {
		noun = "task"
	}
	titles := make([]string, 0, maxListed)
	for i, t := range tasks {
		if i == maxListed {
			titles = append(titles, fmt.Sprintf("and %d more", len(tasks)-maxListed))
			break
		}
		titles = append(titles, t.Title)
	}
	return fmt.Sprintf("%d %s %s: %s", len(tasks), noun, what, strings.Join(titles, ", "))
}
