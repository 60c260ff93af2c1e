package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/daybook/internal/events"
	"github.com/flemzord/daybook/internal/records"
	"github.com/flemzord/daybook/internal/widget"
)

type subscriber interface {
	Subscribe(t events.Type, h events.Handler)
}

type widgetRefresher interface {
	RequestRefresh(ctx context.Context, trigger widget.Trigger) error
	OnExternalEvent(ctx context.Context, source string) error
}

type taskObserver interface {
	OnTaskUpserted(ctx context.Context, task records.Task) error
	OnTaskDeleted(ctx context.Context, taskID string) error
}

type backupRunner interface {
	RequestRun(ctx context.Context) error
}

// routeEvents binds bus events to the coordinators that react to them.
// Handlers run on the single dispatch goroutine, so refreshes and backups
// are queued on the scheduler rather than run here.
func routeEvents(bus subscriber, widgets widgetRefresher, tasks taskObserver, backups backupRunner, logger *slog.Logger) {
	bus.Subscribe(events.TypeTimerFired, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.TimerFired); ok {
			logger.Debug("app: timer fired", "key", ev.Key, "at", ev.At)
		}
		return nil
	})

	bus.Subscribe(events.TypeExternalEvent, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.ExternalEvent)
		if !ok {
			return fmt.Errorf("app: unexpected event %T", e)
		}
		return widgets.OnExternalEvent(ctx, ev.Source)
	})

	bus.Subscribe(events.TypeManualTrigger, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.ManualTrigger)
		if !ok {
			return fmt.Errorf("app: unexpected event %T", e)
		}
		switch ev.Target {
		case events.TargetWidget:
			return widgets.RequestRefresh(ctx, widget.TriggerManual)
		case events.TargetBackup:
			return backups.RequestRun(ctx)
		default:
			return fmt.Errorf("app: unknown manual trigger target %q", ev.Target)
		}
	})

	bus.Subscribe(events.TypeEntityChanged, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.EntityChanged)
		if !ok {
			return fmt.Errorf("app: unexpected event %T", e)
		}
		if ev.Entity != "task" {
			logger.Debug("app: entity change ignored", "entity", ev.Entity, "id", ev.ID)
			return nil
		}
		if ev.Deleted {
			return tasks.OnTaskDeleted(ctx, ev.ID)
		}
		if ev.Task == nil {
			return fmt.Errorf("app: task %s changed without its new state", ev.ID)
		}
		return tasks.OnTaskUpserted(ctx, *ev.Task)
	})
}
