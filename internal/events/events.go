// Package events carries the inputs that drive background work (timer
// fires, external triggers, manual triggers, entity changes) through a
// single dispatch goroutine.
package events

import (
	"time"

	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/records"
)

// Type discriminates Event values.
type Type string

// Event types.
const (
	TypeTimerFired    Type = "timer_fired"
	TypeExternalEvent Type = "external_event"
	TypeManualTrigger Type = "manual_trigger"
	TypeEntityChanged Type = "entity_changed"
)

// Event is one of TimerFired, ExternalEvent, ManualTrigger or
// EntityChanged.
type Event interface {
	Type() Type
}

// TimerFired is published each time the scheduler dispatches a job.
type TimerFired struct {
	Key cron.Key
	At  time.Time
}

// ExternalEvent is an OS-level trigger such as a device unlock.
type ExternalEvent struct {
	Source string
	At     time.Time
}

// Manual trigger targets.
const (
	TargetWidget = "widget"
	TargetBackup = "backup"
)

// ManualTrigger is an explicit user request to run Target now.
type ManualTrigger struct {
	Target string
}

// EntityChanged reports a task write. Task is nil when Deleted is set.
type EntityChanged struct {
	Entity  string
	ID      string
	Task    *records.Task
	Deleted bool
}

func (TimerFired) Type() Type    { return TypeTimerFired }
func (ExternalEvent) Type() Type { return TypeExternalEvent }
func (ManualTrigger) Type() Type { return TypeManualTrigger }
func (EntityChanged) Type() Type { return TypeEntityChanged }
