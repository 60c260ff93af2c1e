// Package records defines the tracker entities the background subsystem
// reads (tasks, quotes, habits) and the store contract it reads them through.
package records

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("records: not found")

// Task is a to-do item. ReminderAt, when set, is the instant a reminder
// notification should fire.
type Task struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Notes      string    `json:"notes,omitempty"`
	DueAt      time.Time `json:"due_at,omitzero"`
	ReminderAt time.Time `json:"reminder_at,omitzero"`
	Completed  bool      `json:"completed"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// HasReminder reports whether a reminder time is set.
func (t Task) HasReminder() bool { return !t.ReminderAt.IsZero() }

// Validate checks the fields a store requires.
func (t Task) Validate() error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, errors.New("records: task id is required"))
	}
	if t.Title == "" {
		errs = append(errs, errors.New("records: task title is required"))
	}
	return errors.Join(errs...)
}

// Quote is a quote candidate for the quote widget.
type Quote struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Author string `json:"author,omitempty"`
	Active bool   `json:"active"`
}

// Habit is a tracked habit shown on the habits widget.
type Habit struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Streak int    `json:"streak"`
}

// Store is the record store consumed by the coordinators. Implementations
// must be safe for concurrent use.
type Store interface {
	ListActiveHabits(ctx context.Context) ([]Habit, error)
	ListQuoteCandidates(ctx context.Context, activeOnly bool) ([]Quote, error)

	// GetTaskByID returns ErrNotFound when no task has id.
	GetTaskByID(ctx context.Context, id string) (Task, error)
	// ListTasksDueBetween returns tasks with start <= DueAt < end, ordered
	// by due time. Completed tasks are included.
	ListTasksDueBetween(ctx context.Context, start, end time.Time) ([]Task, error)
	// UpdateTaskCompletion only writes the row. Callers publish the change
	// (events.EntityChanged) so a pending reminder is cancelled or re-armed;
	// the gateway's completion endpoint does both.
	UpdateTaskCompletion(ctx context.Context, id string, done bool) error
	UpsertTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, id string) error

	UpsertQuote(ctx context.Context, q Quote) error
	UpsertHabit(ctx context.Context, h Habit) error
}
