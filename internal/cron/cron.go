// Package cron provides a keyed, idempotent job scheduler. Every job lineage
// is identified by a Key; the scheduler guarantees at most one live record per
// key, serializes runs of the same key, and retries failed runs with
// exponential backoff.
package cron

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"
)

// Key identifies a logical job lineage, e.g. "reminder:42" or "backup".
type Key string

// Kind distinguishes one-shot jobs from periodic ones.
type Kind string

// Job kinds.
const (
	OneShot  Kind = "oneshot"
	Periodic Kind = "periodic"
)

// Policy decides how a submission interacts with a live record under the
// same key.
type Policy string

// Unique-work policies.
const (
	// Replace discards the live definition and installs the new one.
	Replace Policy = "replace"
	// KeepExisting leaves a live record untouched.
	KeepExisting Policy = "keep_existing"
	// UpdateSchedule keeps an in-flight run and applies the new definition
	// to the next cycle.
	UpdateSchedule Policy = "update_schedule"
)

// State is the lifecycle state of a Record.
type State string

// Record states.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Live reports whether the state is Pending or Running.
func (s State) Live() bool {
	return s == StatePending || s == StateRunning
}

// Terminal reports whether no further transition will happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// PayloadAction is the payload entry that selects an action explicitly,
// bypassing key-prefix resolution.
const PayloadAction = "action"

// DefaultMaxAttempts bounds retries when a Definition leaves MaxAttempts unset.
const DefaultMaxAttempts = 3

// Definition describes what to run and when.
type Definition struct {
	Key  Key  `json:"key"`
	Kind Kind `json:"kind"`

	// Interval is the period of a Periodic job. Ignored when Cron is set.
	Interval time.Duration `json:"interval,omitempty"`

	// Cron is an optional 5-field cron expression for Periodic jobs.
	Cron string `json:"cron,omitempty"`

	Payload map[string]string `json:"payload,omitempty"`
	Policy  Policy            `json:"policy"`

	// NotBefore is the fire time of a OneShot job, or the first fire time of
	// a Periodic job. Zero means "as soon as possible" for OneShot jobs.
	NotBefore time.Time `json:"not_before,omitzero"`

	// RunImmediately fires a Periodic job once at submission time instead of
	// waiting one full period.
	RunImmediately bool `json:"run_immediately,omitempty"`

	// MaxAttempts bounds runs per cycle. Zero means DefaultMaxAttempts.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Timeout bounds a single run. Zero means no timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Validate checks the structural invariants of a definition.
func (d Definition) Validate() error {
	var errs []error
	if d.Key == "" {
		errs = append(errs, errors.New("cron: key is required"))
	}
	switch d.Kind {
	case OneShot:
	case Periodic:
		if d.Cron == "" && d.Interval <= 0 {
			errs = append(errs, fmt.Errorf("cron: periodic job %q needs a positive interval or a cron expression", d.Key))
		}
		if d.Cron != "" {
			if _, err := ParseSchedule(d.Cron); err != nil {
				errs = append(errs, err)
			}
		}
	default:
		errs = append(errs, fmt.Errorf("cron: job %q has unknown kind %q", d.Key, d.Kind))
	}
	switch d.Policy {
	case Replace, KeepExisting, UpdateSchedule:
	case "":
		errs = append(errs, fmt.Errorf("cron: job %q has no policy", d.Key))
	default:
		errs = append(errs, fmt.Errorf("cron: job %q has unknown policy %q", d.Key, d.Policy))
	}
	if d.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("cron: job %q has negative max_attempts", d.Key))
	}
	return errors.Join(errs...)
}

// maxAttempts returns the per-cycle run limit, falling back to fallback
// and then to DefaultMaxAttempts.
func (d Definition) maxAttempts(fallback int) int {
	switch {
	case d.MaxAttempts > 0:
		return d.MaxAttempts
	case fallback > 0:
		return fallback
	}
	return DefaultMaxAttempts
}

func (d Definition) clone() Definition {
	d.Payload = maps.Clone(d.Payload)
	return d
}

// Record is the durable state of one key.
type Record struct {
	Key             Key        `json:"key"`
	Definition      Definition `json:"definition"`
	State           State      `json:"state"`
	Attempt         int        `json:"attempt"`
	LastError       string     `json:"last_error,omitempty"`
	NextFireAt      time.Time  `json:"next_fire_at,omitzero"`
	// ScheduledAt is the regular fire time of the current periodic cycle.
	// Retries move NextFireAt but never ScheduledAt.
	ScheduledAt     time.Time  `json:"scheduled_at,omitzero"`
	Generation      int64      `json:"generation"`
	CancelRequested bool       `json:"cancel_requested,omitempty"`
	LastRunID       string     `json:"last_run_id,omitempty"`
	LastRunAt       time.Time  `json:"last_run_at,omitzero"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// active reports whether r is live and not on its way to Cancelled.
func (r *Record) active() bool {
	return r != nil && r.State.Live() && !r.CancelRequested
}

// Clone returns a deep copy safe to hand out of the scheduler lock.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Definition = r.Definition.clone()
	return &cp
}

// SubmitResult reports whether a submission changed the job table.
type SubmitResult string

// Submission results.
const (
	Accepted SubmitResult = "accepted"
	Ignored  SubmitResult = "ignored"
)

// Store persists job records. Implementations must be safe for concurrent use;
// the scheduler serializes writes per key itself.
type Store interface {
	// Get returns the record for key, or nil when none exists.
	Get(ctx context.Context, key Key) (*Record, error)
	// Put inserts or replaces the record for r.Key.
	Put(ctx context.Context, r *Record) error
	// List returns all records ordered by key.
	List(ctx context.Context) ([]*Record, error)
}

// Publisher receives a notification every time a job is dispatched.
type Publisher interface {
	TimerFired(key Key, at time.Time)
}
