// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"

	"github.com/flemzord/daybook/internal/cron"
)

// MockAction is a configurable test double for cron.Action. RunFunc, when
// set, decides the result of each call.
type MockAction struct {
	RunFunc func(ctx context.Context, run cron.Run) error

	mu    sync.Mutex
	calls []cron.Run
}

// Compile-time interface check.
var _ cron.Action = (*MockAction)(nil)

// Run implements cron.Action and records the call.
func (m *MockAction) Run(ctx context.Context, run cron.Run) error {
	m.mu.Lock()
	m.calls = append(m.calls, run)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, run)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockAction) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded runs.
func (m *MockAction) Calls() []cron.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cron.Run, len(m.calls))
	copy(out, m.calls)
	return out
}

// Sequence returns a RunFunc that returns errs in order, then nil.
func Sequence(errs ...error) func(context.Context, cron.Run) error {
	var (
		mu sync.Mutex
		i  int
	)
	return func(context.Context, cron.Run) error {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(errs) {
			return nil
		}
		err := errs[i]
		i++
		return err
	}
}

// RecordingSubmitter captures submissions and cancellations without running
// anything. It mirrors the subset of *cron.Scheduler used by coordinators.
type RecordingSubmitter struct {
	mu        sync.Mutex
	submitted []cron.Definition
	cancelled []cron.Key
	live      map[cron.Key]cron.Definition
}

// NewRecordingSubmitter returns an empty RecordingSubmitter.
func NewRecordingSubmitter() *RecordingSubmitter {
	return &RecordingSubmitter{live: make(map[cron.Key]cron.Definition)}
}

var _ cron.Submitter = (*RecordingSubmitter)(nil)

// Submit records def and honours KeepExisting against earlier submissions.
func (r *RecordingSubmitter) Submit(_ context.Context, def cron.Definition) (cron.SubmitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.submitted = append(r.submitted, def)
	if _, ok := r.live[def.Key]; ok && def.Policy == cron.KeepExisting {
		return cron.Ignored, nil
	}
	r.live[def.Key] = def
	return cron.Accepted, nil
}

// Cancel records key and drops it from the live set.
func (r *RecordingSubmitter) Cancel(_ context.Context, key cron.Key) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelled = append(r.cancelled, key)
	_, ok := r.live[key]
	delete(r.live, key)
	return ok, nil
}

// Submitted returns every definition passed to Submit.
func (r *RecordingSubmitter) Submitted() []cron.Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cron.Definition, len(r.submitted))
	copy(out, r.submitted)
	return out
}

// SubmittedFor counts submissions for key.
func (r *RecordingSubmitter) SubmittedFor(key cron.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, d := range r.submitted {
		if d.Key == key {
			n++
		}
	}
	return n
}

// Cancelled returns every key passed to Cancel.
func (r *RecordingSubmitter) Cancelled() []cron.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cron.Key, len(r.cancelled))
	copy(out, r.cancelled)
	return out
}

// Live returns the definition currently live under key.
func (r *RecordingSubmitter) Live(key cron.Key) (cron.Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.live[key]
	return d, ok
}

// Get implements cron.Submitter. Live definitions are reported as Pending
// records.
func (r *RecordingSubmitter) Get(key cron.Key) *cron.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.live[key]
	if !ok {
		return nil
	}
	return &cron.Record{Key: key, Definition: d, State: cron.StatePending}
}
