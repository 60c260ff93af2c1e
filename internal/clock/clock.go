// Package clock abstracts wall-clock time so schedulers can be driven by a
// fake clock in tests.
package clock

import "time"

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	// TimerAt returns a timer that fires once the clock reaches deadline.
	// A deadline that is not in the future fires immediately.
	TimerAt(deadline time.Time) Timer
}

// Timer is the subset of *time.Timer the scheduler relies on.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) TimerAt(deadline time.Time) Timer {
	return &realTimer{t: time.NewTimer(time.Until(deadline))}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time { return r.t.C }
func (r *realTimer) Stop() bool          { return r.t.Stop() }
