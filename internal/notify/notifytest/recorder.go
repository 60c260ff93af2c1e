// Package notifytest provides a recording notify.Sink for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/flemzord/daybook/internal/notify"
)

// Recorder captures every notification it receives. Err, when set, is
// returned from Notify after recording.
type Recorder struct {
	Err error

	mu   sync.Mutex
	sent []notify.Notification
}

var _ notify.Sink = (*Recorder)(nil)

// Notify implements notify.Sink.
func (r *Recorder) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.Err
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}
