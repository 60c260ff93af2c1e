// Package reload applies configuration changes without a restart. A
// Watcher notices edits to the config file (or an explicit trigger such as
// SIGHUP) and a Handler reloads the modules that support it.
package reload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the configuration file to watch.
	ConfigPath string

	// PollInterval is how often to check the file. Defaults to 5 seconds.
	PollInterval time.Duration
}

// EventType describes why a reload was requested.
type EventType string

// Event types.
const (
	EventModified EventType = "modified"
	EventSignal   EventType = "signal"
)

// Event is one reload request.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher polls a configuration file and emits an Event when its content
// changes. Touching the file without changing it emits nothing. Pending
// events are coalesced.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a Watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx, w.fingerprint())
	})
}

// Events returns the channel of reload requests.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Trigger requests a reload regardless of file changes.
func (w *Watcher) Trigger() {
	w.emit(Event{Type: EventSignal, ConfigPath: w.cfg.ConfigPath})
}

// Stop stops polling. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) emit(e Event) {
	select {
	case w.events <- e:
	default:
	}
}

func (w *Watcher) poll(ctx context.Context, last []byte) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.fingerprint()
			if current == nil || bytes.Equal(current, last) {
				continue
			}
			last = current
			w.emit(Event{Type: EventModified, ConfigPath: w.cfg.ConfigPath})
		}
	}
}

// fingerprint returns the SHA-256 of the file, nil when it cannot be read.
func (w *Watcher) fingerprint() []byte {
	raw, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return nil
	}
	sum := sha256.Sum256(raw)
	return sum[:]
}
