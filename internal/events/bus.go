package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/daybook/internal/cron"
)

const defaultBuffer = 64

// Handler processes one event on the dispatch goroutine.
type Handler func(ctx context.Context, e Event) error

// BusConfig configures a Bus.
type BusConfig struct {
	Buffer     int // zero = 64
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Bus owns a buffered queue and a single goroutine that delivers events to
// the handlers registered for their type, in publish order.
type Bus struct {
	logger *slog.Logger
	queue  chan Event

	mu       sync.RWMutex
	handlers map[Type][]Handler
	started  bool

	cancel context.CancelFunc
	done   chan struct{}

	dispatched *prometheus.CounterVec
	dropped    prometheus.Counter
}

// NewBus creates a stopped bus.
func NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bus{
		logger:   cfg.Logger,
		queue:    make(chan Event, cfg.Buffer),
		handlers: make(map[Type][]Handler),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "events",
			Name:      "dispatched_total",
			Help:      "Events delivered to handlers, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because the queue was full.",
		}),
	}
	if cfg.Registerer != nil {
		for _, c := range []prometheus.Collector{b.dispatched, b.dropped} {
			if err := cfg.Registerer.Register(c); err != nil {
				return nil, fmt.Errorf("events: register metrics: %w", err)
			}
		}
	}
	return b, nil
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish enqueues e without blocking. It reports false, and the event is
// dropped, when the queue is full.
func (b *Bus) Publish(e Event) bool {
	select {
	case b.queue <- e:
		return true
	default:
		b.dropped.Inc()
		b.logger.Warn("events: queue full, event dropped", "type", e.Type())
		return false
	}
}

// PublishWait enqueues e, waiting for room in the queue until ctx is done.
func (b *Bus) PublishWait(ctx context.Context, e Event) error {
	select {
	case b.queue <- e:
		return nil
	default:
	}
	select {
	case b.queue <- e:
		return nil
	case <-ctx.Done():
		b.dropped.Inc()
		b.logger.Warn("events: queue stayed full, event dropped", "type", e.Type())
		return fmt.Errorf("events: publishing %s: %w", e.Type(), ctx.Err())
	}
}

// TimerFired implements cron.Publisher.
func (b *Bus) TimerFired(key cron.Key, at time.Time) {
	b.Publish(TimerFired{Key: key, At: at})
}

var _ cron.Publisher = (*Bus)(nil)

// Start launches the dispatch goroutine.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return errors.New("events: bus already started")
	}
	b.started = true

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.loop(ctx)
	return nil
}

// Stop halts dispatching after the event in progress, if any.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	b.cancel()
	done := b.done
	b.mu.Unlock()

	select {
	case <-done:
		if n := len(b.queue); n > 0 {
			b.logger.Info("events: bus stopped with undelivered events", "pending", n)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) loop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			b.dispatch(ctx, e)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e Event) {
	b.mu.RLock()
	hs := b.handlers[e.Type()]
	b.mu.RUnlock()

	b.dispatched.WithLabelValues(string(e.Type())).Inc()
	for _, h := range hs {
		if err := b.safeCall(ctx, h, e); err != nil {
			b.logger.Error("events: handler failed", "type", e.Type(), "error", err)
		}
	}
}

func (b *Bus) safeCall(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("events: handler panicked: %v", r)
		}
	}()
	return h(ctx, e)
}
