package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/daybook/internal/clock"
)

const (
	defaultWorkers = 4
	tracerName     = "github.com/flemzord/daybook/internal/cron"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("cron: scheduler already started")

// Config wires a Scheduler. Store and Resolver are required.
type Config struct {
	Store    Store
	Resolver *Resolver
	Clock    clock.Clock // nil = clock.Real()
	Workers  int         // zero = 4
	Backoff  Backoff     // zero value = 30s doubling, capped at 1h

	// MaxAttempts applies to definitions that leave MaxAttempts unset.
	// Zero means DefaultMaxAttempts.
	MaxAttempts int

	Logger    *slog.Logger
	Metrics   *Metrics
	Publisher Publisher
	Tracer    trace.Tracer
}

// Scheduler owns the job table and a single fire queue ordered by
// NextFireAt. Due jobs are handed to a bounded pool of workers; a key is
// never dispatched while a previous run of the same key is in flight.
type Scheduler struct {
	store       Store
	resolver    *Resolver
	clock       clock.Clock
	workers     int
	maxAttempts int
	backoff     Backoff
	logger      *slog.Logger
	metrics     *Metrics
	publisher   Publisher
	tracer      trace.Tracer

	mu       sync.Mutex
	records  map[Key]*Record
	queue    fireQueue
	inflight map[Key]*inflightRun
	deferred map[Key]struct{}
	started  bool

	wakeCh    chan struct{}
	workCh    chan dispatch
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

type inflightRun struct {
	generation  int64
	cancel      context.CancelFunc
	rescheduled bool
}

type dispatch struct {
	ctx        context.Context
	key        Key
	generation int64
	def        Definition
	attempt    int
	runID      string
	firedAt    time.Time
}

// New creates a scheduler. Jobs may be submitted before Start; they fire
// once the scheduler runs.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("cron: nil Store")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("cron: nil Resolver")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}

	return &Scheduler{
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		clock:       cfg.Clock,
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		publisher:   cfg.Publisher,
		tracer:      cfg.Tracer,
		records:     make(map[Key]*Record),
		inflight:    make(map[Key]*inflightRun),
		deferred:    make(map[Key]struct{}),
		wakeCh:      make(chan struct{}, 1),
	}, nil
}

// Load reads persisted records into the job table. Pending records are
// armed; Running records left behind by a crash are reset to Pending with
// their attempt count preserved, unless a cancel was requested during the
// run, in which case they become Cancelled. Load must be called before
// Start and before the first Submit.
func (s *Scheduler) Load(ctx context.Context) error {
	records, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("cron: loading records: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var armed int
	for _, rec := range records {
		if rec.State == StateRunning {
			if rec.CancelRequested {
				rec.State = StateCancelled
				rec.Generation++
			} else {
				rec.State = StatePending
			}
			rec.CancelRequested = false
			rec.UpdatedAt = now
			if err := s.store.Put(ctx, rec); err != nil {
				return fmt.Errorf("cron: resetting interrupted job %q: %w", rec.Key, err)
			}
			if rec.State == StateCancelled {
				s.logger.Info("cron: interrupted job had a pending cancel, not re-arming", "key", rec.Key)
			} else {
				s.logger.Warn("cron: job was interrupted, re-arming", "key", rec.Key, "attempt", rec.Attempt)
			}
		}
		s.records[rec.Key] = rec
		if rec.State == StatePending {
			s.armLocked(rec)
			armed++
		}
	}
	s.logger.Info("cron: job table loaded", "records", len(records), "armed", armed)
	return nil
}

// Start launches the run loop and the worker pool.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.stopCh = make(chan struct{})
	s.workCh = make(chan dispatch)

	s.wg.Add(s.workers + 1)
	for range s.workers {
		go s.worker()
	}
	go s.loop()

	s.logger.Info("cron: scheduler started", "workers", s.workers, "queued", s.queue.Len())
	return nil
}

// Stop halts dispatching and waits for in-flight runs until ctx expires, at
// which point their contexts are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.runCancel()
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		s.runCancel()
		<-done
		s.logger.Warn("cron: scheduler stopped with runs cancelled")
		return ctx.Err()
	}
}

// Submit installs def under def.Key according to def.Policy. A record in a
// terminal state, or a running one with a cancel pending, counts as absent. A OneShot definition whose NotBefore has
// already passed is dropped and reported as Ignored.
func (s *Scheduler) Submit(ctx context.Context, def Definition) (SubmitResult, error) {
	if err := def.Validate(); err != nil {
		return Ignored, err
	}
	def = def.clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	current := s.records[def.Key]
	live := current.active()

	if live && def.Policy == KeepExisting {
		s.logger.Debug("cron: job already live, keeping it", "key", def.Key, "state", current.State)
		s.metrics.submitted(Ignored)
		return Ignored, nil
	}

	next, ok, err := firstFire(def, now)
	if err != nil {
		return Ignored, err
	}
	if !ok {
		s.logger.Debug("cron: dropping one-shot job whose fire time has passed",
			"key", def.Key,
			"not_before", def.NotBefore,
		)
		s.metrics.submitted(Ignored)
		return Ignored, nil
	}

	if live && def.Policy == UpdateSchedule {
		if err := s.updateScheduleLocked(ctx, current, def, next, now); err != nil {
			return Ignored, err
		}
		s.metrics.submitted(Accepted)
		return Accepted, nil
	}

	rec := &Record{
		Key:         def.Key,
		Definition:  def,
		State:       StatePending,
		NextFireAt:  next,
		ScheduledAt: next,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if current != nil {
		rec.Generation = current.Generation + 1
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return Ignored, fmt.Errorf("cron: persisting job %q: %w", def.Key, err)
	}

	if live {
		if run, ok := s.inflight[def.Key]; ok {
			run.cancel()
		}
		s.logger.Info("cron: job replaced", "key", def.Key, "next_fire_at", next)
	} else {
		s.logger.Debug("cron: job submitted", "key", def.Key, "kind", def.Kind, "next_fire_at", next)
	}

	s.records[def.Key] = rec
	s.armLocked(rec)
	s.metrics.submitted(Accepted)
	return Accepted, nil
}

func (s *Scheduler) updateScheduleLocked(ctx context.Context, current *Record, def Definition, next, now time.Time) error {
	updated := current.Clone()
	updated.Definition = def
	updated.NextFireAt = next
	updated.ScheduledAt = next
	updated.UpdatedAt = now

	if err := s.store.Put(ctx, updated); err != nil {
		return fmt.Errorf("cron: persisting job %q: %w", def.Key, err)
	}
	s.records[def.Key] = updated

	if updated.State == StateRunning {
		if run, ok := s.inflight[def.Key]; ok {
			run.rescheduled = true
		}
	} else {
		s.armLocked(updated)
	}
	s.logger.Info("cron: job schedule updated", "key", def.Key, "next_fire_at", next)
	return nil
}

// Cancel stops a live job. A Pending job becomes Cancelled immediately; a
// Running job is flagged, its context is cancelled, and it becomes Cancelled
// once the run returns. Cancel reports whether a live job was found.
func (s *Scheduler) Cancel(ctx context.Context, key Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.records[key]
	if current == nil || !current.State.Live() {
		return false, nil
	}

	updated := current.Clone()
	updated.UpdatedAt = s.clock.Now()
	if current.State == StatePending {
		updated.State = StateCancelled
		updated.Generation++
	} else {
		updated.CancelRequested = true
	}

	if err := s.store.Put(ctx, updated); err != nil {
		return false, fmt.Errorf("cron: persisting cancel of %q: %w", key, err)
	}
	s.records[key] = updated

	if updated.State == StateCancelled {
		s.queue.remove(key)
		s.metrics.setQueueDepth(s.queue.Len())
	} else if run, ok := s.inflight[key]; ok {
		run.cancel()
	}

	s.logger.Info("cron: job cancelled", "key", key, "state", current.State)
	return true, nil
}

// Get returns a snapshot of the record for key, or nil.
func (s *Scheduler) Get(key Key) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[key].Clone()
}

// List returns snapshots of every record, ordered by key.
func (s *Scheduler) List() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sortRecords(out)
	return out
}

// armLocked queues rec at its NextFireAt, replacing any older entry for
// the same key.
func (s *Scheduler) armLocked(rec *Record) {
	s.queue.remove(rec.Key)
	s.queue.push(queueEntry{key: rec.Key, at: rec.NextFireAt, generation: rec.Generation})
	s.metrics.setQueueDepth(s.queue.Len())
	s.wake()
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// loop is the single dispatch goroutine.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		now := s.clock.Now()
		batch := s.prepareLocked(s.queue.popDue(now), now)
		next, hasNext := s.queue.peek()
		s.mu.Unlock()

		for i, d := range batch {
			if s.publisher != nil {
				s.publisher.TimerFired(d.key, d.firedAt)
			}
			select {
			case s.workCh <- d:
			case <-s.stopCh:
				s.abandon(batch[i:])
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		var (
			timer  clock.Timer
			timerC <-chan time.Time
		)
		if hasNext {
			timer = s.clock.TimerAt(next.at)
			timerC = timer.C()
		}

		select {
		case <-s.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wakeCh:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// prepareLocked moves due Pending records to Running and builds their
// dispatches. Keys with a run in flight are deferred until it returns.
func (s *Scheduler) prepareLocked(due []queueEntry, now time.Time) []dispatch {
	var batch []dispatch
	for _, e := range due {
		rec := s.records[e.key]
		if rec == nil || rec.Generation != e.generation || rec.State != StatePending {
			continue
		}
		if _, busy := s.inflight[e.key]; busy {
			s.deferred[e.key] = struct{}{}
			continue
		}

		updated := rec.Clone()
		updated.State = StateRunning
		updated.Attempt++
		updated.LastRunAt = now
		updated.LastRunID = uuid.NewString()
		updated.UpdatedAt = now

		if updated.Definition.Kind == Periodic {
			regular, err := step(updated.Definition, updated.ScheduledAt)
			if err != nil {
				s.logger.Error("cron: cannot compute next fire time", "key", e.key, "error", err)
				regular = now.Add(time.Hour)
			}
			if !regular.After(now) {
				// Dispatched late: missed cycles collapse into this run.
				if regular, err = stepAfter(updated.Definition, regular, now); err != nil {
					s.logger.Error("cron: cannot compute next fire time", "key", e.key, "error", err)
					regular = now.Add(time.Hour)
				}
				s.logger.Warn("cron: periodic job fell behind its schedule, skipping missed runs",
					"key", e.key,
					"scheduled_at", updated.ScheduledAt,
					"next_fire_at", regular,
				)
			}
			updated.NextFireAt = regular
		}

		if err := s.store.Put(s.runCtx, updated); err != nil {
			s.logger.Error("cron: persisting run start failed", "key", e.key, "error", err)
		}
		s.records[e.key] = updated

		ctx, cancel := context.WithCancel(s.runCtx)
		s.inflight[e.key] = &inflightRun{generation: updated.Generation, cancel: cancel}

		batch = append(batch, dispatch{
			ctx:        ctx,
			key:        e.key,
			generation: updated.Generation,
			def:        updated.Definition.clone(),
			attempt:    updated.Attempt,
			runID:      updated.LastRunID,
			firedAt:    now,
		})
	}
	s.metrics.setQueueDepth(s.queue.Len())
	s.metrics.setInFlight(len(s.inflight))
	return batch
}

// abandon returns undelivered dispatches to Pending so a restart re-arms them.
func (s *Scheduler) abandon(batch []dispatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range batch {
		run, ok := s.inflight[d.key]
		if !ok || run.generation != d.generation {
			continue
		}
		rec := s.records[d.key]
		if rec == nil || rec.State != StateRunning {
			continue
		}
		delete(s.inflight, d.key)
		run.cancel()

		updated := rec.Clone()
		updated.State = StatePending
		updated.Attempt--
		if err := s.store.Put(context.Background(), updated); err != nil {
			s.logger.Error("cron: persisting abandoned run failed", "key", d.key, "error", err)
		}
		s.records[d.key] = updated
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case d := <-s.workCh:
			s.execute(d)
		}
	}
}
