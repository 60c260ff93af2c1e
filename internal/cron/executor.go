package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// execute runs one dispatched job on a worker goroutine.
func (s *Scheduler) execute(d dispatch) {
	logger := s.logger.With("key", d.key, "run_id", d.runID, "attempt", d.attempt)

	if s.cancelRequested(d) {
		logger.Info("cron: job cancelled before start")
		s.complete(d, nil, 0, true)
		return
	}

	action, err := s.resolver.Resolve(d.def)
	if err != nil {
		s.complete(d, err, 0, false)
		return
	}

	ctx := d.ctx
	if d.def.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.def.Timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "cron.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.key", string(d.key)),
			attribute.String("job.run_id", d.runID),
			attribute.Int("job.attempt", d.attempt),
		),
	)

	logger.Debug("cron: job started")
	started := time.Now()
	err = runAction(ctx, action, Run{
		Key:     d.key,
		ID:      d.runID,
		Attempt: d.attempt,
		Payload: d.def.Payload,
		FiredAt: d.firedAt,
	})
	elapsed := time.Since(started)

	if err != nil && !errors.Is(err, ErrStale) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("job.outcome", string(Classify(err))))
	span.End()

	s.complete(d, err, elapsed, false)
}

// runAction calls a.Run and converts a panic into a fatal error.
func runAction(ctx context.Context, a Action, run Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Fatal(fmt.Errorf("cron: action panicked: %v\n%s", r, debug.Stack()))
		}
	}()
	return a.Run(ctx, run)
}

func (s *Scheduler) cancelRequested(d dispatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[d.key]
	return rec == nil || rec.Generation != d.generation || rec.CancelRequested
}

// complete applies the outcome of a run to the job table. It is the only
// place where retry versus terminal state is decided.
func (s *Scheduler) complete(d dispatch, runErr error, elapsed time.Duration, skipped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.inflight[d.key]
	if run != nil && run.generation == d.generation {
		delete(s.inflight, d.key)
		run.cancel()
	}
	s.metrics.setInFlight(len(s.inflight))
	defer s.requeueDeferredLocked(d.key)

	logger := s.logger.With("key", d.key, "run_id", d.runID, "attempt", d.attempt)

	rec := s.records[d.key]
	if rec == nil || rec.Generation != d.generation {
		logger.Debug("cron: job was replaced during its run, discarding outcome")
		return
	}

	now := s.clock.Now()
	outcome := Classify(runErr)
	if !skipped {
		s.metrics.ran(outcome, elapsed)
	}

	updated := rec.Clone()
	updated.UpdatedAt = now

	switch {
	case rec.CancelRequested || skipped:
		updated.State = StateCancelled
		updated.CancelRequested = false
		if outcome != OutcomeSuccess {
			updated.LastError = runErr.Error()
		}
		logger.Info("cron: job cancelled")

	case run != nil && run.rescheduled:
		s.rearm(updated, runErr)
		logger.Info("cron: job re-armed with updated schedule", "next_fire_at", updated.NextFireAt)

	case outcome == OutcomeSuccess:
		if errors.Is(runErr, ErrStale) {
			logger.Info("cron: job target changed, nothing to do", "reason", runErr)
		}
		updated.LastError = ""
		if updated.Definition.Kind == Periodic {
			s.rearm(updated, nil)
			logger.Debug("cron: job completed", "next_fire_at", updated.NextFireAt)
		} else {
			updated.State = StateSucceeded
			logger.Debug("cron: job completed")
		}

	case outcome == OutcomeRetryable:
		updated.LastError = runErr.Error()
		s.retryOrGiveUp(updated, now, runErr)

	default:
		updated.State = StateFailed
		updated.LastError = runErr.Error()
		logger.Error("cron: job failed permanently", "error", runErr)
	}

	if err := s.store.Put(context.Background(), updated); err != nil {
		logger.Error("cron: persisting run outcome failed", "error", err)
	}
	s.records[d.key] = updated
	if updated.State == StatePending {
		if !updated.NextFireAt.After(now) {
			s.logger.Warn("cron: run outlasted its period, next run is immediate", "key", d.key)
			s.metrics.overran()
		}
		s.armLocked(updated)
	}
}

// rearm starts a fresh cycle at the record's NextFireAt.
func (s *Scheduler) rearm(rec *Record, runErr error) {
	rec.State = StatePending
	rec.Attempt = 0
	rec.ScheduledAt = rec.NextFireAt
	if runErr != nil && Classify(runErr) != OutcomeSuccess {
		rec.LastError = runErr.Error()
	}
}

func (s *Scheduler) retryOrGiveUp(rec *Record, now time.Time, runErr error) {
	logger := s.logger.With("key", rec.Key, "attempt", rec.Attempt)
	periodic := rec.Definition.Kind == Periodic

	if rec.Attempt < rec.Definition.maxAttempts(s.maxAttempts) {
		delay := s.backoff.Delay(rec.Attempt)
		retryAt := now.Add(delay)
		if !periodic || retryAt.Before(rec.NextFireAt) {
			rec.State = StatePending
			rec.NextFireAt = retryAt
			s.metrics.retried()
			logger.Warn("cron: job failed, retrying", "backoff", delay, "error", runErr)
			return
		}
		logger.Warn("cron: job failed, next regular run comes before the retry", "error", runErr)
		s.rearm(rec, runErr)
		return
	}

	if periodic {
		logger.Error("cron: job failed, retries exhausted for this cycle", "error", runErr)
		s.rearm(rec, runErr)
		return
	}
	rec.State = StateFailed
	logger.Error("cron: job failed, retries exhausted", "error", runErr)
}

func (s *Scheduler) requeueDeferredLocked(key Key) {
	if _, ok := s.deferred[key]; !ok {
		return
	}
	delete(s.deferred, key)
	if rec := s.records[key]; rec != nil && rec.State == StatePending {
		s.armLocked(rec)
	}
}
