package cron

import (
	"errors"
	"fmt"
)

// Sentinel errors actions use to steer the executor.
var (
	// ErrStale marks a run whose backing entity changed after scheduling.
	// The run counts as a success and nothing is retried.
	ErrStale = errors.New("cron: stale entity")

	// ErrResourceMissing marks a run that cannot succeed because a required
	// resource is gone. The record fails without retry.
	ErrResourceMissing = errors.New("cron: resource missing")

	// ErrNoAction is returned when no registered action matches a job.
	ErrNoAction = errors.New("cron: no action registered")
)

// Outcome is the executor's interpretation of a run result.
type Outcome string

// Run outcomes.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable"
	OutcomeFatal     Outcome = "fatal"
)

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as non-retryable. Use it for programmer errors such as a
// malformed payload.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Fatalf is Fatal(fmt.Errorf(format, args...)).
func Fatalf(format string, args ...any) error {
	return Fatal(fmt.Errorf(format, args...))
}

// Classify maps an action error onto an Outcome. Unclassified errors are
// treated as transient.
func Classify(err error) Outcome {
	var fatal *fatalError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrStale):
		return OutcomeSuccess
	case errors.Is(err, ErrResourceMissing), errors.Is(err, ErrNoAction), errors.As(err, &fatal):
		return OutcomeFatal
	default:
		return OutcomeRetryable
	}
}
