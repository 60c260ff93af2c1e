// Package notify delivers user-facing notifications (reminders, digests)
// to one or more sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Notification is a single user-visible message. ID is stable per subject
// so that a newer notification for the same task replaces the older one on
// clients that support it.
type Notification struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Action string `json:"action,omitempty"`
}

// Sink delivers notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Multi fans a notification out to every sink. Delivery continues past a
// failing sink; the failures are joined.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for i, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notify: sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements Sink.
func (s LogSink) Notify(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notify: notification",
		"id", n.ID,
		"title", n.Title,
		"body", n.Body,
		"action", n.Action,
	)
	return nil
}
