// Package widget refreshes the home-screen widgets: a rotating quote and
// the list of active habits.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/quote"
	"github.com/flemzord/daybook/internal/records"
)

const (
	// quoteFamily names the selection state of the quote widget.
	quoteFamily = "quote"

	payloadTrigger = "trigger"
)

// Trigger says why a refresh happened.
type Trigger string

// Refresh triggers.
const (
	TriggerTimer    Trigger = "timer"
	TriggerExternal Trigger = "external_event"
	TriggerManual   Trigger = "manual"
)

// Config wires a Coordinator. Every field but Logger and Mode is required.
type Config struct {
	Scheduler cron.Submitter
	Store     records.Store
	Rotator   *quote.Rotator
	Target    RenderTarget
	Mode      Mode // empty = every_day
	Logger    *slog.Logger
}

// Coordinator owns the refresh mode and the widget-refresh job.
type Coordinator struct {
	scheduler cron.Submitter
	store     records.Store
	rotator   *quote.Rotator
	target    RenderTarget
	logger    *slog.Logger

	// mu serializes mode changes with their job updates.
	mu   sync.Mutex
	mode Mode

	// refreshing is held from quote selection until the last push, so the
	// widget always ends up showing the last quote selected. Timer, external
	// and manual refreshes all take it.
	refreshing chan struct{}
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	var errs []error
	if cfg.Scheduler == nil {
		errs = append(errs, errors.New("widget: nil Scheduler"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("widget: nil Store"))
	}
	if cfg.Rotator == nil {
		errs = append(errs, errors.New("widget: nil Rotator"))
	}
	if cfg.Target == nil {
		errs = append(errs, errors.New("widget: nil Target"))
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeEveryDay
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Coordinator{
		scheduler:  cfg.Scheduler,
		store:      cfg.Store,
		rotator:    cfg.Rotator,
		target:     cfg.Target,
		logger:     cfg.Logger.With("component", "widget"),
		mode:       cfg.Mode,
		refreshing: make(chan struct{}, 1),
	}, nil
}

// Mode returns the current refresh mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Refresh selects the next quote and pushes both widgets. Concurrent
// refreshes run one at a time. A failed push is returned so a timer-driven
// refresh is retried.
func (c *Coordinator) Refresh(ctx context.Context, trigger Trigger) error {
	select {
	case c.refreshing <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("widget: waiting for running refresh: %w", ctx.Err())
	}
	defer func() { <-c.refreshing }()

	logger := c.logger.With("trigger", trigger)

	quotes, err := c.store.ListQuoteCandidates(ctx, true)
	if err != nil {
		return fmt.Errorf("widget: listing quotes: %w", err)
	}
	candidates := make([]quote.Candidate, 0, len(quotes))
	for _, q := range quotes {
		candidates = append(candidates, quote.Candidate{ID: q.ID, Text: q.Text, Author: q.Author})
	}

	selected, ok, err := c.rotator.Next(ctx, quoteFamily, candidates)
	if err != nil {
		return fmt.Errorf("widget: selecting quote: %w", err)
	}
	var qc Content
	if ok {
		qc = Content{QuoteID: selected.ID, Text: selected.Text, Author: selected.Author}
	}
	if err := c.target.PushWidgetContent(ctx, WidgetQuote, qc); err != nil {
		return fmt.Errorf("widget: pushing quote: %w", err)
	}

	habits, err := c.store.ListActiveHabits(ctx)
	if err != nil {
		return fmt.Errorf("widget: listing habits: %w", err)
	}
	var hc Content
	for _, h := range habits {
		hc.Habits = append(hc.Habits, Habit{ID: h.ID, Name: h.Name, Streak: h.Streak})
	}
	if err := c.target.PushWidgetContent(ctx, WidgetHabits, hc); err != nil {
		return fmt.Errorf("widget: pushing habits: %w", err)
	}

	logger.Info("widget: refreshed", "quote_id", selected.ID, "habits", len(hc.Habits))
	return nil
}

// RequestRefresh queues a one-off refresh on the scheduler, so it runs on
// a worker like the timer refresh. A request made while an earlier one with
// the same trigger is still pending or running is folded into it.
func (c *Coordinator) RequestRefresh(ctx context.Context, trigger Trigger) error {
	def := cron.Definition{
		Key:    requestKey(trigger),
		Kind:   cron.OneShot,
		Policy: cron.KeepExisting,
		Payload: map[string]string{
			cron.PayloadAction: string(JobKey),
			payloadTrigger:     string(trigger),
		},
	}
	res, err := c.scheduler.Submit(ctx, def)
	if err != nil {
		return fmt.Errorf("widget: queueing %s refresh: %w", trigger, err)
	}
	c.logger.Debug("widget: refresh requested", "trigger", trigger, "result", res)
	return nil
}

func requestKey(t Trigger) cron.Key {
	return JobKey + ":" + cron.Key(t)
}

// OnExternalEvent requests a refresh when the current mode is event-driven
// and is a no-op otherwise.
func (c *Coordinator) OnExternalEvent(ctx context.Context, source string) error {
	if mode := c.Mode(); mode != ModeOnExternalEvent {
		c.logger.Debug("widget: external event ignored", "source", source, "mode", mode)
		return nil
	}
	return c.RequestRefresh(ctx, TriggerExternal)
}

// SetMode switches the refresh mode: the current job is cancelled and the
// new mode's job, if any, is installed.
func (c *Coordinator) SetMode(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.scheduler.Cancel(ctx, JobKey); err != nil {
		return fmt.Errorf("widget: cancelling refresh job: %w", err)
	}
	if def, ok := planMode(mode); ok {
		if _, err := c.scheduler.Submit(ctx, def); err != nil {
			return fmt.Errorf("widget: installing refresh job: %w", err)
		}
	}

	prev := c.mode
	c.mode = mode
	c.logger.Info("widget: refresh mode changed", "from", prev, "to", mode)
	return nil
}

// Register installs the job of the configured mode, keeping a live one
// with the same interval. In event-driven mode a leftover job is cancelled.
func (c *Coordinator) Register(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	def, ok := planMode(c.mode)
	if !ok {
		if _, err := c.scheduler.Cancel(ctx, JobKey); err != nil {
			return fmt.Errorf("widget: cancelling refresh job: %w", err)
		}
		return nil
	}
	res, err := cron.Ensure(ctx, c.scheduler, def)
	if err != nil {
		return fmt.Errorf("widget: registering refresh job: %w", err)
	}
	c.logger.Debug("widget: refresh job registered", "mode", c.mode, "result", res)
	return nil
}

// RegisterActions binds the refresh job, and the one-off refreshes queued
// by RequestRefresh, on r.
func (c *Coordinator) RegisterActions(r *cron.Resolver) error {
	return r.Register(string(JobKey), cron.ActionFunc(func(ctx context.Context, run cron.Run) error {
		trigger := TriggerTimer
		if t := run.Payload[payloadTrigger]; t != "" {
			trigger = Trigger(t)
		}
		return c.Refresh(ctx, trigger)
	}))
}
