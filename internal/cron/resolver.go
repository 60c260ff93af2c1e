package cron

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Run is what an action sees about the job it executes.
type Run struct {
	Key     Key
	ID      string
	Attempt int
	Payload map[string]string
	FiredAt time.Time
}

// Action executes the unit of work behind a job. Implementations should
// return ErrStale, ErrResourceMissing or a Fatal error to steer the
// executor, and should watch ctx.Done() at natural yield points.
type Action interface {
	Run(ctx context.Context, run Run) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, run Run) error

// Run implements Action.
func (f ActionFunc) Run(ctx context.Context, run Run) error { return f(ctx, run) }

// Resolver maps jobs to actions, either through an explicit
// Payload["action"] name or through the longest registered name that
// prefixes the job key.
type Resolver struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{actions: make(map[string]Action)}
}

// Register binds name to a. Names ending in ":" act as key prefixes
// ("reminder:"), other names match exact keys or payload actions.
func (r *Resolver) Register(name string, a Action) error {
	if name == "" {
		return fmt.Errorf("cron: empty action name")
	}
	if a == nil {
		return fmt.Errorf("cron: nil action for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("cron: duplicate action %q", name)
	}
	r.actions[name] = a
	return nil
}

// Resolve returns the action for def.
func (r *Resolver) Resolve(def Definition) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name := def.Payload[PayloadAction]; name != "" {
		if a, ok := r.actions[name]; ok {
			return a, nil
		}
		return nil, fmt.Errorf("%w: payload action %q", ErrNoAction, name)
	}

	key := string(def.Key)
	if a, ok := r.actions[key]; ok {
		return a, nil
	}

	var (
		best    Action
		bestLen int
	)
	for name, a := range r.actions {
		if !strings.HasSuffix(name, ":") || !strings.HasPrefix(key, name) {
			continue
		}
		if len(name) > bestLen {
			best, bestLen = a, len(name)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: key %q", ErrNoAction, key)
	}
	return best, nil
}
