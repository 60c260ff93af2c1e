package core

import "context"

// Validator is implemented by modules that can verify their configuration
// before anything starts. Validate should be read-only.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that need to start background work
// (goroutines, listeners, timers). Called in append order.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that need to clean up resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by modules that support live configuration reload.
type Reloader interface {
	Reload(ctx *AppContext) error
}
