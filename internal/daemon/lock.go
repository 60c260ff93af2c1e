// Package daemon guards the data directory against a second daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/flemzord/daybook/internal/core"
)

// ModuleID identifies the lock in the module lifecycle.
const ModuleID core.ModuleID = "daemon.lock"

// LockFileName is created inside the data directory.
const LockFileName = "daybook.lock"

// ErrAlreadyRunning is returned when another process holds the lock.
var ErrAlreadyRunning = errors.New("daemon: another daybook instance is running")

// Lock is an exclusive, process-wide lock on a data directory. It is a
// core module: Start acquires, Stop releases. Appending it first makes the
// rest of startup conditional on holding it.
type Lock struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger

	mu   sync.Mutex
	held bool
}

// NewLock prepares a lock for dataDir.
func NewLock(dataDir string, logger *slog.Logger) *Lock {
	if logger == nil {
		logger = slog.Default()
	}
	path := filepath.Join(dataDir, LockFileName)
	return &Lock{
		path:   path,
		lock:   flock.New(path),
		logger: logger.With("component", "daemon"),
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// ModuleInfo implements core.Module.
func (l *Lock) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: ModuleID} }

// Start implements core.Starter.
func (l *Lock) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("daemon: create data dir: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("daemon: acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, l.path)
	}
	l.held = true
	l.logger.Debug("daemon: lock acquired", "path", l.path)
	return nil
}

// Stop implements core.Stopper.
func (l *Lock) Stop(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false
	if err := l.lock.Unlock(); err != nil {
		l.logger.Warn("daemon: failed to release lock", "error", err)
		return fmt.Errorf("daemon: release lock: %w", err)
	}
	return nil
}

// Held reports whether this process holds the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
