package daemon

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestLock_SecondInstanceRefused(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	first := NewLock(dir, slog.New(slog.DiscardHandler))
	if err := first.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if !first.Held() {
		t.Error("first lock should be held")
	}

	second := NewLock(dir, slog.New(slog.DiscardHandler))
	if err := second.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start error = %v, want ErrAlreadyRunning", err)
	}

	if err := first.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := second.Start(); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
	_ = second.Stop(context.Background())
}

func TestLock_StartAndStopAreIdempotent(t *testing.T) {
	t.Parallel()

	l := NewLock(t.TempDir(), nil)
	if l.Path() != filepath.Join(filepath.Dir(l.Path()), LockFileName) {
		t.Errorf("Path = %q", l.Path())
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
	for range 2 {
		if err := l.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	for range 2 {
		if err := l.Stop(context.Background()); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}
	if l.Held() {
		t.Error("lock still held after Stop")
	}
}
