package reminder

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/daybook/internal/clock/clocktest"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/notify/notifytest"
	"github.com/flemzord/daybook/internal/records"
)

func startScheduler(t *testing.T, clk *clocktest.Fake, store records.Store, sink *notifytest.Recorder) (*cron.Scheduler, *Coordinator) {
	t.Helper()

	resolver := cron.NewResolver()
	s, err := cron.New(cron.Config{
		Store:    cron.NewMemoryStore(),
		Resolver: resolver,
		Clock:    clk,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("cron.New: %v", err)
	}
	c, err := New(Config{
		Scheduler: s,
		Store:     store,
		Sink:      sink,
		Clock:     clk,
		Logger:    slog.New(slog.DiscardHandler),
		Location:  time.UTC,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.RegisterActions(resolver); err != nil {
		t.Fatalf("RegisterActions: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, c
}

func waitState(t *testing.T, s *cron.Scheduler, key cron.Key, want cron.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rec := s.Get(key); rec != nil && rec.State == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("%s never reached %s (record %+v)", key, want, s.Get(key))
}

func TestScenario_CompletedBeforeFiringSendsNothing(t *testing.T) {
	t.Parallel()

	clk := clocktest.NewFake(now)
	store := records.NewMemoryStore()
	sink := &notifytest.Recorder{}
	s, c := startScheduler(t, clk, store, sink)
	ctx := context.Background()

	task := records.Task{ID: "t1", Title: "water plants", ReminderAt: now.Add(10 * time.Second)}
	_ = store.UpsertTask(ctx, task)
	if err := c.OnTaskUpserted(ctx, task); err != nil {
		t.Fatal(err)
	}
	if rec := s.Get("reminder:t1"); rec == nil || rec.State != cron.StatePending {
		t.Fatalf("reminder not pending: %+v", rec)
	}

	task.Completed = true
	_ = store.UpsertTask(ctx, task)
	if err := c.OnTaskUpserted(ctx, task); err != nil {
		t.Fatal(err)
	}
	waitState(t, s, "reminder:t1", cron.StateCancelled)

	clk.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if sink.Len() != 0 {
		t.Errorf("notifications = %d, want 0", sink.Len())
	}
}

func TestScenario_ReminderFiresAtReminderTime(t *testing.T) {
	t.Parallel()

	clk := clocktest.NewFake(now)
	store := records.NewMemoryStore()
	sink := &notifytest.Recorder{}
	s, c := startScheduler(t, clk, store, sink)
	ctx := context.Background()

	task := records.Task{ID: "t2", Title: "call back", ReminderAt: now.Add(10 * time.Second)}
	_ = store.UpsertTask(ctx, task)
	if err := c.OnTaskUpserted(ctx, task); err != nil {
		t.Fatal(err)
	}

	clk.Advance(9 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if sink.Len() != 0 {
		t.Fatal("reminder fired early")
	}

	clk.Advance(time.Second)
	waitState(t, s, "reminder:t2", cron.StateSucceeded)
	if sent := sink.Sent(); len(sent) != 1 || sent[0].Body != "call back" {
		t.Errorf("sent = %+v", sent)
	}
}
