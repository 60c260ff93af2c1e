package widget

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/daybook/internal/clock/clocktest"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/cron/crontest"
	"github.com/flemzord/daybook/internal/quote"
	"github.com/flemzord/daybook/internal/records"
)

type push struct {
	widgetID string
	content  Content
}

type recordingTarget struct {
	mu     sync.Mutex
	pushes []push
	err    error
}

func (r *recordingTarget) PushWidgetContent(_ context.Context, widgetID string, c Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.pushes = append(r.pushes, push{widgetID, c})
	return nil
}

func (r *recordingTarget) forWidget(id string) []Content {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Content
	for _, p := range r.pushes {
		if p.widgetID == id {
			out = append(out, p.content)
		}
	}
	return out
}

func seedQuotes(t *testing.T, store records.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := store.UpsertQuote(context.Background(), records.Quote{ID: id, Text: "quote " + id, Active: true}); err != nil {
			t.Fatal(err)
		}
	}
}

func newCoordinator(t *testing.T, sched cron.Submitter, store records.Store, target RenderTarget, mode Mode) *Coordinator {
	t.Helper()
	c, err := New(Config{
		Scheduler: sched,
		Store:     store,
		Rotator:   quote.NewRotator(quote.NewMemoryStateStore(), quote.NewSelector(rand.New(rand.NewPCG(1, 2))), slog.New(slog.DiscardHandler)),
		Target:    target,
		Mode:      mode,
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
	_, err := New(Config{
		Scheduler: crontest.NewRecordingSubmitter(),
		Store:     records.NewMemoryStore(),
		Rotator:   quote.NewRotator(quote.NewMemoryStateStore(), nil, nil),
		Target:    &recordingTarget{},
		Mode:      "weekly",
	})
	if err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestRefresh_PushesQuoteAndHabits(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore()
	seedQuotes(t, store, "a")
	_ = store.UpsertQuote(context.Background(), records.Quote{ID: "off", Text: "inactive"})
	_ = store.UpsertHabit(context.Background(), records.Habit{ID: "h1", Name: "read", Active: true, Streak: 4})
	_ = store.UpsertHabit(context.Background(), records.Habit{ID: "h2", Name: "paused"})
	target := &recordingTarget{}
	c := newCoordinator(t, crontest.NewRecordingSubmitter(), store, target, ModeEveryDay)

	if err := c.Refresh(context.Background(), TriggerManual); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	quotes := target.forWidget(WidgetQuote)
	if len(quotes) != 1 || quotes[0].QuoteID != "a" || quotes[0].Text != "quote a" {
		t.Errorf("quote pushes = %+v", quotes)
	}
	habits := target.forWidget(WidgetHabits)
	if len(habits) != 1 || len(habits[0].Habits) != 1 || habits[0].Habits[0] != (Habit{ID: "h1", Name: "read", Streak: 4}) {
		t.Errorf("habit pushes = %+v", habits)
	}
}

func TestRefresh_NoCandidatesPushesEmptyState(t *testing.T) {
	t.Parallel()

	target := &recordingTarget{}
	c := newCoordinator(t, crontest.NewRecordingSubmitter(), records.NewMemoryStore(), target, ModeEveryDay)

	if err := c.Refresh(context.Background(), TriggerManual); err != nil {
		t.Fatal(err)
	}
	quotes := target.forWidget(WidgetQuote)
	if len(quotes) != 1 || !quotes[0].Empty() {
		t.Errorf("quote pushes = %+v, want one empty state", quotes)
	}
}

func TestRefresh_PushFailureIsRetryable(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore()
	seedQuotes(t, store, "a")
	c := newCoordinator(t, crontest.NewRecordingSubmitter(), store, &recordingTarget{err: errors.New("gone")}, ModeEveryDay)

	err := c.Refresh(context.Background(), TriggerTimer)
	if err == nil || cron.Classify(err) != cron.OutcomeRetryable {
		t.Errorf("err = %v, want retryable", err)
	}
}

func TestRefresh_NeverRepeatsConsecutively(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore()
	seedQuotes(t, store, "a", "b", "c")
	target := &recordingTarget{}
	c := newCoordinator(t, crontest.NewRecordingSubmitter(), store, target, ModeEveryDay)

	for range 50 {
		if err := c.Refresh(context.Background(), TriggerManual); err != nil {
			t.Fatal(err)
		}
	}
	quotes := target.forWidget(WidgetQuote)
	for i := 1; i < len(quotes); i++ {
		if quotes[i].QuoteID == quotes[i-1].QuoteID {
			t.Fatalf("refresh %d repeated %s", i, quotes[i].QuoteID)
		}
	}
}

func TestSetMode(t *testing.T) {
	t.Parallel()

	sched := crontest.NewRecordingSubmitter()
	c := newCoordinator(t, sched, records.NewMemoryStore(), &recordingTarget{}, ModeEveryDay)
	ctx := context.Background()

	if err := c.SetMode(ctx, ModeEveryHour); err != nil {
		t.Fatal(err)
	}
	def, ok := sched.Live(JobKey)
	if !ok || def.Interval != time.Hour || def.Policy != cron.Replace {
		t.Errorf("live = %+v, %v", def, ok)
	}
	if c.Mode() != ModeEveryHour {
		t.Errorf("Mode() = %s", c.Mode())
	}

	if err := c.SetMode(ctx, ModeOnExternalEvent); err != nil {
		t.Fatal(err)
	}
	if _, ok := sched.Live(JobKey); ok {
		t.Error("event-driven mode should leave no refresh job")
	}
	if got := len(sched.Cancelled()); got != 2 {
		t.Errorf("cancellations = %d, want 2", got)
	}

	if err := c.SetMode(ctx, "monthly"); err == nil {
		t.Error("unknown mode should be rejected")
	}
	if c.Mode() != ModeOnExternalEvent {
		t.Error("rejected mode must not change the current one")
	}
}

func TestOnExternalEvent(t *testing.T) {
	t.Parallel()

	sched := crontest.NewRecordingSubmitter()
	target := &recordingTarget{}
	c := newCoordinator(t, sched, records.NewMemoryStore(), target, ModeEveryDay)
	ctx := context.Background()
	key := requestKey(TriggerExternal)

	if err := c.OnExternalEvent(ctx, "unlock"); err != nil {
		t.Fatal(err)
	}
	if n := sched.SubmittedFor(key); n != 0 {
		t.Errorf("every_day mode queued %d refreshes on external event", n)
	}

	if err := c.SetMode(ctx, ModeOnExternalEvent); err != nil {
		t.Fatal(err)
	}
	if err := c.OnExternalEvent(ctx, "unlock"); err != nil {
		t.Fatal(err)
	}
	def, ok := sched.Live(key)
	if !ok {
		t.Fatal("external event did not queue a refresh")
	}
	if def.Kind != cron.OneShot || def.Policy != cron.KeepExisting ||
		def.Payload[cron.PayloadAction] != string(JobKey) || def.Payload[payloadTrigger] != string(TriggerExternal) {
		t.Errorf("queued definition = %+v", def)
	}
	if n := len(target.forWidget(WidgetQuote)); n != 0 {
		t.Errorf("external event pushed %d times on the caller goroutine", n)
	}
}

func TestRequestRefresh_RunsOnScheduler(t *testing.T) {
	t.Parallel()

	resolver := cron.NewResolver()
	sched, err := cron.New(cron.Config{
		Store:    cron.NewMemoryStore(),
		Resolver: resolver,
		Clock:    clocktest.NewFake(time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC)),
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	store := records.NewMemoryStore()
	seedQuotes(t, store, "a", "b")
	target := &recordingTarget{}
	c := newCoordinator(t, sched, store, target, ModeEveryDay)
	if err := c.RegisterActions(resolver); err != nil {
		t.Fatal(err)
	}
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	if err := c.RequestRefresh(context.Background(), TriggerManual); err != nil {
		t.Fatalf("RequestRefresh: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		rec := sched.Get(requestKey(TriggerManual))
		if rec != nil && rec.State == cron.StateSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("manual refresh never completed: %+v", rec)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if n := len(target.forWidget(WidgetQuote)); n != 1 {
		t.Errorf("quote pushes = %d, want 1", n)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	sched := crontest.NewRecordingSubmitter()
	c := newCoordinator(t, sched, records.NewMemoryStore(), &recordingTarget{}, ModeEveryHour)
	ctx := context.Background()

	if err := c.Register(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(ctx); err != nil {
		t.Fatal(err)
	}
	if def, ok := sched.Live(JobKey); !ok || def.Policy != cron.KeepExisting {
		t.Errorf("live = %+v, %v", def, ok)
	}

	event := newCoordinator(t, sched, records.NewMemoryStore(), &recordingTarget{}, ModeOnExternalEvent)
	if err := event.Register(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := sched.Live(JobKey); ok {
		t.Error("event-driven Register should cancel the leftover job")
	}
}

func TestScenario_EveryHourNeverRepeats(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC)
	clk := clocktest.NewFake(start)
	resolver := cron.NewResolver()
	sched, err := cron.New(cron.Config{
		Store:    cron.NewMemoryStore(),
		Resolver: resolver,
		Clock:    clk,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}

	store := records.NewMemoryStore()
	seedQuotes(t, store, "A", "B", "C")
	target := &recordingTarget{}
	c := newCoordinator(t, sched, store, target, ModeEveryHour)
	if err := c.RegisterActions(resolver); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	for cycle := 1; cycle <= 3; cycle++ {
		clk.Advance(time.Hour)
		deadline := time.Now().Add(3 * time.Second)
		for len(target.forWidget(WidgetQuote)) < cycle {
			if time.Now().After(deadline) {
				t.Fatalf("cycle %d never refreshed", cycle)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}

	quotes := target.forWidget(WidgetQuote)
	if len(quotes) != 3 {
		t.Fatalf("refreshes = %d, want 3", len(quotes))
	}
	for i := 1; i < len(quotes); i++ {
		if quotes[i].QuoteID == quotes[i-1].QuoteID {
			t.Errorf("cycle %d repeated %s", i+1, quotes[i].QuoteID)
		}
	}
}

// gatedTarget blocks the first quote push until release is closed.
type gatedTarget struct {
	recordingTarget
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTarget) PushWidgetContent(ctx context.Context, widgetID string, c Content) error {
	if widgetID == WidgetQuote {
		first := false
		g.once.Do(func() { first = true })
		if first {
			close(g.entered)
			<-g.release
		}
	}
	return g.recordingTarget.PushWidgetContent(ctx, widgetID, c)
}

func TestRefresh_ConcurrentRefreshesShowLastSelection(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore()
	seedQuotes(t, store, "a", "b", "c")
	state := quote.NewMemoryStateStore()
	target := &gatedTarget{entered: make(chan struct{}), release: make(chan struct{})}
	c, err := New(Config{
		Scheduler: crontest.NewRecordingSubmitter(),
		Store:     store,
		Rotator:   quote.NewRotator(state, quote.NewSelector(rand.New(rand.NewPCG(3, 4))), slog.New(slog.DiscardHandler)),
		Target:    target,
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	timerDone := make(chan error, 1)
	go func() { timerDone <- c.Refresh(ctx, TriggerTimer) }()
	<-target.entered

	manualDone := make(chan error, 1)
	go func() { manualDone <- c.Refresh(ctx, TriggerManual) }()

	select {
	case err := <-manualDone:
		t.Fatalf("manual refresh finished while the timer refresh was pushing: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(target.release)
	if err := <-timerDone; err != nil {
		t.Fatalf("timer Refresh: %v", err)
	}
	if err := <-manualDone; err != nil {
		t.Fatalf("manual Refresh: %v", err)
	}

	quotes := target.forWidget(WidgetQuote)
	if len(quotes) != 2 {
		t.Fatalf("quote pushes = %+v, want 2", quotes)
	}
	if quotes[0].QuoteID == quotes[1].QuoteID {
		t.Errorf("same quote shown twice in a row: %q", quotes[1].QuoteID)
	}
	st, _ := state.LoadQuoteState(ctx, quoteFamily)
	if displayed := quotes[1].QuoteID; st.LastShownID != displayed {
		t.Errorf("displayed %q but last_shown_id = %q", displayed, st.LastShownID)
	}
}

func TestRefresh_WaitingRefreshHonoursContext(t *testing.T) {
	t.Parallel()

	store := records.NewMemoryStore()
	seedQuotes(t, store, "a", "b")
	target := &gatedTarget{entered: make(chan struct{}), release: make(chan struct{})}
	c := newCoordinator(t, crontest.NewRecordingSubmitter(), store, target, ModeEveryDay)

	go func() { _ = c.Refresh(context.Background(), TriggerTimer) }()
	<-target.entered
	defer close(target.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Refresh(ctx, TriggerManual); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Refresh = %v, want deadline exceeded", err)
	}
}
