package quote

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
)

func candidates(ids ...string) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ID: id, Text: "quote " + id}
	}
	return out
}

func TestSelector_Empty(t *testing.T) {
	t.Parallel()

	s := NewSelector(nil)
	prev := State{LastShownID: "a"}
	_, ok, next := s.SelectNext(nil, prev)
	if ok {
		t.Fatal("expected ok=false for no candidates")
	}
	if next != prev {
		t.Errorf("state changed to %+v", next)
	}
}

func TestSelector_SingleCandidateAlwaysReturned(t *testing.T) {
	t.Parallel()

	s := NewSelector(nil)
	got, ok, next := s.SelectNext(candidates("a"), State{LastShownID: "a"})
	if !ok || got.ID != "a" {
		t.Fatalf("got %+v ok=%v, want a", got, ok)
	}
	if next.LastShownID != "a" {
		t.Errorf("LastShownID = %q, want a", next.LastShownID)
	}
}

func TestSelector_NeverRepeatsLastShown(t *testing.T) {
	t.Parallel()

	s := NewSelector(rand.New(rand.NewPCG(1, 2)))
	pool := candidates("a", "b", "c")
	state := State{}
	seen := make(map[string]int)

	for i := range 500 {
		got, ok, next := s.SelectNext(pool, state)
		if !ok {
			t.Fatalf("iteration %d: ok=false", i)
		}
		if got.ID == state.LastShownID {
			t.Fatalf("iteration %d: repeated %q", i, got.ID)
		}
		seen[got.ID]++
		state = next
	}
	for _, id := range []string{"a", "b", "c"} {
		if seen[id] == 0 {
			t.Errorf("candidate %q never selected", id)
		}
	}
}

func TestSelector_UnknownLastShownUsesAll(t *testing.T) {
	t.Parallel()

	s := NewSelector(rand.New(rand.NewPCG(3, 4)))
	got, ok, _ := s.SelectNext(candidates("a", "b"), State{LastShownID: "deleted"})
	if !ok || (got.ID != "a" && got.ID != "b") {
		t.Errorf("got %+v ok=%v", got, ok)
	}
}

type recordingStore struct {
	*MemoryStateStore
	mu    sync.Mutex
	saved []string
}

func (s *recordingStore) SaveQuoteState(ctx context.Context, family string, st State) error {
	s.mu.Lock()
	s.saved = append(s.saved, st.LastShownID)
	s.mu.Unlock()
	return s.MemoryStateStore.SaveQuoteState(ctx, family, st)
}

func TestRotator_SerializesLoadSelectSave(t *testing.T) {
	t.Parallel()

	store := &recordingStore{MemoryStateStore: NewMemoryStateStore()}
	r := NewRotator(store, NewSelector(rand.New(rand.NewPCG(7, 8))), nil)
	pool := candidates("a", "b", "c")

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := r.Next(context.Background(), "quotes", pool); err != nil {
				t.Errorf("Next: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(store.saved) != 100 {
		t.Fatalf("saved %d states, want 100", len(store.saved))
	}
	for i := 1; i < len(store.saved); i++ {
		if store.saved[i] == store.saved[i-1] {
			t.Fatalf("consecutive repeat %q at %d", store.saved[i], i)
		}
	}
}

func TestRotator_EmptyLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	store := NewMemoryStateStore()
	_ = store.SaveQuoteState(context.Background(), "quotes", State{LastShownID: "x"})
	r := NewRotator(store, nil, nil)

	_, ok, err := r.Next(context.Background(), "quotes", nil)
	if err != nil || ok {
		t.Fatalf("Next = ok %v, err %v; want false, nil", ok, err)
	}
	st, _ := store.LoadQuoteState(context.Background(), "quotes")
	if st.LastShownID != "x" {
		t.Errorf("LastShownID = %q, want x", st.LastShownID)
	}
}

type failingStore struct{ MemoryStateStore }

func (*failingStore) LoadQuoteState(context.Context, string) (State, error) {
	return State{}, errors.New("disk I/O error")
}

func TestRotator_LoadError(t *testing.T) {
	t.Parallel()

	r := NewRotator(&failingStore{}, nil, nil)
	if _, _, err := r.Next(context.Background(), "quotes", candidates("a")); err == nil {
		t.Fatal("expected load error to surface")
	}
}
