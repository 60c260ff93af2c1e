package quote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Rotator performs load, select and save of the selection state as one
// critical section, so concurrent refreshes never read the same
// LastShownID.
type Rotator struct {
	mu       sync.Mutex
	selector *Selector
	store    StateStore
	logger   *slog.Logger
}

// NewRotator returns a Rotator persisting through store.
func NewRotator(store StateStore, selector *Selector, logger *slog.Logger) *Rotator {
	if selector == nil {
		selector = NewSelector(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotator{selector: selector, store: store, logger: logger}
}

// Next selects the next quote for family. ok is false when there are no
// candidates; the stored state is then left untouched.
func (r *Rotator) Next(ctx context.Context, family string, candidates []Candidate) (Candidate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.store.LoadQuoteState(ctx, family)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("quote: loading state for %s: %w", family, err)
	}

	selected, ok, next := r.selector.SelectNext(candidates, state)
	if !ok {
		r.logger.Debug("quote: no candidates", "family", family)
		return Candidate{}, false, nil
	}

	if err := r.store.SaveQuoteState(ctx, family, next); err != nil {
		return Candidate{}, false, fmt.Errorf("quote: saving state for %s: %w", family, err)
	}
	r.logger.Debug("quote: selected", "family", family, "id", selected.ID, "previous", state.LastShownID)
	return selected, true, nil
}

// MemoryStateStore keeps selection state in memory.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryStateStore returns an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]State)}
}

var _ StateStore = (*MemoryStateStore)(nil)

func (m *MemoryStateStore) LoadQuoteState(_ context.Context, family string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[family], nil
}

func (m *MemoryStateStore) SaveQuoteState(_ context.Context, family string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[family] = st
	return nil
}
