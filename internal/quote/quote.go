// Package quote selects the next quote shown on a widget so that, given at
// least two candidates, the previous one is never repeated.
package quote

import (
	"context"
	"math/rand/v2"
	"sync"
)

// Candidate is a selectable quote.
type Candidate struct {
	ID     string
	Text   string
	Author string
}

// State is the persisted selection state of one widget family.
type State struct {
	LastShownID string `json:"last_shown_id"`
}

// Selector picks quotes uniformly at random, excluding the last one shown.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a Selector drawing from rng. A nil rng uses the
// runtime's shared source.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

func (s *Selector) intN(n int) int {
	if s == nil || s.rng == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// SelectNext returns the next candidate and the state to persist. ok is
// false, and state is returned unchanged, when candidates is empty.
func (s *Selector) SelectNext(candidates []Candidate, state State) (selected Candidate, ok bool, next State) {
	switch len(candidates) {
	case 0:
		return Candidate{}, false, state
	case 1:
		return candidates[0], true, State{LastShownID: candidates[0].ID}
	}

	pool := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID != state.LastShownID {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}

	selected = pool[s.intN(len(pool))]
	return selected, true, State{LastShownID: selected.ID}
}

// StateStore persists selection state per widget family. LoadQuoteState
// returns the zero State when nothing has been saved yet.
type StateStore interface {
	LoadQuoteState(ctx context.Context, family string) (State, error)
	SaveQuoteState(ctx context.Context, family string, st State) error
}
