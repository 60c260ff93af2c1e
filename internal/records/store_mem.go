package records

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is a thread-safe, in-memory implementation of Store.
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[string]Task
	quotes map[string]Quote
	habits map[string]Habit
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string]Task),
		quotes: make(map[string]Quote),
		habits: make(map[string]Habit),
	}
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) ListActiveHabits(_ context.Context) ([]Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Habit
	for _, h := range s.habits {
		if h.Active {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b Habit) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) ListQuoteCandidates(_ context.Context, activeOnly bool) ([]Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Quote
	for _, q := range s.quotes {
		if activeOnly && !q.Active {
			continue
		}
		out = append(out, q)
	}
	slices.SortFunc(out, func(a, b Quote) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) GetTaskByID(_ context.Context, id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListTasksDueBetween(_ context.Context, start, end time.Time) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Task
	for _, t := range s.tasks {
		if t.DueAt.IsZero() || t.DueAt.Before(start) || !t.DueAt.Before(end) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Task) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) UpdateTaskCompletion(_ context.Context, id string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Completed = done
	s.tasks[id] = t
	return nil
}

func (s *MemoryStore) UpsertTask(_ context.Context, t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *MemoryStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) UpsertQuote(_ context.Context, q Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.ID] = q
	return nil
}

func (s *MemoryStore) UpsertHabit(_ context.Context, h Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.habits[h.ID] = h
	return nil
}
