package repository

import (
	"context"
	"maps"
	"sync"
	"time"

	"signaldesk/internal/models"
)

type memoryState struct {
	state     models.UserState
	expiresAt time.Time
}

type counter struct {
	hits      int
	expiresAt time.Time
}

// MemoryStateRepository in-process fallback for Redis. Sessions expire after ttl.
type MemoryStateRepository struct {
	mu       sync.Mutex
	states   map[int64]memoryState
	counters map[int64]counter
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		states:   make(map[int64]memoryState),
		counters: make(map[int64]counter),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *MemoryStateRepository) GetState(_ context.Context, userID int64) (*models.UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.states[userID]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.states, userID)
		return nil, nil
	}
	// копия, чтобы вызывающий не менял хранимую карту
	st := entry.state
	st.TempData = maps.Clone(entry.state.TempData)
	return &st, nil
}

func (r *MemoryStateRepository) SetState(_ context.Context, state *models.UserState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := *state
	st.TempData = maps.Clone(state.TempData)
	r.states[state.UserID] = memoryState{state: st, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryStateRepository) ClearState(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, userID)
	return nil
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	c, ok := r.counters[userID]
	if !ok || now.After(c.expiresAt) {
		c = counter{expiresAt: now.Add(window)}
	}
	c.hits++
	r.counters[userID] = c
	return c.hits <= limit, nil
}
