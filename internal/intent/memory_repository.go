package intent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tourwallet/topup/internal/provider"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Intent
	byOrder map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		storage: make(map[string]Intent),
		byOrder: make(map[string]string),
	}
}

func orderKey(kind provider.Kind, code string) string {
	return string(kind) + ":" + code
}

func (r *memoryRepository) Create(_ context.Context, in Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[in.ID]; exists {
		return fmt.Errorf("intent %s exists", in.ID)
	}
	key := orderKey(in.Provider, in.OrderCode)
	if _, exists := r.byOrder[key]; exists {
		return ErrDuplicateOrder
	}
	r.storage[in.ID] = in
	r.byOrder[key] = in.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.storage[id]
	if !ok {
		return Intent{}, ErrNotFound
	}
	return in, nil
}

func (r *memoryRepository) GetByOrderCode(_ context.Context, kind provider.Kind, orderCode string) (Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrder[orderKey(kind, orderCode)]
	if !ok {
		return Intent{}, ErrNotFound
	}
	return r.storage[id], nil
}

func (r *memoryRepository) CompareAndSwap(_ context.Context, id string, t Transition) (Intent, bool, error) {
	if !t.valid() {
		return Intent{}, false, fmt.Errorf("%w: to %s", ErrInvalidTransition, t.To)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.storage[id]
	if !ok {
		return Intent{}, false, ErrNotFound
	}
	if !t.allows(in.Status) {
		return in, false, nil
	}
	in = t.apply(in)
	r.storage[id] = in
	return in, true, nil
}

func (r *memoryRepository) List(_ context.Context, f ListFilter) ([]Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Intent
	for _, in := range r.storage {
		if f.matches(in) {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
