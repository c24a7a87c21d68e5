package customers

import (
	"context"
	"sort"
	"sync"
)

// Repository defines persistence operations for customer profiles.
type Repository interface {
	Create(ctx context.Context, c Customer) error
	Get(ctx context.Context, id string) (Customer, error)
	Update(ctx context.Context, c Customer) error
	List(ctx context.Context) ([]Customer, error)
}

// MemoryRepository keeps profiles in process memory, one per user.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]Customer
	byUser map[string]string
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]Customer), byUser: make(map[string]string)}
}

func (m *MemoryRepository) Create(_ context.Context, c Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[c.UserID]; ok {
		return ErrProfileExists
	}
	m.byID[c.ID] = c
	m.byUser[c.UserID] = c.ID
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (m *MemoryRepository) Update(_ context.Context, c Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; !ok {
		return ErrCustomerNotFound
	}
	m.byID[c.ID] = c
	return nil
}

func (m *MemoryRepository) List(_ context.Context) ([]Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Customer, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
