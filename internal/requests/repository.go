package requests

import (
	"context"
	"sort"
	"sync"
)

// Repository defines persistence operations for service requests.
type Repository interface {
	Create(ctx context.Context, req ServiceRequest) error
	Get(ctx context.Context, id string) (ServiceRequest, error)
	Update(ctx context.Context, id string, fn func(*ServiceRequest) error) (ServiceRequest, error)
	List(ctx context.Context, match func(ServiceRequest) bool) ([]ServiceRequest, error)
}

// MemoryRepository keeps requests in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]ServiceRequest
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]ServiceRequest)}
}

func (m *MemoryRepository) Create(_ context.Context, req ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[req.ID] = req
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.items[id]
	if !ok {
		return ServiceRequest{}, ErrRequestNotFound
	}
	return req, nil
}

// Update applies fn under the write lock. The stored request is replaced
// only when fn succeeds.
func (m *MemoryRepository) Update(_ context.Context, id string, fn func(*ServiceRequest) error) (ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok {
		return ServiceRequest{}, ErrRequestNotFound
	}
	if err := fn(&req); err != nil {
		return ServiceRequest{}, err
	}
	m.items[id] = req
	return req, nil
}

func (m *MemoryRepository) List(_ context.Context, match func(ServiceRequest) bool) ([]ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServiceRequest, 0)
	for _, req := range m.items {
		if match == nil || match(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
