package technicians

import (
	"context"
	"sort"
	"sync"
)

// Repository defines persistence operations for the roster.
type Repository interface {
	Create(ctx context.Context, t Technician) error
	Get(ctx context.Context, id string) (Technician, error)
	SetAvailability(ctx context.Context, id string, available bool) (Technician, error)
	List(ctx context.Context) ([]Technician, error)
}

// MemoryRepository keeps the roster in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]Technician
	byUser map[string]string
}

// NewMemoryRepository creates an empty roster.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]Technician), byUser: make(map[string]string)}
}

func (m *MemoryRepository) Create(_ context.Context, t Technician) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[t.UserID]; ok {
		return ErrAlreadyRostered
	}
	t.Skills = append([]string(nil), t.Skills...)
	m.byID[t.ID] = t
	m.byUser[t.UserID] = t.ID
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byID[id]
	if !ok {
		return Technician{}, ErrTechnicianNotFound
	}
	t.Skills = append([]string(nil), t.Skills...)
	return t, nil
}

func (m *MemoryRepository) SetAvailability(_ context.Context, id string, available bool) (Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return Technician{}, ErrTechnicianNotFound
	}
	t.Available = available
	m.byID[id] = t
	t.Skills = append([]string(nil), t.Skills...)
	return t, nil
}

func (m *MemoryRepository) List(_ context.Context) ([]Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Technician, 0, len(m.byID))
	for _, t := range m.byID {
		t.Skills = append([]string(nil), t.Skills...)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
