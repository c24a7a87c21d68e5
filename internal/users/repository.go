package users

import (
	"context"
	"sort"
	"sync"
)

// Repository defines persistence operations for user accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user User) error
	UpdatePassword(ctx context.Context, id, hash string, needsChange bool) error
	List(ctx context.Context) ([]User, error)
}

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]User), byEmail: make(map[string]string)}
}

func (m *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := m.byID[id]
	return &user, nil
}

func (m *MemoryRepository) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (m *MemoryRepository) Create(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := normalizeEmail(user.Email)
	if _, taken := m.byEmail[email]; taken {
		return ErrEmailTaken
	}
	user.Email = email
	m.byID[user.ID] = user
	m.byEmail[email] = user.ID
	return nil
}

func (m *MemoryRepository) UpdatePassword(_ context.Context, id, hash string, needsChange bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	user.NeedsPasswordChange = needsChange
	m.byID[id] = user
	return nil
}

func (m *MemoryRepository) List(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.byID))
	for _, user := range m.byID {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
