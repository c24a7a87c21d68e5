// Package catalog serves the list of bookable service items. Reads are
// public; only ADMIN may add items.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

var (
	// ErrItemNotFound is returned when no item matches.
	ErrItemNotFound = fmt.Errorf("catalog item: %w", httpx.ErrNotFound)
	// ErrDuplicateName is returned when an item name is already used.
	ErrDuplicateName = fmt.Errorf("catalog item name already used: %w", httpx.ErrConflict)
)

// Item is a bookable service.
type Item struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	BasePriceCents int64     `json:"basePriceCents"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ItemInput is the body of an item creation.
type ItemInput struct {
	Name           string `json:"name" validate:"required,max=120"`
	Description    string `json:"description" validate:"omitempty,max=1000"`
	BasePriceCents int64  `json:"basePriceCents" validate:"gte=0"`
}

// Store keeps items in process memory.
type Store struct {
	mu     sync.RWMutex
	items  map[string]Item
	byName map[string]string
	now    func() time.Time
}

// NewStore creates a store holding seed.
func NewStore(seed ...Item) *Store {
	s := &Store{items: make(map[string]Item), byName: make(map[string]string), now: time.Now}
	for _, item := range seed {
		s.items[item.ID] = item
		s.byName[strings.ToLower(item.Name)] = item.ID
	}
	return s
}

// List returns every item ordered by name.
func (s *Store) List(_ context.Context) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a single item.
func (s *Store) Get(_ context.Context, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

// Create adds an item on behalf of an ADMIN caller.
func (s *Store) Create(_ context.Context, caller trust.RequestIdentity, in ItemInput) (Item, error) {
	if _, err := authz.RequireRole(caller, principal.RoleAdmin); err != nil {
		return Item{}, err
	}
	key := strings.ToLower(strings.TrimSpace(in.Name))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[key]; ok {
		return Item{}, ErrDuplicateName
	}
	item := Item{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		BasePriceCents: in.BasePriceCents,
		CreatedAt:      s.now().UTC(),
	}
	s.items[item.ID] = item
	s.byName[key] = item.ID
	return item, nil
}

// DefaultItems is the catalog a fresh deployment starts with.
func DefaultItems() []Item {
	return []Item{
		{ID: "hvac-service", Name: "HVAC service", Description: "Seasonal heating and cooling check", BasePriceCents: 12900},
		{ID: "plumbing-repair", Name: "Plumbing repair", Description: "Leak and fixture repair", BasePriceCents: 9900},
		{ID: "electrical-inspection", Name: "Electrical inspection", Description: "Panel and circuit safety inspection", BasePriceCents: 14900},
	}
}
