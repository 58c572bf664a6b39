package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrItemNotFound  = errors.New("catalog item not found")
	ErrStoreNotFound = errors.New("store not found")
)

type Repository interface {
	CreateStore(ctx context.Context, s *Store) error
	GetStoreByID(ctx context.Context, id uuid.UUID) (*Store, error)
	ListStores(ctx context.Context) ([]Store, error)
	CreateItem(ctx context.Context, item *Item) error
	GetItemByID(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, storeID uuid.UUID) ([]Item, error)
}

type memoryRepository struct {
	mu     sync.RWMutex
	stores map[uuid.UUID]*Store
	items  map[uuid.UUID]*Item
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		stores: make(map[uuid.UUID]*Store),
		items:  make(map[uuid.UUID]*Item),
	}
}

func (r *memoryRepository) CreateStore(ctx context.Context, s *Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		s.ID = id
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	copied := *s
	r.stores[s.ID] = &copied
	return nil
}

func (r *memoryRepository) GetStoreByID(ctx context.Context, id uuid.UUID) (*Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stores[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *memoryRepository) ListStores(ctx context.Context) ([]Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Store, 0, len(r.stores))
	for _, s := range r.stores {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) CreateItem(ctx context.Context, item *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		item.ID = id
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	copied := *item
	r.items[item.ID] = &copied
	return nil
}

func (r *memoryRepository) GetItemByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (r *memoryRepository) ListItems(ctx context.Context, storeID uuid.UUID) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0, len(r.items))
	for _, item := range r.items {
		if storeID != uuid.Nil && item.StoreID != storeID {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
