package order

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
)

var ErrOrderNotFound = errors.New("order not found")

// Repository is the key-addressed store contract for orders. Update is
// atomic per order id; the lifecycle engine relies on that to make
// every status transition a single read-modify-write.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Order, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*Order) error) (*Order, error)
}

type memoryRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*Order
}

func NewMemoryRepository() Repository {
	return &memoryRepository{orders: make(map[uuid.UUID]*Order)}
}

func (r *memoryRepository) Create(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[o.ID] = o.clone()
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.clone(), nil
}

func (r *memoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Order, 0)
	for _, o := range r.orders {
		if ownerID != "" && o.OwnerID != ownerID {
			continue
		}
		out = append(out, *o.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) Update(ctx context.Context, id uuid.UUID, fn func(*Order) error) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}

	next := current.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.orders[id] = next

	return next.clone(), nil
}
