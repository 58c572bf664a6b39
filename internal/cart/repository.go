package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/gofrs/uuid"
)

var ErrCartNotFound = errors.New("cart not found")

// Repository is the key-addressed store contract for carts. Update and
// Consume must be atomic per cart id: concurrent mutations of the same
// cart must not interleave and lose an update.
type Repository interface {
	Create(ctx context.Context, c *Cart) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cart, error)
	// Update applies fn to the current cart under the store's
	// per-entity atomicity and persists the result. fn returning an
	// error aborts the update.
	Update(ctx context.Context, id uuid.UUID, fn func(*Cart) error) (*Cart, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Consume atomically removes the cart and returns its final state.
	// A second consume of the same id reports ErrCartNotFound, which
	// is what makes cart conversion exactly-once.
	Consume(ctx context.Context, id uuid.UUID) (*Cart, error)
}

type memoryRepository struct {
	mu    sync.Mutex
	carts map[uuid.UUID]*Cart
}

// NewMemoryRepository returns the default in-memory store. Production
// deployments supply their own atomic-update-capable implementation.
func NewMemoryRepository() Repository {
	return &memoryRepository{carts: make(map[uuid.UUID]*Cart)}
}

func (r *memoryRepository) Create(ctx context.Context, c *Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[c.ID] = c.clone()
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, ErrCartNotFound
	}
	return c.clone(), nil
}

func (r *memoryRepository) Update(ctx context.Context, id uuid.UUID, fn func(*Cart) error) (*Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.carts[id]
	if !ok {
		return nil, ErrCartNotFound
	}

	next := current.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.carts[id] = next

	return next.clone(), nil
}

func (r *memoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[id]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, id)
	return nil
}

func (r *memoryRepository) Consume(ctx context.Context, id uuid.UUID) (*Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, ErrCartNotFound
	}
	delete(r.carts, id)
	return c, nil
}
