package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
	"github.com/vasiliy-maslov/storefront-api/internal/catalog"
)

const recoveryCreateCart = "create a new cart"

// Config carries the server-side cart rules. LifetimeSeconds is a hard
// rule independent of any configured expiration policy.
type Config struct {
	LifetimeSeconds int64
	TaxRate         float64
	AllowGuest      bool
	DefaultPolicies []Policy
}

type CreateInput struct {
	Currency string         `json:"currency"`
	Policies []Policy       `json:"policies,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ItemInput struct {
	ItemID         uuid.UUID      `json:"item_id"`
	Quantity       int            `json:"quantity"`
	Notes          string         `json:"notes,omitempty"`
	Customizations map[string]any `json:"customizations,omitempty"`
}

type UpdateItemInput struct {
	Quantity *int    `json:"quantity,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

type Service interface {
	Create(ctx context.Context, ownerID string, input CreateInput) (*Cart, error)
	Get(ctx context.Context, id uuid.UUID) (*Cart, error)
	AddItem(ctx context.Context, id uuid.UUID, input ItemInput) (*Cart, error)
	UpdateItem(ctx context.Context, id, cartItemID uuid.UUID, input UpdateItemInput) (*Cart, error)
	RemoveItem(ctx context.Context, id, cartItemID uuid.UUID) (*Cart, error)
	ApplyDiscount(ctx context.Context, id uuid.UUID, discount float64) (*Cart, error)
	SetMetadata(ctx context.Context, id uuid.UUID, key string, value any) (*Cart, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Consume atomically retrieves and invalidates the cart. Used by
	// order conversion; a second consume of the same id fails with
	// not-found, which makes conversion exactly-once.
	Consume(ctx context.Context, id uuid.UUID) (*Cart, error)
}

type service struct {
	repo        Repository
	catalogRepo catalog.Repository
	cfg         Config
}

func NewService(repo Repository, catalogRepo catalog.Repository, cfg Config) Service {
	return &service{repo: repo, catalogRepo: catalogRepo, cfg: cfg}
}

func (s *service) Create(ctx context.Context, ownerID string, input CreateInput) (*Cart, error) {
	if ownerID == "" && !s.cfg.AllowGuest {
		return nil, apperr.Business("guest checkout is not enabled")
	}
	if input.Currency == "" {
		return nil, apperr.Validation("invalid cart", apperr.FieldViolation{Field: "currency", Reason: "currency is required"})
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate cart id: %w", err)
	}

	now := time.Now().UTC()
	c := &Cart{
		ID:        id,
		OwnerID:   ownerID,
		Currency:  input.Currency,
		Items:     []Item{},
		Policies:  append(append([]Policy(nil), s.cfg.DefaultPolicies...), input.Policies...),
		Metadata:  input.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Recompute(s.cfg.TaxRate)

	if err := s.repo.Create(ctx, c); err != nil {
		log.Error().Err(err).Msg("service: failed to create cart in repository")
		return nil, apperr.Internal("failed to create cart", err)
	}

	log.Info().Stringer("cart_id", c.ID).Str("owner_id", ownerID).Msg("service: cart created")
	return c, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Cart, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}
	if s.expired(c, time.Now().UTC()) {
		return nil, apperr.Expired("cart has expired", recoveryCreateCart)
	}
	return c, nil
}

func (s *service) AddItem(ctx context.Context, id uuid.UUID, input ItemInput) (*Cart, error) {
	if input.Quantity < 1 {
		return nil, apperr.Validation("invalid cart item", apperr.FieldViolation{Field: "quantity", Reason: "quantity must be at least 1"})
	}

	catalogItem, err := s.catalogRepo.GetItemByID(ctx, input.ItemID)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return nil, apperr.Validation("invalid cart item", apperr.FieldViolation{Field: "item_id", Reason: "item does not exist in the catalog"})
		}
		return nil, apperr.Internal("failed to resolve catalog item", err)
	}

	updated, err := s.mutate(ctx, id, func(c *Cart) error {
		if err := s.checkPolicies(c); err != nil {
			return err
		}
		if catalogItem.Currency != c.Currency {
			return apperr.Business(fmt.Sprintf("item currency %s does not match cart currency %s", catalogItem.Currency, c.Currency))
		}

		cartItemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("service: failed to generate cart item id: %w", genErr)
		}
		c.Items = append(c.Items, Item{
			CartItemID:     cartItemID,
			ItemID:         catalogItem.ID,
			Quantity:       input.Quantity,
			Price:          catalogItem.Price,
			Notes:          input.Notes,
			Customizations: input.Customizations,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("cart_id", id).Stringer("item_id", input.ItemID).Int("quantity", input.Quantity).Msg("service: item added to cart")
	return updated, nil
}

func (s *service) UpdateItem(ctx context.Context, id, cartItemID uuid.UUID, input UpdateItemInput) (*Cart, error) {
	if input.Quantity != nil && *input.Quantity < 1 {
		return nil, apperr.Validation("invalid cart item", apperr.FieldViolation{Field: "quantity", Reason: "quantity must be at least 1"})
	}

	return s.mutate(ctx, id, func(c *Cart) error {
		for i := range c.Items {
			if c.Items[i].CartItemID != cartItemID {
				continue
			}
			if input.Quantity != nil {
				if *input.Quantity > c.Items[i].Quantity {
					if err := s.checkPolicies(c); err != nil {
						return err
					}
				}
				c.Items[i].Quantity = *input.Quantity
			}
			if input.Notes != nil {
				c.Items[i].Notes = *input.Notes
			}
			return nil
		}
		return apperr.NotFound("cart item not found")
	})
}

func (s *service) RemoveItem(ctx context.Context, id, cartItemID uuid.UUID) (*Cart, error) {
	return s.mutate(ctx, id, func(c *Cart) error {
		for i := range c.Items {
			if c.Items[i].CartItemID == cartItemID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
		return apperr.NotFound("cart item not found")
	})
}

func (s *service) ApplyDiscount(ctx context.Context, id uuid.UUID, discount float64) (*Cart, error) {
	if discount < 0 {
		return nil, apperr.Validation("invalid discount", apperr.FieldViolation{Field: "discount", Reason: "discount cannot be negative"})
	}
	return s.mutate(ctx, id, func(c *Cart) error {
		c.Discount = round2(discount)
		return nil
	})
}

func (s *service) SetMetadata(ctx context.Context, id uuid.UUID, key string, value any) (*Cart, error) {
	return s.mutate(ctx, id, func(c *Cart) error {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		c.Metadata[key] = value
		return nil
	})
}

func (s *service) Consume(ctx context.Context, id uuid.UUID) (*Cart, error) {
	c, err := s.repo.Consume(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}
	if s.expired(c, time.Now().UTC()) {
		// The cart is gone either way; an expired one reports so.
		return nil, apperr.Expired("cart has expired", recoveryCreateCart)
	}
	log.Info().Stringer("cart_id", id).Msg("service: cart consumed")
	return c, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapRepoError(err, id)
	}
	return nil
}

// checkPolicies gates growth mutations (adding an item, raising a
// quantity) against the cart snapshot they are about to grow.
func (s *service) checkPolicies(c *Cart) error {
	return EvaluatePolicies(c, c.Policies, time.Now().UTC())
}

// mutate is the single path for cart mutation: expiration is checked
// against the current snapshot, then fn is applied and the totals
// recomputed, all inside the repository's atomic update. Policy
// ceilings gate growth mutations only, via checkPolicies inside fn;
// a mutation that shrinks the cart back under a ceiling must never
// be blocked by the ceiling it cures.
func (s *service) mutate(ctx context.Context, id uuid.UUID, fn func(*Cart) error) (*Cart, error) {
	now := time.Now().UTC()
	updated, err := s.repo.Update(ctx, id, func(c *Cart) error {
		if s.expired(c, now) {
			return apperr.Expired("cart has expired", recoveryCreateCart)
		}
		if err := fn(c); err != nil {
			return err
		}
		c.Recompute(s.cfg.TaxRate)
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}
	return updated, nil
}

// expired applies the hard server-side lifetime, independent of any
// expiration policy on the cart itself.
func (s *service) expired(c *Cart, now time.Time) bool {
	if s.cfg.LifetimeSeconds <= 0 {
		return false
	}
	return now.Sub(c.CreatedAt) > time.Duration(s.cfg.LifetimeSeconds)*time.Second
}

func (s *service) mapRepoError(err error, id uuid.UUID) error {
	if errors.Is(err, ErrCartNotFound) {
		log.Warn().Stringer("cart_id", id).Msg("service: cart not found")
		return apperr.NotFound("cart not found")
	}
	if kind := apperr.KindOf(err); kind != apperr.KindInternal {
		return err
	}
	log.Error().Err(err).Stringer("cart_id", id).Msg("service: cart repository failure")
	return apperr.Internal("cart store failure", err)
}
