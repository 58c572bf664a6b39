package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
	"github.com/vasiliy-maslov/storefront-api/internal/capability"
	"github.com/vasiliy-maslov/storefront-api/internal/cart"
	"github.com/vasiliy-maslov/storefront-api/internal/catalog"
	"github.com/vasiliy-maslov/storefront-api/internal/realtime"
)

// CancellationKey is the metadata namespace the lifecycle engine
// records cancellation details under.
const CancellationKey = "storefront.cancellation@1.0"

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusInTransit: true,
	},
	StatusInTransit: {
		StatusCompleted: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Config tunes the lifecycle engine. IdempotentCancel makes a second
// cancel of an already-cancelled order a silent success instead of a
// business error; the rejecting contract is the default.
type Config struct {
	IdempotentCancel bool
}

// Publisher receives one patch event per state-affecting mutation, in
// the same logical operation that persists the mutation.
type Publisher interface {
	Publish(ev realtime.Event)
}

// Notifier enqueues webhook deliveries. Delivery transport is an
// external concern; the engine only records that the event happened.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any)
}

type ConvertInput struct {
	FulfillmentType string `json:"fulfillment_type,omitempty"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
}

type SubmitItem struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
	Notes    string    `json:"notes,omitempty"`
}

type SubmitInput struct {
	Currency        string         `json:"currency"`
	Items           []SubmitItem   `json:"items"`
	FulfillmentType string         `json:"fulfillment_type,omitempty"`
	DeliveryAddress string         `json:"delivery_address,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Service is the cart/order lifecycle engine: the sole legal mutation
// path for order status.
type Service interface {
	Convert(ctx context.Context, cartID uuid.UUID, input ConvertInput) (*Order, error)
	Submit(ctx context.Context, ownerID string, input SubmitInput) (*Order, error)
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Order, error)
	Confirm(ctx context.Context, id uuid.UUID) (*Order, error)
	Ship(ctx context.Context, id uuid.UUID) (*Order, error)
	Complete(ctx context.Context, id uuid.UUID) (*Order, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*Order, error)
	Rate(ctx context.Context, id uuid.UUID, rating int) (*Order, error)
	RequestReturn(ctx context.Context, id, orderItemID uuid.UUID, reason string) (*Order, error)
	SetMetadata(ctx context.Context, id uuid.UUID, key string, value any) (*Order, error)
}

type service struct {
	repo        Repository
	cartSvc     cart.Service
	catalogRepo catalog.Repository
	registry    *capability.Registry
	publisher   Publisher
	notifier    Notifier
	cfg         Config
}

func NewService(repo Repository, cartSvc cart.Service, catalogRepo catalog.Repository, registry *capability.Registry, publisher Publisher, notifier Notifier, cfg Config) Service {
	return &service{
		repo:        repo,
		cartSvc:     cartSvc,
		catalogRepo: catalogRepo,
		registry:    registry,
		publisher:   publisher,
		notifier:    notifier,
		cfg:         cfg,
	}
}

// Convert turns an open cart into a pending order, consuming the cart
// in the same logical operation so a second conversion of the same
// cart is impossible.
func (s *service) Convert(ctx context.Context, cartID uuid.UUID, input ConvertInput) (*Order, error) {
	c, err := s.cartSvc.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, apperr.Business("cart has no items to convert")
	}
	// Availability is a best-effort gate: the store is atomic per
	// entity only, so an item can go out of stock between this check
	// and the consume below.
	for _, item := range c.Items {
		catalogItem, err := s.catalogRepo.GetItemByID(ctx, item.ItemID)
		if err != nil {
			if errors.Is(err, catalog.ErrItemNotFound) {
				return nil, apperr.Business(fmt.Sprintf("item %s is no longer in the catalog", item.ItemID))
			}
			return nil, apperr.Internal("failed to resolve catalog item", err)
		}
		if !catalogItem.Available {
			return nil, apperr.Business(fmt.Sprintf("item %q is out of stock", catalogItem.Name))
		}
	}

	// Consume is the atomic gate: it fails with not-found when a
	// concurrent conversion got there first.
	consumed, err := s.cartSvc.Consume(ctx, cartID)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(consumed.Items))
	for _, ci := range consumed.Items {
		items = append(items, Item{
			OrderItemID:    ci.CartItemID,
			ItemID:         ci.ItemID,
			Quantity:       ci.Quantity,
			Price:          ci.Price,
			Notes:          ci.Notes,
			Customizations: ci.Customizations,
		})
	}

	o, err := s.create(ctx, consumed.OwnerID, consumed.Currency, items, consumed.Total, consumed.Metadata, input.FulfillmentType, input.DeliveryAddress)
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("cart_id", cartID).Stringer("order_id", o.ID).Msg("service: cart converted to order")
	return o, nil
}

// Submit creates an order from directly supplied items, without a cart.
func (s *service) Submit(ctx context.Context, ownerID string, input SubmitInput) (*Order, error) {
	var violations []apperr.FieldViolation
	if input.Currency == "" {
		violations = append(violations, apperr.FieldViolation{Field: "currency", Reason: "currency is required"})
	}
	if len(input.Items) == 0 {
		violations = append(violations, apperr.FieldViolation{Field: "items", Reason: "at least one item is required"})
	}
	for i, item := range input.Items {
		if item.Quantity < 1 {
			violations = append(violations, apperr.FieldViolation{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "quantity must be at least 1"})
		}
	}
	if len(violations) > 0 {
		return nil, apperr.Validation("invalid order", violations...)
	}

	total := 0.0
	items := make([]Item, 0, len(input.Items))
	for _, in := range input.Items {
		catalogItem, err := s.catalogRepo.GetItemByID(ctx, in.ItemID)
		if err != nil {
			if errors.Is(err, catalog.ErrItemNotFound) {
				return nil, apperr.Business(fmt.Sprintf("item %s is no longer in the catalog", in.ItemID))
			}
			return nil, apperr.Internal("failed to resolve catalog item", err)
		}
		if !catalogItem.Available {
			return nil, apperr.Business(fmt.Sprintf("item %q is out of stock", catalogItem.Name))
		}
		if catalogItem.Currency != input.Currency {
			return nil, apperr.Business(fmt.Sprintf("item currency %s does not match order currency %s", catalogItem.Currency, input.Currency))
		}

		orderItemID, genErr := uuid.NewV4()
		if genErr != nil {
			return nil, fmt.Errorf("service: failed to generate order item id: %w", genErr)
		}
		items = append(items, Item{
			OrderItemID: orderItemID,
			ItemID:      catalogItem.ID,
			Quantity:    in.Quantity,
			Price:       catalogItem.Price,
			Notes:       in.Notes,
		})
		total += float64(in.Quantity) * catalogItem.Price
	}

	return s.create(ctx, ownerID, input.Currency, items, total, input.Metadata, input.FulfillmentType, input.DeliveryAddress)
}

func (s *service) create(ctx context.Context, ownerID, currency string, items []Item, total float64, metadata map[string]any, fulfillmentType, deliveryAddress string) (*Order, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              id,
		OwnerID:         ownerID,
		Status:          StatusPending,
		Items:           items,
		Currency:        currency,
		Total:           total,
		FulfillmentType: fulfillmentType,
		DeliveryAddress: deliveryAddress,
		Metadata:        metadata,
		Actions:         availableActions(StatusPending),
		Returns:         []Return{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, apperr.Internal("failed to create order", err)
	}

	s.notify(ctx, "order.created", o)
	log.Info().Stringer("order_id", o.ID).Str("owner_id", ownerID).Msg("service: order created")
	return o, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}
	return o, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	orders, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("service: failed to list orders")
		return nil, apperr.Internal("failed to list orders", err)
	}
	return orders, nil
}

func (s *service) Confirm(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, StatusConfirmed, nil)
}

func (s *service) Ship(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, StatusInTransit, nil)
}

func (s *service) Complete(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, StatusCompleted, nil)
}

// Cancel is permitted only from pending: confirmation is an
// irreversible commitment. A second cancel fails with a business error
// unless IdempotentCancel is configured, in which case it returns the
// already-cancelled order untouched. That short-circuit runs inside
// the store's atomic update so a concurrent cancel cannot slip in
// between the check and the transition.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Order, error) {
	now := time.Now().UTC()
	cancellation := map[string]any{
		"reason":       reason,
		"cancelled_at": now.Format(time.RFC3339Nano),
	}

	var unchanged *Order
	updated, err := s.mutateEmitting(ctx, id, "order.status_changed", func(o *Order, ops *[]realtime.PatchOp) error {
		if s.cfg.IdempotentCancel && o.Status == StatusCancelled {
			unchanged = o.clone()
			return errNoChange
		}
		if !allowedTransitions[o.Status][StatusCancelled] {
			return apperr.Business(fmt.Sprintf("order cannot be cancelled from status %s", o.Status))
		}

		from := o.Status
		o.Status = StatusCancelled
		o.Actions = availableActions(StatusCancelled)
		if o.Metadata == nil {
			o.Metadata = make(map[string]any)
		}
		o.Metadata[CancellationKey] = cancellation
		*ops = append(*ops,
			realtime.PatchOp{Op: realtime.OpReplace, Path: "/status", Value: StatusCancelled},
			realtime.PatchOp{Op: realtime.OpReplace, Path: "/actions", Value: o.Actions},
			realtime.PatchOp{Op: realtime.OpAdd, Path: "/metadata/" + escapePointer(CancellationKey), Value: cancellation},
		)

		log.Info().Stringer("order_id", id).Stringer("old_status", from).Stringer("new_status", StatusCancelled).Msg("service: order status updated")
		return nil
	})
	if err != nil {
		if errors.Is(err, errNoChange) {
			return unchanged, nil
		}
		return nil, err
	}

	log.Info().Stringer("order_id", id).Str("reason", reason).Msg("service: order cancelled")
	return updated, nil
}

func (s *service) Rate(ctx context.Context, id uuid.UUID, rating int) (*Order, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.Validation("invalid rating", apperr.FieldViolation{Field: "rating", Reason: "rating must be between 1 and 5"})
	}

	return s.mutateEmitting(ctx, id, "order.rated", func(o *Order, ops *[]realtime.PatchOp) error {
		if o.Status != StatusCompleted {
			return apperr.Business("order can only be rated once completed")
		}
		o.Rating = rating
		*ops = append(*ops, realtime.PatchOp{Op: realtime.OpAdd, Path: "/rating", Value: rating})
		return nil
	})
}

func (s *service) RequestReturn(ctx context.Context, id, orderItemID uuid.UUID, reason string) (*Order, error) {
	returnID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate return id: %w", err)
	}

	return s.mutateEmitting(ctx, id, "order.return_requested", func(o *Order, ops *[]realtime.PatchOp) error {
		if o.Status != StatusCompleted {
			return apperr.Business("returns can only be requested for completed orders")
		}
		found := false
		for _, item := range o.Items {
			if item.OrderItemID == orderItemID {
				found = true
				break
			}
		}
		if !found {
			return apperr.NotFound("order item not found")
		}
		o.Returns = append(o.Returns, Return{
			ID:          returnID,
			OrderItemID: orderItemID,
			Reason:      reason,
			CreatedAt:   time.Now().UTC(),
		})
		*ops = append(*ops, realtime.PatchOp{Op: realtime.OpReplace, Path: "/returns", Value: o.Returns})
		return nil
	})
}

// SetMetadata updates one capability-governed metadata key. Enabled
// namespaces validate and process; disabled or unknown ones pass
// through unchanged, the same contract as the request pipeline.
func (s *service) SetMetadata(ctx context.Context, id uuid.UUID, key string, value any) (*Order, error) {
	ns := capability.Namespace(key)
	if s.registry.IsEnabled(ns) {
		if !s.registry.ValidateMetadata(ns, value) {
			return nil, apperr.Validation("metadata rejected", apperr.FieldViolation{Field: "metadata." + key, Reason: "value failed the capability's validation"})
		}
		value = s.registry.ProcessMetadata(ns, value)
	}

	return s.mutateEmitting(ctx, id, "order.metadata_updated", func(o *Order, ops *[]realtime.PatchOp) error {
		op := realtime.OpAdd
		if o.Metadata == nil {
			o.Metadata = make(map[string]any)
		} else if _, exists := o.Metadata[key]; exists {
			op = realtime.OpReplace
		}
		o.Metadata[key] = value
		*ops = append(*ops, realtime.PatchOp{Op: op, Path: "/metadata/" + escapePointer(key), Value: value})
		return nil
	})
}

// transition moves the order to a new status under the state machine
// rules, bundling the status change, the refreshed action list and any
// extra ops into one patch event.
func (s *service) transition(ctx context.Context, id uuid.UUID, to Status, extra func(o *Order, ops *[]realtime.PatchOp) error) (*Order, error) {
	return s.mutateEmitting(ctx, id, "order.status_changed", func(o *Order, ops *[]realtime.PatchOp) error {
		if !allowedTransitions[o.Status][to] {
			return apperr.Business(fmt.Sprintf("order cannot move from %s to %s", o.Status, to))
		}

		from := o.Status
		o.Status = to
		o.Actions = availableActions(to)
		*ops = append(*ops,
			realtime.PatchOp{Op: realtime.OpReplace, Path: "/status", Value: to},
			realtime.PatchOp{Op: realtime.OpReplace, Path: "/actions", Value: o.Actions},
		)
		if extra != nil {
			if err := extra(o, ops); err != nil {
				return err
			}
		}

		log.Info().Stringer("order_id", id).Stringer("old_status", from).Stringer("new_status", to).Msg("service: order status updated")
		return nil
	})
}

// errNoChange lets a mutation fn abort the update as a no-op: the
// store keeps the order as it was and no event or notification goes
// out.
var errNoChange = errors.New("order unchanged")

// mutateEmitting runs one atomic order mutation and publishes the
// resulting patch event in the same logical operation. The event is
// built inside the store's atomic update, never as a post-hoc diff.
func (s *service) mutateEmitting(ctx context.Context, id uuid.UUID, webhookEvent string, fn func(o *Order, ops *[]realtime.PatchOp) error) (*Order, error) {
	var ops []realtime.PatchOp

	now := time.Now().UTC()
	updated, err := s.repo.Update(ctx, id, func(o *Order) error {
		ops = ops[:0]
		if err := fn(o, &ops); err != nil {
			return err
		}
		o.UpdatedAt = now
		ops = append(ops, realtime.PatchOp{Op: realtime.OpReplace, Path: "/updated_at", Value: now})
		return nil
	})
	if err != nil {
		if errors.Is(err, errNoChange) {
			return nil, errNoChange
		}
		return nil, s.mapRepoError(err, id)
	}

	if s.publisher != nil && len(ops) > 0 {
		s.publisher.Publish(realtime.Event{OrderID: id, Ops: ops, EmittedAt: now})
	}
	s.notify(ctx, webhookEvent, updated)

	return updated, nil
}

func (s *service) notify(ctx context.Context, event string, o *Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, event, o)
}

func (s *service) mapRepoError(err error, id uuid.UUID) error {
	if errors.Is(err, ErrOrderNotFound) {
		log.Warn().Stringer("order_id", id).Msg("service: order not found")
		return apperr.NotFound("order not found")
	}
	if kind := apperr.KindOf(err); kind != apperr.KindInternal {
		return err
	}
	log.Error().Err(err).Stringer("order_id", id).Msg("service: order repository failure")
	return apperr.Internal("order store failure", err)
}

// escapePointer escapes a metadata key for use as a JSON Pointer
// token.
func escapePointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}
