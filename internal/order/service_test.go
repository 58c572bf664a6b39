package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
	"github.com/vasiliy-maslov/storefront-api/internal/capability"
	"github.com/vasiliy-maslov/storefront-api/internal/cart"
	"github.com/vasiliy-maslov/storefront-api/internal/catalog"
	"github.com/vasiliy-maslov/storefront-api/internal/order"
	"github.com/vasiliy-maslov/storefront-api/internal/realtime"
)

type capturePublisher struct {
	events []realtime.Event
}

func (p *capturePublisher) Publish(ev realtime.Event) {
	p.events = append(p.events, ev)
}

// interceptRepository runs a hook before delegating an Update, opening
// a window for a competing writer.
type interceptRepository struct {
	order.Repository
	beforeUpdate func()
}

func (r *interceptRepository) Update(ctx context.Context, id uuid.UUID, fn func(*order.Order) error) (*order.Order, error) {
	if r.beforeUpdate != nil {
		hook := r.beforeUpdate
		r.beforeUpdate = nil
		hook()
	}
	return r.Repository.Update(ctx, id, fn)
}

type orderFixture struct {
	orders  order.Service
	carts   cart.Service
	catalog catalog.Repository
	pub     *capturePublisher
}

func newOrderFixture(t *testing.T, cfg order.Config, registry *capability.Registry) *orderFixture {
	t.Helper()
	if registry == nil {
		registry = capability.NewRegistry(nil)
	}
	catalogRepo := catalog.NewMemoryRepository()
	cartSvc := cart.NewService(cart.NewMemoryRepository(), catalogRepo, cart.Config{LifetimeSeconds: 86400})
	pub := &capturePublisher{}
	return &orderFixture{
		orders:  order.NewService(order.NewMemoryRepository(), cartSvc, catalogRepo, registry, pub, nil, cfg),
		carts:   cartSvc,
		catalog: catalogRepo,
		pub:     pub,
	}
}

func (f *orderFixture) seedItem(t *testing.T, price float64, currency string, available bool) uuid.UUID {
	t.Helper()
	item := &catalog.Item{Name: "item", Price: price, Currency: currency, Available: available}
	require.NoError(t, f.catalog.CreateItem(context.Background(), item))
	return item.ID
}

func (f *orderFixture) seedCart(t *testing.T, itemIDs ...uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	c, err := f.carts.Create(ctx, "user-1", cart.CreateInput{Currency: "USD"})
	require.NoError(t, err)
	for _, id := range itemIDs {
		_, err := f.carts.AddItem(ctx, c.ID, cart.ItemInput{ItemID: id, Quantity: 1})
		require.NoError(t, err)
	}
	return c.ID
}

func (f *orderFixture) seedOrder(t *testing.T, status order.Status) *order.Order {
	t.Helper()
	ctx := context.Background()
	itemID := f.seedItem(t, 10.00, "USD", true)
	cartID := f.seedCart(t, itemID)
	o, err := f.orders.Convert(ctx, cartID, order.ConvertInput{})
	require.NoError(t, err)

	switch status {
	case order.StatusPending:
	case order.StatusConfirmed:
		o, err = f.orders.Confirm(ctx, o.ID)
		require.NoError(t, err)
	case order.StatusInTransit:
		_, err = f.orders.Confirm(ctx, o.ID)
		require.NoError(t, err)
		o, err = f.orders.Ship(ctx, o.ID)
		require.NoError(t, err)
	case order.StatusCompleted:
		_, err = f.orders.Confirm(ctx, o.ID)
		require.NoError(t, err)
		_, err = f.orders.Ship(ctx, o.ID)
		require.NoError(t, err)
		o, err = f.orders.Complete(ctx, o.ID)
		require.NoError(t, err)
	}
	f.pub.events = nil
	return o
}

func TestOrderService_Convert(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		itemID := f.seedItem(t, 10.00, "USD", true)
		cartID := f.seedCart(t, itemID)

		o, err := f.orders.Convert(ctx, cartID, order.ConvertInput{FulfillmentType: "delivery", DeliveryAddress: "1 Main St"})
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, o.Status)
		assert.Equal(t, "user-1", o.OwnerID)
		assert.Equal(t, 10.00, o.Total)
		assert.Len(t, o.Items, 1)
		assert.Equal(t, "delivery", o.FulfillmentType)
		assert.Equal(t, []order.Action{
			{Type: "confirm", Label: "Confirm order"},
			{Type: "cancel", Label: "Cancel order"},
		}, o.Actions)

		_, err = f.carts.Get(ctx, cartID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err), "conversion consumed the cart")
	})

	t.Run("second_conversion_fails", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		itemID := f.seedItem(t, 10.00, "USD", true)
		cartID := f.seedCart(t, itemID)

		_, err := f.orders.Convert(ctx, cartID, order.ConvertInput{})
		require.NoError(t, err)

		_, err = f.orders.Convert(ctx, cartID, order.ConvertInput{})
		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("empty_cart", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		cartID := f.seedCart(t)

		_, err := f.orders.Convert(ctx, cartID, order.ConvertInput{})
		require.Error(t, err)
		assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
	})

	t.Run("unavailable_item", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		itemID := f.seedItem(t, 10.00, "USD", false)
		cartID := f.seedCart(t, itemID)

		_, err := f.orders.Convert(ctx, cartID, order.ConvertInput{})
		require.Error(t, err)
		assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))

		_, err = f.carts.Get(ctx, cartID)
		assert.NoError(t, err, "a rejected conversion leaves the cart open")
	})
}

func TestOrderService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("all_violations_reported", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		_, err := f.orders.Submit(ctx, "user-1", order.SubmitInput{})
		require.Error(t, err)
		appErr := apperr.As(err)
		assert.Equal(t, apperr.KindValidation, appErr.Kind)
		assert.Len(t, appErr.Fields, 2)
	})

	t.Run("success", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		itemID := f.seedItem(t, 12.50, "USD", true)

		o, err := f.orders.Submit(ctx, "user-1", order.SubmitInput{
			Currency: "USD",
			Items:    []order.SubmitItem{{ItemID: itemID, Quantity: 2}},
		})
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, o.Status)
		assert.Equal(t, 25.00, o.Total)
	})

	t.Run("currency_mismatch", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		itemID := f.seedItem(t, 12.50, "EUR", true)

		_, err := f.orders.Submit(ctx, "user-1", order.SubmitInput{
			Currency: "USD",
			Items:    []order.SubmitItem{{ItemID: itemID, Quantity: 1}},
		})
		require.Error(t, err)
		assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
	})
}

func TestOrderService_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("full_lifecycle", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		o := f.seedOrder(t, order.StatusPending)

		o, err := f.orders.Confirm(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, o.Status)

		o, err = f.orders.Ship(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusInTransit, o.Status)

		o, err = f.orders.Complete(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusCompleted, o.Status)
		assert.Equal(t, []order.Action{
			{Type: "rate", Label: "Rate this order"},
			{Type: "return", Label: "Request a return"},
		}, o.Actions)
	})

	t.Run("illegal_transitions", func(t *testing.T) {
		tests := []struct {
			name string
			from order.Status
			op   func(f *orderFixture, id uuid.UUID) error
		}{
			{
				name: "ship_before_confirm",
				from: order.StatusPending,
				op: func(f *orderFixture, id uuid.UUID) error {
					_, err := f.orders.Ship(context.Background(), id)
					return err
				},
			},
			{
				name: "complete_before_ship",
				from: order.StatusConfirmed,
				op: func(f *orderFixture, id uuid.UUID) error {
					_, err := f.orders.Complete(context.Background(), id)
					return err
				},
			},
			{
				name: "confirm_completed",
				from: order.StatusCompleted,
				op: func(f *orderFixture, id uuid.UUID) error {
					_, err := f.orders.Confirm(context.Background(), id)
					return err
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newOrderFixture(t, order.Config{}, nil)
				o := f.seedOrder(t, tt.from)

				err := tt.op(f, o.ID)
				require.Error(t, err)
				assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))

				got, getErr := f.orders.Get(context.Background(), o.ID)
				require.NoError(t, getErr)
				assert.Equal(t, tt.from, got.Status, "rejected transition left the order unchanged")
				assert.Empty(t, f.pub.events, "no event for a rejected transition")
			})
		}
	})
}

func TestOrderService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending_order", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		o := f.seedOrder(t, order.StatusPending)

		cancelled, err := f.orders.Cancel(ctx, o.ID, "changed my mind")
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, cancelled.Status)
		assert.Empty(t, cancelled.Actions)

		record, ok := cancelled.Metadata[order.CancellationKey].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "changed my mind", record["reason"])
		assert.NotEmpty(t, record["cancelled_at"])
	})

	t.Run("confirmed_order_rejected", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		o := f.seedOrder(t, order.StatusConfirmed)

		_, err := f.orders.Cancel(ctx, o.ID, "too late")
		require.Error(t, err)
		assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "cannot be cancelled from status confirmed")
	})

	t.Run("second_cancel_rejected_by_default", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		o := f.seedOrder(t, order.StatusPending)

		_, err := f.orders.Cancel(ctx, o.ID, "first")
		require.NoError(t, err)

		_, err = f.orders.Cancel(ctx, o.ID, "second")
		require.Error(t, err)
		assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
	})

	t.Run("second_cancel_idempotent_when_configured", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{IdempotentCancel: true}, nil)
		o := f.seedOrder(t, order.StatusPending)

		first, err := f.orders.Cancel(ctx, o.ID, "first")
		require.NoError(t, err)
		published := len(f.pub.events)

		second, err := f.orders.Cancel(ctx, o.ID, "second")
		require.NoError(t, err)
		assert.Equal(t, first.Metadata, second.Metadata, "the second cancel records nothing new")
		assert.Len(t, f.pub.events, published, "no event for the no-op cancel")
	})

	t.Run("concurrent_cancel_idempotent_when_configured", func(t *testing.T) {
		catalogRepo := catalog.NewMemoryRepository()
		item := &catalog.Item{Name: "item", Price: 10.00, Currency: "USD", Available: true}
		require.NoError(t, catalogRepo.CreateItem(ctx, item))

		cartSvc := cart.NewService(cart.NewMemoryRepository(), catalogRepo, cart.Config{LifetimeSeconds: 86400})
		c, err := cartSvc.Create(ctx, "user-1", cart.CreateInput{Currency: "USD"})
		require.NoError(t, err)
		_, err = cartSvc.AddItem(ctx, c.ID, cart.ItemInput{ItemID: item.ID, Quantity: 1})
		require.NoError(t, err)

		repo := &interceptRepository{Repository: order.NewMemoryRepository()}
		pub := &capturePublisher{}
		svc := order.NewService(repo, cartSvc, catalogRepo, capability.NewRegistry(nil), pub, nil, order.Config{IdempotentCancel: true})

		o, err := svc.Convert(ctx, c.ID, order.ConvertInput{})
		require.NoError(t, err)
		pub.events = nil

		// A competing cancel lands between this call's dispatch and
		// its atomic update; the loser must still see success.
		repo.beforeUpdate = func() {
			_, err := svc.Cancel(ctx, o.ID, "competitor")
			require.NoError(t, err)
		}

		got, err := svc.Cancel(ctx, o.ID, "mine")
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, got.Status)

		record, ok := got.Metadata[order.CancellationKey].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "competitor", record["reason"], "the first cancel's record wins")
		assert.Len(t, pub.events, 1, "only the winning cancel emits an event")
	})
}

func TestOrderService_Rate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		status   order.Status
		rating   int
		wantErr  bool
		wantKind apperr.Kind
	}{
		{
			name:   "completed_order",
			status: order.StatusCompleted,
			rating: 5,
		},
		{
			name:     "pending_order",
			status:   order.StatusPending,
			rating:   5,
			wantErr:  true,
			wantKind: apperr.KindBusiness,
		},
		{
			name:     "rating_too_low",
			status:   order.StatusCompleted,
			rating:   0,
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "rating_too_high",
			status:   order.StatusCompleted,
			rating:   6,
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture(t, order.Config{}, nil)
			o := f.seedOrder(t, tt.status)

			rated, err := f.orders.Rate(ctx, o.ID, tt.rating)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rating, rated.Rating)
		})
	}
}

func TestOrderService_RequestReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("completed_order", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		o := f.seedOrder(t, order.StatusCompleted)

		updated, err := f.orders.RequestReturn(ctx, o.ID, o.Items[0].OrderItemID, "damaged")
		require.NoError(t, err)
		require.Len(t, updated.Returns, 1)
		assert.Equal(t, "damaged", updated.Returns[0].Reason)
		assert.Equal(t, o.Items[0].OrderItemID, updated.Returns[0].OrderItemID)
	})

	t.Run("not_completed", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		o := f.seedOrder(t, order.StatusInTransit)

		_, err := f.orders.RequestReturn(ctx, o.ID, o.Items[0].OrderItemID, "damaged")
		require.Error(t, err)
		assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
	})

	t.Run("unknown_order_item", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, nil)
		o := f.seedOrder(t, order.StatusCompleted)

		_, err := f.orders.RequestReturn(ctx, o.ID, uuid.Must(uuid.NewV4()), "damaged")
		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func trackingRegistry(t *testing.T, enabled bool) *capability.Registry {
	t.Helper()
	settings := map[string]capability.Settings{}
	if enabled {
		settings["storefront.tracking"] = capability.Settings{Enabled: true}
	}
	r := capability.NewRegistry(settings)
	require.NoError(t, r.Register(capability.Implementation{
		Descriptor: capability.Descriptor{Namespace: "storefront.tracking", Version: "1.0"},
		Validator: func(value any) error {
			if _, ok := value.(map[string]any); !ok {
				return errors.New("must be an object")
			}
			return nil
		},
		Processor: func(value any) any {
			obj := value.(map[string]any)
			obj["processed"] = true
			return obj
		},
	}))
	return r
}

func TestOrderService_SetMetadata(t *testing.T) {
	ctx := context.Background()

	t.Run("enabled_valid_is_processed", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, trackingRegistry(t, true))
		o := f.seedOrder(t, order.StatusPending)

		updated, err := f.orders.SetMetadata(ctx, o.ID, "storefront.tracking@1.0", map[string]any{"carrier": "UPS"})
		require.NoError(t, err)
		got, ok := updated.Metadata["storefront.tracking@1.0"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, got["processed"])
	})

	t.Run("enabled_invalid_is_rejected", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, trackingRegistry(t, true))
		o := f.seedOrder(t, order.StatusPending)

		_, err := f.orders.SetMetadata(ctx, o.ID, "storefront.tracking@1.0", "junk")
		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("disabled_passes_through", func(t *testing.T) {
		f := newOrderFixture(t, order.Config{}, trackingRegistry(t, false))
		o := f.seedOrder(t, order.StatusPending)

		updated, err := f.orders.SetMetadata(ctx, o.ID, "storefront.tracking@1.0", "junk")
		require.NoError(t, err)
		assert.Equal(t, "junk", updated.Metadata["storefront.tracking@1.0"])
	})
}

func TestOrderService_PatchEvents(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, order.Config{}, nil)
	o := f.seedOrder(t, order.StatusPending)

	_, err := f.orders.Confirm(ctx, o.ID)
	require.NoError(t, err)

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, o.ID, ev.OrderID)
	require.Len(t, ev.Ops, 3)
	assert.Equal(t, realtime.PatchOp{Op: realtime.OpReplace, Path: "/status", Value: order.StatusConfirmed}, ev.Ops[0])
	assert.Equal(t, "/actions", ev.Ops[1].Path)
	assert.Equal(t, "/updated_at", ev.Ops[2].Path)
	assert.False(t, ev.EmittedAt.IsZero())
}

// applyOps replays patch operations onto a decoded JSON document the
// way a subscribed client would.
func applyOps(t *testing.T, doc map[string]any, ops []realtime.PatchOp) {
	t.Helper()
	for _, op := range ops {
		raw, err := json.Marshal(op.Value)
		require.NoError(t, err)
		var value any
		require.NoError(t, json.Unmarshal(raw, &value))

		tokens := strings.Split(strings.TrimPrefix(op.Path, "/"), "/")
		target := doc
		for _, tok := range tokens[:len(tokens)-1] {
			next, ok := target[tok].(map[string]any)
			require.True(t, ok, "path %s missing in document", op.Path)
			target = next
		}
		leaf := strings.ReplaceAll(strings.ReplaceAll(tokens[len(tokens)-1], "~1", "/"), "~0", "~")
		switch op.Op {
		case realtime.OpAdd, realtime.OpReplace:
			target[leaf] = value
		case realtime.OpRemove:
			delete(target, leaf)
		}
	}
}

func TestOrderService_PatchReplayMatchesSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, order.Config{}, nil)
	o := f.seedOrder(t, order.StatusPending)

	snapshot := map[string]any{}
	raw, err := json.Marshal(o)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &snapshot))

	_, err = f.orders.Confirm(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.orders.Ship(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.orders.Complete(ctx, o.ID)
	require.NoError(t, err)
	final, err := f.orders.Rate(ctx, o.ID, 4)
	require.NoError(t, err)

	for _, ev := range f.pub.events {
		applyOps(t, snapshot, ev.Ops)
	}

	want := map[string]any{}
	raw, err = json.Marshal(final)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &want))

	assert.Equal(t, want, snapshot, "replaying every patch reproduces the final resource")
}
