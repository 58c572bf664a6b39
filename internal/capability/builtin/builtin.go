// Package builtin ships the capability implementations bundled with
// the server. Each one is an ordinary registry client; nothing here is
// special-cased by the core.
package builtin

import (
	"fmt"

	"github.com/vasiliy-maslov/storefront-api/internal/capability"
	"github.com/vasiliy-maslov/storefront-api/internal/cart"
	"github.com/vasiliy-maslov/storefront-api/internal/order"
)

type Deps struct {
	Carts  cart.Service
	Orders order.Service
}

// RegisterAll registers every bundled capability. Enablement is still
// decided by configuration; registration only makes them known.
func RegisterAll(registry *capability.Registry, deps Deps) error {
	impls := []struct {
		name  string
		build func() (capability.Implementation, error)
	}{
		{"tracking", NewTracking},
		{"promotions", func() (capability.Implementation, error) { return NewPromotions(registry, deps.Carts) }},
		{"ratings", func() (capability.Implementation, error) { return NewRatings(deps.Orders) }},
		{"guest_checkout", func() (capability.Implementation, error) { return NewGuestCheckout(), nil }},
	}

	for _, entry := range impls {
		impl, err := entry.build()
		if err != nil {
			return fmt.Errorf("builtin: failed to build %s capability: %w", entry.name, err)
		}
		if err := registry.Register(impl); err != nil {
			return err
		}
	}
	return nil
}
