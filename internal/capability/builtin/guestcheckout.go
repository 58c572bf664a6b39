package builtin

import (
	"github.com/vasiliy-maslov/storefront-api/internal/capability"
)

// GuestCheckoutNamespace gates anonymous cart creation. The capability
// has no routes or metadata of its own; its enablement is the feature.
const GuestCheckoutNamespace = "storefront.guest_checkout"

func NewGuestCheckout() capability.Implementation {
	return capability.Implementation{
		Descriptor: capability.Descriptor{
			Namespace: GuestCheckoutNamespace,
			Version:   "1.0",
		},
	}
}
