package cart

import (
	"math"
	"time"

	"github.com/gofrs/uuid"
)

type Item struct {
	CartItemID     uuid.UUID      `json:"cart_item_id"`
	ItemID         uuid.UUID      `json:"item_id"`
	Quantity       int            `json:"quantity"`
	Price          float64        `json:"price"`
	Notes          string         `json:"notes,omitempty"`
	Customizations map[string]any `json:"customizations,omitempty"`
}

type Cart struct {
	ID        uuid.UUID      `json:"id"`
	OwnerID   string         `json:"owner_id,omitempty"` // empty for guest carts
	Currency  string         `json:"currency"`
	Items     []Item         `json:"items"`
	Subtotal  float64        `json:"subtotal"`
	Tax       float64        `json:"tax"`
	Discount  float64        `json:"discount,omitempty"`
	Total     float64        `json:"total"`
	Policies  []Policy       `json:"policies,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Recompute rebuilds subtotal, tax and total from the items. Every
// mutation goes through this, so totals never drift from the item list
// regardless of the order mutations arrive in.
func (c *Cart) Recompute(taxRate float64) {
	subtotal := 0.0
	for _, item := range c.Items {
		subtotal += float64(item.Quantity) * item.Price
	}
	c.Subtotal = round2(subtotal)
	c.Tax = round2(subtotal * taxRate)
	c.Total = round2(c.Subtotal + c.Tax - c.Discount)
}

func (c *Cart) clone() *Cart {
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	out.Policies = append([]Policy(nil), c.Policies...)
	if c.Metadata != nil {
		meta := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		out.Metadata = meta
	}
	return &out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
