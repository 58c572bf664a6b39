package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

type Item struct {
	OrderItemID    uuid.UUID      `json:"order_item_id"`
	ItemID         uuid.UUID      `json:"item_id"`
	Quantity       int            `json:"quantity"`
	Price          float64        `json:"price"`
	Notes          string         `json:"notes,omitempty"`
	Customizations map[string]any `json:"customizations,omitempty"`
}

// Action is one operation a client may take on the order in its
// current state.
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type Return struct {
	ID          uuid.UUID `json:"id"`
	OrderItemID uuid.UUID `json:"order_item_id"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

type Order struct {
	ID              uuid.UUID      `json:"id"`
	OwnerID         string         `json:"owner_id,omitempty"`
	Status          Status         `json:"status"`
	Items           []Item         `json:"items"`
	Currency        string         `json:"currency"`
	Total           float64        `json:"total"`
	FulfillmentType string         `json:"fulfillment_type,omitempty"`
	DeliveryAddress string         `json:"delivery_address,omitempty"`
	Rating          int            `json:"rating,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Actions         []Action       `json:"actions"`
	Returns         []Return       `json:"returns"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (o *Order) clone() *Order {
	out := *o
	out.Items = append([]Item(nil), o.Items...)
	out.Actions = append([]Action(nil), o.Actions...)
	out.Returns = append([]Return(nil), o.Returns...)
	if o.Metadata != nil {
		meta := make(map[string]any, len(o.Metadata))
		for k, v := range o.Metadata {
			meta[k] = v
		}
		out.Metadata = meta
	}
	return &out
}

// availableActions lists what a client may do next; it is recomputed
// on every status transition and carried in the same patch event.
func availableActions(status Status) []Action {
	switch status {
	case StatusPending:
		return []Action{
			{Type: "confirm", Label: "Confirm order"},
			{Type: "cancel", Label: "Cancel order"},
		}
	case StatusConfirmed:
		return []Action{{Type: "ship", Label: "Mark as shipped"}}
	case StatusInTransit:
		return []Action{{Type: "complete", Label: "Mark as delivered"}}
	case StatusCompleted:
		return []Action{
			{Type: "rate", Label: "Rate this order"},
			{Type: "return", Label: "Request a return"},
		}
	default:
		return []Action{}
	}
}
