// Package catalog holds the store and catalog-item entities the cart
// and order flows resolve against.
package catalog

import (
	"time"

	"github.com/gofrs/uuid"
)

type Store struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Item struct {
	ID          uuid.UUID      `json:"id"`
	StoreID     uuid.UUID      `json:"store_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Price       float64        `json:"price"`
	Currency    string         `json:"currency"`
	Available   bool           `json:"available"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
