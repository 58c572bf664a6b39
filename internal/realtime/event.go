// Package realtime delivers order patch events to live subscribers
// over per-order broadcast channels.
package realtime

import (
	"time"

	"github.com/gofrs/uuid"
)

// PatchOp is one JSON-Patch-style operation on an order's externally
// visible representation.
type PatchOp struct {
	Op    string `json:"op"` // add, replace or remove
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Event is the ordered set of patch operations for one state change,
// applied together so subscribers never observe a torn intermediate
// state.
type Event struct {
	OrderID   uuid.UUID `json:"order_id"`
	Ops       []PatchOp `json:"ops"`
	EmittedAt time.Time `json:"emitted_at"`
}

const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)
