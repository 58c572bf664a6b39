// Package bus fans patch events out across API instances, so a
// subscriber connected to one instance still sees mutations performed
// on another.
package bus

import (
	"context"

	"github.com/vasiliy-maslov/storefront-api/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	// StartForwarder delivers every event published by any instance to
	// onEvent until ctx is cancelled.
	StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error
	Close() error
}
