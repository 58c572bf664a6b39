package realtime

import (
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// subscriberBuffer bounds each subscriber's queue. A subscriber that
// falls this far behind is disconnected rather than allowed to block
// the producer or silently miss events: patches are a gap-free delta
// stream, so skipping one is worse than forcing a refetch.
const subscriberBuffer = 32

type Subscriber struct {
	ID      uuid.UUID
	OrderID uuid.UUID
	Events  chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed when the hub disconnects the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub is the per-order broadcast fabric: one writer (the lifecycle
// engine) and N concurrent subscribers per order, each draining its
// own queue at its own pace.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[*Subscriber]struct{})}
}

// Subscribe attaches a new subscriber to an order's channel. Only
// events emitted after attachment are delivered; there is no replay,
// so callers re-fetch the full resource before subscribing.
func (h *Hub) Subscribe(orderID uuid.UUID) *Subscriber {
	sub := &Subscriber{
		ID:      uuid.Must(uuid.NewV4()),
		OrderID: orderID,
		Events:  make(chan Event, subscriberBuffer),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[orderID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[orderID] = set
	}
	set[sub] = struct{}{}

	log.Debug().Stringer("order_id", orderID).Stringer("subscriber_id", sub.ID).Msg("hub: subscriber attached")
	return sub
}

// Unsubscribe detaches a subscriber and releases its queue.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// Publish broadcasts one event to every subscriber of its order. A
// subscriber whose buffer is full is disconnected on the spot; the
// producer is never blocked by a slow reader.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[ev.OrderID]
	if !ok {
		return
	}
	for sub := range set {
		select {
		case sub.Events <- ev:
		default:
			log.Warn().Stringer("order_id", ev.OrderID).Stringer("subscriber_id", sub.ID).Msg("hub: subscriber buffer full, disconnecting")
			h.remove(sub)
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(sub *Subscriber) {
	set, ok := h.subs[sub.OrderID]
	if !ok {
		return
	}
	if _, present := set[sub]; !present {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.OrderID)
	}
	sub.close()
}
