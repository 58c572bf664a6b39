package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vasiliy-maslov/storefront-api/internal/order"
	"github.com/vasiliy-maslov/storefront-api/internal/realtime"
)

type EventsHandler struct {
	orders order.Service
	hub    *realtime.Hub
}

func NewEventsHandler(orders order.Service, hub *realtime.Hub) *EventsHandler {
	return &EventsHandler{orders: orders, hub: hub}
}

func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/orders/{orderID}/events", h.stream)
}

// stream attaches a subscriber to the order's patch channel. Patches
// are a delta stream with no replay; clients fetch the full order
// first, then connect here.
func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "orderID")
	if err != nil {
		RespondError(w, err)
		return
	}

	if _, err := h.orders.Get(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}

	sub := h.hub.Subscribe(id)
	h.hub.ServeSSE(w, r, sub)
}
