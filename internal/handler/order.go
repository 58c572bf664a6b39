package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
	"github.com/vasiliy-maslov/storefront-api/internal/order"
)

type OrderHandler struct {
	orders order.Service
}

func NewOrderHandler(orders order.Service) *OrderHandler {
	return &OrderHandler{orders: orders}
}

func (h *OrderHandler) Routes(r chi.Router) {
	r.Post("/orders", h.submit)
	r.Get("/orders", h.list)
	r.Get("/orders/{orderID}", h.get)
	r.Post("/orders/{orderID}/confirm", h.confirm)
	r.Post("/orders/{orderID}/ship", h.ship)
	r.Post("/orders/{orderID}/complete", h.complete)
	r.Post("/orders/{orderID}/cancel", h.cancel)
	r.Post("/orders/{orderID}/returns", h.requestReturn)
	r.Put("/orders/{orderID}/metadata/{key}", h.setMetadata)
}

func (h *OrderHandler) submit(w http.ResponseWriter, r *http.Request) {
	var input order.SubmitInput
	if err := decodeBody(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	created, err := h.orders.Submit(r.Context(), r.Header.Get(ownerHeader), input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByOwner(r.Context(), r.Header.Get(ownerHeader))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "orderID")
	if err != nil {
		RespondError(w, err)
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, h.orders.Confirm)
}

func (h *OrderHandler) ship(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, h.orders.Ship)
}

func (h *OrderHandler) complete(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, h.orders.Complete)
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "orderID")
	if err != nil {
		RespondError(w, err)
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	if err := decodeBodyOptional(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	updated, err := h.orders.Cancel(r.Context(), id, input.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) requestReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "orderID")
	if err != nil {
		RespondError(w, err)
		return
	}

	var input struct {
		OrderItemID string `json:"order_item_id"`
		Reason      string `json:"reason"`
	}
	if err := decodeBody(r, &input); err != nil {
		RespondError(w, err)
		return
	}
	orderItemID, parseErr := parseUUIDField(input.OrderItemID, "order_item_id")
	if parseErr != nil {
		RespondError(w, parseErr)
		return
	}

	updated, err := h.orders.RequestReturn(r.Context(), id, orderItemID, input.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) setMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "orderID")
	if err != nil {
		RespondError(w, err)
		return
	}
	key := chi.URLParam(r, "key")
	if key == "" {
		RespondError(w, apperr.Validation("invalid metadata key", apperr.FieldViolation{Field: "key", Reason: "key is required"}))
		return
	}

	var value any
	if err := decodeBody(r, &value); err != nil {
		RespondError(w, err)
		return
	}

	updated, err := h.orders.SetMetadata(r.Context(), id, key, value)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) advance(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*order.Order, error)) {
	id, err := pathUUID(r, "orderID")
	if err != nil {
		RespondError(w, err)
		return
	}

	updated, err := op(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}
