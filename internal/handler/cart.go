package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
	"github.com/vasiliy-maslov/storefront-api/internal/cart"
	"github.com/vasiliy-maslov/storefront-api/internal/order"
)

// ownerHeader carries the authenticated principal. Token verification
// is an external collaborator; by the time a request reaches the core
// the header is trusted.
const ownerHeader = "X-Owner-ID"

type CartHandler struct {
	carts  cart.Service
	orders order.Service
}

func NewCartHandler(carts cart.Service, orders order.Service) *CartHandler {
	return &CartHandler{carts: carts, orders: orders}
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Post("/carts", h.create)
	r.Get("/carts/{cartID}", h.get)
	r.Delete("/carts/{cartID}", h.delete)
	r.Post("/carts/{cartID}/items", h.addItem)
	r.Patch("/carts/{cartID}/items/{itemID}", h.updateItem)
	r.Delete("/carts/{cartID}/items/{itemID}", h.removeItem)
	r.Post("/carts/{cartID}/convert", h.convert)
}

func (h *CartHandler) create(w http.ResponseWriter, r *http.Request) {
	var input cart.CreateInput
	if err := decodeBody(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	created, err := h.carts.Create(r.Context(), r.Header.Get(ownerHeader), input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	c, err := h.carts.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.carts.Delete(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input cart.ItemInput
	if err := decodeBody(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	updated, err := h.carts.AddItem(r.Context(), id, input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		RespondError(w, err)
		return
	}

	var input cart.UpdateItemInput
	if err := decodeBody(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	updated, err := h.carts.UpdateItem(r.Context(), id, itemID, input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		RespondError(w, err)
		return
	}

	updated, err := h.carts.RemoveItem(r.Context(), id, itemID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

func (h *CartHandler) convert(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input order.ConvertInput
	if err := decodeBodyOptional(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	created, err := h.orders.Convert(r.Context(), id, input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

func cartID(r *http.Request) (uuid.UUID, error) {
	return pathUUID(r, "cartID")
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	return parseUUIDField(chi.URLParam(r, param), param)
}

func parseUUIDField(raw, field string) (uuid.UUID, error) {
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id", apperr.FieldViolation{Field: field, Reason: "must be a UUID"})
	}
	return id, nil
}
