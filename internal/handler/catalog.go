package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
	"github.com/vasiliy-maslov/storefront-api/internal/catalog"
)

type CatalogHandler struct {
	repo catalog.Repository
}

func NewCatalogHandler(repo catalog.Repository) *CatalogHandler {
	return &CatalogHandler{repo: repo}
}

func (h *CatalogHandler) Routes(r chi.Router) {
	r.Post("/stores", h.createStore)
	r.Get("/stores", h.listStores)
	r.Get("/stores/{storeID}", h.getStore)
	r.Post("/stores/{storeID}/items", h.createItem)
	r.Get("/stores/{storeID}/items", h.listItems)
	r.Get("/items/{itemID}", h.getItem)
}

func (h *CatalogHandler) createStore(w http.ResponseWriter, r *http.Request) {
	var s catalog.Store
	if err := decodeBody(r, &s); err != nil {
		RespondError(w, err)
		return
	}
	if s.Name == "" {
		RespondError(w, apperr.Validation("invalid store", apperr.FieldViolation{Field: "name", Reason: "name is required"}))
		return
	}

	if err := h.repo.CreateStore(r.Context(), &s); err != nil {
		RespondError(w, apperr.Internal("failed to create store", err))
		return
	}
	RespondJSON(w, http.StatusCreated, s)
}

func (h *CatalogHandler) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.repo.ListStores(r.Context())
	if err != nil {
		RespondError(w, apperr.Internal("failed to list stores", err))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (h *CatalogHandler) getStore(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "storeID")
	if err != nil {
		RespondError(w, err)
		return
	}

	s, err := h.repo.GetStoreByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrStoreNotFound) {
			RespondError(w, apperr.NotFound("store not found"))
			return
		}
		RespondError(w, apperr.Internal("failed to fetch store", err))
		return
	}
	RespondJSON(w, http.StatusOK, s)
}

func (h *CatalogHandler) createItem(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathUUID(r, "storeID")
	if err != nil {
		RespondError(w, err)
		return
	}

	var item catalog.Item
	if err := decodeBody(r, &item); err != nil {
		RespondError(w, err)
		return
	}

	var violations []apperr.FieldViolation
	if item.Name == "" {
		violations = append(violations, apperr.FieldViolation{Field: "name", Reason: "name is required"})
	}
	if item.Currency == "" {
		violations = append(violations, apperr.FieldViolation{Field: "currency", Reason: "currency is required"})
	}
	if item.Price < 0 {
		violations = append(violations, apperr.FieldViolation{Field: "price", Reason: "price cannot be negative"})
	}
	if len(violations) > 0 {
		RespondError(w, apperr.Validation("invalid catalog item", violations...))
		return
	}

	item.StoreID = storeID
	if err := h.repo.CreateItem(r.Context(), &item); err != nil {
		RespondError(w, apperr.Internal("failed to create catalog item", err))
		return
	}
	RespondJSON(w, http.StatusCreated, item)
}

func (h *CatalogHandler) listItems(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathUUID(r, "storeID")
	if err != nil {
		RespondError(w, err)
		return
	}

	items, err := h.repo.ListItems(r.Context(), storeID)
	if err != nil {
		RespondError(w, apperr.Internal("failed to list catalog items", err))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "itemID")
	if err != nil {
		RespondError(w, err)
		return
	}

	item, err := h.repo.GetItemByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			RespondError(w, apperr.NotFound("catalog item not found"))
			return
		}
		RespondError(w, apperr.Internal("failed to fetch catalog item", err))
		return
	}
	RespondJSON(w, http.StatusOK, item)
}
