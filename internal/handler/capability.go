package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vasiliy-maslov/storefront-api/internal/capability"
)

type CapabilityHandler struct {
	registry *capability.Registry
}

func NewCapabilityHandler(registry *capability.Registry) *CapabilityHandler {
	return &CapabilityHandler{registry: registry}
}

func (h *CapabilityHandler) Routes(r chi.Router) {
	r.Get("/capabilities", h.list)
}

// list answers capability discovery: clients read this before relying
// on any optional behavior.
func (h *CapabilityHandler) list(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{"capabilities": h.registry.Enabled()})
}
