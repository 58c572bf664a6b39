package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vasiliy-maslov/storefront-api/internal/webhook"
)

type WebhookHandler struct {
	webhooks webhook.Service
}

func NewWebhookHandler(webhooks webhook.Service) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

func (h *WebhookHandler) Routes(r chi.Router) {
	r.Post("/webhooks", h.register)
	r.Get("/webhooks", h.list)
	r.Get("/webhooks/{webhookID}", h.get)
	r.Delete("/webhooks/{webhookID}", h.unregister)
}

func (h *WebhookHandler) register(w http.ResponseWriter, r *http.Request) {
	var input webhook.RegisterInput
	if err := decodeBody(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	created, err := h.webhooks.Register(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

func (h *WebhookHandler) list(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.webhooks.List(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"webhooks": webhooks})
}

func (h *WebhookHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "webhookID")
	if err != nil {
		RespondError(w, err)
		return
	}

	found, err := h.webhooks.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, found)
}

func (h *WebhookHandler) unregister(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "webhookID")
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.webhooks.Unregister(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
