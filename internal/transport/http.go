package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vasiliy-maslov/storefront-api/internal/capability"
	"github.com/vasiliy-maslov/storefront-api/internal/handler"
	"github.com/vasiliy-maslov/storefront-api/internal/metadata"
)

type RouterConfig struct {
	Registry     *capability.Registry
	Pipeline     *metadata.Pipeline
	Carts        *handler.CartHandler
	Orders       *handler.OrderHandler
	Catalog      *handler.CatalogHandler
	Capabilities *handler.CapabilityHandler
	Webhooks     *handler.WebhookHandler
	Events       *handler.EventsHandler
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// The SSE stream lives outside the metadata pipeline: its body is
	// an event stream, not a JSON document to buffer and rewrite.
	r.Group(func(r chi.Router) {
		cfg.Events.Routes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.Pipeline.RewriteResponse)
		r.Use(cfg.Pipeline.RewriteRequest)

		cfg.Carts.Routes(r)
		cfg.Orders.Routes(r)
		cfg.Catalog.Routes(r)
		cfg.Capabilities.Routes(r)
		cfg.Webhooks.Routes(r)

		// Routes of enabled capabilities only; a disabled capability's
		// routes 404 because they are never mounted.
		cfg.Registry.Mount(r)
	})

	return r
}
