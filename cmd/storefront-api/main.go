package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront-api/internal/capability"
	"github.com/vasiliy-maslov/storefront-api/internal/capability/builtin"
	"github.com/vasiliy-maslov/storefront-api/internal/cart"
	"github.com/vasiliy-maslov/storefront-api/internal/catalog"
	"github.com/vasiliy-maslov/storefront-api/internal/config"
	"github.com/vasiliy-maslov/storefront-api/internal/db"
	"github.com/vasiliy-maslov/storefront-api/internal/handler"
	"github.com/vasiliy-maslov/storefront-api/internal/metadata"
	"github.com/vasiliy-maslov/storefront-api/internal/order"
	"github.com/vasiliy-maslov/storefront-api/internal/realtime"
	"github.com/vasiliy-maslov/storefront-api/internal/realtime/bus"
	"github.com/vasiliy-maslov/storefront-api/internal/transport"
	"github.com/vasiliy-maslov/storefront-api/internal/webhook"
)

// busPublisher routes patch events through the cross-instance bus; the
// local hub receives them back through the forwarder like every other
// instance.
type busPublisher struct {
	bus bus.Bus
}

func (p busPublisher) Publish(ev realtime.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.bus.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Stringer("order_id", ev.OrderID).Msg("main: failed to publish event to bus")
	}
}

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "storefront-api").Logger()

	log.Info().Msg("Storefront API starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log.Debug().Interface("config_loaded", cfg).Msg("Configuration loaded")

	settings, err := capability.LoadSettings(cfg.Capabilities.File)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load capability settings")
	}
	registry := capability.NewRegistry(settings)

	var (
		cartRepo    cart.Repository
		orderRepo   order.Repository
		catalogRepo catalog.Repository
		webhookRepo webhook.Repository
	)
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := db.New(cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pg.Close()
		cartRepo = cart.NewPostgresRepository(pg.Pool)
		orderRepo = order.NewPostgresRepository(pg.Pool)
		catalogRepo = catalog.NewPostgresRepository(pg.Pool)
		webhookRepo = webhook.NewPostgresRepository(pg.Pool)
	case "memory":
		cartRepo = cart.NewMemoryRepository()
		orderRepo = order.NewMemoryRepository()
		catalogRepo = catalog.NewMemoryRepository()
		webhookRepo = webhook.NewMemoryRepository()
	default:
		log.Fatal().Str("backend", cfg.Store.Backend).Msg("Unknown store backend")
	}

	cartSvc := cart.NewService(cartRepo, catalogRepo, cart.Config{
		LifetimeSeconds: cfg.Cart.LifetimeSeconds,
		TaxRate:         cfg.Cart.TaxRate,
		AllowGuest:      registry.IsEnabled(builtin.GuestCheckoutNamespace),
	})

	webhookSvc := webhook.NewService(webhookRepo)

	hub := realtime.NewHub()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var publisher order.Publisher = hub
	if cfg.Redis.Addr != "" {
		eventBus, err := bus.NewRedisBus(cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer func() { _ = eventBus.Close() }()
		if err := eventBus.StartForwarder(rootCtx, hub.Publish); err != nil {
			log.Fatal().Err(err).Msg("Failed to start event forwarder")
		}
		publisher = busPublisher{bus: eventBus}
		log.Info().Str("addr", cfg.Redis.Addr).Str("channel", cfg.Redis.Channel).Msg("Cross-instance event bus enabled")
	}

	orderSvc := order.NewService(orderRepo, cartSvc, catalogRepo, registry, publisher, webhookSvc, order.Config{
		IdempotentCancel: cfg.Lifecycle.IdempotentCancel,
	})

	if err := builtin.RegisterAll(registry, builtin.Deps{Carts: cartSvc, Orders: orderSvc}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register capabilities")
	}

	router := transport.NewRouter(transport.RouterConfig{
		Registry:     registry,
		Pipeline:     metadata.NewPipeline(registry),
		Carts:        handler.NewCartHandler(cartSvc, orderSvc),
		Orders:       handler.NewOrderHandler(orderSvc),
		Catalog:      handler.NewCatalogHandler(catalogRepo),
		Capabilities: handler.NewCapabilityHandler(registry),
		Webhooks:     handler.NewWebhookHandler(webhookSvc),
		Events:       handler.NewEventsHandler(orderSvc, hub),
	})

	// No WriteTimeout: the event stream holds its response open for the
	// lifetime of the subscription.
	srv := &http.Server{
		Addr:        ":" + cfg.App.Port,
		Handler:     router,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
