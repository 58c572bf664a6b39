package transport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront-api/internal/capability"
	"github.com/vasiliy-maslov/storefront-api/internal/capability/builtin"
	"github.com/vasiliy-maslov/storefront-api/internal/cart"
	"github.com/vasiliy-maslov/storefront-api/internal/catalog"
	"github.com/vasiliy-maslov/storefront-api/internal/handler"
	"github.com/vasiliy-maslov/storefront-api/internal/metadata"
	"github.com/vasiliy-maslov/storefront-api/internal/order"
	"github.com/vasiliy-maslov/storefront-api/internal/realtime"
	"github.com/vasiliy-maslov/storefront-api/internal/transport"
	"github.com/vasiliy-maslov/storefront-api/internal/webhook"
)

type apiFixture struct {
	router  http.Handler
	catalog catalog.Repository
}

func newAPIFixture(t *testing.T, settings map[string]capability.Settings) *apiFixture {
	t.Helper()

	registry := capability.NewRegistry(settings)
	catalogRepo := catalog.NewMemoryRepository()
	cartSvc := cart.NewService(cart.NewMemoryRepository(), catalogRepo, cart.Config{LifetimeSeconds: 86400})
	hub := realtime.NewHub()
	webhookSvc := webhook.NewService(webhook.NewMemoryRepository())
	orderSvc := order.NewService(order.NewMemoryRepository(), cartSvc, catalogRepo, registry, hub, webhookSvc, order.Config{})
	require.NoError(t, builtin.RegisterAll(registry, builtin.Deps{Carts: cartSvc, Orders: orderSvc}))

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

	return &apiFixture{router: router, catalog: catalogRepo}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-Owner-ID", "user-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestRouter_CartToOrderFlow(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/stores/00000000-0000-0000-0000-000000000000/items", `{"name":"coffee","price":4.50,"currency":"USD","available":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	itemID := decode(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/carts", `{"currency":"USD"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cartID := decode(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"item_id":"`+itemID+`","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 9.0, decode(t, rec)["total"])

	rec = f.do(t, http.MethodPost, "/carts/"+cartID+"/convert", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	converted := decode(t, rec)
	orderID := converted["id"].(string)
	assert.Equal(t, "pending", converted["status"])

	rec = f.do(t, http.MethodGet, "/carts/"+cartID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "conversion consumed the cart")

	rec = f.do(t, http.MethodPost, "/orders/"+orderID+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode(t, rec)["status"])

	rec = f.do(t, http.MethodPost, "/orders/"+orderID+"/cancel", `{"reason":"too late"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errObj := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "business_logic", errObj["kind"])
}

func TestRouter_ErrorEnvelope(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/orders/00000000-0000-0000-0000-000000000001", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	errObj := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "not_found", errObj["kind"])
	assert.Equal(t, "order not found", errObj["title"])
}

func TestRouter_CapabilityDiscoveryAndGating(t *testing.T) {
	enabled := newAPIFixture(t, map[string]capability.Settings{
		builtin.PromotionsNamespace: {Enabled: true, Config: map[string]any{"codes": map[string]any{"WELCOME10": 10.0}}},
	})
	disabled := newAPIFixture(t, nil)

	rec := enabled.do(t, http.MethodGet, "/capabilities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	caps := decode(t, rec)["capabilities"].([]any)
	require.Len(t, caps, 1)
	assert.Equal(t, "storefront.promotions@1.0", caps[0].(map[string]any)["id"])

	rec = disabled.do(t, http.MethodGet, "/capabilities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["capabilities"])

	// The promotions route only exists where the capability is enabled.
	cartID := func(f *apiFixture) string {
		rec := f.do(t, http.MethodPost, "/carts", `{"currency":"USD"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		return decode(t, rec)["id"].(string)
	}

	rec = disabled.do(t, http.MethodPost, "/carts/"+cartID(disabled)+"/promotions", `{"code":"WELCOME10"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = enabled.do(t, http.MethodPost, "/carts/"+cartID(enabled)+"/promotions", `{"code":"WELCOME10"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	meta := decode(t, rec)["metadata"].(map[string]any)
	promo := meta["storefront.promotions@1.0"].(map[string]any)
	assert.Equal(t, "WELCOME10", promo["code"])
	assert.NotEmpty(t, promo["applied_at"])
}

func TestRouter_MetadataPipeline(t *testing.T) {
	f := newAPIFixture(t, map[string]capability.Settings{
		builtin.TrackingNamespace: {Enabled: true},
	})

	// Request path: the valid tracking key is processed, the unknown
	// vendor key rides along untouched.
	body := `{"currency":"USD","metadata":{` +
		`"storefront.tracking@1.0":{"carrier":"ups","tracking_number":"1Z999"},` +
		`"vendor.custom@2.1":{"opaque":true}}}`
	rec := f.do(t, http.MethodPost, "/carts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode(t, rec)
	meta := created["metadata"].(map[string]any)
	tracking := meta["storefront.tracking@1.0"].(map[string]any)
	assert.Equal(t, "UPS", tracking["carrier"])
	assert.Equal(t, "https://www.ups.com/track?tracknum=1Z999", tracking["tracking_url"])
	assert.Equal(t, map[string]any{"opaque": true}, meta["vendor.custom@2.1"])

	// Invalid values for an enabled capability are dropped, not errors.
	rec = f.do(t, http.MethodPost, "/carts", `{"currency":"USD","metadata":{"storefront.tracking@1.0":{"carrier":"ups"}}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, present := decode(t, rec)["metadata"]
	assert.False(t, present)
}

func TestRouter_DisabledCapabilityMetadataRoundTrip(t *testing.T) {
	f := newAPIFixture(t, nil)

	stored := map[string]any{"carrier": "ups", "tracking_number": "1Z999"}
	body := `{"currency":"USD","metadata":{"storefront.tracking@1.0":{"carrier":"ups","tracking_number":"1Z999"}}}`
	rec := f.do(t, http.MethodPost, "/carts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cartID := decode(t, rec)["id"].(string)

	rec = f.do(t, http.MethodGet, "/carts/"+cartID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	meta := decode(t, rec)["metadata"].(map[string]any)
	assert.Equal(t, stored, meta["storefront.tracking@1.0"], "disabled capability metadata is returned exactly as stored")
}

func TestRouter_EventsRequireExistingOrder(t *testing.T) {
	f := newAPIFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/orders/00000000-0000-0000-0000-000000000001/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	f := newAPIFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
