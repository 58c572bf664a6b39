package builtin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
	"github.com/vasiliy-maslov/storefront-api/internal/capability"
	"github.com/vasiliy-maslov/storefront-api/internal/cart"
	"github.com/vasiliy-maslov/storefront-api/internal/handler"
)

// PromotionsNamespace owns promotion metadata on carts and serves the
// promo code application route.
const PromotionsNamespace = "storefront.promotions"

const promotionsSchema = `{
	"type": "object",
	"properties": {
		"code": {"type": "string", "minLength": 1}
	},
	"required": ["code"]
}`

func NewPromotions(registry *capability.Registry, carts cart.Service) (capability.Implementation, error) {
	validate, err := capability.SchemaValidator(PromotionsNamespace, promotionsSchema)
	if err != nil {
		return capability.Implementation{}, err
	}

	h := &promotionsHandler{registry: registry, carts: carts}

	return capability.Implementation{
		Descriptor: capability.Descriptor{
			Namespace: PromotionsNamespace,
			Version:   "1.0",
			SchemaURL: "https://storefront.schemas.local/storefront.promotions.schema.json",
		},
		Routes: func(r chi.Router) {
			r.Post("/carts/{cartID}/promotions", h.apply)
		},
		Validator: validate,
		Processor: processPromotion,
	}, nil
}

// processPromotion stamps the application time once; reprocessing an
// already-stamped value changes nothing.
func processPromotion(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if _, stamped := m["applied_at"]; stamped {
		return m
	}

	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["applied_at"] = time.Now().UTC().Format(time.RFC3339)
	return out
}

type promotionsHandler struct {
	registry *capability.Registry
	carts    cart.Service
}

func (h *promotionsHandler) apply(w http.ResponseWriter, r *http.Request) {
	cartID, err := uuid.FromString(chi.URLParam(r, "cartID"))
	if err != nil {
		handler.RespondError(w, apperr.Validation("invalid cart id", apperr.FieldViolation{Field: "cartID", Reason: "must be a UUID"}))
		return
	}

	var input struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Code == "" {
		handler.RespondError(w, apperr.Validation("invalid promotion", apperr.FieldViolation{Field: "code", Reason: "code is required"}))
		return
	}

	percent, ok := h.lookupCode(input.Code)
	if !ok {
		handler.RespondError(w, apperr.Business("unknown promotion code"))
		return
	}

	ctx := r.Context()

	current, err := h.carts.Get(ctx, cartID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	discount := current.Subtotal * percent / 100
	if _, err := h.carts.ApplyDiscount(ctx, cartID, discount); err != nil {
		handler.RespondError(w, err)
		return
	}

	updated, err := h.carts.SetMetadata(ctx, cartID, PromotionsNamespace+"@1.0", processPromotion(map[string]any{
		"code":    input.Code,
		"percent": percent,
	}))
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, updated)
}

// lookupCode resolves a promo code against the capability's own
// configuration block.
func (h *promotionsHandler) lookupCode(code string) (float64, bool) {
	cfg, ok := h.registry.Config(PromotionsNamespace)
	if !ok {
		return 0, false
	}
	codes, ok := cfg["codes"].(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := codes[code].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
