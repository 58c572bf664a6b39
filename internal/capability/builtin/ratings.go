package builtin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
	"github.com/vasiliy-maslov/storefront-api/internal/capability"
	"github.com/vasiliy-maslov/storefront-api/internal/handler"
	"github.com/vasiliy-maslov/storefront-api/internal/order"
)

// RatingsNamespace serves the order rating route and owns review
// metadata.
const RatingsNamespace = "storefront.ratings"

const ratingsSchema = `{
	"type": "object",
	"properties": {
		"score": {"type": "integer", "minimum": 1, "maximum": 5},
		"comment": {"type": "string"}
	},
	"required": ["score"]
}`

func NewRatings(orders order.Service) (capability.Implementation, error) {
	validate, err := capability.SchemaValidator(RatingsNamespace, ratingsSchema)
	if err != nil {
		return capability.Implementation{}, err
	}

	h := &ratingsHandler{orders: orders}

	return capability.Implementation{
		Descriptor: capability.Descriptor{
			Namespace: RatingsNamespace,
			Version:   "1.0",
			SchemaURL: "https://storefront.schemas.local/storefront.ratings.schema.json",
		},
		Routes: func(r chi.Router) {
			r.Post("/orders/{orderID}/rating", h.rate)
		},
		Validator: validate,
	}, nil
}

type ratingsHandler struct {
	orders order.Service
}

func (h *ratingsHandler) rate(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.FromString(chi.URLParam(r, "orderID"))
	if err != nil {
		handler.RespondError(w, apperr.Validation("invalid order id", apperr.FieldViolation{Field: "orderID", Reason: "must be a UUID"}))
		return
	}

	var input struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		handler.RespondError(w, apperr.Validation("invalid rating", apperr.FieldViolation{Field: "body", Reason: "body must be valid JSON"}))
		return
	}

	updated, err := h.orders.Rate(r.Context(), orderID, input.Rating)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, updated)
}
