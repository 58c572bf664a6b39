package builtin

import (
	"fmt"
	"strings"

	"github.com/vasiliy-maslov/storefront-api/internal/capability"
)

// TrackingNamespace owns shipment tracking metadata on orders.
const TrackingNamespace = "storefront.tracking"

const trackingSchema = `{
	"type": "object",
	"properties": {
		"carrier": {"type": "string", "minLength": 1},
		"tracking_number": {"type": "string", "minLength": 1}
	},
	"required": ["carrier", "tracking_number"]
}`

var carrierURLs = map[string]string{
	"UPS":   "https://www.ups.com/track?tracknum=%s",
	"FEDEX": "https://www.fedex.com/fedextrack/?trknbr=%s",
	"USPS":  "https://tools.usps.com/go/TrackConfirmAction?tLabels=%s",
}

func NewTracking() (capability.Implementation, error) {
	validate, err := capability.SchemaValidator(TrackingNamespace, trackingSchema)
	if err != nil {
		return capability.Implementation{}, err
	}

	return capability.Implementation{
		Descriptor: capability.Descriptor{
			Namespace: TrackingNamespace,
			Version:   "1.0",
			SchemaURL: "https://storefront.schemas.local/storefront.tracking.schema.json",
		},
		Validator: validate,
		Processor: processTracking,
	}, nil
}

// processTracking normalizes the carrier name and derives the tracking
// URL. Deriving rather than storing keeps the transform idempotent.
func processTracking(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}

	carrier, _ := m["carrier"].(string)
	number, _ := m["tracking_number"].(string)
	if carrier == "" || number == "" {
		return value
	}

	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	normalized := strings.ToUpper(strings.TrimSpace(carrier))
	out["carrier"] = normalized
	if urlFormat, known := carrierURLs[normalized]; known {
		out["tracking_url"] = fmt.Sprintf(urlFormat, number)
	}
	return out
}
