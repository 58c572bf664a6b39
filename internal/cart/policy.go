package cart

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
)

type PolicyType string

const (
	PolicyExpiration        PolicyType = "expiration"
	PolicyMaxItems          PolicyType = "max_items"
	PolicyMaxValue          PolicyType = "max_value"
	PolicyStoreRestrictions PolicyType = "store_restrictions"
)

// MoneyLimit is the value of a max_value policy. Comparison is only
// defined within one currency.
type MoneyLimit struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Policy is one declarative cart rule, evaluated read-only against a
// cart snapshot. The value shape depends on the type: a number of
// seconds for expiration, an item count for max_items, a money limit
// for max_value.
type Policy struct {
	Type    PolicyType  `json:"type"`
	Seconds int64       `json:"-"`
	Count   int         `json:"-"`
	Limit   *MoneyLimit `json:"-"`
	Message string      `json:"message,omitempty"`
}

func (p Policy) MarshalJSON() ([]byte, error) {
	raw := struct {
		Type    PolicyType `json:"type"`
		Value   any        `json:"value,omitempty"`
		Message string     `json:"message,omitempty"`
	}{Type: p.Type, Message: p.Message}

	switch p.Type {
	case PolicyExpiration:
		raw.Value = p.Seconds
	case PolicyMaxItems:
		raw.Value = p.Count
	case PolicyMaxValue:
		raw.Value = p.Limit
	}
	return json.Marshal(raw)
}

func (p *Policy) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    PolicyType      `json:"type"`
		Value   json.RawMessage `json:"value"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Type = raw.Type
	p.Message = raw.Message

	switch raw.Type {
	case PolicyExpiration:
		if err := json.Unmarshal(raw.Value, &p.Seconds); err != nil {
			return fmt.Errorf("cart: expiration policy value must be a number of seconds: %w", err)
		}
	case PolicyMaxItems:
		if err := json.Unmarshal(raw.Value, &p.Count); err != nil {
			return fmt.Errorf("cart: max_items policy value must be a number: %w", err)
		}
	case PolicyMaxValue:
		p.Limit = &MoneyLimit{}
		if err := json.Unmarshal(raw.Value, p.Limit); err != nil {
			return fmt.Errorf("cart: max_value policy value must be a money limit: %w", err)
		}
	case PolicyStoreRestrictions:
		// Reserved extension point, no value yet.
	default:
		return fmt.Errorf("cart: unknown policy type %q", raw.Type)
	}
	return nil
}

func (p Policy) message(fallback string) string {
	if p.Message != "" {
		return p.Message
	}
	return fallback
}

// EvaluatePolicies checks the cart against each policy in declaration
// order and returns the first violation as a business-logic error.
// Policies short-circuit; they are not reported exhaustively like
// field validation.
func EvaluatePolicies(c *Cart, policies []Policy, now time.Time) error {
	for _, p := range policies {
		switch p.Type {
		case PolicyExpiration:
			if now.Sub(c.CreatedAt) > time.Duration(p.Seconds)*time.Second {
				return apperr.Business(p.message("cart has expired"))
			}
		case PolicyMaxItems:
			if len(c.Items) >= p.Count {
				return apperr.Business(p.message(fmt.Sprintf("cart cannot hold more than %d items", p.Count)))
			}
		case PolicyMaxValue:
			if p.Limit == nil {
				continue
			}
			if c.Currency != p.Limit.Currency {
				return apperr.Business(fmt.Sprintf("cannot compare cart currency %s against policy currency %s", c.Currency, p.Limit.Currency))
			}
			if c.Total > p.Limit.Amount {
				return apperr.Business(p.message(fmt.Sprintf("cart total exceeds the %.2f %s ceiling", p.Limit.Amount, p.Limit.Currency)))
			}
		case PolicyStoreRestrictions:
			// Reserved: recognized but a no-op until a rule set exists.
		}
	}
	return nil
}
