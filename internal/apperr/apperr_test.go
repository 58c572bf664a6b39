package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{
			name: "validation",
			err:  apperr.Validation("invalid cart", apperr.FieldViolation{Field: "currency", Reason: "currency is required"}),
			want: apperr.KindValidation,
		},
		{
			name: "business",
			err:  apperr.Business("cart has no items"),
			want: apperr.KindBusiness,
		},
		{
			name: "wrapped",
			err:  fmt.Errorf("service: %w", apperr.NotFound("cart not found")),
			want: apperr.KindNotFound,
		},
		{
			name: "plain_error",
			err:  errors.New("connection refused"),
			want: apperr.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(tt.err))
		})
	}
}

func TestAs(t *testing.T) {
	orig := apperr.Expired("cart has expired", "create a new cart")
	assert.Same(t, orig, apperr.As(fmt.Errorf("service: %w", orig)))

	plain := errors.New("connection refused")
	wrapped := apperr.As(plain)
	assert.Equal(t, apperr.KindInternal, wrapped.Kind)
	assert.True(t, errors.Is(wrapped, plain))
}

func TestError_Message(t *testing.T) {
	err := apperr.Internal("cart store failure", errors.New("connection refused"))
	assert.Equal(t, "internal: cart store failure: connection refused", err.Error())

	assert.Equal(t, "business_logic: cart has no items", apperr.Business("cart has no items").Error())
}

func TestValidation_KeepsAllViolations(t *testing.T) {
	err := apperr.Validation("invalid order",
		apperr.FieldViolation{Field: "currency", Reason: "currency is required"},
		apperr.FieldViolation{Field: "items", Reason: "at least one item is required"},
	)
	assert.Len(t, err.Fields, 2)
}
