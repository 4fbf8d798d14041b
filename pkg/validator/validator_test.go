package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=999"`
	Note      string `json:"note,omitempty" validate:"max=5"`
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := Validate(addItemRequest{Quantity: 0, Note: "too long"})

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))

	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["product_id"])
	assert.Equal(t, "must be greater than or equal to 1", fields["quantity"])
	assert.Equal(t, "must be at most 5", fields["note"])
	assert.Contains(t, err.Error(), "field 'product_id' is required")
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(addItemRequest{ProductID: "p1", Quantity: 2}))
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"product_id":"p1","quantity":3}`, ""},
		{"malformed", `{"product_id":`, "decode request body"},
		{"unknown field", `{"product_id":"p1","quantity":1,"price":1}`, "unknown field"},
		{"trailing data", `{"product_id":"p1","quantity":1}{}`, "trailing data"},
		{"invalid", `{"product_id":"","quantity":1}`, "product_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tt.body))
			var dst addItemRequest
			err := DecodeAndValidate(req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "p1", dst.ProductID)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
