package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type lineBody struct {
	OfferID  string `json:"offer_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"offer_id":"sku-1","quantity":2}`))
		var body lineBody
		require.NoError(t, DecodeJSONBody(req, &body))
		assert.Equal(t, "sku-1", body.OfferID)
		assert.Equal(t, 2, body.Quantity)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"offer_id":"sku-1","quantity":2,"price":1}`))
		var body lineBody
		err := DecodeJSONBody(req, &body)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	})

	t.Run("validation details use json names", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
		var body lineBody
		err := DecodeJSONBody(req, &body)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		details, ok := typed.Details().(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "is required", details["offer_id"])
		assert.Equal(t, "must be at least 1", details["quantity"])
	})
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"trailing data": `{"offer_id":"a","quantity":1}{"offer_id":"b","quantity":1}`,
		"syntax":        `{"offer_id":`,
		"wrong type":    `{"offer_id":"a","quantity":"two"}`,
		"too large":     `{"offer_id":"` + strings.Repeat("x", MaxBodyBytes) + `","quantity":1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
			var body lineBody
			err := DecodeJSONBody(req, &body)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	type payload struct {
		Token string `json:"token"`
	}
	var empty payload
	require.NoError(t, DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &empty))
	assert.Empty(t, empty.Token)

	var filled payload
	require.NoError(t, DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"tok"}`)), &filled))
	assert.Equal(t, "tok", filled.Token)
}

func TestValidationDetailsUseNestedPaths(t *testing.T) {
	type order struct {
		Lines []lineBody `json:"line_items" validate:"required,min=1,dive"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"line_items":[{"offer_id":"a","quantity":1},{"offer_id":"b","quantity":0}]}`))
	var body order
	typed := pkgerrors.As(DecodeJSONBody(req, &body))
	require.NotNil(t, typed)
	details := typed.Details().(map[string]string)
	assert.Equal(t, "must be at least 1", details["line_items[1].quantity"])
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("sessionId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "sessionId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "sessionId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDParam(withParam(""), "sessionId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTrimOptional(t *testing.T) {
	blank := "  "
	value := " a@b.co "
	assert.Nil(t, TrimOptional(nil))
	assert.Nil(t, TrimOptional(&blank))
	assert.Equal(t, "a@b.co", *TrimOptional(&value))
}
