package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
)

type sampleBody struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"item_id":"nope","quantity":0}`))

	var body sampleBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be a valid UUID", details["item_id"])
	require.Equal(t, "must be greater than 0", details["quantity"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"item_id":"`+uuid.NewString()+`","quantity":1,"extra":true}`))

	var body sampleBody
	require.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
}

func TestURLUUID(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := URLUUID(req, "orderId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = URLUUID(req, "restaurantId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeText(t *testing.T) {
	require.Equal(t, "abc", SanitizeText("  abcdef ", 3))
	require.Equal(t, "abc", SanitizeText(" abc ", 0))
	require.Equal(t, "out of paneer", SanitizeText("out\nof\t\tpaneer", 0))
	require.Equal(t, "ab", SanitizeText("ab cd", 3))
	require.Equal(t, "नम", SanitizeText("नमस्ते", 2))
}

type statusBody struct {
	Status string `json:"status" validate:"required,order_status"`
	Note   string `json:"note" validate:"notblank"`
}

func TestDecodeJSONBodyCustomTags(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"teleported","note":"   "}`))

	var body statusBody
	typed := pkgerrors.As(DecodeJSONBody(req, &body))
	require.NotNil(t, typed)
	details := typed.Details().(map[string]string)
	require.Equal(t, "must be a known order status", details["status"])
	require.Equal(t, "is required", details["note"])

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"preparing","note":"ok"}`))
	require.NoError(t, DecodeJSONBody(req, &body))
	require.Equal(t, "preparing", body.Status)
}

func TestDecodeJSONBodyEnvelopeErrors(t *testing.T) {
	var body sampleBody

	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &body)
	require.Equal(t, "request body is required", pkgerrors.As(err).Message())

	trailing := `{"item_id":"` + uuid.NewString() + `","quantity":1}{}`
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(trailing)), &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	huge := `{"item_id":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge)), &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Contains(t, pkgerrors.As(err).Message(), "exceeds")
}

func TestDecodeJSONBodyNestedFieldPath(t *testing.T) {
	type line struct {
		Quantity int `json:"quantity" validate:"gt=0"`
	}
	type cart struct {
		Items []line `json:"items" validate:"required,min=1,dive"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"quantity":1},{"quantity":0}]}`))

	var body cart
	typed := pkgerrors.As(DecodeJSONBody(req, &body))
	require.NotNil(t, typed)
	require.Contains(t, typed.Details().(map[string]string), "items[1].quantity")
}
