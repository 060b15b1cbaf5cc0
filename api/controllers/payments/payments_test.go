package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/preorder-backend/api/middleware"
	internalorders "github.com/angelmondragon/preorder-backend/internal/orders"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
)

type stubInitiator struct {
	input internalorders.InitiatePaymentInput
	err   error
}

func (s *stubInitiator) InitiatePayment(_ context.Context, input internalorders.InitiatePaymentInput) (*internalorders.PaymentIntentView, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.PaymentIntentView{
		ExternalID:   "pi_123",
		ClientSecret: "pi_123_secret",
		Amount:       27100,
		Currency:     "inr",
		OrderID:      input.OrderID,
	}, nil
}

type staticKey string

func (k staticKey) PublishableKey() string { return string(k) }

func customerRequest(body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(body))
	return req.WithContext(middleware.WithIdentity(req.Context(), userID.String(), string(enums.UserRoleCustomer)))
}

func TestCreateIntentPassesOrderAndAmount(t *testing.T) {
	svc := &stubInitiator{}
	customer := uuid.New()
	orderID := uuid.New()

	rec := httptest.NewRecorder()
	CreateIntent(svc, nil).ServeHTTP(rec, customerRequest(`{"order_id":"`+orderID.String()+`","amount":27100}`, customer))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, orderID, svc.input.OrderID)
	require.Equal(t, customer, svc.input.ActorID)
	require.NotNil(t, svc.input.ClientAmount)
	require.EqualValues(t, 27100, *svc.input.ClientAmount)
	require.Contains(t, rec.Body.String(), `"client_secret":"pi_123_secret"`)
}

func TestCreateIntentMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad order id", `{"order_id":"x"}`, nil, http.StatusBadRequest},
		{"not pending", `{"order_id":"` + uuid.NewString() + `"}`, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment"), http.StatusUnprocessableEntity},
		{"gateway down", `{"order_id":"` + uuid.NewString() + `"}`, pkgerrors.New(pkgerrors.CodeUpstream, "create payment intent"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			CreateIntent(&stubInitiator{err: tc.err}, nil).ServeHTTP(rec, customerRequest(tc.body, uuid.New()))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestPublishableKey(t *testing.T) {
	rec := httptest.NewRecorder()
	PublishableKey(staticKey("pk_test_123"), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/key", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"publishable_key":"pk_test_123"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	PublishableKey(staticKey(""), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/key", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
