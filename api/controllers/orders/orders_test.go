package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/preorder-backend/api/middleware"
	internalorders "github.com/angelmondragon/preorder-backend/internal/orders"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
)

type stubOrderService struct {
	internalorders.Service

	createInput  internalorders.CreateOrderInput
	createErr    error
	statusInput  internalorders.SetStatusInput
	rejectInput  internalorders.RejectInput
	cancelled    []uuid.UUID
	restaurantID uuid.UUID
	detailErr    error
}

func (s *stubOrderService) CreateOrder(_ context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error) {
	s.createInput = input
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &internalorders.CreateOrderResult{Order: internalorders.OrderView{
		ID:         uuid.New(),
		CustomerID: input.CustomerID,
		Status:     enums.OrderStatusPending,
	}}, nil
}

func (s *stubOrderService) GetOrder(_ context.Context, orderID, _ uuid.UUID) (*internalorders.OrderView, error) {
	if s.detailErr != nil {
		return nil, s.detailErr
	}
	return &internalorders.OrderView{ID: orderID}, nil
}

func (s *stubOrderService) Cancel(_ context.Context, orderID, _ uuid.UUID) (*internalorders.OrderView, error) {
	s.cancelled = append(s.cancelled, orderID)
	return &internalorders.OrderView{ID: orderID, Status: enums.OrderStatusCancelled}, nil
}

func (s *stubOrderService) SetStatus(_ context.Context, input internalorders.SetStatusInput) (*internalorders.OrderView, error) {
	s.statusInput = input
	return &internalorders.OrderView{ID: input.OrderID, Status: enums.OrderStatus(input.Status)}, nil
}

func (s *stubOrderService) Reject(_ context.Context, input internalorders.RejectInput) (*internalorders.OrderView, error) {
	s.rejectInput = input
	return &internalorders.OrderView{ID: input.OrderID, Status: enums.OrderStatusCancelled}, nil
}

func (s *stubOrderService) ListRestaurantOrders(_ context.Context, restaurantID, _ uuid.UUID) ([]internalorders.OrderView, error) {
	s.restaurantID = restaurantID
	return []internalorders.OrderView{}, nil
}

func authedRequest(method, target, body string, userID uuid.UUID, role enums.UserRole, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	}
	rc := chi.NewRouteContext()
	for key, value := range params {
		rc.URLParams.Add(key, value)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithIdentity(ctx, userID.String(), string(role))
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestCreateMapsBodyToInput(t *testing.T) {
	svc := &stubOrderService{}
	customer := uuid.New()
	item := uuid.New()
	body := `{"items":[{"menu_item_id":"` + item.String() + `","quantity":2}],"eta":"12:30","total":"240.00"}`

	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", body, customer, enums.UserRoleCustomer, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, customer, svc.createInput.CustomerID)
	require.Equal(t, []internalorders.CartLine{{MenuItemID: item, Quantity: 2}}, svc.createInput.Lines)
	require.Equal(t, "12:30", svc.createInput.ETA)
	require.NotNil(t, svc.createInput.ClientTotal)
	require.True(t, decimal.RequireFromString("240").Equal(*svc.createInput.ClientTotal))
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	cases := map[string]string{
		"empty items":   `{"items":[],"eta":"12:30"}`,
		"zero quantity": `{"items":[{"menu_item_id":"` + uuid.NewString() + `","quantity":0}],"eta":"12:30"}`,
		"bad item id":   `{"items":[{"menu_item_id":"dosa","quantity":1}],"eta":"12:30"}`,
		"missing eta":   `{"items":[{"menu_item_id":"` + uuid.NewString() + `","quantity":1}]}`,
		"unknown field": `{"items":[{"menu_item_id":"` + uuid.NewString() + `","quantity":1}],"eta":"x","tip":5}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubOrderService{}
			rec := httptest.NewRecorder()
			Create(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", body, uuid.New(), enums.UserRoleCustomer, nil))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, rec))
			require.Nil(t, svc.createInput.Lines)
		})
	}
}

func TestCreateSurfacesClosedRestaurant(t *testing.T) {
	svc := &stubOrderService{createErr: pkgerrors.New(pkgerrors.CodeClosed, "restaurant is closed; open hours 09:00-22:00").
		WithDetails(map[string]any{"open": "09:00", "close": "22:00", "timezone": "UTC"})}
	body := `{"items":[{"menu_item_id":"` + uuid.NewString() + `","quantity":1}],"eta":"asap"}`

	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", body, uuid.New(), enums.UserRoleCustomer, nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeClosed), decodeError(t, rec))
}

func TestDetailValidatesOrderID(t *testing.T) {
	rec := httptest.NewRecorder()
	Detail(&stubOrderService{}, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/orders/nope", "", uuid.New(), enums.UserRoleCustomer, map[string]string{"orderId": "nope"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetailMapsForbidden(t *testing.T) {
	svc := &stubOrderService{detailErr: pkgerrors.New(pkgerrors.CodeForbidden, "order not visible")}
	orderID := uuid.New()

	rec := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), "", uuid.New(), enums.UserRoleCustomer, map[string]string{"orderId": orderID.String()}))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLifecycleCommandsPassPathAndActor(t *testing.T) {
	svc := &stubOrderService{}
	orderID := uuid.New()
	operator := uuid.New()
	params := map[string]string{"orderId": orderID.String()}

	rec := httptest.NewRecorder()
	SetStatus(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPut, "/", `{"status":"preparing"}`, operator, enums.UserRoleRestaurant, params))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, internalorders.SetStatusInput{OrderID: orderID, ActorID: operator, Status: "preparing"}, svc.statusInput)

	rec = httptest.NewRecorder()
	Reject(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPut, "/", `{"reason":"  out of batter  "}`, operator, enums.UserRoleRestaurant, params))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "out of batter", svc.rejectInput.Reason)

	rec = httptest.NewRecorder()
	Reject(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPut, "/", "", operator, enums.UserRoleRestaurant, params))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, svc.rejectInput.Reason)

	rec = httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPut, "/", "", uuid.New(), enums.UserRoleCustomer, params))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []uuid.UUID{orderID}, svc.cancelled)
}

func TestRestaurantOrdersReadsPathParam(t *testing.T) {
	svc := &stubOrderService{}
	restaurantID := uuid.New()

	rec := httptest.NewRecorder()
	RestaurantOrders(svc, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/", "", uuid.New(), enums.UserRoleRestaurant, map[string]string{"restaurantId": restaurantID.String()}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, restaurantID, svc.restaurantID)
	require.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestMissingUserContextIsUnauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/mine", nil)
	rec := httptest.NewRecorder()
	Mine(&stubOrderService{}, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
