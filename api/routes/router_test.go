package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/preorder-backend/internal/orders"
	"github.com/angelmondragon/preorder-backend/internal/realtime"
	pkgAuth "github.com/angelmondragon/preorder-backend/pkg/auth"
	"github.com/angelmondragon/preorder-backend/pkg/config"
	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubOrdersService struct {
	orders.Service
}

func (stubOrdersService) CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*orders.CreateOrderResult, error) {
	return &orders.CreateOrderResult{Order: orders.OrderView{ID: uuid.New(), CustomerID: input.CustomerID, Status: enums.OrderStatusPending}}, nil
}

func (stubOrdersService) ListMyOrders(ctx context.Context, customerID uuid.UUID) ([]orders.OrderView, error) {
	return []orders.OrderView{}, nil
}

func (stubOrdersService) ListRestaurantOrders(ctx context.Context, restaurantID, actorID uuid.UUID) ([]orders.OrderView, error) {
	return []orders.OrderView{}, nil
}

type stubRestaurants struct{}

func (stubRestaurants) Restaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	return &models.Restaurant{ID: id}, nil
}

type stubKeySource struct{}

func (stubKeySource) PublishableKey() string { return "pk_test_123" }

type stubSigner struct{}

func (stubSigner) SigningSecret() string { return "whsec_test" }

type stubWebhookService struct{}

func (stubWebhookService) HandleEvent(context.Context, *stripe.Event) error { return nil }

type stubGuard struct{}

func (stubGuard) CheckAndMark(context.Context, string) (bool, error) { return false, nil }
func (stubGuard) Delete(context.Context, string) error { return nil }

type memoryIdempotencyStore struct {
	data map[string]string
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func testParams(cfg *config.Config) Params {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return Params{
		Config:               cfg,
		Logger:               logg,
		DB:                   stubPinger{},
		Redis:                stubPinger{},
		MetricsHandler:       http.NotFoundHandler(),
		Orders:               stubOrdersService{},
		Restaurants:          stubRestaurants{},
		Payments:             stubKeySource{},
		Realtime:             realtime.NewHub(4, nil, logg),
		StripeSigner:         stubSigner{},
		StripeWebhookService: stubWebhookService{},
		StripeWebhookGuard:   stubGuard{},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	return NewRouter(testParams(cfg))
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutesArePublic(t *testing.T) {
	router := newTestRouter(testConfig())
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestAPIGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/orders/mine", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAnyRoleCanListOwnOrders(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	for _, role := range []enums.UserRole{enums.UserRoleCustomer, enums.UserRoleRestaurant} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/mine", nil)
		req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, role))
		if resp := serve(router, req); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", role, resp.Code)
		}
	}
}

func TestCreateOrderRequiresCustomerRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	body := `{"items":[{"menu_item_id":"` + uuid.NewString() + `","quantity":1}],"eta":"19:30"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleRestaurant))
	if resp := serve(router, req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for restaurant got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	if resp := serve(router, req); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for customer got %d", resp.Code)
	}
}

func TestRestaurantOrdersRequireRestaurantRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	path := "/api/v1/restaurants/" + uuid.NewString() + "/orders"

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	if resp := serve(router, req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleRestaurant))
	if resp := serve(router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for restaurant got %d", resp.Code)
	}
}

func TestPublishableKeyRoute(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/key", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	resp := serve(router, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "pk_test_123") {
		t.Fatalf("expected publishable key in body, got %s", resp.Body.String())
	}
}

func TestStripeWebhookSkipsJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned webhook got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "stripe signature missing") {
		t.Fatalf("expected signature error, got %s", resp.Body.String())
	}
}

func TestCreateOrderRequiresIdempotencyKeyWhenStoreConfigured(t *testing.T) {
	cfg := testConfig()
	params := testParams(cfg)
	params.IdempotencyStore = &memoryIdempotencyStore{data: map[string]string{}}
	router := NewRouter(params)
	body := `{"items":[{"menu_item_id":"` + uuid.NewString() + `","quantity":1}],"eta":"19:30"}`
	token := buildToken(t, cfg, enums.UserRoleCustomer)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if resp := serve(router, req); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "order-1")
	if resp := serve(router, req); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 with Idempotency-Key got %d", resp.Code)
	}
}

func TestCreateOrderTrailingSlashStillRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	params := testParams(cfg)
	store := &memoryIdempotencyStore{data: map[string]string{}}
	params.IdempotencyStore = store
	router := NewRouter(params)
	body := `{"items":[{"menu_item_id":"` + uuid.NewString() + `","quantity":1}],"eta":"19:30"}`
	token := buildToken(t, cfg, enums.UserRoleCustomer)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if resp := serve(router, req); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key on trailing slash got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders/", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "order-slash")
	if resp := serve(router, req); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 with Idempotency-Key got %d", resp.Code)
	}

	// The slashed and unslashed forms share one replay record.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "order-slash")
	if resp := serve(router, req); resp.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", resp.Code)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected one stored record, got %d", len(store.data))
	}
}
