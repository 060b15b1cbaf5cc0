package orders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/preorder-backend/internal/payments"
	"github.com/angelmondragon/preorder-backend/internal/realtime"
	"github.com/angelmondragon/preorder-backend/pkg/config"
	"github.com/angelmondragon/preorder-backend/pkg/db"
	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
	"github.com/angelmondragon/preorder-backend/pkg/outbox"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:orders_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(`
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  restaurant_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  total_amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  eta TEXT NOT NULL,
  payment_external_order_id TEXT UNIQUE,
  payment_external_payment_id TEXT,
  payment_signature TEXT,
  cancel_reason TEXT,
  cancelled_at DATETIME,
  refund_status TEXT NOT NULL DEFAULT 'none',
  refund_reference TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	require.NoError(t, conn.Exec(`
CREATE TABLE order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  menu_item_id TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  unit_price NUMERIC NOT NULL
);`).Error)
	return conn
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
}

type stubCatalog struct {
	items       map[uuid.UUID]models.MenuItem
	restaurants map[uuid.UUID]*models.Restaurant
	err         error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		items:       map[uuid.UUID]models.MenuItem{},
		restaurants: map[uuid.UUID]*models.Restaurant{},
	}
}

func (c *stubCatalog) addRestaurant(owner uuid.UUID, name string, open, close *string) *models.Restaurant {
	restaurant := &models.Restaurant{ID: uuid.New(), OwnerID: owner, Name: name, OpenTime: open, CloseTime: close}
	c.restaurants[restaurant.ID] = restaurant
	return restaurant
}

func (c *stubCatalog) addItem(restaurantID uuid.UUID, name, price string, available bool) models.MenuItem {
	item := models.MenuItem{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		Name:         name,
		Price:        decimal.RequireFromString(price),
		IsAvailable:  available,
	}
	c.items[item.ID] = item
	return item
}

func (c *stubCatalog) ResolveMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := map[uuid.UUID]models.MenuItem{}
	for _, id := range ids {
		if item, ok := c.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (c *stubCatalog) Restaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	restaurant, ok := c.restaurants[id]
	if !ok {
		return nil, errors.New("restaurant not found")
	}
	return restaurant, nil
}

func (c *stubCatalog) MenuItemNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := map[uuid.UUID]string{}
	for _, id := range ids {
		if item, ok := c.items[id]; ok {
			out[id] = item.Name
		}
	}
	return out, nil
}

func (c *stubCatalog) RestaurantNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := map[uuid.UUID]string{}
	for _, id := range ids {
		if restaurant, ok := c.restaurants[id]; ok {
			out[id] = restaurant.Name
		}
	}
	return out, nil
}

type stubUsers struct {
	names map[uuid.UUID]string
	err   error
}

func (u stubUsers) Names(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.names, nil
}

type stubGateway struct {
	mu        sync.Mutex
	created   []payments.IntentRequest
	retrieved []string
	createErr error
	fixedID   string
}

func (g *stubGateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	id := "pi_" + req.OrderID.String()[:8]
	if g.fixedID != "" {
		id = g.fixedID
	}
	return &payments.Intent{ExternalID: id, ClientSecret: id + "_secret", AmountMinor: req.AmountMinor, Currency: req.Currency}, nil
}

func (g *stubGateway) RetrieveIntent(ctx context.Context, externalID string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieved = append(g.retrieved, externalID)
	return &payments.Intent{ExternalID: externalID, ClientSecret: externalID + "_secret"}, nil
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
	err    error
}

func (o *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if o.err != nil {
		return o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *recordingOutbox) types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.events))
	for _, event := range o.events {
		out = append(out, string(event.EventType))
	}
	return out
}

type published struct {
	topic string
	event realtime.Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (n *recordingNotifier) Publish(ctx context.Context, topic string, event realtime.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{topic: topic, event: event})
	return n.err
}

func (n *recordingNotifier) topics(name string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, p := range n.events {
		if p.event.Name == name {
			out = append(out, p.topic)
		}
	}
	return out
}

type fixture struct {
	db         *gorm.DB
	svc        Service
	repo       Repository
	catalog    *stubCatalog
	gateway    *stubGateway
	outbox     *recordingOutbox
	notifier   *recordingNotifier
	now        time.Time
	customer   uuid.UUID
	owner      uuid.UUID
	restaurant *models.Restaurant
	dosa       models.MenuItem
	chai       models.MenuItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := setupOrdersTestDB(t)
	f := &fixture{
		db:       conn,
		repo:     NewRepository(conn),
		catalog:  newStubCatalog(),
		gateway:  &stubGateway{},
		outbox:   &recordingOutbox{},
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		customer: uuid.New(),
		owner:    uuid.New(),
	}
	f.restaurant = f.catalog.addRestaurant(f.owner, "Dosa Point", strPtr("09:00"), strPtr("22:00"))
	f.dosa = f.catalog.addItem(f.restaurant.ID, "Masala Dosa", "120.00", true)
	f.chai = f.catalog.addItem(f.restaurant.ID, "Cutting Chai", "15.50", true)

	svc, err := NewService(ServiceParams{
		Repo:     f.repo,
		TxRunner: db.Wrap(conn),
		Outbox:   f.outbox,
		Catalog:  f.catalog,
		Users:    stubUsers{names: map[uuid.UUID]string{f.customer: "Asha"}},
		Gateway:  f.gateway,
		Notifier: f.notifier,
		Logger:   testLogger(),
		Config:   config.OrdersConfig{Timezone: "UTC", CancelWindow: 5 * time.Minute, Currency: "INR"},
		Clock:    func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) placeOrder(t *testing.T) OrderView {
	t.Helper()
	result, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: f.customer,
		Lines:      []CartLine{{MenuItemID: f.dosa.ID, Quantity: 2}},
		ETA:        "12:30",
	})
	require.NoError(t, err)
	return result.Order
}

func (f *fixture) payOrder(t *testing.T, orderID uuid.UUID) string {
	t.Helper()
	intent, err := f.svc.InitiatePayment(context.Background(), InitiatePaymentInput{OrderID: orderID, ActorID: f.customer})
	require.NoError(t, err)
	outcome, err := f.svc.ConfirmPayment(context.Background(), ConfirmPaymentInput{
		ExternalOrderID:   intent.ExternalID,
		ExternalPaymentID: "ch_" + orderID.String()[:8],
	})
	require.NoError(t, err)
	require.Equal(t, ConfirmOutcomeConfirmed, outcome)
	return intent.ExternalID
}
