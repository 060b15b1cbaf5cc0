package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/preorder-backend/internal/payments"
	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
	"github.com/angelmondragon/preorder-backend/pkg/outbox"
)

// Repository defines persistence operations for orders and their lines.
// Mutations are conditional and report whether a row was changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByExternalOrderID(ctx context.Context, externalOrderID string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, statuses []enums.OrderStatus) ([]models.Order, error)
	Transition(ctx context.Context, params TransitionParams) (bool, error)
	SetExternalOrderID(ctx context.Context, orderID uuid.UUID, externalOrderID string) (bool, error)
	RecordPayment(ctx context.Context, orderID uuid.UUID, paymentID string, signature string) (bool, error)
	MarkRefundRequested(ctx context.Context, orderID uuid.UUID) (bool, error)
	UpdateRefundOutcome(ctx context.Context, orderID uuid.UUID, status enums.RefundStatus, reference *string) (bool, error)
}

// TransitionParams describes a compare-and-set status change.
type TransitionParams struct {
	OrderID uuid.UUID
	From    []enums.OrderStatus
	To      enums.OrderStatus
	At      time.Time
	Updates map[string]any
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type catalog interface {
	ResolveMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error)
	Restaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
	MenuItemNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	RestaurantNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type userNames interface {
	Names(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type paymentGateway interface {
	CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error)
	RetrieveIntent(ctx context.Context, externalID string) (*payments.Intent, error)
}
