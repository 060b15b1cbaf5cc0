package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/preorder-backend/pkg/enums"
)

// OrderCreatedEvent records a new pending pre-order.
type OrderCreatedEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	RestaurantID uuid.UUID       `json:"restaurant_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
	LineCount    int             `json:"line_count"`
	ETA          string          `json:"eta"`
}

// OrderStatusChangedEvent is emitted for every persisted status transition.
type OrderStatusChangedEvent struct {
	OrderID      uuid.UUID           `json:"order_id"`
	RestaurantID uuid.UUID           `json:"restaurant_id"`
	CustomerID   uuid.UUID           `json:"customer_id"`
	From         enums.OrderStatus   `json:"from"`
	To           enums.OrderStatus   `json:"to"`
	Trigger      string              `json:"trigger"`
	CancelReason *enums.CancelReason `json:"cancel_reason,omitempty"`
	ChangedAt    time.Time           `json:"changed_at"`
}

// OrderRefundRequestedEvent asks the refund worker to return a captured payment.
type OrderRefundRequestedEvent struct {
	OrderID           uuid.UUID          `json:"order_id"`
	RestaurantID      uuid.UUID          `json:"restaurant_id"`
	ExternalPaymentID string             `json:"external_payment_id"`
	Amount            decimal.Decimal    `json:"amount"`
	AmountMinor       int64              `json:"amount_minor"`
	Currency          string             `json:"currency"`
	Reason            enums.CancelReason `json:"reason"`
}
