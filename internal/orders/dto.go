package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
)

const maxETALength = 64

// CartLine is one requested menu item.
type CartLine struct {
	MenuItemID uuid.UUID
	Quantity   int
}

// CreateOrderInput carries a checkout request. ClientTotal is advisory.
type CreateOrderInput struct {
	CustomerID  uuid.UUID
	Lines       []CartLine
	ETA         string
	ClientTotal *decimal.Decimal
}

// Warning is a non-fatal observation returned alongside a created order.
type Warning struct {
	Code        string          `json:"code"`
	Message     string          `json:"message"`
	ClientTotal decimal.Decimal `json:"client_total"`
	ServerTotal decimal.Decimal `json:"server_total"`
}

const WarningPriceMismatch = "price_mismatch"

// CreateOrderResult is the authoritative order plus any warnings.
type CreateOrderResult struct {
	Order    OrderView `json:"order"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// InitiatePaymentInput asks for a gateway intent for a pending order.
type InitiatePaymentInput struct {
	OrderID      uuid.UUID
	ActorID      uuid.UUID
	ClientAmount *int64
}

// PaymentIntentView is handed to the payment widget.
type PaymentIntentView struct {
	ExternalID   string    `json:"external_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	OrderID      uuid.UUID `json:"order_id"`
}

// ConfirmPaymentInput is a verified capture notification.
type ConfirmPaymentInput struct {
	ExternalOrderID   string
	ExternalPaymentID string
	Signature         string
}

// ConfirmOutcome describes what a capture notification changed.
type ConfirmOutcome string

const (
	ConfirmOutcomeConfirmed       ConfirmOutcome = "confirmed"
	ConfirmOutcomeAlreadyApplied  ConfirmOutcome = "already_applied"
	ConfirmOutcomeRefundRequested ConfirmOutcome = "refund_requested"
)

// SetStatusInput is an operator-driven forward transition.
type SetStatusInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Status  string
}

// RejectInput is an operator cancellation.
type RejectInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Reason  string
}

// RefundOutcomeInput settles a refund the worker attempted.
type RefundOutcomeInput struct {
	OrderID   uuid.UUID
	Succeeded bool
	Reference string
}

// LineView is a display projection of an order line.
type LineView struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// OrderView is the display projection served over REST and realtime.
// Names are resolved at read time and never stored on the order.
type OrderView struct {
	ID                uuid.UUID           `json:"id"`
	CustomerID        uuid.UUID           `json:"customer_id"`
	CustomerName      string              `json:"customer_name,omitempty"`
	RestaurantID      uuid.UUID           `json:"restaurant_id"`
	RestaurantName    string              `json:"restaurant_name,omitempty"`
	Status            enums.OrderStatus   `json:"status"`
	TotalAmount       decimal.Decimal     `json:"total_amount"`
	Currency          string              `json:"currency"`
	ETA               string              `json:"eta"`
	Lines             []LineView          `json:"lines"`
	ExternalOrderID   *string             `json:"external_order_id,omitempty"`
	ExternalPaymentID *string             `json:"external_payment_id,omitempty"`
	CancelReason      *enums.CancelReason `json:"cancel_reason,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	RefundStatus      enums.RefundStatus  `json:"refund_status"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// StatusUpdate is the realtime payload for a status change.
type StatusUpdate struct {
	OrderID      uuid.UUID           `json:"order_id"`
	RestaurantID uuid.UUID           `json:"restaurant_id"`
	CustomerID   uuid.UUID           `json:"customer_id"`
	From         enums.OrderStatus   `json:"from"`
	Status       enums.OrderStatus   `json:"status"`
	CancelReason *enums.CancelReason `json:"cancel_reason,omitempty"`
	RefundStatus enums.RefundStatus  `json:"refund_status"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type displayNames struct {
	customers   map[uuid.UUID]string
	restaurants map[uuid.UUID]string
	items       map[uuid.UUID]string
}

func newOrderView(order *models.Order, names displayNames) OrderView {
	lines := make([]LineView, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, LineView{
			MenuItemID: line.MenuItemID,
			Name:       names.items[line.MenuItemID],
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Subtotal:   line.Subtotal(),
		})
	}
	return OrderView{
		ID:                order.ID,
		CustomerID:        order.CustomerID,
		CustomerName:      names.customers[order.CustomerID],
		RestaurantID:      order.RestaurantID,
		RestaurantName:    names.restaurants[order.RestaurantID],
		Status:            order.Status,
		TotalAmount:       order.TotalAmount,
		Currency:          order.Currency,
		ETA:               order.ETA,
		Lines:             lines,
		ExternalOrderID:   order.PaymentReference.ExternalOrderID,
		ExternalPaymentID: order.PaymentReference.ExternalPaymentID,
		CancelReason:      order.CancelReason,
		CancelledAt:       order.CancelledAt,
		RefundStatus:      order.RefundStatus,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

// minorUnits converts a two-decimal amount into the gateway's smallest unit.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
