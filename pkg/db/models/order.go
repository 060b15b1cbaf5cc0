package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/preorder-backend/pkg/enums"
)

// Order is the authoritative pre-order record. It stores ids and price
// snapshots only; display names are assembled on read.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID       uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	RestaurantID     uuid.UUID           `gorm:"column:restaurant_id;type:uuid;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency         string              `gorm:"column:currency;type:text;not null"`
	ETA              string              `gorm:"column:eta;not null"`
	PaymentReference PaymentReference    `gorm:"embedded;embeddedPrefix:payment_"`
	CancelReason     *enums.CancelReason `gorm:"column:cancel_reason;type:cancel_reason"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`
	RefundStatus     enums.RefundStatus  `gorm:"column:refund_status;type:refund_status;not null;default:'none'"`
	RefundReference  *string             `gorm:"column:refund_reference"`
	Lines            []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at"`
	UpdatedAt        time.Time           `gorm:"column:updated_at"`
}

// PaymentReference holds gateway identifiers. Each field is written at most once.
type PaymentReference struct {
	ExternalOrderID   *string `gorm:"column:external_order_id"`
	ExternalPaymentID *string `gorm:"column:external_payment_id"`
	Signature         *string `gorm:"column:signature"`
}

// HasCapturedPayment reports whether a captured payment id is recorded.
func (o *Order) HasCapturedPayment() bool {
	return o != nil && o.PaymentReference.ExternalPaymentID != nil && *o.PaymentReference.ExternalPaymentID != ""
}

func (Order) TableName() string { return "orders" }
