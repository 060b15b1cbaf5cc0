package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order row followed by its lines. Callers run it inside a transaction.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit("Lines").Create(order).Error; err != nil {
		return err
	}
	if len(order.Lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&order.Lines).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withLines(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByExternalOrderID(ctx context.Context, externalOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.withLines(ctx).Where("payment_external_order_id = ?", externalOrderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.withLines(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, statuses []enums.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	query := r.withLines(ctx).Where("restaurant_id = ?", restaurantID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Transition moves the order to params.To only while its status is one of params.From.
func (r *repository) Transition(ctx context.Context, params TransitionParams) (bool, error) {
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates := map[string]any{
		"status":     params.To,
		"updated_at": at,
	}
	for column, value := range params.Updates {
		updates[column] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", params.OrderID, params.From).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetExternalOrderID(ctx context.Context, orderID uuid.UUID, externalOrderID string) (bool, error) {
	return r.setOnce(ctx, orderID, "payment_external_order_id", externalOrderID)
}

// RecordPayment stores the captured payment id and signature once.
func (r *repository) RecordPayment(ctx context.Context, orderID uuid.UUID, paymentID string, signature string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_external_payment_id IS NULL", orderID).
		Updates(map[string]any{
			"payment_external_payment_id": paymentID,
			"payment_signature":           gorm.Expr("COALESCE(payment_signature, ?)", nullableString(signature)),
			"updated_at":                  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkRefundRequested flips refund_status from none to requested exactly once.
func (r *repository) MarkRefundRequested(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND refund_status = ?", orderID, enums.RefundStatusNone).
		Updates(map[string]any{
			"refund_status": enums.RefundStatusRequested,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateRefundOutcome settles a requested refund.
func (r *repository) UpdateRefundOutcome(ctx context.Context, orderID uuid.UUID, status enums.RefundStatus, reference *string) (bool, error) {
	updates := map[string]any{
		"refund_status": status,
		"updated_at":    time.Now().UTC(),
	}
	if reference != nil {
		updates["refund_reference"] = *reference
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND refund_status = ?", orderID, enums.RefundStatusRequested).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) setOnce(ctx context.Context, orderID uuid.UUID, column, value string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND "+column+" IS NULL", orderID).
		Updates(map[string]any{
			column:       value,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) withLines(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}
