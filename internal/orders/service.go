package orders

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/preorder-backend/internal/payments"
	"github.com/angelmondragon/preorder-backend/internal/realtime"
	"github.com/angelmondragon/preorder-backend/pkg/config"
	"github.com/angelmondragon/preorder-backend/pkg/db"
	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
	"github.com/angelmondragon/preorder-backend/pkg/metrics"
	"github.com/angelmondragon/preorder-backend/pkg/outbox"
	"github.com/angelmondragon/preorder-backend/pkg/outbox/payloads"
)

const (
	triggerCreate   = "create"
	triggerPayment  = "payment"
	triggerOperator = "operator"
	triggerCustomer = "customer"
)

// Service is the order lifecycle engine.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*PaymentIntentView, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (ConfirmOutcome, error)
	SetStatus(ctx context.Context, input SetStatusInput) (*OrderView, error)
	Cancel(ctx context.Context, orderID, actorID uuid.UUID) (*OrderView, error)
	Reject(ctx context.Context, input RejectInput) (*OrderView, error)
	GetOrder(ctx context.Context, orderID, actorID uuid.UUID) (*OrderView, error)
	ListMyOrders(ctx context.Context, customerID uuid.UUID) ([]OrderView, error)
	ListRestaurantOrders(ctx context.Context, restaurantID, actorID uuid.UUID) ([]OrderView, error)
	RecordRefundOutcome(ctx context.Context, input RefundOutcomeInput) error
}

// ServiceParams bundles the dependencies required to build the lifecycle engine.
type ServiceParams struct {
	Repo     Repository
	TxRunner txRunner
	Outbox   outboxEmitter
	Catalog  catalog
	Users    userNames
	Gateway  paymentGateway
	Notifier realtime.Notifier
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Config   config.OrdersConfig
	Clock    func() time.Time
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       outboxEmitter
	catalog      catalog
	users        userNames
	gateway      paymentGateway
	notifier     realtime.Notifier
	metrics      *metrics.OrderMetrics
	logg         *logger.Logger
	location     *time.Location
	timezone     string
	cancelWindow time.Duration
	currency     string
	now          func() time.Time
}

// NewService builds the lifecycle engine with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user names lookup required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("realtime notifier required")
	}

	location, err := params.Config.Location()
	if err != nil {
		return nil, err
	}
	window := params.Config.CancelWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Config.Currency))
	if currency == "" {
		currency = "INR"
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "orders", Output: io.Discard})
	}

	return &service{
		repo:         params.Repo,
		tx:           params.TxRunner,
		outbox:       params.Outbox,
		catalog:      params.Catalog,
		users:        params.Users,
		gateway:      params.Gateway,
		notifier:     params.Notifier,
		metrics:      params.Metrics,
		logg:         logg,
		location:     location,
		timezone:     location.String(),
		cancelWindow: window,
		currency:     currency,
		now:          clock,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	lines, err := mergeCartLines(input.Lines)
	if err != nil {
		return nil, err
	}
	eta := strings.TrimSpace(input.ETA)
	if eta == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "eta is required")
	}
	if len(eta) > maxETALength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "eta must be at most %d characters", maxETALength)
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.MenuItemID)
	}
	items, err := s.catalog.ResolveMenuItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "menu items not found: %s", strings.Join(missing, ", "))
	}

	var unavailable []string
	var unavailableIDs []uuid.UUID
	for _, id := range ids {
		if item := items[id]; !item.IsAvailable {
			unavailable = append(unavailable, item.Name)
			unavailableIDs = append(unavailableIDs, id)
		}
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "menu item unavailable: %s", strings.Join(unavailable, ", ")).
			WithDetails(map[string]any{"menu_item_ids": unavailableIDs})
	}

	restaurantID := items[ids[0]].RestaurantID
	for _, id := range ids[1:] {
		if items[id].RestaurantID != restaurantID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "mixed restaurant cart")
		}
	}

	restaurant, err := s.catalog.Restaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.ensureOpen(ctx, restaurant, now); err != nil {
		return nil, err
	}

	orderID := uuid.New()
	total := decimal.Zero
	orderLines := make([]models.OrderLine, 0, len(lines))
	for i, line := range lines {
		item := items[line.MenuItemID]
		orderLine := models.OrderLine{
			ID:         uuid.New(),
			OrderID:    orderID,
			Position:   i,
			MenuItemID: item.ID,
			Quantity:   line.Quantity,
			UnitPrice:  item.Price,
		}
		total = total.Add(orderLine.Subtotal())
		orderLines = append(orderLines, orderLine)
	}
	total = total.Round(2)

	var warnings []Warning
	if input.ClientTotal != nil && !input.ClientTotal.Equal(total) {
		warnings = append(warnings, Warning{
			Code:        WarningPriceMismatch,
			Message:     "prices changed since the cart was built; the order uses current prices",
			ClientTotal: *input.ClientTotal,
			ServerTotal: total,
		})
	}

	order := &models.Order{
		ID:           orderID,
		CustomerID:   input.CustomerID,
		RestaurantID: restaurantID,
		Status:       enums.OrderStatusPending,
		TotalAmount:  total,
		Currency:     s.currency,
		ETA:          eta,
		RefundStatus: enums.RefundStatusNone,
		Lines:        orderLines,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		return s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         customerActor(order.CustomerID),
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:      order.ID,
				CustomerID:   order.CustomerID,
				RestaurantID: order.RestaurantID,
				TotalAmount:  order.TotalAmount,
				Currency:     order.Currency,
				LineCount:    len(order.Lines),
				ETA:          order.ETA,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition("none", string(enums.OrderStatusPending), triggerCreate)
	view := newOrderView(order, s.bestEffortNames(ctx, []models.Order{*order}))
	s.publish(ctx, realtime.EventNewOrder, view, realtime.RestaurantTopic(order.RestaurantID))

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":      order.ID.String(),
		"restaurant_id": order.RestaurantID.String(),
		"total":         order.TotalAmount.StringFixed(2),
		"warnings":      len(warnings),
	})
	s.logg.Info(logCtx, "order.created")

	return &CreateOrderResult{Order: view, Warnings: warnings}, nil
}

func (s *service) InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*PaymentIntentView, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.loadOrder(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != input.ActorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the ordering customer can pay for this order")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "payment can only be initiated for pending orders; order is %s", order.Status)
	}

	amount := minorUnits(order.TotalAmount)
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if input.ClientAmount != nil && *input.ClientAmount != amount {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"client_amount": *input.ClientAmount,
			"server_amount": amount,
		}), "payment.amount_mismatch")
	}

	if existing := order.PaymentReference.ExternalOrderID; existing != nil && *existing != "" {
		return s.existingIntent(ctx, order, *existing)
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		OrderID:     order.ID,
		AmountMinor: amount,
		Currency:    order.Currency,
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "create payment intent")
	}

	stored, err := s.repo.SetExternalOrderID(ctx, order.ID, intent.ExternalID)
	if db.IsUniqueViolation(err, "") {
		s.logg.Error(s.logg.WithField(logCtx, "external_order_id", intent.ExternalID), "payment.intent.duplicate", err)
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "payment intent %s is already attached to another order", intent.ExternalID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent id")
	}
	if !stored {
		fresh, err := s.loadOrder(ctx, s.repo, order.ID)
		if err != nil {
			return nil, err
		}
		if winner := fresh.PaymentReference.ExternalOrderID; winner != nil && *winner != intent.ExternalID {
			return s.existingIntent(ctx, fresh, *winner)
		}
	}

	s.logg.Info(s.logg.WithField(logCtx, "external_order_id", intent.ExternalID), "payment.intent.created")
	return &PaymentIntentView{
		ExternalID:   intent.ExternalID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     order.Currency,
		OrderID:      order.ID,
	}, nil
}

func (s *service) existingIntent(ctx context.Context, order *models.Order, externalID string) (*PaymentIntentView, error) {
	view := &PaymentIntentView{
		ExternalID: externalID,
		Amount:     minorUnits(order.TotalAmount),
		Currency:   order.Currency,
		OrderID:    order.ID,
	}
	intent, err := s.gateway.RetrieveIntent(ctx, externalID)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "retrieve payment intent")
	}
	view.ClientSecret = intent.ClientSecret
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":          order.ID.String(),
		"external_order_id": externalID,
	}), "payment.intent.reused")
	return view, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (ConfirmOutcome, error) {
	input.ExternalOrderID = strings.TrimSpace(input.ExternalOrderID)
	input.ExternalPaymentID = strings.TrimSpace(input.ExternalPaymentID)
	if input.ExternalOrderID == "" || input.ExternalPaymentID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "external order and payment ids are required")
	}

	order, err := s.repo.FindByExternalOrderID(ctx, input.ExternalOrderID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", pkgerrors.Newf(pkgerrors.CodeNotFound, "no order for payment intent %s", input.ExternalOrderID)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment intent")
	}

	if order.Status == enums.OrderStatusPending {
		return s.confirmPending(ctx, order, input)
	}
	return s.settleCapture(ctx, order, input)
}

// settleCapture routes a capture for an order that already left pending.
func (s *service) settleCapture(ctx context.Context, order *models.Order, input ConfirmPaymentInput) (ConfirmOutcome, error) {
	switch {
	case order.Status == enums.OrderStatusCancelled:
		return s.refundLateCapture(ctx, order, input)
	case order.Status.IsConfirmedOrLater():
		return s.recordLateCapture(ctx, order, input)
	default:
		return "", pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot settle payment for order in status %s", order.Status)
	}
}

func (s *service) confirmPending(ctx context.Context, order *models.Order, input ConfirmPaymentInput) (ConfirmOutcome, error) {
	now := s.now().UTC()
	changed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, TransitionParams{
			OrderID: order.ID,
			From:    []enums.OrderStatus{enums.OrderStatusPending},
			To:      enums.OrderStatusConfirmed,
			At:      now,
			Updates: map[string]any{
				"payment_external_payment_id": gorm.Expr("COALESCE(payment_external_payment_id, ?)", input.ExternalPaymentID),
				"payment_signature":           gorm.Expr("COALESCE(payment_signature, ?)", nullableString(input.Signature)),
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
		}
		if !ok {
			return nil
		}
		changed = true
		return s.emitStatusChanged(ctx, tx, order, enums.OrderStatusPending, enums.OrderStatusConfirmed, triggerPayment, nil, now)
	})
	if err != nil {
		return "", err
	}

	if !changed {
		fresh, err := s.loadOrder(ctx, s.repo, order.ID)
		if err != nil {
			return "", err
		}
		if fresh.Status == enums.OrderStatusPending {
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		return s.settleCapture(ctx, fresh, input)
	}

	order.Status = enums.OrderStatusConfirmed
	order.UpdatedAt = now
	if order.PaymentReference.ExternalPaymentID == nil {
		paymentID := input.ExternalPaymentID
		order.PaymentReference.ExternalPaymentID = &paymentID
	}

	s.metrics.IncTransition(string(enums.OrderStatusPending), string(enums.OrderStatusConfirmed), triggerPayment)
	s.publishStatus(ctx, order, enums.OrderStatusPending)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":            order.ID.String(),
		"external_payment_id": input.ExternalPaymentID,
	}), "order.payment.confirmed")
	return ConfirmOutcomeConfirmed, nil
}

// recordLateCapture handles a capture for an order an operator already advanced.
func (s *service) recordLateCapture(ctx context.Context, order *models.Order, input ConfirmPaymentInput) (ConfirmOutcome, error) {
	if order.HasCapturedPayment() {
		return ConfirmOutcomeAlreadyApplied, nil
	}
	recorded, err := s.repo.RecordPayment(ctx, order.ID, input.ExternalPaymentID, input.Signature)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
	}
	if recorded {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"status":   string(order.Status),
		}), "order.payment.recorded")
	}
	return ConfirmOutcomeAlreadyApplied, nil
}

// refundLateCapture handles a capture that arrived after the order was cancelled.
func (s *service) refundLateCapture(ctx context.Context, order *models.Order, input ConfirmPaymentInput) (ConfirmOutcome, error) {
	requested := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.RecordPayment(ctx, order.ID, input.ExternalPaymentID, input.Signature); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}
		fresh, err := s.loadOrder(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		marked, err := repo.MarkRefundRequested(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund requested")
		}
		if !marked {
			return nil
		}
		requested = true
		return s.emitRefundRequested(ctx, tx, fresh, nil)
	})
	if err != nil {
		return "", err
	}
	if !requested {
		return ConfirmOutcomeAlreadyApplied, nil
	}
	s.metrics.IncRefund("requested")
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"order_id":            order.ID.String(),
		"external_payment_id": input.ExternalPaymentID,
	}), "order.refund.requested_late_capture")
	return ConfirmOutcomeRefundRequested, nil
}

func (s *service) SetStatus(ctx context.Context, input SetStatusInput) (*OrderView, error) {
	order, err := s.loadOwnedByRestaurant(ctx, input.OrderID, input.ActorID, "only the restaurant owner can update this order")
	if err != nil {
		return nil, err
	}

	target, err := enums.ParseOrderStatus(strings.TrimSpace(input.Status))
	if err != nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", input.Status)
	}
	if target == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use reject to cancel an order")
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is already %s", order.Status)
	}
	if order.Status == target {
		return s.view(ctx, order)
	}
	if !order.Status.CanAdvanceTo(target) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", order.Status, target)
	}

	from := order.Status
	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, TransitionParams{
			OrderID: order.ID,
			From:    []enums.OrderStatus{from},
			To:      target,
			At:      now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		return s.emitStatusChanged(ctx, tx, order, from, target, triggerOperator, operatorActor(input.ActorID), now)
	})
	if err != nil {
		return nil, err
	}

	order.Status = target
	order.UpdatedAt = now
	s.metrics.IncTransition(string(from), string(target), triggerOperator)
	s.publishStatus(ctx, order, from)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"from":     string(from),
		"to":       string(target),
	}), "order.status.updated")
	return s.view(ctx, order)
}

func (s *service) Cancel(ctx context.Context, orderID, actorID uuid.UUID) (*OrderView, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the ordering customer can cancel this order")
	}

	now := s.now().UTC()
	if !order.Status.In(enums.WithdrawableOrderStatuses...) || now.Sub(order.CreatedAt) >= s.cancelWindow {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot cancel after %s or once preparation has started", humanWindow(s.cancelWindow))
	}
	return s.withdraw(ctx, order, enums.CancelReasonCustomer, triggerCustomer, customerActor(actorID), now)
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*OrderView, error) {
	order, err := s.loadOwnedByRestaurant(ctx, input.OrderID, input.ActorID, "only the restaurant owner can reject this order")
	if err != nil {
		return nil, err
	}
	if !order.Status.In(enums.WithdrawableOrderStatuses...) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot reject an order that is %s", order.Status)
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"reason":   reason,
		}), "order.reject.reason")
	}
	return s.withdraw(ctx, order, enums.CancelReasonRestaurant, triggerOperator, operatorActor(input.ActorID), s.now().UTC())
}

// withdraw cancels a pending or confirmed order and requests a refund when a payment was captured.
func (s *service) withdraw(ctx context.Context, order *models.Order, reason enums.CancelReason, trigger string, actor *outbox.ActorRef, now time.Time) (*OrderView, error) {
	from := order.Status
	var updated *models.Order
	refundRequested := false

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, TransitionParams{
			OrderID: order.ID,
			From:    enums.WithdrawableOrderStatuses,
			To:      enums.OrderStatusCancelled,
			At:      now,
			Updates: map[string]any{
				"cancel_reason": reason,
				"cancelled_at":  now,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		fresh, err := s.loadOrder(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		fresh.Status = enums.OrderStatusCancelled
		fresh.CancelReason = &reason
		fresh.CancelledAt = &now
		fresh.UpdatedAt = now

		if fresh.HasCapturedPayment() {
			marked, err := repo.MarkRefundRequested(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund requested")
			}
			if marked {
				refundRequested = true
				fresh.RefundStatus = enums.RefundStatusRequested
				if err := s.emitRefundRequested(ctx, tx, fresh, actor); err != nil {
					return err
				}
			}
		}

		updated = fresh
		return s.emitStatusChanged(ctx, tx, fresh, from, enums.OrderStatusCancelled, trigger, actor, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(from), string(enums.OrderStatusCancelled), trigger)
	if refundRequested {
		s.metrics.IncRefund("requested")
	}
	s.publishStatus(ctx, updated, from)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":         updated.ID.String(),
		"from":             string(from),
		"cancel_reason":    string(reason),
		"refund_requested": refundRequested,
	}), "order.cancelled")
	return s.view(ctx, updated)
}

func (s *service) GetOrder(ctx context.Context, orderID, actorID uuid.UUID) (*OrderView, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != actorID {
		restaurant, err := s.catalog.Restaurant(ctx, order.RestaurantID)
		if err != nil {
			return nil, err
		}
		if restaurant.OwnerID != actorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
		}
	}
	return s.view(ctx, order)
}

func (s *service) ListMyOrders(ctx context.Context, customerID uuid.UUID) ([]OrderView, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	orders, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customer orders")
	}
	return s.views(ctx, orders)
}

func (s *service) ListRestaurantOrders(ctx context.Context, restaurantID, actorID uuid.UUID) ([]OrderView, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	restaurant, err := s.catalog.Restaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the restaurant owner can list its orders")
	}
	orders, err := s.repo.ListByRestaurant(ctx, restaurantID, enums.ActiveOrderStatuses)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list restaurant orders")
	}
	return s.views(ctx, orders)
}

func (s *service) RecordRefundOutcome(ctx context.Context, input RefundOutcomeInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	status := enums.RefundOutcome(input.Succeeded)
	var reference *string
	if ref := strings.TrimSpace(input.Reference); ref != "" {
		reference = &ref
	}

	settled, err := s.repo.UpdateRefundOutcome(ctx, input.OrderID, status, reference)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund outcome")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":      input.OrderID.String(),
		"refund_status": string(status),
	})
	if !settled {
		s.logg.Debug(logCtx, "order.refund.already_settled")
		return nil
	}
	s.metrics.IncRefund(string(status))
	if status == enums.RefundStatusFailed {
		s.logg.Warn(logCtx, "order.refund.failed")
	} else {
		s.logg.Info(logCtx, "order.refund.succeeded")
	}

	// The outcome is already stored; a failed reload only costs the dashboard push.
	order, err := s.loadOrder(ctx, s.repo, input.OrderID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "order.refund.publish_skipped")
		return nil
	}
	s.publishStatus(ctx, order, order.Status)
	return nil
}

func (s *service) ensureOpen(ctx context.Context, restaurant *models.Restaurant, now time.Time) error {
	hours, err := parseOperatingHours(restaurant.OpenTime, restaurant.CloseTime)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"restaurant_id": restaurant.ID.String(),
			"error":         err.Error(),
		}), "order.hours.invalid")
		return nil
	}
	if hours == nil || hours.Contains(now.In(s.location)) {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeClosed, "restaurant is closed; open hours %s", hours).
		WithDetails(map[string]any{
			"open":     hours.openRaw,
			"close":    hours.closeRaw,
			"timezone": s.timezone,
		})
}

func (s *service) loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// loadOwnedByRestaurant loads the order and checks ownership before any status logic runs.
func (s *service) loadOwnedByRestaurant(ctx context.Context, orderID, actorID uuid.UUID, denied string) (*models.Order, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	restaurant, err := s.catalog.Restaurant(ctx, order.RestaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, denied)
	}
	return order, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record outbox event")
	}
	return nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from, to enums.OrderStatus, trigger string, actor *outbox.ActorRef, at time.Time) error {
	event := payloads.OrderStatusChangedEvent{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		From:         from,
		To:           to,
		Trigger:      trigger,
		ChangedAt:    at,
	}
	if to == enums.OrderStatusCancelled {
		event.CancelReason = order.CancelReason
	}
	return s.emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    at,
		Data:          event,
	})
}

func (s *service) emitRefundRequested(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef) error {
	if !order.HasCapturedPayment() {
		return pkgerrors.New(pkgerrors.CodeInternal, "refund requested without a captured payment")
	}
	reason := enums.CancelReasonCustomer
	if order.CancelReason != nil {
		reason = *order.CancelReason
	}
	return s.emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefundRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    s.now().UTC(),
		Data: payloads.OrderRefundRequestedEvent{
			OrderID:           order.ID,
			RestaurantID:      order.RestaurantID,
			ExternalPaymentID: *order.PaymentReference.ExternalPaymentID,
			Amount:            order.TotalAmount,
			AmountMinor:       minorUnits(order.TotalAmount),
			Currency:          order.Currency,
			Reason:            reason,
		},
	})
}

func mergeCartLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	merged := make([]CartLine, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.MenuItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id is required")
		}
		if line.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
		if pos, ok := index[line.MenuItemID]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[line.MenuItemID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func customerActor(userID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleCustomer)}
}

func operatorActor(userID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleRestaurant)}
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func humanWindow(window time.Duration) string {
	if window%time.Minute == 0 {
		minutes := int(window / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return window.String()
}
