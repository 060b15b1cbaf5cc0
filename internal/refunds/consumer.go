package refunds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/angelmondragon/preorder-backend/internal/orders"
	"github.com/angelmondragon/preorder-backend/internal/payments"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
	"github.com/angelmondragon/preorder-backend/pkg/outbox"
	"github.com/angelmondragon/preorder-backend/pkg/outbox/payloads"
)

const consumerName = "refunds"

type refundGateway interface {
	Refund(ctx context.Context, req payments.RefundRequest) (*payments.Refund, error)
}

type outcomeRecorder interface {
	RecordRefundOutcome(ctx context.Context, input orders.RefundOutcomeInput) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Consumer returns captured payments for cancelled orders.
type Consumer struct {
	gateway refundGateway
	orders  outcomeRecorder
	manager idempotencyChecker
	logg    *logger.Logger
}

func NewConsumer(gateway refundGateway, recorder outcomeRecorder, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("refund outcome recorder required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		gateway: gateway,
		orders:  recorder,
		manager: manager,
		logg:    logg,
	}, nil
}

// Process handles one outbox envelope. A returned error means the message should be redelivered.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": string(eventType),
	})

	if eventType != enums.EventOrderRefundRequested {
		c.logg.Debug(logCtx, "refund.event.skipped")
		return nil
	}
	eventID := strings.TrimSpace(envelope.EventID)
	if eventID == "" {
		c.logg.Warn(logCtx, "refund.event.missing_id")
		return nil
	}

	var event payloads.OrderRefundRequestedEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		c.logg.Error(logCtx, "refund.event.invalid", err)
		return nil
	}
	if event.ExternalPaymentID == "" {
		c.logg.Warn(logCtx, "refund.event.missing_payment")
		return nil
	}
	logCtx = c.logg.WithOrderID(logCtx, event.OrderID.String())

	already, err := c.manager.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "refund.event.duplicate")
		return nil
	}

	refund, err := c.gateway.Refund(logCtx, payments.RefundRequest{
		OrderID:           event.OrderID,
		ExternalPaymentID: event.ExternalPaymentID,
		AmountMinor:       event.AmountMinor,
	})
	if err != nil {
		if !payments.IsPermanent(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "refund.gateway.retry")
			return c.release(logCtx, eventID, err)
		}
		c.logg.Error(logCtx, "refund.gateway.rejected", err)
		if recordErr := c.orders.RecordRefundOutcome(logCtx, orders.RefundOutcomeInput{OrderID: event.OrderID}); recordErr != nil {
			return c.release(logCtx, eventID, recordErr)
		}
		return nil
	}

	outcome := orders.RefundOutcomeInput{
		OrderID:   event.OrderID,
		Succeeded: refund.Succeeded,
		Reference: refund.ID,
	}
	if err := c.orders.RecordRefundOutcome(logCtx, outcome); err != nil {
		return c.release(logCtx, eventID, err)
	}
	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"refund_id":     refund.ID,
		"refund_status": refund.Status,
	}), "refund.processed")
	return nil
}

// release clears the processed mark so the redelivered message is attempted again.
func (c *Consumer) release(ctx context.Context, eventID string, cause error) error {
	err := cause
	if delErr := c.manager.Delete(ctx, consumerName, eventID); delErr != nil {
		err = multierr.Append(err, fmt.Errorf("release idempotency key: %w", delErr))
	}
	return err
}
