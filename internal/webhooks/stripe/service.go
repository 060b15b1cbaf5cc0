package stripewebhook

import (
	"context"
	"encoding/json"
	"io"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/preorder-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
	"github.com/angelmondragon/preorder-backend/pkg/metrics"
)

const (
	outcomeIgnored      = "ignored"
	outcomeNotCaptured  = "not_captured"
	outcomeNotFound     = "not_found"
	outcomeInvalidState = "invalid_state"
	outcomeFailed       = "failed"
	outcomeMalformed    = "malformed"
	outcomeWrongMode    = "wrong_mode"
)

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, input orders.ConfirmPaymentInput) (orders.ConfirmOutcome, error)
}

type ServiceParams struct {
	Orders  paymentConfirmer
	Metrics *metrics.OrderMetrics
	Logger  *logger.Logger
	// Livemode is the mode events must carry; test-mode deployments drop live events and vice versa.
	Livemode bool
}

// Service translates verified Stripe capture events into lifecycle confirmations.
type Service struct {
	orders   paymentConfirmer
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	livemode bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "stripe-webhook", Output: io.Discard})
	}
	return &Service{
		orders:   params.Orders,
		metrics:  params.Metrics,
		logg:     logg,
		livemode: params.Livemode,
	}, nil
}

// HandleEvent applies a capture event. Only dependency failures are returned so
// the caller can release the event id and let Stripe retry. Payloads that can
// never succeed are logged and acknowledged.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": eventType,
	})

	if event.Livemode != s.livemode {
		s.metrics.IncWebhookEvent(eventType, outcomeWrongMode)
		s.logg.Warn(s.logg.WithField(ctx, "livemode", event.Livemode), "webhook.stripe.wrong_mode")
		return nil
	}

	input, handled, err := captureFromEvent(event)
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, outcomeMalformed)
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook.stripe.malformed")
		return nil
	}
	if !handled {
		outcome := outcomeIgnored
		if input.ExternalOrderID != "" {
			outcome = outcomeNotCaptured
		}
		s.metrics.IncWebhookEvent(eventType, outcome)
		s.logg.Debug(ctx, "webhook.stripe.ignored")
		return nil
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"external_order_id":   input.ExternalOrderID,
		"external_payment_id": input.ExternalPaymentID,
	})
	outcome, err := s.orders.ConfirmPayment(ctx, input)
	switch {
	case err == nil:
		s.metrics.IncWebhookEvent(eventType, string(outcome))
		s.logg.Info(s.logg.WithField(ctx, "outcome", string(outcome)), "webhook.confirm.applied")
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.metrics.IncWebhookEvent(eventType, outcomeNotFound)
		s.logg.Warn(ctx, "webhook.confirm.not_found")
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		s.metrics.IncWebhookEvent(eventType, outcomeInvalidState)
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook.confirm.rejected")
		return nil
	default:
		s.metrics.IncWebhookEvent(eventType, outcomeFailed)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
		}
		s.logg.Error(ctx, "webhook.confirm.failed", err)
		return err
	}
}

// captureFromEvent extracts the intent and payment ids of a captured payment.
// handled is false for event types and states that carry no capture.
func captureFromEvent(event *stripe.Event) (orders.ConfirmPaymentInput, bool, error) {
	input := orders.ConfirmPaymentInput{Signature: event.ID}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return input, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		input.ExternalOrderID = intent.ID
		input.ExternalPaymentID = intent.ID
		if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
			input.ExternalPaymentID = intent.LatestCharge.ID
		}
		return input, input.ExternalOrderID != "", nil
	case stripe.EventTypeChargeSucceeded, stripe.EventTypeChargeCaptured:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return input, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		if charge.PaymentIntent != nil {
			input.ExternalOrderID = charge.PaymentIntent.ID
		}
		input.ExternalPaymentID = charge.ID
		if !charge.Captured || input.ExternalOrderID == "" || charge.ID == "" {
			return input, false, nil
		}
		return input, true, nil
	default:
		return input, false, nil
	}
}
