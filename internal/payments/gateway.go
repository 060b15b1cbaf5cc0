package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
	"github.com/angelmondragon/preorder-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/preorder-backend/pkg/stripe"
)

// IntentRequest describes the charge the customer is about to authorize.
type IntentRequest struct {
	OrderID     uuid.UUID
	AmountMinor int64
	Currency    string
}

// Intent is the gateway-side payment intent handed back to the client widget.
type Intent struct {
	ExternalID   string `json:"external_id"`
	ClientSecret string `json:"client_secret"`
	AmountMinor  int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// RefundRequest identifies a captured payment that must be returned in full.
type RefundRequest struct {
	OrderID           uuid.UUID
	ExternalPaymentID string
	AmountMinor       int64
}

// Refund is the gateway acknowledgement of a refund.
type Refund struct {
	ID        string
	Succeeded bool
	Status    string
}

// Gateway is the narrow payment provider surface the order core depends on.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, externalID string) (*Intent, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	PublishableKey() string
}

// IntentIdempotencyKey is the provider idempotency key for an order's intent.
func IntentIdempotencyKey(orderID uuid.UUID) string {
	return "order-intent:" + orderID.String()
}

// RefundIdempotencyKey is the provider idempotency key for an order's refund.
func RefundIdempotencyKey(orderID uuid.UUID) string {
	return "order-refund:" + orderID.String()
}

// IsPermanent reports whether a gateway failure will not succeed on retry.
func IsPermanent(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	status := stripeErr.HTTPStatusCode
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}

// StripeGateway implements Gateway on top of Stripe PaymentIntents and Refunds.
type StripeGateway struct {
	api            stripeResources
	publishableKey string
	metrics        *metrics.OrderMetrics
	logg           *logger.Logger
}

// NewStripeGateway builds the Stripe-backed gateway. The secret key stays inside pkg/stripe.
func NewStripeGateway(client *pkgstripe.Client, m *metrics.OrderMetrics, logg *logger.Logger) (*StripeGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return newStripeGateway(stripeResourceClient{}, client.PublishableKey(), m, logg), nil
}

func newStripeGateway(api stripeResources, publishableKey string, m *metrics.OrderMetrics, logg *logger.Logger) *StripeGateway {
	return &StripeGateway{
		api:            api,
		publishableKey: publishableKey,
		metrics:        m,
		logg:           logg,
	}
}

func (g *StripeGateway) PublishableKey() string {
	return g.publishableKey
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(currency),
		Description: stripe.String("Pre-order " + req.OrderID.String()),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", req.OrderID.String())
	params.AddMetadata("receipt", req.OrderID.String())
	params.SetIdempotencyKey(IntentIdempotencyKey(req.OrderID))

	started := time.Now()
	pi, err := g.api.NewPaymentIntent(ctx, params)
	g.metrics.ObserveGatewayCall("create_intent", err, time.Since(started))
	if err != nil {
		g.logFailure(ctx, "payments.intent.failed", req.OrderID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "create payment intent")
	}

	return intentFromStripe(pi), nil
}

// RetrieveIntent re-reads an existing intent so its client secret can be handed out again.
func (g *StripeGateway) RetrieveIntent(ctx context.Context, externalID string) (*Intent, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external intent id required")
	}

	started := time.Now()
	pi, err := g.api.GetPaymentIntent(ctx, externalID, &stripe.PaymentIntentParams{})
	g.metrics.ObserveGatewayCall("retrieve_intent", err, time.Since(started))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "retrieve payment intent")
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if req.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	paymentID := strings.TrimSpace(req.ExternalPaymentID)
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment id required")
	}

	params := &stripe.RefundParams{
		Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if strings.HasPrefix(paymentID, "pi_") {
		params.PaymentIntent = stripe.String(paymentID)
	} else {
		params.Charge = stripe.String(paymentID)
	}
	if req.AmountMinor > 0 {
		params.Amount = stripe.Int64(req.AmountMinor)
	}
	params.AddMetadata("order_id", req.OrderID.String())
	params.SetIdempotencyKey(RefundIdempotencyKey(req.OrderID))

	started := time.Now()
	rf, err := g.api.NewRefund(ctx, params)
	g.metrics.ObserveGatewayCall("refund", err, time.Since(started))
	if err != nil {
		g.logFailure(ctx, "payments.refund.failed", req.OrderID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "create refund")
	}

	status := string(rf.Status)
	return &Refund{
		ID:        rf.ID,
		Status:    status,
		Succeeded: rf.Status == stripe.RefundStatusSucceeded || rf.Status == stripe.RefundStatusPending,
	}, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ExternalID:   pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
	}
}

func (g *StripeGateway) logFailure(ctx context.Context, msg string, orderID uuid.UUID, err error) {
	if g.logg == nil {
		return
	}
	ctx = g.logg.WithFields(ctx, map[string]any{
		"order_id":  orderID.String(),
		"permanent": IsPermanent(err),
	})
	g.logg.Error(ctx, msg, err)
}
