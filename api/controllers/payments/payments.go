package payments

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/preorder-backend/api/middleware"
	"github.com/angelmondragon/preorder-backend/api/responses"
	"github.com/angelmondragon/preorder-backend/api/validators"
	internalorders "github.com/angelmondragon/preorder-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

type intentInitiator interface {
	InitiatePayment(ctx context.Context, input internalorders.InitiatePaymentInput) (*internalorders.PaymentIntentView, error)
}

type publishableKeySource interface {
	PublishableKey() string
}

type createIntentRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	Amount  *int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

// CreateIntent returns the gateway intent for a pending order, creating it on first use.
func CreateIntent(svc intentInitiator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var req createIntentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id"))
			return
		}

		intent, err := svc.InitiatePayment(r.Context(), internalorders.InitiatePaymentInput{
			OrderID:      orderID,
			ActorID:      actorID,
			ClientAmount: req.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// PublishableKey exposes the client-side gateway key.
func PublishableKey(source publishableKeySource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := source.PublishableKey()
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"publishable_key": key})
	}
}
