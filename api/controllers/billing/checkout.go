package billing

import (
	"context"
	"net/http"

	"github.com/angelmondragon/billing-backend/api/middleware"
	"github.com/angelmondragon/billing-backend/api/responses"
	"github.com/angelmondragon/billing-backend/api/validators"
	"github.com/angelmondragon/billing-backend/internal/checkout"
	"github.com/angelmondragon/billing-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/logger"
)

// CheckoutService starts a plan for the authenticated subscriber.
type CheckoutService interface {
	Start(ctx context.Context, subscriber auth.Subscriber, input checkout.StartInput) (*checkout.StartResult, error)
}

type checkoutRequest struct {
	PriceID    string `json:"priceId" validate:"max=255"`
	SuccessURL string `json:"successUrl" validate:"max=2048"`
	CancelURL  string `json:"cancelUrl" validate:"max=2048"`
}

type checkoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type checkoutSwapResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscriptionId"`
}

// Checkout opens a hosted checkout session, or swaps the plan of an existing
// entitled subscription in place.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		subscriber, ok := middleware.SubscriberFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "subscriber missing from context"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Start(ctx, subscriber, checkout.StartInput{
			PriceID:    payload.PriceID,
			SuccessURL: payload.SuccessURL,
			CancelURL:  payload.CancelURL,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if result.Swapped {
			responses.WriteSuccess(w, checkoutSwapResponse{Success: true, SubscriptionID: result.SubscriptionID})
			return
		}
		responses.WriteSuccess(w, checkoutSessionResponse{SessionID: result.SessionID, URL: result.URL})
	}
}
