package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/billing-backend/api/middleware"
	"github.com/angelmondragon/billing-backend/api/responses"
	"github.com/angelmondragon/billing-backend/api/validators"
	"github.com/angelmondragon/billing-backend/internal/subscriptions"
	"github.com/angelmondragon/billing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/logger"
)

// SubscriptionService applies caller actions to an owned subscription.
type SubscriptionService interface {
	Apply(ctx context.Context, subscriberID uuid.UUID, input subscriptions.ActionInput) (*subscriptions.ActionResult, error)
}

type subscriptionRequest struct {
	Action         string `json:"action" validate:"required"`
	SubscriptionID string `json:"subscriptionId" validate:"required,max=255"`
	NewPriceID     string `json:"newPriceId,omitempty" validate:"max=255"`
}

type subscriptionUpdateResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscriptionId"`
	PriceID        string `json:"priceId"`
	Status         string `json:"status"`
}

type subscriptionCancelResponse struct {
	Success           bool       `json:"success"`
	SubscriptionID    string     `json:"subscriptionId"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd"`
}

type subscriptionReactivateResponse struct {
	Success           bool   `json:"success"`
	SubscriptionID    string `json:"subscriptionId"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
}

// Subscription handles update, cancel and reactivate requests.
func Subscription(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		subscriber, ok := middleware.SubscriberFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "subscriber missing from context"))
			return
		}

		var payload subscriptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithSubscriptionID(ctx, payload.SubscriptionID)
		}

		result, err := svc.Apply(ctx, subscriber.ID, subscriptions.ActionInput{
			Action:         payload.Action,
			SubscriptionID: payload.SubscriptionID,
			NewPriceID:     payload.NewPriceID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch result.Action {
		case enums.SubscriptionActionUpdate:
			responses.WriteSuccess(w, subscriptionUpdateResponse{
				Success:        true,
				SubscriptionID: result.SubscriptionID,
				PriceID:        result.PriceID,
				Status:         string(result.Status),
			})
		case enums.SubscriptionActionCancel:
			responses.WriteSuccess(w, subscriptionCancelResponse{
				Success:           true,
				SubscriptionID:    result.SubscriptionID,
				CancelAtPeriodEnd: result.CancelAtPeriodEnd,
				CurrentPeriodEnd:  result.CurrentPeriodEnd,
			})
		default:
			responses.WriteSuccess(w, subscriptionReactivateResponse{
				Success:           true,
				SubscriptionID:    result.SubscriptionID,
				CancelAtPeriodEnd: result.CancelAtPeriodEnd,
			})
		}
	}
}
