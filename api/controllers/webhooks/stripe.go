package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/billing-backend/api/responses"
	stripewebhook "github.com/angelmondragon/billing-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
	"github.com/angelmondragon/billing-backend/pkg/logger"
	"github.com/angelmondragon/billing-backend/pkg/metrics"
	"github.com/angelmondragon/billing-backend/pkg/types"
)

const signatureHeader = "Stripe-Signature"

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error)
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhookParams groups the collaborators of the Stripe webhook endpoint.
type StripeWebhookParams struct {
	Service      StripeWebhookService
	Client       stripeClient
	Guard        stripeWebhookGuard
	Metrics      *metrics.WebhookMetrics
	Logger       *logger.Logger
	MaxBodyBytes int64
}

// StripeWebhook verifies and reconciles Stripe subscription lifecycle events.
// Every verified event is acknowledged with 200; failures are logged and the
// idempotency claim is released so a resend can retry.
func StripeWebhook(params StripeWebhookParams) http.HandlerFunc {
	svc, client, guard, logg := params.Service, params.Client, params.Guard, params.Logger
	maxBytes := params.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 65536
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(signatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "verify signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithEvent(ctx, event.ID, string(event.Type))
		}

		claimed := false
		if guard != nil {
			duplicate, err := guard.Claim(ctx, event.ID)
			switch {
			case err != nil:
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe webhook idempotency check failed")
				}
			case duplicate:
				params.Metrics.Observe(string(event.Type), string(stripewebhook.OutcomeDuplicate), 0)
				if logg != nil {
					logg.Info(ctx, "stripe webhook duplicate acknowledged")
				}
				responses.WriteSuccess(w, types.WebhookAck{Received: true})
				return
			default:
				claimed = true
			}
		}

		if _, err := svc.HandleEvent(ctx, &event); err != nil {
			if logg != nil {
				logg.Error(logg.WithFields(ctx, map[string]any{
					"error_chain": pkgerrors.Dump(err).Chain,
				}), "stripe webhook handling failed", err)
			}
			if claimed {
				if relErr := guard.Release(context.WithoutCancel(ctx), event.ID); relErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "error", relErr.Error()), "stripe webhook idempotency release failed")
				}
			}
			responses.WriteSuccess(w, types.WebhookAck{Received: true})
			return
		}

		if claimed {
			if err := guard.Complete(context.WithoutCancel(ctx), event.ID); err != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe webhook idempotency completion failed")
			}
		}
		responses.WriteSuccess(w, types.WebhookAck{Received: true})
	}
}
