package stripe

import (
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
)

// IsResourceMissing reports whether Stripe answered with resource_missing.
func IsResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

// ProviderError converts a Stripe failure into a PROVIDER_ERROR carrying the
// provider's message. Typed application errors pass through untouched.
func ProviderError(err error, fallback string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	msg := fallback
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && strings.TrimSpace(stripeErr.Msg) != "" {
		msg = stripeErr.Msg
	}
	return pkgerrors.Wrap(pkgerrors.CodeProvider, err, msg)
}
