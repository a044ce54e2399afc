package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"

	"github.com/dmitrymomot/linebilling/svc/billing"
)

var (
	ErrTimeout     = errors.New("payment: request timeout")
	ErrRateLimited = errors.New("payment: rate limited")
	ErrRejected    = errors.New("payment: request rejected by provider")
	ErrNotFound    = errors.New("payment: resource not found")
)

// wrapError maps a provider failure to the billing taxonomy. Every failure is
// PAYMENT_GATEWAY_UNAVAILABLE for callers; the extra sentinel tells them apart.
func wrapError(op string, err error) error {
	cause := fmt.Errorf("payment: %s: %w", op, err)

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(billing.ErrPaymentGatewayUnavailable, ErrTimeout, cause)
	}

	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch {
		case serr.HTTPStatusCode == http.StatusTooManyRequests:
			return errors.Join(billing.ErrPaymentGatewayUnavailable, ErrRateLimited, cause)
		case serr.HTTPStatusCode == http.StatusNotFound:
			return errors.Join(billing.ErrPaymentGatewayUnavailable, ErrNotFound, cause)
		case serr.HTTPStatusCode >= 400 && serr.HTTPStatusCode < 500:
			return errors.Join(billing.ErrPaymentGatewayUnavailable, ErrRejected, cause)
		}
	}
	return errors.Join(billing.ErrPaymentGatewayUnavailable, cause)
}
