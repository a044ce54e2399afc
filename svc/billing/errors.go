package billing

import "errors"

// Kind classifies failures for user-facing handling.
type Kind string

const (
	KindNotRegistered             Kind = "NOT_REGISTERED"
	KindSubscriptionInactive      Kind = "SUBSCRIPTION_INACTIVE"
	KindInvalidSelection          Kind = "INVALID_SELECTION"
	KindPaymentGatewayUnavailable Kind = "PAYMENT_GATEWAY_UNAVAILABLE"
	KindDriftDetected             Kind = "DRIFT_DETECTED"
	KindSystemError               Kind = "SYSTEM_ERROR"
)

func (k Kind) String() string { return string(k) }

var (
	ErrNotRegistered             = errors.New("company is not registered")
	ErrSubscriptionInactive      = errors.New("subscription is not active")
	ErrInvalidSelection          = errors.New("invalid selection")
	ErrPaymentGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrDriftDetected             = errors.New("local and payment provider billing state differ")
	ErrSystem                    = errors.New("system error")
)

var (
	ErrCompanyNotFound      = errors.New("company not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrContentNotFound      = errors.New("content item not found")
	ErrContentAlreadyActive = errors.New("content type is already active")
	ErrUnknownContentType   = errors.New("unknown content type")
	ErrEmailAlreadyLinked   = errors.New("email is already linked to another chat user")
	ErrStateConflict        = errors.New("conversation state was modified concurrently")
)

// kinds is checked in order; the first matching sentinel decides the kind.
var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotRegistered, KindNotRegistered},
	{ErrCompanyNotFound, KindNotRegistered},
	{ErrSubscriptionInactive, KindSubscriptionInactive},
	{ErrSubscriptionNotFound, KindSubscriptionInactive},
	{ErrInvalidSelection, KindInvalidSelection},
	{ErrContentAlreadyActive, KindInvalidSelection},
	{ErrUnknownContentType, KindInvalidSelection},
	{ErrContentNotFound, KindInvalidSelection},
	{ErrPaymentGatewayUnavailable, KindPaymentGatewayUnavailable},
	{ErrDriftDetected, KindDriftDetected},
}

// KindOf classifies err. Unrecognised errors are SYSTEM_ERROR; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindSystemError
}
