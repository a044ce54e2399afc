package lineapi

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken     = errors.New("lineapi: channel access token is required")
	ErrNoMessages       = errors.New("lineapi: at least one message is required")
	ErrTooManyMessages  = errors.New("lineapi: at most 5 messages per request")
	ErrMissingRecipient = errors.New("lineapi: reply token or recipient is required")
	ErrCircuitOpen      = errors.New("lineapi: circuit breaker is open")
	ErrRequestFailed    = errors.New("lineapi: request failed")
	ErrTimeout          = errors.New("lineapi: request timeout")
)

// APIError is a non-2xx response from the Messaging API.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lineapi: status %d: %s (request id %s)", e.StatusCode, e.Message, e.RequestID)
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsInvalidReplyToken reports whether err is the 400 LINE returns for an
// expired or already used reply token.
func IsInvalidReplyToken(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 400 && apiErr.Message == "Invalid reply token"
}
