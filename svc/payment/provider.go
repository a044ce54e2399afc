package payment

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider is the subset of the Stripe API the adapter uses.
// It exists so tests can replace the SDK.
type StripeProvider interface {
	GetSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CancelSubscription(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	CreateSubscriptionItem(params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	UpdateSubscriptionItem(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	DeleteSubscriptionItem(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	CreateInvoiceItem(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
}

// DefaultStripeProvider implements StripeProvider with the Stripe SDK.
// It owns its own API client so the global stripe.Key is never touched.
type DefaultStripeProvider struct {
	api *client.API
}

// NewDefaultStripeProvider builds an SDK client. SDK-level network retries
// are disabled: a failed call is reported to the caller instead.
func NewDefaultStripeProvider(secretKey string, httpClient *http.Client, log *slog.Logger) *DefaultStripeProvider {
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     leveledLogger{log: log},
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &DefaultStripeProvider{api: client.New(secretKey, backends)}
}

func (p *DefaultStripeProvider) GetSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return p.api.Subscriptions.Get(id, params)
}

func (p *DefaultStripeProvider) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return p.api.Subscriptions.Update(id, params)
}

func (p *DefaultStripeProvider) CancelSubscription(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	return p.api.Subscriptions.Cancel(id, params)
}

func (p *DefaultStripeProvider) CreateSubscriptionItem(params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	return p.api.SubscriptionItems.New(params)
}

func (p *DefaultStripeProvider) UpdateSubscriptionItem(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	return p.api.SubscriptionItems.Update(id, params)
}

func (p *DefaultStripeProvider) DeleteSubscriptionItem(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	return p.api.SubscriptionItems.Del(id, params)
}

func (p *DefaultStripeProvider) CreateInvoiceItem(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error) {
	return p.api.InvoiceItems.New(params)
}

// leveledLogger routes SDK diagnostics into slog.
type leveledLogger struct {
	log *slog.Logger
}

func (l leveledLogger) Debugf(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l leveledLogger) Infof(format string, v ...any)  { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l leveledLogger) Warnf(format string, v ...any)  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l leveledLogger) Errorf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }
