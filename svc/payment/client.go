// Package payment adapts the Stripe API to the billing domain. It never
// persists state; every call reads or mutates the live provider objects.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/svc/billing"
)

// Proration behaviours accepted by line item changes.
const (
	ProrateCreate = "create_prorations"
	ProrateNone   = "none"
)

// Subscription is the live state of a provider subscription.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             billing.SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	Items              []LineItem
}

// LineItem is one recurring item of a subscription.
type LineItem struct {
	ID       string
	PriceID  string
	Nickname string
	Quantity int64
}

// Change carries the options of a mutating line item call.
type Change struct {
	ProrationBehavior string
	IdempotencyKey    string
}

// Period is a billing period.
type Period struct {
	Start time.Time
	End   time.Time
}

// InvoiceItem is a one-off charge attached to the next invoice of a subscription.
type InvoiceItem struct {
	CustomerID     string
	SubscriptionID string
	Amount         billing.Money
	Description    string
	Period         Period
	IdempotencyKey string
}

// Client performs rate-limited, time-bounded Stripe calls.
type Client struct {
	cfg      Config
	provider StripeProvider
	limiter  *rate.Limiter
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient returns a client backed by the Stripe SDK.
func NewClient(cfg Config, opts ...Option) *Client {
	c := newClient(cfg, nil, opts...)
	c.provider = NewDefaultStripeProvider(cfg.SecretKey, &http.Client{Timeout: c.cfg.Timeout}, c.log.With(logger.Component("stripe")))
	return c
}

// NewClientWithProvider returns a client backed by provider.
func NewClientWithProvider(cfg Config, provider StripeProvider, opts ...Option) *Client {
	if provider == nil {
		panic("payment: provider is required")
	}
	return newClient(cfg, provider, opts...)
}

func newClient(cfg Config, provider StripeProvider, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AdditionalPriceID returns the price used for additional content items.
func (c *Client) AdditionalPriceID() string {
	return c.cfg.AdditionalPriceID
}

// IsAdditional reports whether item bills additional content. Items are
// matched by price id; items created by hand in the dashboard are recognised
// by their price nickname.
func (c *Client) IsAdditional(item LineItem) bool {
	if item.PriceID != "" && item.PriceID == c.cfg.AdditionalPriceID {
		return true
	}
	nick := strings.ToLower(item.Nickname)
	return strings.Contains(nick, "追加") || strings.Contains(nick, "additional")
}

// AdditionalItems returns the additional content items of sub.
func (c *Client) AdditionalItems(sub *Subscription) []LineItem {
	var out []LineItem
	for _, it := range sub.Items {
		if c.IsAdditional(it) {
			out = append(out, it)
		}
	}
	return out
}

// call bounds fn by the configured timeout after waiting for a rate token.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return wrapError(op, context.DeadlineExceeded)
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		err = errors.Join(ctx.Err(), err)
	}
	if err != nil {
		c.log.WarnContext(ctx, "stripe call failed",
			logger.Operation(op), logger.Duration(time.Since(start)), logger.Error(err))
		return wrapError(op, err)
	}
	c.log.DebugContext(ctx, "stripe call", logger.Operation(op), logger.Duration(time.Since(start)))
	return nil
}

// GetSubscription fetches the live subscription with its items.
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out *Subscription
	err := c.call(ctx, "get_subscription", func(ctx context.Context) error {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		sub, err := c.provider.GetSubscription(id, params)
		if err != nil {
			return err
		}
		out = toSubscription(sub)
		return nil
	})
	return out, err
}

// CreateLineItem adds a recurring price to the subscription.
func (c *Client) CreateLineItem(ctx context.Context, subscriptionID, priceID string, quantity int64, ch Change) (*LineItem, error) {
	var out *LineItem
	err := c.call(ctx, "create_line_item", func(ctx context.Context) error {
		params := &stripe.SubscriptionItemParams{
			Subscription: stripe.String(subscriptionID),
			Price:        stripe.String(priceID),
			Quantity:     stripe.Int64(quantity),
		}
		applyChange(ctx, &params.Params, &params.ProrationBehavior, ch)
		item, err := c.provider.CreateSubscriptionItem(params)
		if err != nil {
			return err
		}
		li := toLineItem(item)
		out = &li
		return nil
	})
	return out, err
}

// UpdateLineItemQuantity sets the quantity of a subscription item.
func (c *Client) UpdateLineItemQuantity(ctx context.Context, itemID string, quantity int64, ch Change) (*LineItem, error) {
	var out *LineItem
	err := c.call(ctx, "update_line_item", func(ctx context.Context) error {
		params := &stripe.SubscriptionItemParams{Quantity: stripe.Int64(quantity)}
		applyChange(ctx, &params.Params, &params.ProrationBehavior, ch)
		item, err := c.provider.UpdateSubscriptionItem(itemID, params)
		if err != nil {
			return err
		}
		li := toLineItem(item)
		out = &li
		return nil
	})
	return out, err
}

// DeleteLineItem removes a subscription item. Deleting an item that is
// already gone succeeds.
func (c *Client) DeleteLineItem(ctx context.Context, itemID string, ch Change) error {
	err := c.call(ctx, "delete_line_item", func(ctx context.Context) error {
		params := &stripe.SubscriptionItemParams{}
		applyChange(ctx, &params.Params, &params.ProrationBehavior, ch)
		_, err := c.provider.DeleteSubscriptionItem(itemID, params)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// CreateInvoiceItem adds a one-off charge for the given period and returns its id.
func (c *Client) CreateInvoiceItem(ctx context.Context, in InvoiceItem) (string, error) {
	var id string
	err := c.call(ctx, "create_invoice_item", func(ctx context.Context) error {
		params := &stripe.InvoiceItemParams{
			Customer:     stripe.String(in.CustomerID),
			Subscription: stripe.String(in.SubscriptionID),
			Amount:       stripe.Int64(in.Amount.Amount),
			Currency:     stripe.String(in.Amount.Currency),
			Description:  stripe.String(in.Description),
			Period: &stripe.InvoiceItemPeriodParams{
				Start: stripe.Int64(in.Period.Start.Unix()),
				End:   stripe.Int64(in.Period.End.Unix()),
			},
		}
		params.Context = ctx
		if in.IdempotencyKey != "" {
			params.SetIdempotencyKey(in.IdempotencyKey)
		}
		item, err := c.provider.CreateInvoiceItem(params)
		if err != nil {
			return err
		}
		id = item.ID
		return nil
	})
	return id, err
}

// CancelSubscription cancels the subscription immediately, or schedules the
// cancellation for the end of the current period when atPeriodEnd is set.
func (c *Client) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (*Subscription, error) {
	var out *Subscription
	err := c.call(ctx, "cancel_subscription", func(ctx context.Context) error {
		var (
			sub *stripe.Subscription
			err error
		)
		if atPeriodEnd {
			params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
			params.Context = ctx
			sub, err = c.provider.UpdateSubscription(id, params)
		} else {
			params := &stripe.SubscriptionCancelParams{}
			params.Context = ctx
			sub, err = c.provider.CancelSubscription(id, params)
		}
		if err != nil {
			return err
		}
		out = toSubscription(sub)
		return nil
	})
	return out, err
}

func applyChange(ctx context.Context, p *stripe.Params, proration **string, ch Change) {
	p.Context = ctx
	if ch.IdempotencyKey != "" {
		p.SetIdempotencyKey(ch.IdempotencyKey)
	}
	if ch.ProrationBehavior != "" {
		*proration = stripe.String(ch.ProrationBehavior)
	}
}

func toSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                 s.ID,
		Status:             toStatus(s.Status),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CurrentPeriodStart: unix(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unix(s.CurrentPeriodEnd),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, it := range s.Items.Data {
			if it == nil || it.Deleted {
				continue
			}
			out.Items = append(out.Items, toLineItem(it))
		}
	}
	return out
}

func toLineItem(it *stripe.SubscriptionItem) LineItem {
	li := LineItem{ID: it.ID, Quantity: it.Quantity}
	if it.Price != nil {
		li.PriceID = it.Price.ID
		li.Nickname = it.Price.Nickname
	}
	return li
}

// toStatus folds the provider statuses into the four the billing domain knows.
func toStatus(s stripe.SubscriptionStatus) billing.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusTrialing:
		return billing.SubscriptionTrialing
	case stripe.SubscriptionStatusActive:
		return billing.SubscriptionActive
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return billing.SubscriptionCanceled
	default:
		return billing.SubscriptionPastDue
	}
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
