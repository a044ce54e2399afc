// Package entitlement decides whether a chat user or company may use the
// bot. Any lookup failure denies access.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/svc/billing"
)

// Store is the read side of the persistence gateway the resolver needs.
type Store interface {
	Company(ctx context.Context, id uuid.UUID) (*billing.Company, error)
	CompanyByLineUser(ctx context.Context, lineUserID string) (*billing.Company, error)
	Subscription(ctx context.Context, companyID uuid.UUID) (*billing.MonthlySubscription, error)
}

// Decision is the outcome of an entitlement check. Company and Subscription
// are set whenever they could be loaded, also for denied decisions.
type Decision struct {
	Allowed      bool
	Reason       billing.Kind
	Company      *billing.Company
	Subscription *billing.MonthlySubscription
}

// Status returns the subscription status, or "" when there is none.
func (d Decision) Status() billing.SubscriptionStatus {
	if d.Subscription == nil {
		return ""
	}
	return d.Subscription.Status
}

// Err returns the sentinel matching a denied decision, or nil.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == billing.KindNotRegistered:
		return billing.ErrNotRegistered
	case d.Reason == billing.KindSubscriptionInactive:
		return billing.ErrSubscriptionInactive
	default:
		return billing.ErrSystem
	}
}

// Resolver evaluates entitlement against the local subscription snapshot.
type Resolver struct {
	store Store
	now   func() time.Time
	log   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock replaces the wall clock used for the period-end check.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns a Resolver. It panics if store is nil.
func New(store Store, opts ...Option) *Resolver {
	if store == nil {
		panic("entitlement: store is required")
	}
	r := &Resolver{store: store, now: time.Now, log: logger.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveChatUser checks the company linked to a chat user.
func (r *Resolver) ResolveChatUser(ctx context.Context, chatUserID string) (Decision, error) {
	c, err := r.store.CompanyByLineUser(ctx, chatUserID)
	return r.resolve(ctx, c, err)
}

// ResolveCompany checks a company by id.
func (r *Resolver) ResolveCompany(ctx context.Context, companyID uuid.UUID) (Decision, error) {
	c, err := r.store.Company(ctx, companyID)
	return r.resolve(ctx, c, err)
}

// resolve returns a nil error for every denial it can explain. A non-nil
// error always comes with a denied SYSTEM_ERROR decision.
func (r *Resolver) resolve(ctx context.Context, c *billing.Company, err error) (Decision, error) {
	switch {
	case errors.Is(err, billing.ErrCompanyNotFound):
		return Decision{Reason: billing.KindNotRegistered}, nil
	case err != nil:
		return r.fail(ctx, Decision{}, err)
	}

	d := Decision{Company: c}
	sub, err := r.store.Subscription(ctx, c.ID)
	switch {
	case errors.Is(err, billing.ErrSubscriptionNotFound):
		d.Reason = billing.KindSubscriptionInactive
		return d, nil
	case err != nil:
		return r.fail(ctx, d, err)
	}
	d.Subscription = sub

	if c.Status != billing.CompanyActive || !sub.Status.Entitled() {
		d.Reason = billing.KindSubscriptionInactive
		return d, nil
	}
	if !sub.CurrentPeriodEnd.IsZero() && !r.now().Before(sub.CurrentPeriodEnd) {
		d.Reason = billing.KindSubscriptionInactive
		return d, nil
	}

	d.Allowed = true
	return d, nil
}

func (r *Resolver) fail(ctx context.Context, d Decision, err error) (Decision, error) {
	r.log.ErrorContext(ctx, "entitlement lookup failed", logger.Error(err))
	d.Allowed = false
	d.Reason = billing.KindSystemError
	if !errors.Is(err, billing.ErrSystem) {
		err = errors.Join(billing.ErrSystem, err)
	}
	return d, err
}
