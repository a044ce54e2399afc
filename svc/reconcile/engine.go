// Package reconcile keeps the provider subscription of a company in line
// with its active content items.
//
// Local rows are written first, under a per-company lock, and are the source
// of truth for entitlement. Provider calls happen after the commit with no
// lock held. When they fail the result is partial: the local change stands
// and the discrepancy is reported, never hidden.
//
// Every pass sets the additional content line item to the billable count
// (active items minus the free one) instead of incrementing it, so adding,
// cancelling and drift repair are the same idempotent operation.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/payment"
	"github.com/dmitrymomot/linebilling/svc/store"
)

// Store is the persistence gateway used by the engine.
type Store interface {
	Subscription(ctx context.Context, companyID uuid.UUID) (*billing.MonthlySubscription, error)
	SaveSubscription(ctx context.Context, sub billing.MonthlySubscription) error
	SetPendingCharge(ctx context.Context, usageID uuid.UUID, pending bool) error
	MarkUsageCharged(ctx context.Context, usageID uuid.UUID, externalID string, at time.Time) error
	WithCompanyLock(ctx context.Context, companyID uuid.UUID, fn func(store.CompanyTx) error) error
}

// Gateway is the payment provider adapter used by the engine.
type Gateway interface {
	GetSubscription(ctx context.Context, id string) (*payment.Subscription, error)
	CreateLineItem(ctx context.Context, subscriptionID, priceID string, quantity int64, ch payment.Change) (*payment.LineItem, error)
	UpdateLineItemQuantity(ctx context.Context, itemID string, quantity int64, ch payment.Change) (*payment.LineItem, error)
	DeleteLineItem(ctx context.Context, itemID string, ch payment.Change) error
	CreateInvoiceItem(ctx context.Context, in payment.InvoiceItem) (string, error)
	CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (*payment.Subscription, error)
	AdditionalPriceID() string
	AdditionalItems(sub *payment.Subscription) []payment.LineItem
}

var _ Gateway = (*payment.Client)(nil)

// Engine runs the add, cancel and subscription cancel paths.
type Engine struct {
	cfg     Config
	store   Store
	gateway Gateway
	metrics *Metrics
	now     func() time.Time
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the collectors the engine reports to.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock replaces the clock used for cancellation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New returns an Engine. It panics if store or gateway is nil.
func New(cfg Config, st Store, gw Gateway, opts ...Option) *Engine {
	if st == nil {
		panic("reconcile: store is required")
	}
	if gw == nil {
		panic("reconcile: gateway is required")
	}
	e := &Engine{
		cfg:     cfg.withDefaults(),
		store:   st,
		gateway: gw,
		metrics: NewMetrics(nil),
		now:     time.Now,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome is the provider side of a pass.
type Outcome struct {
	// Partial is set when the local change was committed but the provider
	// could not be brought in line. Err explains why.
	Partial bool
	Err     error
	// Drift is set when the provider state did not match the local state
	// before this pass; DriftRepaired when the pass corrected it.
	Drift         bool
	DriftRepaired bool
}

// Success reports whether local and provider state agree after the pass.
func (o Outcome) Success() bool { return !o.Partial }

// Kind classifies the provider failure, or "" on success.
func (o Outcome) Kind() billing.Kind { return billing.KindOf(o.Err) }

// AddResult describes an added content item.
type AddResult struct {
	Outcome
	Item          billing.ContentItem
	Usage         billing.UsageLog
	IsFree        bool
	ActiveCount   int
	BillableCount int
	// PendingCharge is set when the charge is deferred until trial end.
	PendingCharge bool
	Statement     billing.Statement
}

// CancelResult describes cancelled content items.
type CancelResult struct {
	Outcome
	Cancelled       []billing.ContentItem
	RemainingActive int
	BillableCount   int
	Statement       billing.Statement
}

// SubscriptionCancelResult describes a cancelled base subscription.
type SubscriptionCancelResult struct {
	// Immediate is set when the subscription ended now (trial); otherwise
	// it ends at EndsAt.
	Immediate   bool
	EndsAt      time.Time
	Deactivated []billing.ContentItem
}

// abort classifies a failure that stopped a pass before anything was committed.
func abort(op string, err error) error {
	switch billing.KindOf(err) {
	case billing.KindSystemError:
		if errors.Is(err, billing.ErrSystem) {
			return err
		}
		return errors.Join(billing.ErrSystem, fmt.Errorf("reconcile: %s: %w", op, err))
	default:
		return err
	}
}

func (e *Engine) finish(ctx context.Context, op string, start time.Time, o Outcome, err error, attrs ...any) {
	outcome := outcomeSuccess
	switch {
	case err != nil:
		outcome = outcomeError
	case o.Partial:
		outcome = outcomePartial
	}
	e.metrics.observe(op, outcome, time.Since(start))
	if o.Drift {
		e.metrics.driftDetected(op, o.DriftRepaired)
	}

	attrs = append(attrs, logger.Operation(op), logger.Duration(time.Since(start)))
	switch {
	case err != nil && billing.KindOf(err) == billing.KindSystemError:
		e.log.ErrorContext(ctx, "reconcile failed", append(attrs, logger.Error(err))...)
	case err != nil:
		e.log.InfoContext(ctx, "reconcile refused", append(attrs, slog.String("kind", billing.KindOf(err).String()))...)
	case o.Partial:
		e.log.WarnContext(ctx, "reconcile partially applied", append(attrs, logger.Error(o.Err))...)
	default:
		e.log.InfoContext(ctx, "reconcile applied", append(attrs, slog.Bool("drift_repaired", o.DriftRepaired))...)
	}
}

// refresh writes the live provider snapshot back to the local subscription row.
// A failure is logged only; the snapshot is refreshed again on the next pass.
func (e *Engine) refresh(ctx context.Context, local *billing.MonthlySubscription, live *payment.Subscription) {
	snap := snapshot(*local, live)
	if err := e.store.SaveSubscription(ctx, snap); err != nil {
		e.log.WarnContext(ctx, "refresh local subscription", logger.CompanyID(local.CompanyID), logger.Error(err))
		return
	}
	*local = snap
}

func snapshot(local billing.MonthlySubscription, live *payment.Subscription) billing.MonthlySubscription {
	local.Status = live.Status
	local.CancelAtPeriodEnd = live.CancelAtPeriodEnd
	if live.CustomerID != "" {
		local.PaymentCustomerID = live.CustomerID
	}
	if !live.CurrentPeriodStart.IsZero() {
		local.CurrentPeriodStart = live.CurrentPeriodStart
	}
	if !live.CurrentPeriodEnd.IsZero() {
		local.CurrentPeriodEnd = live.CurrentPeriodEnd
	}
	return local
}

// localSubscription loads the subscription row, mapping a missing row to
// SUBSCRIPTION_INACTIVE.
func (e *Engine) localSubscription(ctx context.Context, companyID uuid.UUID) (*billing.MonthlySubscription, error) {
	sub, err := e.store.Subscription(ctx, companyID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		return nil, errors.Join(billing.ErrSubscriptionInactive, err)
	}
	return sub, err
}
