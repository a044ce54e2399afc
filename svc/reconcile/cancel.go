package reconcile

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/payment"
	"github.com/dmitrymomot/linebilling/svc/store"
)

// Cancel cancels content items of the company and lowers the additional item
// to the new billable count, deleting it at zero. Items that are already
// cancelled are skipped, so repeating a cancel changes nothing.
//
// A returned error means nothing was committed. Provider failures after the
// commit are reported through CancelResult.Outcome.
func (e *Engine) Cancel(ctx context.Context, companyID uuid.UUID, itemIDs []uuid.UUID) (res CancelResult, err error) {
	start := time.Now()
	defer func() {
		e.finish(ctx, "cancel", start, res.Outcome, err,
			logger.CompanyID(companyID), "cancelled", len(res.Cancelled), "billable_count", res.BillableCount)
	}()

	if len(itemIDs) == 0 {
		return res, billing.ErrInvalidSelection
	}

	sub, err := e.store.Subscription(ctx, companyID)
	if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
		return res, abort("load subscription", err)
	}

	var (
		before    int
		deferred  int
		remaining []billing.ContentItem
		usage     ledger
	)
	err = e.store.WithCompanyLock(ctx, companyID, func(tx store.CompanyTx) error {
		items, err := tx.ContentItems(ctx)
		if err != nil {
			return err
		}
		for _, id := range itemIDs {
			if !slices.ContainsFunc(items, func(it billing.ContentItem) bool { return it.ID == id }) {
				return billing.ErrContentNotFound
			}
		}
		active := billing.ActiveItems(items)
		before = len(active)
		rows, err := tx.UsageLogs(ctx)
		if err != nil {
			return err
		}
		deferred = newLedger(active, rows).deferred

		cancelled, err := tx.CancelContentItems(ctx, itemIDs, e.now())
		if err != nil {
			return err
		}
		res.Cancelled = cancelled
		if len(cancelled) == 0 {
			remaining = active
			usage = newLedger(remaining, rows)
			return nil
		}

		recs := make([]billing.CancellationRecord, 0, len(cancelled))
		ids := make([]uuid.UUID, 0, len(cancelled))
		for _, it := range cancelled {
			recs = append(recs, billing.CancellationRecord{
				ContentItemID: it.ID,
				ContentType:   it.ContentType,
				CancelledAt:   *it.CancelledAt,
			})
			ids = append(ids, it.ID)
		}
		if _, err := tx.RecordCancellations(ctx, recs); err != nil {
			return err
		}
		if err := tx.ClearPendingCharge(ctx, ids); err != nil {
			return err
		}
		if err := tx.RedesignateFree(ctx); err != nil {
			return err
		}

		items, err = tx.ContentItems(ctx)
		if err != nil {
			return err
		}
		remaining = billing.ActiveItems(items)
		if rows, err = tx.UsageLogs(ctx); err != nil {
			return err
		}
		usage = newLedger(remaining, rows)
		return nil
	})
	if err != nil {
		return CancelResult{}, abort("cancel content", err)
	}

	res.RemainingActive = len(remaining)
	res.BillableCount = billing.BillableCount(res.RemainingActive)
	if sub != nil {
		usage.deferred = deferred
		res.Outcome = e.syncCancel(ctx, sub, before, res.BillableCount, usage)
	}
	res.Statement = billing.NewStatement(sub, remaining)
	return res, nil
}

// syncCancel lowers the provider quantity after a committed cancel. It also
// runs when nothing was cancelled, repairing drift left by an earlier
// partial pass. usage holds the uncharged rows of the remaining items and the
// deferred count from before the cancel.
func (e *Engine) syncCancel(ctx context.Context, sub *billing.MonthlySubscription, activeBefore, billable int, usage ledger) Outcome {
	live, err := e.gateway.GetSubscription(ctx, sub.PaymentSubscriptionID)
	if err != nil {
		return partial(err)
	}
	e.refresh(ctx, sub, live)

	if live.Status == billing.SubscriptionCanceled {
		return Outcome{}
	}

	req := syncRequest{
		target:    int64(billable),
		expected:  usage.expected(activeBefore),
		proration: payment.ProrateCreate,
		keyPrefix: "cancel:" + uuid.NewString(),
	}
	if live.Status == billing.SubscriptionTrialing {
		req.decreaseOnly = true
		req.proration = payment.ProrateNone
		synced, err := e.syncAdditional(ctx, live, req)
		return outcomeOf(synced, err)
	}
	_, out := e.settle(ctx, live, req, usage)
	return out
}
