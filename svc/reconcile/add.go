package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/payment"
	"github.com/dmitrymomot/linebilling/svc/store"
)

// Add activates a content type for the company. The first active item is
// free; every further one raises the additional item quantity by one.
// During a trial nothing is charged: the usage row is flagged as pending.
//
// A returned error means nothing was committed. Provider failures after the
// commit are reported through AddResult.Outcome.
func (e *Engine) Add(ctx context.Context, companyID uuid.UUID, contentType billing.ContentType) (res AddResult, err error) {
	start := time.Now()
	defer func() {
		e.finish(ctx, "add", start, res.Outcome, err,
			logger.CompanyID(companyID), logger.ContentType(string(contentType)),
			"is_free", res.IsFree, "billable_count", res.BillableCount)
	}()

	if _, ok := billing.LookupContent(contentType); !ok {
		return res, billing.ErrUnknownContentType
	}

	sub, err := e.localSubscription(ctx, companyID)
	if err != nil {
		return res, abort("load subscription", err)
	}
	if !sub.Status.Entitled() {
		return res, billing.ErrSubscriptionInactive
	}

	var (
		after []billing.ContentItem
		usage ledger
	)
	err = e.store.WithCompanyLock(ctx, companyID, func(tx store.CompanyTx) error {
		items, err := tx.ContentItems(ctx)
		if err != nil {
			return err
		}
		active := billing.ActiveItems(items)
		if slices.ContainsFunc(active, func(it billing.ContentItem) bool { return it.ContentType == contentType }) {
			return billing.ErrContentAlreadyActive
		}

		res.IsFree = len(active) == 0
		res.Item = billing.ContentItem{ContentType: contentType}
		if err := tx.InsertContentItem(ctx, &res.Item); err != nil {
			return err
		}
		res.Usage = billing.UsageLog{ContentItemID: res.Item.ID, ContentType: contentType, IsFree: res.IsFree}
		if err := tx.InsertUsageLog(ctx, &res.Usage); err != nil {
			return err
		}
		res.ActiveCount = len(active) + 1
		res.BillableCount = billing.BillableCount(res.ActiveCount)
		after = append(active, res.Item)

		rows, err := tx.UsageLogs(ctx)
		if err != nil {
			return err
		}
		usage = newLedger(after, rows)
		return nil
	})
	if err != nil {
		return AddResult{}, abort("add content", err)
	}

	res.Outcome = e.chargeAdd(ctx, sub, &res, usage)
	res.Statement = billing.NewStatement(sub, after)
	return res, nil
}

// chargeAdd brings the provider in line with a committed add. Rows left
// uncharged by a trial or an earlier partial pass are charged along with it.
func (e *Engine) chargeAdd(ctx context.Context, sub *billing.MonthlySubscription, res *AddResult, usage ledger) Outcome {
	live, err := e.gateway.GetSubscription(ctx, sub.PaymentSubscriptionID)
	if err != nil {
		return partial(err)
	}
	e.refresh(ctx, sub, live)

	if !live.Status.Entitled() {
		return partial(errors.Join(billing.ErrDriftDetected,
			fmt.Errorf("reconcile: provider subscription %s is %s", live.ID, live.Status)))
	}

	if live.Status == billing.SubscriptionTrialing {
		if res.IsFree {
			return Outcome{}
		}
		if err := e.store.SetPendingCharge(ctx, res.Usage.ID, true); err != nil {
			return partial(err)
		}
		res.Usage.PendingCharge = true
		res.PendingCharge = true
		return Outcome{}
	}

	charged, out := e.settle(ctx, live, syncRequest{
		target:    int64(res.BillableCount),
		expected:  usage.expected(res.ActiveCount - 1),
		proration: payment.ProrateCreate,
		keyPrefix: res.Usage.ID.String(),
	}, usage)
	if id, ok := charged[res.Usage.ID]; ok {
		res.Usage.ExternalUsageRecordID = id
	}
	return out
}
