package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/payment"
)

// ledger is the charge state of the billable usage rows of active items.
type ledger struct {
	// uncharged rows have no provider object carrying their charge yet.
	uncharged []billing.UsageLog
	// deferred counts the uncharged rows added during a trial. The provider
	// quantity never included them.
	deferred int
}

func newLedger(active []billing.ContentItem, rows []billing.UsageLog) ledger {
	ids := make(map[uuid.UUID]struct{}, len(active))
	for _, it := range active {
		ids[it.ID] = struct{}{}
	}
	var l ledger
	for _, u := range rows {
		if _, ok := ids[u.ContentItemID]; !ok || u.IsFree || u.ExternalUsageRecordID != "" {
			continue
		}
		l.uncharged = append(l.uncharged, u)
		if u.PendingCharge {
			l.deferred++
		}
	}
	return l
}

// expected is the provider quantity before a pass over activeBefore items.
func (l ledger) expected(activeBefore int) int64 {
	return int64(max(0, billing.BillableCount(activeBefore)-l.deferred))
}

// issueInvoiceItems bills the current period of every uncharged row with a
// one-off invoice item. A row is marked as soon as its invoice item exists;
// the row id is the idempotency key, so repeating a pass never bills twice.
func (e *Engine) issueInvoiceItems(ctx context.Context, live *payment.Subscription, rows []billing.UsageLog) (map[uuid.UUID]string, error) {
	charged := make(map[uuid.UUID]string, len(rows))
	for _, u := range rows {
		content, _ := billing.LookupContent(u.ContentType)
		id, err := e.gateway.CreateInvoiceItem(ctx, payment.InvoiceItem{
			CustomerID:     live.CustomerID,
			SubscriptionID: live.ID,
			Amount:         billing.AdditionalPrice,
			Description:    content.Name,
			Period:         payment.Period{Start: live.CurrentPeriodStart, End: live.CurrentPeriodEnd},
			IdempotencyKey: u.ID.String(),
		})
		if err != nil {
			return charged, err
		}
		if e.markCharged(ctx, u.ID, id) {
			charged[u.ID] = id
		}
	}
	return charged, nil
}

// markLineItem records the synced line item as the carrier of every
// uncharged row.
func (e *Engine) markLineItem(ctx context.Context, item *payment.LineItem, rows []billing.UsageLog) map[uuid.UUID]string {
	charged := make(map[uuid.UUID]string, len(rows))
	if item == nil {
		return charged
	}
	for _, u := range rows {
		if e.markCharged(ctx, u.ID, item.ID) {
			charged[u.ID] = item.ID
		}
	}
	return charged
}

// markCharged clears the pending flag of a usage row and records the
// provider object that charges it. A failure leaves the row uncharged for the
// next pass.
func (e *Engine) markCharged(ctx context.Context, usageID uuid.UUID, externalID string) bool {
	if err := e.store.MarkUsageCharged(ctx, usageID, externalID, e.now()); err != nil {
		e.log.WarnContext(ctx, "mark usage charged", logger.Error(err))
		return false
	}
	return true
}

// settle brings the provider in line with the local rows outside a trial.
// Invoice items are issued before the line item is synced; in subscription
// item mode the synced line item carries the charge.
func (e *Engine) settle(ctx context.Context, live *payment.Subscription, req syncRequest, usage ledger) (map[uuid.UUID]string, Outcome) {
	if e.cfg.AddChargeMode == ChargeInvoiceItem {
		req.proration = payment.ProrateNone
		charged, err := e.issueInvoiceItems(ctx, live, usage.uncharged)
		if err != nil {
			return charged, partial(err)
		}
		synced, err := e.syncAdditional(ctx, live, req)
		return charged, outcomeOf(synced, err)
	}

	synced, err := e.syncAdditional(ctx, live, req)
	if err != nil {
		return nil, outcomeOf(synced, err)
	}
	return e.markLineItem(ctx, synced.item, usage.uncharged), outcomeOf(synced, nil)
}
