package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/payment"
)

// syncRequest describes the desired state of the additional content item.
type syncRequest struct {
	target    int64 // billable count after the pass
	expected  int64 // billable count before the pass
	proration string
	// keyPrefix namespaces the idempotency keys of every mutation of the pass.
	keyPrefix string
	// decreaseOnly forbids creating the item or raising its quantity.
	decreaseOnly bool
}

type syncResult struct {
	item     *payment.LineItem // the surviving additional item, nil when none
	drift    bool
	repaired bool
}

// syncAdditional makes the additional items of live sum to req.target with
// at most one item left. Zero-quantity items are deleted, never kept.
func (e *Engine) syncAdditional(ctx context.Context, live *payment.Subscription, req syncRequest) (syncResult, error) {
	items := e.gateway.AdditionalItems(live)
	var observed int64
	for _, it := range items {
		observed += it.Quantity
	}

	res := syncResult{drift: len(items) > 1 || observed != req.expected}
	if req.decreaseOnly {
		// Trial charges are deferred, so only an excess is drift.
		res.drift = len(items) > 1 || observed > req.expected
	}
	change := func(suffix string) payment.Change {
		return payment.Change{ProrationBehavior: req.proration, IdempotencyKey: req.keyPrefix + ":" + suffix}
	}

	// Collapse duplicates onto the first item.
	if len(items) > 1 {
		for _, dup := range items[1:] {
			if err := e.gateway.DeleteLineItem(ctx, dup.ID, change("delete:"+dup.ID)); err != nil {
				return res, syncError(res, err)
			}
		}
		items = items[:1]
	}

	target := req.target
	if req.decreaseOnly {
		current := int64(0)
		if len(items) == 1 {
			current = items[0].Quantity
		}
		target = min(target, current)
	}

	switch {
	case len(items) == 0 && target > 0:
		item, err := e.gateway.CreateLineItem(ctx, live.ID, e.gateway.AdditionalPriceID(), target, change("create"))
		if err != nil {
			return res, syncError(res, err)
		}
		res.item = item
	case len(items) == 1 && target == 0:
		if err := e.gateway.DeleteLineItem(ctx, items[0].ID, change("delete:"+items[0].ID)); err != nil {
			return res, syncError(res, err)
		}
	case len(items) == 1 && items[0].Quantity != target:
		item, err := e.gateway.UpdateLineItemQuantity(ctx, items[0].ID, target, change(fmt.Sprintf("quantity:%d", target)))
		if err != nil {
			return res, syncError(res, err)
		}
		res.item = item
	case len(items) == 1:
		item := items[0]
		res.item = &item
	}

	res.repaired = res.drift
	return res, nil
}

func syncError(res syncResult, err error) error {
	if res.drift {
		return errors.Join(billing.ErrDriftDetected, err)
	}
	return err
}

// outcomeOf turns a sync into the reported outcome.
func outcomeOf(res syncResult, err error) Outcome {
	o := Outcome{Drift: res.drift, DriftRepaired: res.repaired}
	if err != nil {
		o.Partial = true
		o.Err = err
	}
	return o
}

// partial reports a provider failure that happened before any sync.
func partial(err error) Outcome {
	return Outcome{Partial: true, Err: err}
}
