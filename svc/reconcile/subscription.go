package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/store"
)

// CancelSubscription ends the base subscription of the company. A trialing
// subscription is cancelled now and the company is closed; an active one
// runs until the end of the current period. Either way every active content
// item becomes inactive.
//
// The provider is changed first: if it fails, nothing changes locally.
func (e *Engine) CancelSubscription(ctx context.Context, companyID uuid.UUID) (res SubscriptionCancelResult, err error) {
	start := time.Now()
	defer func() {
		e.finish(ctx, "cancel_subscription", start, Outcome{}, err,
			logger.CompanyID(companyID), "immediate", res.Immediate)
	}()

	sub, err := e.localSubscription(ctx, companyID)
	if err != nil {
		return res, abort("load subscription", err)
	}
	if !sub.Status.Entitled() {
		return res, billing.ErrSubscriptionInactive
	}

	live, err := e.gateway.GetSubscription(ctx, sub.PaymentSubscriptionID)
	if err != nil {
		return res, err
	}
	res.Immediate = live.Status == billing.SubscriptionTrialing

	updated, err := e.gateway.CancelSubscription(ctx, live.ID, !res.Immediate)
	if err != nil {
		return res, err
	}
	snap := snapshot(*sub, updated)
	res.EndsAt = snap.CurrentPeriodEnd
	if res.Immediate {
		res.EndsAt = e.now()
	}

	err = e.store.WithCompanyLock(ctx, companyID, func(tx store.CompanyTx) error {
		deactivated, err := tx.DeactivateContents(ctx, e.now())
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(deactivated))
		for _, it := range deactivated {
			ids = append(ids, it.ID)
		}
		if err := tx.ClearPendingCharge(ctx, ids); err != nil {
			return err
		}
		if err := tx.RedesignateFree(ctx); err != nil {
			return err
		}
		if err := tx.SaveSubscription(ctx, snap); err != nil {
			return err
		}
		if res.Immediate {
			if err := tx.SetCompanyStatus(ctx, billing.CompanyCancelled); err != nil {
				return err
			}
		}
		res.Deactivated = deactivated
		return nil
	})
	if err != nil {
		return res, abort("deactivate company", err)
	}
	return res, nil
}
