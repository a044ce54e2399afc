package storetest

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/store"
)

var _ store.CompanyTx = (*memTx)(nil)

// memTx buffers the writes of one locked company until commit.
type memTx struct {
	m         *Memory
	companyID uuid.UUID
	contents  map[uuid.UUID]billing.ContentItem
	usage     map[uuid.UUID]billing.UsageLog
	cancels   map[uuid.UUID]billing.CancellationRecord
	status    billing.CompanyStatus
	sub       *billing.MonthlySubscription
}

func (t *memTx) CompanyID() uuid.UUID { return t.companyID }

func (t *memTx) ContentItems(context.Context) ([]billing.ContentItem, error) {
	if err := t.m.fail("tx_content_items"); err != nil {
		return nil, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	return t.m.companyContents(t.companyID, t.contents), nil
}

func (t *memTx) UsageLogs(context.Context) ([]billing.UsageLog, error) {
	if err := t.m.fail("tx_usage_logs"); err != nil {
		return nil, err
	}
	out := t.usageRows()
	slices.SortFunc(out, func(a, b billing.UsageLog) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (t *memTx) usageRows() []billing.UsageLog {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	var out []billing.UsageLog
	for id, u := range t.m.usage {
		if u.CompanyID != t.companyID {
			continue
		}
		if o, ok := t.usage[id]; ok {
			u = o
		}
		out = append(out, u)
	}
	for id, u := range t.usage {
		if _, ok := t.m.usage[id]; !ok {
			out = append(out, u)
		}
	}
	return out
}

func (t *memTx) InsertContentItem(ctx context.Context, item *billing.ContentItem) error {
	if err := t.m.fail("insert_content_item"); err != nil {
		return err
	}
	items, _ := t.ContentItems(ctx)
	if item.Status == "" {
		item.Status = billing.ContentActive
	}
	if item.Status == billing.ContentActive && slices.ContainsFunc(items, func(it billing.ContentItem) bool {
		return it.ContentType == item.ContentType && it.Status == billing.ContentActive
	}) {
		return billing.ErrContentAlreadyActive
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CompanyID = t.companyID
	item.CreatedAt = t.m.now()
	t.contents[item.ID] = *item
	return nil
}

func (t *memTx) InsertUsageLog(_ context.Context, u *billing.UsageLog) error {
	if err := t.m.fail("insert_usage_log"); err != nil {
		return err
	}
	if u.IsFree && slices.ContainsFunc(t.usageRows(), func(row billing.UsageLog) bool { return row.IsFree }) {
		// Mirrors the partial unique index on usage_logs(company_id) WHERE is_free.
		return billing.ErrSystem
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CompanyID = t.companyID
	u.CreatedAt = t.m.now()
	t.usage[u.ID] = *u
	return nil
}

func (t *memTx) CancelContentItems(ctx context.Context, ids []uuid.UUID, at time.Time) ([]billing.ContentItem, error) {
	if err := t.m.fail("cancel_content_items"); err != nil {
		return nil, err
	}
	return t.flip(ctx, at, billing.ContentCancelled, func(it billing.ContentItem) bool {
		return slices.Contains(ids, it.ID)
	})
}

func (t *memTx) DeactivateContents(ctx context.Context, at time.Time) ([]billing.ContentItem, error) {
	if err := t.m.fail("deactivate_contents"); err != nil {
		return nil, err
	}
	return t.flip(ctx, at, billing.ContentInactive, func(billing.ContentItem) bool { return true })
}

func (t *memTx) flip(ctx context.Context, at time.Time, to billing.ContentStatus, match func(billing.ContentItem) bool) ([]billing.ContentItem, error) {
	items, err := t.ContentItems(ctx)
	if err != nil {
		return nil, err
	}
	var changed []billing.ContentItem
	for _, it := range items {
		if it.Status != billing.ContentActive || !match(it) {
			continue
		}
		it.Status = to
		ts := at.UTC()
		it.CancelledAt = &ts
		t.contents[it.ID] = it
		changed = append(changed, it)
	}
	return changed, nil
}

func (t *memTx) RecordCancellations(_ context.Context, recs []billing.CancellationRecord) (int, error) {
	if err := t.m.fail("record_cancellations"); err != nil {
		return 0, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	written := 0
	for _, r := range recs {
		if _, ok := t.m.cancels[r.ContentItemID]; ok {
			continue
		}
		if _, ok := t.cancels[r.ContentItemID]; ok {
			continue
		}
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.CompanyID = t.companyID
		t.cancels[r.ContentItemID] = r
		written++
	}
	return written, nil
}

func (t *memTx) ClearPendingCharge(_ context.Context, itemIDs []uuid.UUID) error {
	if err := t.m.fail("clear_pending_charge"); err != nil {
		return err
	}
	for _, u := range t.usageRows() {
		if u.PendingCharge && slices.Contains(itemIDs, u.ContentItemID) {
			u.PendingCharge = false
			t.usage[u.ID] = u
		}
	}
	return nil
}

func (t *memTx) RedesignateFree(ctx context.Context) error {
	if err := t.m.fail("redesignate_free"); err != nil {
		return err
	}
	items, err := t.ContentItems(ctx)
	if err != nil {
		return err
	}
	active := billing.ActiveItems(items)

	rows := t.usageRows()
	for _, u := range rows {
		if u.IsFree {
			u.IsFree = false
			t.usage[u.ID] = u
		}
	}
	if len(active) == 0 {
		return nil
	}

	var latest *billing.UsageLog
	for _, u := range t.usageRows() {
		if u.ContentItemID != active[0].ID {
			continue
		}
		if latest == nil || u.CreatedAt.After(latest.CreatedAt) {
			cp := u
			latest = &cp
		}
	}
	if latest != nil {
		latest.IsFree = true
		latest.PendingCharge = false
		t.usage[latest.ID] = *latest
	}
	return nil
}

func (t *memTx) SetCompanyStatus(_ context.Context, status billing.CompanyStatus) error {
	if err := t.m.fail("set_company_status"); err != nil {
		return err
	}
	t.status = status
	return nil
}

func (t *memTx) SaveSubscription(_ context.Context, sub billing.MonthlySubscription) error {
	if err := t.m.fail("tx_save_subscription"); err != nil {
		return err
	}
	sub.CompanyID = t.companyID
	t.sub = &sub
	return nil
}

func (t *memTx) commit() {
	now := t.m.now()
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for id, it := range t.contents {
		t.m.contents[id] = it
	}
	for id, u := range t.usage {
		t.m.usage[id] = u
	}
	for id, r := range t.cancels {
		t.m.cancels[id] = r
	}
	if t.status != "" {
		c := t.m.companies[t.companyID]
		c.Status = t.status
		c.UpdatedAt = now
		t.m.companies[t.companyID] = c
	}
	if t.sub != nil {
		t.sub.UpdatedAt = now
		t.m.subs[t.companyID] = *t.sub
	}
}
