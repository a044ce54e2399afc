package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/linebilling/pkg/pg"
	"github.com/dmitrymomot/linebilling/svc/billing"
)

const contentColumns = `id, company_id, content_type, status, created_at, cancelled_at`

func scanContentItem(row pgx.CollectableRow) (billing.ContentItem, error) {
	var (
		it          billing.ContentItem
		contentType string
		status      string
	)
	err := row.Scan(&it.ID, &it.CompanyID, &contentType, &status, &it.CreatedAt, &it.CancelledAt)
	it.ContentType = billing.ContentType(contentType)
	it.Status = billing.ContentStatus(status)
	return it, err
}

func contentItems(ctx context.Context, q querier, companyID uuid.UUID) ([]billing.ContentItem, error) {
	rows, err := q.Query(ctx, `
		SELECT `+contentColumns+` FROM company_contents
		WHERE company_id = $1 ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, sysErr("list content items", err)
	}
	items, err := pgx.CollectRows(rows, scanContentItem)
	if err != nil {
		return nil, sysErr("scan content items", err)
	}
	return items, nil
}

// ContentItems returns every content row of the company, oldest first.
func (s *Store) ContentItems(ctx context.Context, companyID uuid.UUID) ([]billing.ContentItem, error) {
	return contentItems(ctx, s.pool, companyID)
}

const usageColumns = `id, company_id, content_item_id, content_type, is_free, pending_charge,
	external_usage_record_id, created_at, charged_at`

func scanUsageLog(row pgx.CollectableRow) (billing.UsageLog, error) {
	var (
		u           billing.UsageLog
		contentType string
		external    *string
	)
	err := row.Scan(&u.ID, &u.CompanyID, &u.ContentItemID, &contentType, &u.IsFree, &u.PendingCharge,
		&external, &u.CreatedAt, &u.ChargedAt)
	u.ContentType = billing.ContentType(contentType)
	if external != nil {
		u.ExternalUsageRecordID = *external
	}
	return u, err
}

func usageLogs(ctx context.Context, q querier, companyID uuid.UUID) ([]billing.UsageLog, error) {
	rows, err := q.Query(ctx, `
		SELECT `+usageColumns+` FROM usage_logs
		WHERE company_id = $1 ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, sysErr("list usage logs", err)
	}
	logs, err := pgx.CollectRows(rows, scanUsageLog)
	if err != nil {
		return nil, sysErr("scan usage logs", err)
	}
	return logs, nil
}

// UsageLogs returns the usage log of the company, oldest first.
func (s *Store) UsageLogs(ctx context.Context, companyID uuid.UUID) ([]billing.UsageLog, error) {
	return usageLogs(ctx, s.pool, companyID)
}

// Cancellations returns the cancellation history of the company, oldest first.
func (s *Store) Cancellations(ctx context.Context, companyID uuid.UUID) ([]billing.CancellationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, content_item_id, content_type, cancelled_at
		FROM cancellation_history WHERE company_id = $1 ORDER BY cancelled_at, id`, companyID)
	if err != nil {
		return nil, sysErr("list cancellations", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.CancellationRecord, error) {
		var (
			r           billing.CancellationRecord
			contentType string
		)
		err := row.Scan(&r.ID, &r.CompanyID, &r.ContentItemID, &contentType, &r.CancelledAt)
		r.ContentType = billing.ContentType(contentType)
		return r, err
	})
	if err != nil {
		return nil, sysErr("scan cancellations", err)
	}
	return recs, nil
}

// SetPendingCharge flags a usage row whose charge is deferred until trial end.
func (s *Store) SetPendingCharge(ctx context.Context, usageID uuid.UUID, pending bool) error {
	if _, err := s.pool.Exec(ctx, `UPDATE usage_logs SET pending_charge = $2 WHERE id = $1`, usageID, pending); err != nil {
		return sysErr("set pending charge", err)
	}
	return nil
}

// MarkUsageCharged records the provider object that carries the charge of a usage row.
func (s *Store) MarkUsageCharged(ctx context.Context, usageID uuid.UUID, externalID string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE usage_logs SET external_usage_record_id = $2, charged_at = $3, pending_charge = false
		WHERE id = $1`, usageID, externalID, at.UTC()); err != nil {
		return sysErr("mark usage charged", err)
	}
	return nil
}

type companyTx struct {
	tx        pgx.Tx
	companyID uuid.UUID
}

func (t *companyTx) CompanyID() uuid.UUID { return t.companyID }

func (t *companyTx) ContentItems(ctx context.Context) ([]billing.ContentItem, error) {
	return contentItems(ctx, t.tx, t.companyID)
}

func (t *companyTx) UsageLogs(ctx context.Context) ([]billing.UsageLog, error) {
	return usageLogs(ctx, t.tx, t.companyID)
}

func (t *companyTx) InsertContentItem(ctx context.Context, item *billing.ContentItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CompanyID = t.companyID
	if item.Status == "" {
		item.Status = billing.ContentActive
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO company_contents (id, company_id, content_type, status)
		VALUES ($1, $2, $3, $4) RETURNING created_at`,
		item.ID, item.CompanyID, string(item.ContentType), string(item.Status),
	).Scan(&item.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		return billing.ErrContentAlreadyActive
	}
	if err != nil {
		return sysErr("insert content item", err)
	}
	return nil
}

func (t *companyTx) InsertUsageLog(ctx context.Context, u *billing.UsageLog) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CompanyID = t.companyID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO usage_logs (id, company_id, content_item_id, content_type, is_free, pending_charge)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		u.ID, u.CompanyID, u.ContentItemID, string(u.ContentType), u.IsFree, u.PendingCharge,
	).Scan(&u.CreatedAt)
	if err != nil {
		return sysErr("insert usage log", err)
	}
	return nil
}

func (t *companyTx) CancelContentItems(ctx context.Context, ids []uuid.UUID, at time.Time) ([]billing.ContentItem, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE company_contents SET status = 'cancelled', cancelled_at = $3
		WHERE company_id = $1 AND id = ANY($2::uuid[]) AND status = 'active'
		RETURNING `+contentColumns, t.companyID, uuidStrings(ids), at.UTC())
	if err != nil {
		return nil, sysErr("cancel content items", err)
	}
	items, err := pgx.CollectRows(rows, scanContentItem)
	if err != nil {
		return nil, sysErr("scan cancelled items", err)
	}
	return items, nil
}

func (t *companyTx) DeactivateContents(ctx context.Context, at time.Time) ([]billing.ContentItem, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE company_contents SET status = 'inactive', cancelled_at = $2
		WHERE company_id = $1 AND status = 'active'
		RETURNING `+contentColumns, t.companyID, at.UTC())
	if err != nil {
		return nil, sysErr("deactivate content items", err)
	}
	items, err := pgx.CollectRows(rows, scanContentItem)
	if err != nil {
		return nil, sysErr("scan deactivated items", err)
	}
	return items, nil
}

func (t *companyTx) RecordCancellations(ctx context.Context, recs []billing.CancellationRecord) (int, error) {
	written := 0
	for _, r := range recs {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		tag, err := t.tx.Exec(ctx, `
			INSERT INTO cancellation_history (id, company_id, content_item_id, content_type, cancelled_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (content_item_id) DO NOTHING`,
			r.ID, t.companyID, r.ContentItemID, string(r.ContentType), r.CancelledAt.UTC())
		if err != nil {
			return written, sysErr("insert cancellation", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

func (t *companyTx) ClearPendingCharge(ctx context.Context, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `
		UPDATE usage_logs SET pending_charge = false
		WHERE company_id = $1 AND content_item_id = ANY($2::uuid[]) AND pending_charge`,
		t.companyID, uuidStrings(itemIDs)); err != nil {
		return sysErr("clear pending charge", err)
	}
	return nil
}

func (t *companyTx) RedesignateFree(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `UPDATE usage_logs SET is_free = false WHERE company_id = $1 AND is_free`, t.companyID); err != nil {
		return sysErr("clear free usage", err)
	}
	if _, err := t.tx.Exec(ctx, `
		UPDATE usage_logs SET is_free = true, pending_charge = false
		WHERE id = (
			SELECT u.id FROM usage_logs u
			JOIN company_contents c ON c.id = u.content_item_id
			WHERE c.company_id = $1 AND c.status = 'active'
			ORDER BY c.created_at, c.id, u.created_at DESC, u.id DESC
			LIMIT 1
		)`, t.companyID); err != nil {
		return sysErr("designate free usage", err)
	}
	return nil
}

func (t *companyTx) SetCompanyStatus(ctx context.Context, status billing.CompanyStatus) error {
	return setCompanyStatus(ctx, t.tx, t.companyID, status)
}

func (t *companyTx) SaveSubscription(ctx context.Context, sub billing.MonthlySubscription) error {
	sub.CompanyID = t.companyID
	return saveSubscription(ctx, t.tx, sub)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
