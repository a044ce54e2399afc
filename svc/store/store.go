// Package store is the Postgres persistence gateway. It owns every write to
// companies, subscriptions, content items, usage logs, cancellation history
// and conversation states, and holds no business rules.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/linebilling/pkg/pg"
	"github.com/dmitrymomot/linebilling/svc/billing"
)

// CompanyTx is the set of writes performed while a company row is locked.
// Every method is scoped to the locked company.
type CompanyTx interface {
	CompanyID() uuid.UUID
	ContentItems(ctx context.Context) ([]billing.ContentItem, error)
	// UsageLogs returns the usage rows of the company, oldest first,
	// including rows written earlier in the transaction.
	UsageLogs(ctx context.Context) ([]billing.UsageLog, error)
	InsertContentItem(ctx context.Context, item *billing.ContentItem) error
	InsertUsageLog(ctx context.Context, log *billing.UsageLog) error
	// CancelContentItems flips the given ids from active to cancelled and
	// returns only the rows it changed.
	CancelContentItems(ctx context.Context, ids []uuid.UUID, at time.Time) ([]billing.ContentItem, error)
	// DeactivateContents flips every active item to inactive.
	DeactivateContents(ctx context.Context, at time.Time) ([]billing.ContentItem, error)
	// RecordCancellations writes audit rows, skipping items already recorded.
	RecordCancellations(ctx context.Context, recs []billing.CancellationRecord) (int, error)
	ClearPendingCharge(ctx context.Context, itemIDs []uuid.UUID) error
	// RedesignateFree makes the latest usage row of the earliest active item
	// the only free row of the company.
	RedesignateFree(ctx context.Context) error
	SetCompanyStatus(ctx context.Context, status billing.CompanyStatus) error
	SaveSubscription(ctx context.Context, sub billing.MonthlySubscription) error
}

// Store implements the persistence gateway on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store. It panics on a nil pool.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("store: nil pool")
	}
	return &Store{pool: pool}
}

// WithCompanyLock runs fn in a transaction holding a row lock on the company,
// which serializes concurrent adds and cancels of the same company.
func (s *Store) WithCompanyLock(ctx context.Context, companyID uuid.UUID, fn func(CompanyTx) error) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM companies WHERE id = $1 FOR UPDATE`, companyID).Scan(&id)
		if pg.IsNotFoundError(err) {
			return billing.ErrCompanyNotFound
		}
		if err != nil {
			return sysErr("lock company", err)
		}
		return fn(&companyTx{tx: tx, companyID: companyID})
	})
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func sysErr(op string, err error) error {
	return errors.Join(billing.ErrSystem, fmt.Errorf("store: %s: %w", op, err))
}
