package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/linebilling/pkg/pg"
	"github.com/dmitrymomot/linebilling/svc/billing"
)

const companyColumns = `id, company_name, email, status, line_user_id, created_at, updated_at`

func scanCompany(row pgx.Row) (*billing.Company, error) {
	var (
		c      billing.Company
		lineID *string
		status string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &status, &lineID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = billing.CompanyStatus(status)
	if lineID != nil {
		c.LineUserID = *lineID
	}
	return &c, nil
}

// CreateCompany inserts a company. Registration itself happens outside this
// service; this is used by provisioning and tests.
func (s *Store) CreateCompany(ctx context.Context, c *billing.Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = billing.CompanyActive
	}
	var lineID *string
	if c.LineUserID != "" {
		lineID = &c.LineUserID
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, company_name, email, status, line_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Email, string(c.Status), lineID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return sysErr("insert company", err)
	}
	return nil
}

// Company returns the company by id.
func (s *Store) Company(ctx context.Context, id uuid.UUID) (*billing.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrCompanyNotFound
	}
	if err != nil {
		return nil, sysErr("get company", err)
	}
	return c, nil
}

// CompanyByLineUser returns the company linked to the chat user.
func (s *Store) CompanyByLineUser(ctx context.Context, lineUserID string) (*billing.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE line_user_id = $1`, lineUserID))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrCompanyNotFound
	}
	if err != nil {
		return nil, sysErr("get company by line user", err)
	}
	return c, nil
}

// LinkLineUser attaches lineUserID to the company registered with email.
// email must already be normalized. Linking the same pair twice is a no-op.
func (s *Store) LinkLineUser(ctx context.Context, email, lineUserID string) (*billing.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, `
		UPDATE companies SET line_user_id = $2, updated_at = now()
		WHERE email = $1 AND (line_user_id IS NULL OR line_user_id = $2)
		RETURNING `+companyColumns, email, lineUserID))
	switch {
	case err == nil:
		return c, nil
	case pg.IsDuplicateKeyError(err):
		return nil, billing.ErrEmailAlreadyLinked
	case !pg.IsNotFoundError(err):
		return nil, sysErr("link line user", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE email = $1)`, email).Scan(&exists); err != nil {
		return nil, sysErr("check email", err)
	}
	if exists {
		return nil, billing.ErrEmailAlreadyLinked
	}
	return nil, billing.ErrCompanyNotFound
}

// UnlinkLineUser detaches the chat user from its company, if any.
func (s *Store) UnlinkLineUser(ctx context.Context, lineUserID string) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE companies SET line_user_id = NULL, updated_at = now() WHERE line_user_id = $1`,
		lineUserID); err != nil {
		return sysErr("unlink line user", err)
	}
	return nil
}

const subscriptionColumns = `company_id, payment_subscription_id, payment_customer_id, status,
	cancel_at_period_end, current_period_start, current_period_end, updated_at`

func scanSubscription(row pgx.Row) (*billing.MonthlySubscription, error) {
	var (
		sub    billing.MonthlySubscription
		status string
	)
	err := row.Scan(&sub.CompanyID, &sub.PaymentSubscriptionID, &sub.PaymentCustomerID, &status,
		&sub.CancelAtPeriodEnd, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.Status = billing.SubscriptionStatus(status)
	return &sub, nil
}

// Subscription returns the local subscription snapshot of the company.
func (s *Store) Subscription(ctx context.Context, companyID uuid.UUID) (*billing.MonthlySubscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM company_monthly_subscriptions WHERE company_id = $1`, companyID))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, sysErr("get subscription", err)
	}
	return sub, nil
}

// SaveSubscription upserts the subscription snapshot.
func (s *Store) SaveSubscription(ctx context.Context, sub billing.MonthlySubscription) error {
	return saveSubscription(ctx, s.pool, sub)
}

func saveSubscription(ctx context.Context, q querier, sub billing.MonthlySubscription) error {
	_, err := q.Exec(ctx, `
		INSERT INTO company_monthly_subscriptions (company_id, payment_subscription_id, payment_customer_id,
			status, cancel_at_period_end, current_period_start, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id) DO UPDATE SET
			payment_subscription_id = EXCLUDED.payment_subscription_id,
			payment_customer_id     = EXCLUDED.payment_customer_id,
			status                  = EXCLUDED.status,
			cancel_at_period_end    = EXCLUDED.cancel_at_period_end,
			current_period_start    = EXCLUDED.current_period_start,
			current_period_end      = EXCLUDED.current_period_end,
			updated_at              = now()`,
		sub.CompanyID, sub.PaymentSubscriptionID, sub.PaymentCustomerID, string(sub.Status),
		sub.CancelAtPeriodEnd, sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC())
	if err != nil {
		return sysErr("save subscription", err)
	}
	return nil
}

func setCompanyStatus(ctx context.Context, q querier, id uuid.UUID, status billing.CompanyStatus) error {
	if _, err := q.Exec(ctx, `UPDATE companies SET status = $2, updated_at = now() WHERE id = $1`, id, string(status)); err != nil {
		return sysErr("set company status", err)
	}
	return nil
}
