package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/migrations"
	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/pkg/pg"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/store"
)

// newTestStore connects to PG_TEST_CONN_URL and applies migrations.
// Tests are skipped when the variable is not set.
func newTestStore(t *testing.T) (*store.Store, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("PG_TEST_CONN_URL")
	if url == "" {
		t.Skip("PG_TEST_CONN_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{ConnectionString: url, MaxOpenConns: 5, RetryAttempts: 1, MigrationsTable: "schema_migrations"}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, migrations.FS, cfg, logger.Discard()))
	return store.New(pool), pool
}

func seedCompany(t *testing.T, s *store.Store, status billing.SubscriptionStatus) *billing.Company {
	t.Helper()
	ctx := context.Background()
	c := &billing.Company{Name: "テスト株式会社", Email: uuid.NewString() + "@example.com"}
	require.NoError(t, s.CreateCompany(ctx, c))
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveSubscription(ctx, billing.MonthlySubscription{
		CompanyID:             c.ID,
		PaymentSubscriptionID: "sub_" + c.ID.String()[:8],
		PaymentCustomerID:     "cus_" + c.ID.String()[:8],
		Status:                status,
		CurrentPeriodStart:    now,
		CurrentPeriodEnd:      now.AddDate(0, 1, 0),
	}))
	return c
}

func TestLinkLineUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := seedCompany(t, s, billing.SubscriptionActive)
	lineUser := "U" + uuid.NewString()

	linked, err := s.LinkLineUser(ctx, c.Email, lineUser)
	require.NoError(t, err)
	assert.Equal(t, lineUser, linked.LineUserID)

	_, err = s.LinkLineUser(ctx, c.Email, lineUser)
	require.NoError(t, err, "relinking the same user is a no-op")

	_, err = s.LinkLineUser(ctx, c.Email, "U-other")
	assert.ErrorIs(t, err, billing.ErrEmailAlreadyLinked)

	_, err = s.LinkLineUser(ctx, "missing@example.com", "U-x")
	assert.ErrorIs(t, err, billing.ErrCompanyNotFound)

	got, err := s.CompanyByLineUser(ctx, lineUser)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	require.NoError(t, s.UnlinkLineUser(ctx, lineUser))
	_, err = s.CompanyByLineUser(ctx, lineUser)
	assert.ErrorIs(t, err, billing.ErrCompanyNotFound)
}

func TestCompanyLockContentLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := seedCompany(t, s, billing.SubscriptionActive)

	var first, second billing.ContentItem
	err := s.WithCompanyLock(ctx, c.ID, func(tx store.CompanyTx) error {
		first = billing.ContentItem{ContentType: billing.ContentSchedule}
		if err := tx.InsertContentItem(ctx, &first); err != nil {
			return err
		}
		if err := tx.InsertUsageLog(ctx, &billing.UsageLog{ContentItemID: first.ID, ContentType: first.ContentType, IsFree: true}); err != nil {
			return err
		}
		second = billing.ContentItem{ContentType: billing.ContentAccounting}
		if err := tx.InsertContentItem(ctx, &second); err != nil {
			return err
		}
		return tx.InsertUsageLog(ctx, &billing.UsageLog{ContentItemID: second.ID, ContentType: second.ContentType})
	})
	require.NoError(t, err)

	err = s.WithCompanyLock(ctx, c.ID, func(tx store.CompanyTx) error {
		return tx.InsertContentItem(ctx, &billing.ContentItem{ContentType: billing.ContentSchedule})
	})
	assert.ErrorIs(t, err, billing.ErrContentAlreadyActive)

	// Cancel the free item; the free flag moves to the remaining item.
	err = s.WithCompanyLock(ctx, c.ID, func(tx store.CompanyTx) error {
		cancelled, err := tx.CancelContentItems(ctx, []uuid.UUID{first.ID}, time.Now())
		if err != nil {
			return err
		}
		require.Len(t, cancelled, 1)
		n, err := tx.RecordCancellations(ctx, []billing.CancellationRecord{{ContentItemID: first.ID, ContentType: first.ContentType, CancelledAt: time.Now()}})
		if err != nil {
			return err
		}
		require.Equal(t, 1, n)
		return tx.RedesignateFree(ctx)
	})
	require.NoError(t, err)

	logs, err := s.UsageLogs(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, l.ContentItemID == second.ID, l.IsFree, "usage %s", l.ContentType)
	}

	// Repeating the cancel changes nothing.
	err = s.WithCompanyLock(ctx, c.ID, func(tx store.CompanyTx) error {
		cancelled, err := tx.CancelContentItems(ctx, []uuid.UUID{first.ID}, time.Now())
		assert.Empty(t, cancelled)
		n, _ := tx.RecordCancellations(ctx, []billing.CancellationRecord{{ContentItemID: first.ID, ContentType: first.ContentType, CancelledAt: time.Now()}})
		assert.Zero(t, n)
		return err
	})
	require.NoError(t, err)

	recs, err := s.Cancellations(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	err = s.WithCompanyLock(ctx, uuid.New(), func(store.CompanyTx) error { return nil })
	assert.ErrorIs(t, err, billing.ErrCompanyNotFound)
}

func TestConversationStateCAS(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	user := "U" + uuid.NewString()

	st, err := s.ConversationState(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, st.Version)

	v1, err := s.SaveConversationState(ctx, billing.ConversationState{ChatUserID: user, State: "add_select"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	_, err = s.SaveConversationState(ctx, billing.ConversationState{ChatUserID: user, State: "add_select"})
	assert.ErrorIs(t, err, billing.ErrStateConflict, "second insert loses")

	v2, err := s.SaveConversationState(ctx, billing.ConversationState{
		ChatUserID: user, State: "add_confirm", Payload: []byte(`{"selection":2}`), Version: v1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	_, err = s.SaveConversationState(ctx, billing.ConversationState{ChatUserID: user, State: "welcome_sent", Version: v1})
	assert.ErrorIs(t, err, billing.ErrStateConflict, "stale version loses")

	st, err = s.ConversationState(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "add_confirm", st.State)
	assert.JSONEq(t, `{"selection":2}`, string(st.Payload))

	require.NoError(t, s.DeleteConversationState(ctx, user))
	st, err = s.ConversationState(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, st.Version)
}
