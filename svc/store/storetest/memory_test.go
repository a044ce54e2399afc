package storetest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/store"
	"github.com/dmitrymomot/linebilling/svc/store/storetest"
)

func TestWithCompanyLockRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := storetest.New()
	c := &billing.Company{Name: "acme", Email: "a@example.com"}
	require.NoError(t, m.CreateCompany(ctx, c))

	boom := errors.New("boom")
	err := m.WithCompanyLock(ctx, c.ID, func(tx store.CompanyTx) error {
		if err := tx.InsertContentItem(ctx, &billing.ContentItem{ContentType: billing.ContentTask}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	items, err := m.ContentItems(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestConversationStateCAS(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := storetest.New()

	v, err := m.SaveConversationState(ctx, billing.ConversationState{ChatUserID: "U1", State: "add_select"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = m.SaveConversationState(ctx, billing.ConversationState{ChatUserID: "U1", State: "x"})
	assert.ErrorIs(t, err, billing.ErrStateConflict)

	_, err = m.SaveConversationState(ctx, billing.ConversationState{ChatUserID: "U1", State: "x", Version: 7})
	assert.ErrorIs(t, err, billing.ErrStateConflict)

	v, err = m.SaveConversationState(ctx, billing.ConversationState{ChatUserID: "U1", State: "add_confirm", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestLinkLineUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := storetest.New()
	require.NoError(t, m.CreateCompany(ctx, &billing.Company{Name: "a", Email: "a@example.com"}))
	require.NoError(t, m.CreateCompany(ctx, &billing.Company{Name: "b", Email: "b@example.com", LineUserID: "U-b"}))

	c, err := m.LinkLineUser(ctx, "a@example.com", "U-a")
	require.NoError(t, err)
	assert.Equal(t, "U-a", c.LineUserID)

	_, err = m.LinkLineUser(ctx, "b@example.com", "U-a")
	assert.ErrorIs(t, err, billing.ErrEmailAlreadyLinked)

	_, err = m.LinkLineUser(ctx, "none@example.com", "U-z")
	assert.ErrorIs(t, err, billing.ErrCompanyNotFound)
}

func TestTxUsageLogsSeesUncommittedRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := storetest.New()
	c := &billing.Company{Name: "acme", Email: "a@example.com"}
	require.NoError(t, m.CreateCompany(ctx, c))

	err := m.WithCompanyLock(ctx, c.ID, func(tx store.CompanyTx) error {
		item := &billing.ContentItem{ContentType: billing.ContentTask}
		require.NoError(t, tx.InsertContentItem(ctx, item))
		require.NoError(t, tx.InsertUsageLog(ctx, &billing.UsageLog{ContentItemID: item.ID, ContentType: item.ContentType, IsFree: true}))

		rows, err := tx.UsageLogs(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, item.ID, rows[0].ContentItemID)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, m.SetPendingCharge(ctx, uuidOfOnlyRow(t, m, c), true))
	err = m.WithCompanyLock(ctx, c.ID, func(tx store.CompanyTx) error {
		rows, err := tx.UsageLogs(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].PendingCharge, "committed writes are visible")
		return nil
	})
	require.NoError(t, err)
}

func uuidOfOnlyRow(t *testing.T, m *storetest.Memory, c *billing.Company) uuid.UUID {
	t.Helper()
	logs, err := m.UsageLogs(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	return logs[0].ID
}
