package billing_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/svc/billing"
)

func TestBillableCount(t *testing.T) {
	t.Parallel()

	for active, want := range map[int]int{0: 0, 1: 0, 2: 1, 3: 2, 10: 9} {
		assert.Equal(t, want, billing.BillableCount(active), "active=%d", active)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want billing.Kind
	}{
		{"nil", nil, ""},
		{"company missing", fmt.Errorf("lookup: %w", billing.ErrCompanyNotFound), billing.KindNotRegistered},
		{"no subscription", billing.ErrSubscriptionNotFound, billing.KindSubscriptionInactive},
		{"already active", billing.ErrContentAlreadyActive, billing.KindInvalidSelection},
		{"gateway joined", errors.Join(billing.ErrPaymentGatewayUnavailable, errors.New("timeout")), billing.KindPaymentGatewayUnavailable},
		{"gateway wins over drift", errors.Join(billing.ErrDriftDetected, billing.ErrPaymentGatewayUnavailable), billing.KindPaymentGatewayUnavailable},
		{"drift", billing.ErrDriftDetected, billing.KindDriftDetected},
		{"unknown", errors.New("connection reset"), billing.KindSystemError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, billing.KindOf(tt.err))
		})
	}
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	active := []billing.ContentItem{
		{ContentType: billing.ContentAccounting, Status: billing.ContentActive},
		{ContentType: billing.ContentSchedule, Status: billing.ContentCancelled},
	}
	got := billing.Available(active)
	require.Len(t, got, 2)
	assert.Equal(t, billing.ContentSchedule, got[0].Type)
	assert.Equal(t, billing.ContentTask, got[1].Type)
}

func TestNewStatement(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []billing.ContentItem{
		{ID: uuid.New(), ContentType: billing.ContentTask, Status: billing.ContentActive, CreatedAt: now.Add(2 * time.Hour)},
		{ID: uuid.New(), ContentType: billing.ContentSchedule, Status: billing.ContentActive, CreatedAt: now},
		{ID: uuid.New(), ContentType: billing.ContentAccounting, Status: billing.ContentCancelled, CreatedAt: now.Add(time.Hour)},
	}
	sub := &billing.MonthlySubscription{Status: billing.SubscriptionTrialing, CurrentPeriodEnd: now.AddDate(0, 1, 0)}

	st := billing.NewStatement(sub, items)
	require.Len(t, st.Items, 2)
	assert.Equal(t, billing.ContentSchedule, st.Items[0].Item.ContentType)
	assert.True(t, st.Items[0].Free)
	assert.Zero(t, st.Items[0].Price.Amount)
	assert.False(t, st.Items[1].Free)
	assert.Equal(t, int64(1500), st.Items[1].Price.Amount)
	assert.Equal(t, int64(3900+1500), st.Total.Amount)
	assert.True(t, st.Trialing)
	assert.Equal(t, sub.CurrentPeriodEnd, st.RenewsAt)
}

func TestSortByCreatedTieBreak(t *testing.T) {
	t.Parallel()

	ts := time.Now()
	a := billing.ContentItem{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), CreatedAt: ts}
	b := billing.ContentItem{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: ts}
	items := []billing.ContentItem{a, b}
	billing.SortByCreated(items)
	assert.Equal(t, b.ID, items[0].ID)
}

func TestSubscriptionStatusEntitled(t *testing.T) {
	t.Parallel()

	assert.True(t, billing.SubscriptionActive.Entitled())
	assert.True(t, billing.SubscriptionTrialing.Entitled())
	assert.False(t, billing.SubscriptionPastDue.Entitled())
	assert.False(t, billing.SubscriptionCanceled.Entitled())
}
