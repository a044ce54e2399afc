package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/entitlement"
	"github.com/dmitrymomot/linebilling/svc/store/storetest"
)

var now = time.Date(2026, 5, 15, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func seed(t *testing.T, m *storetest.Memory, lineUser string, sub *billing.MonthlySubscription, status billing.CompanyStatus) *billing.Company {
	t.Helper()
	ctx := context.Background()
	c := &billing.Company{Name: "acme", Email: lineUser + "@example.com", LineUserID: lineUser, Status: status}
	require.NoError(t, m.CreateCompany(ctx, c))
	if sub != nil {
		sub.CompanyID = c.ID
		require.NoError(t, m.SaveSubscription(ctx, *sub))
	}
	return c
}

func subscription(status billing.SubscriptionStatus, end time.Time) *billing.MonthlySubscription {
	return &billing.MonthlySubscription{
		PaymentSubscriptionID: "sub_1",
		Status:                status,
		CurrentPeriodStart:    end.AddDate(0, -1, 0),
		CurrentPeriodEnd:      end,
	}
}

func TestResolveChatUser(t *testing.T) {
	t.Parallel()

	m := storetest.New()
	seed(t, m, "U-active", subscription(billing.SubscriptionActive, now.Add(24*time.Hour)), billing.CompanyActive)
	seed(t, m, "U-trial", subscription(billing.SubscriptionTrialing, now.Add(time.Hour)), billing.CompanyActive)
	seed(t, m, "U-pastdue", subscription(billing.SubscriptionPastDue, now.Add(time.Hour)), billing.CompanyActive)
	seed(t, m, "U-expired", subscription(billing.SubscriptionActive, now), billing.CompanyActive)
	seed(t, m, "U-nosub", nil, billing.CompanyActive)
	seed(t, m, "U-cancelled", subscription(billing.SubscriptionActive, now.Add(time.Hour)), billing.CompanyCancelled)

	r := entitlement.New(m, entitlement.WithClock(clock))

	tests := []struct {
		user    string
		allowed bool
		reason  billing.Kind
	}{
		{"U-active", true, ""},
		{"U-trial", true, ""},
		{"U-pastdue", false, billing.KindSubscriptionInactive},
		{"U-expired", false, billing.KindSubscriptionInactive},
		{"U-nosub", false, billing.KindSubscriptionInactive},
		{"U-cancelled", false, billing.KindSubscriptionInactive},
		{"U-unknown", false, billing.KindNotRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			t.Parallel()
			d, err := r.ResolveChatUser(context.Background(), tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.allowed {
				assert.NoError(t, d.Err())
			} else {
				assert.Equal(t, tt.reason, billing.KindOf(d.Err()))
			}
		})
	}
}

func TestResolveCompanyFailsClosed(t *testing.T) {
	t.Parallel()

	m := storetest.New()
	c := seed(t, m, "U-1", subscription(billing.SubscriptionActive, now.Add(time.Hour)), billing.CompanyActive)
	m.Fail = func(op string) error {
		if op == "subscription" {
			return errors.New("connection reset")
		}
		return nil
	}

	d, err := entitlement.New(m, entitlement.WithClock(clock)).ResolveCompany(context.Background(), c.ID)
	require.Error(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, billing.KindSystemError, d.Reason)
	assert.Equal(t, billing.KindSystemError, billing.KindOf(err))
	assert.NotNil(t, d.Company)
}

func TestNewPanicsOnNilStore(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { entitlement.New(nil) })
}
