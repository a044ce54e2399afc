package billing

// CompanyStatus is the lifecycle state of a company record.
type CompanyStatus string

const (
	CompanyActive    CompanyStatus = "active"
	CompanyCancelled CompanyStatus = "cancelled"
)

// SubscriptionStatus mirrors the payment provider's subscription status.
type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Entitled reports whether the status grants access to the bot.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// ContentStatus is the lifecycle state of a content item row.
type ContentStatus string

const (
	ContentActive    ContentStatus = "active"
	ContentInactive  ContentStatus = "inactive"
	ContentCancelled ContentStatus = "cancelled"
)

// ContentType identifies a bot-delivered content product.
type ContentType string

const (
	ContentSchedule   ContentType = "ai_schedule"
	ContentAccounting ContentType = "ai_accounting"
	ContentTask       ContentType = "ai_task"
)

// Money is an amount in the smallest currency unit. JPY has no minor unit,
// so 1500 JPY is Amount: 1500.
type Money struct {
	Amount   int64
	Currency string
}

// Add returns m plus n times other. Currencies are assumed equal.
func (m Money) Add(other Money, n int) Money {
	return Money{Amount: m.Amount + other.Amount*int64(n), Currency: m.Currency}
}
