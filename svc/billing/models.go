package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Company is a tenant that owns a LINE official account.
type Company struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Status     CompanyStatus
	LineUserID string // empty until the owner links their chat account
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MonthlySubscription is the local snapshot of the company's base plan at the
// payment provider. At most one per company.
type MonthlySubscription struct {
	CompanyID             uuid.UUID
	PaymentSubscriptionID string
	PaymentCustomerID     string
	Status                SubscriptionStatus
	CancelAtPeriodEnd     bool
	CurrentPeriodStart    time.Time
	CurrentPeriodEnd      time.Time
	UpdatedAt             time.Time
}

// ContentItem is one enabled (or formerly enabled) content product.
// The earliest-created active item of a company is the free one.
type ContentItem struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	ContentType ContentType
	Status      ContentStatus
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// UsageLog is an append-only billing event. Its ID doubles as the payment
// provider idempotency key.
type UsageLog struct {
	ID                    uuid.UUID
	CompanyID             uuid.UUID
	ContentItemID         uuid.UUID
	ContentType           ContentType
	IsFree                bool
	PendingCharge         bool
	ExternalUsageRecordID string
	CreatedAt             time.Time
	ChargedAt             *time.Time
}

// CancellationRecord is the audit row written once per cancelled content item.
type CancellationRecord struct {
	ID            uuid.UUID
	CompanyID     uuid.UUID
	ContentItemID uuid.UUID
	ContentType   ContentType
	CancelledAt   time.Time
}

// ConversationState is the persisted position of a chat user in the dialog.
// Version is bumped on every save and used for compare-and-swap.
type ConversationState struct {
	ChatUserID string
	State      string
	Payload    json.RawMessage
	Version    int64
	UpdatedAt  time.Time
}
