// Package storetest provides an in-memory persistence gateway with the same
// locking, idempotency and compare-and-swap semantics as the Postgres store.
package storetest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/store"
)

// Memory is a concurrency-safe in-memory gateway for tests.
type Memory struct {
	mu        sync.RWMutex
	companies map[uuid.UUID]billing.Company
	subs      map[uuid.UUID]billing.MonthlySubscription
	contents  map[uuid.UUID]billing.ContentItem
	usage     map[uuid.UUID]billing.UsageLog
	cancels   map[uuid.UUID]billing.CancellationRecord // keyed by content item id
	states    map[string]billing.ConversationState

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	clockMu sync.Mutex
	last    time.Time

	// Fail, when set, is consulted before every operation; a non-nil
	// result is returned as the operation error.
	Fail func(op string) error
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{
		companies: make(map[uuid.UUID]billing.Company),
		subs:      make(map[uuid.UUID]billing.MonthlySubscription),
		contents:  make(map[uuid.UUID]billing.ContentItem),
		usage:     make(map[uuid.UUID]billing.UsageLog),
		cancels:   make(map[uuid.UUID]billing.CancellationRecord),
		states:    make(map[string]billing.ConversationState),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// now returns a strictly increasing timestamp so creation order is total.
func (m *Memory) now() time.Time {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	t := time.Now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func (m *Memory) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

// CreateCompany inserts c.
func (m *Memory) CreateCompany(_ context.Context, c *billing.Company) error {
	if err := m.fail("create_company"); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = billing.CompanyActive
	}
	c.CreatedAt = m.now()
	c.UpdatedAt = c.CreatedAt

	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.ID] = *c
	return nil
}

func (m *Memory) Company(_ context.Context, id uuid.UUID) (*billing.Company, error) {
	if err := m.fail("company"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[id]
	if !ok {
		return nil, billing.ErrCompanyNotFound
	}
	return &c, nil
}

func (m *Memory) CompanyByLineUser(_ context.Context, lineUserID string) (*billing.Company, error) {
	if err := m.fail("company_by_line_user"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.companies {
		if lineUserID != "" && c.LineUserID == lineUserID {
			return &c, nil
		}
	}
	return nil, billing.ErrCompanyNotFound
}

func (m *Memory) LinkLineUser(_ context.Context, email, lineUserID string) (*billing.Company, error) {
	if err := m.fail("link_line_user"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var target *billing.Company
	for id, c := range m.companies {
		if c.LineUserID == lineUserID && c.Email != email {
			return nil, billing.ErrEmailAlreadyLinked
		}
		if c.Email == email {
			cp := m.companies[id]
			target = &cp
		}
	}
	if target == nil {
		return nil, billing.ErrCompanyNotFound
	}
	if target.LineUserID != "" && target.LineUserID != lineUserID {
		return nil, billing.ErrEmailAlreadyLinked
	}
	target.LineUserID = lineUserID
	target.UpdatedAt = m.now()
	m.companies[target.ID] = *target
	return target, nil
}

func (m *Memory) UnlinkLineUser(_ context.Context, lineUserID string) error {
	if err := m.fail("unlink_line_user"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.companies {
		if c.LineUserID == lineUserID {
			c.LineUserID = ""
			m.companies[id] = c
		}
	}
	return nil
}

func (m *Memory) Subscription(_ context.Context, companyID uuid.UUID) (*billing.MonthlySubscription, error) {
	if err := m.fail("subscription"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[companyID]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (m *Memory) SaveSubscription(_ context.Context, sub billing.MonthlySubscription) error {
	if err := m.fail("save_subscription"); err != nil {
		return err
	}
	sub.UpdatedAt = m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.CompanyID] = sub
	return nil
}

func (m *Memory) ContentItems(_ context.Context, companyID uuid.UUID) ([]billing.ContentItem, error) {
	if err := m.fail("content_items"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.companyContents(companyID, nil), nil
}

// companyContents must be called with mu held.
func (m *Memory) companyContents(companyID uuid.UUID, overlay map[uuid.UUID]billing.ContentItem) []billing.ContentItem {
	var out []billing.ContentItem
	for id, it := range m.contents {
		if it.CompanyID != companyID {
			continue
		}
		if o, ok := overlay[id]; ok {
			it = o
		}
		out = append(out, it)
	}
	for id, it := range overlay {
		if _, ok := m.contents[id]; !ok {
			out = append(out, it)
		}
	}
	billing.SortByCreated(out)
	return out
}

func (m *Memory) UsageLogs(_ context.Context, companyID uuid.UUID) ([]billing.UsageLog, error) {
	if err := m.fail("usage_logs"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.UsageLog
	for _, u := range m.usage {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b billing.UsageLog) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *Memory) Cancellations(_ context.Context, companyID uuid.UUID) ([]billing.CancellationRecord, error) {
	if err := m.fail("cancellations"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.CancellationRecord
	for _, r := range m.cancels {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b billing.CancellationRecord) int { return a.CancelledAt.Compare(b.CancelledAt) })
	return out, nil
}

func (m *Memory) SetPendingCharge(_ context.Context, usageID uuid.UUID, pending bool) error {
	if err := m.fail("set_pending_charge"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.usage[usageID]; ok {
		u.PendingCharge = pending
		m.usage[usageID] = u
	}
	return nil
}

func (m *Memory) MarkUsageCharged(_ context.Context, usageID uuid.UUID, externalID string, at time.Time) error {
	if err := m.fail("mark_usage_charged"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.usage[usageID]; ok {
		u.ExternalUsageRecordID = externalID
		u.ChargedAt = &at
		u.PendingCharge = false
		m.usage[usageID] = u
	}
	return nil
}

// WithCompanyLock serializes fn per company. Writes made through the
// transaction become visible only when fn returns nil.
func (m *Memory) WithCompanyLock(ctx context.Context, companyID uuid.UUID, fn func(store.CompanyTx) error) error {
	if err := m.fail("lock_company"); err != nil {
		return err
	}
	m.mu.RLock()
	_, ok := m.companies[companyID]
	m.mu.RUnlock()
	if !ok {
		return billing.ErrCompanyNotFound
	}

	lock := m.companyLock(companyID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{
		m:         m,
		companyID: companyID,
		contents:  make(map[uuid.UUID]billing.ContentItem),
		usage:     make(map[uuid.UUID]billing.UsageLog),
		cancels:   make(map[uuid.UUID]billing.CancellationRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := m.fail("commit"); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *Memory) companyLock(id uuid.UUID) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Memory) ConversationState(_ context.Context, chatUserID string) (*billing.ConversationState, error) {
	if err := m.fail("conversation_state"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[chatUserID]
	if !ok {
		return &billing.ConversationState{ChatUserID: chatUserID}, nil
	}
	st.Payload = slices.Clone(st.Payload)
	return &st, nil
}

func (m *Memory) SaveConversationState(_ context.Context, st billing.ConversationState) (int64, error) {
	if err := m.fail("save_conversation_state"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.states[st.ChatUserID]
	switch {
	case st.Version == 0 && ok:
		return 0, billing.ErrStateConflict
	case st.Version != 0 && (!ok || cur.Version != st.Version):
		return 0, billing.ErrStateConflict
	}
	st.Version++
	st.Payload = slices.Clone(st.Payload)
	st.UpdatedAt = m.now()
	m.states[st.ChatUserID] = st
	return st.Version, nil
}

func (m *Memory) DeleteConversationState(_ context.Context, chatUserID string) error {
	if err := m.fail("delete_conversation_state"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, chatUserID)
	return nil
}
