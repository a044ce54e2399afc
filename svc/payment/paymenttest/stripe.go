// Package paymenttest provides an in-memory Stripe that keeps subscription
// items and invoice items so billing flows can be tested end to end.
package paymenttest

import (
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/dmitrymomot/linebilling/svc/payment"
)

var _ payment.StripeProvider = (*Stripe)(nil)

// Call records one mutating request.
type Call struct {
	Op             string
	ID             string
	Quantity       int64
	Proration      string
	IdempotencyKey string
}

// Stripe is a concurrency-safe fake of the subscription APIs.
type Stripe struct {
	mu       sync.Mutex
	subs     map[string]*stripe.Subscription
	invoices []*stripe.InvoiceItem
	calls    []Call
	seq      int
	seen     map[string]any // idempotency key -> first response

	// Fail, when set, is consulted before every request; a non-nil result
	// is returned as the provider error.
	Fail func(op string) error
}

// New returns an empty fake.
func New() *Stripe {
	return &Stripe{
		subs: make(map[string]*stripe.Subscription),
		seen: make(map[string]any),
	}
}

// Unavailable is the error Stripe returns when the API is down.
func Unavailable() error {
	return &stripe.Error{HTTPStatusCode: http.StatusServiceUnavailable, Type: stripe.ErrorTypeAPI, Msg: "service unavailable"}
}

// AddSubscription registers a subscription whose current period started at
// start and lasts one month. Items are given as price id to quantity.
func (s *Stripe) AddSubscription(id, customerID string, status stripe.SubscriptionStatus, start time.Time, items ...*stripe.SubscriptionItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &stripe.Subscription{
		ID:                 id,
		Customer:           &stripe.Customer{ID: customerID},
		Status:             status,
		CurrentPeriodStart: start.Unix(),
		CurrentPeriodEnd:   start.AddDate(0, 1, 0).Unix(),
		Items:              &stripe.SubscriptionItemList{},
	}
	for _, it := range items {
		if it.ID == "" {
			it.ID = s.nextID("si")
		}
		it.Subscription = id
		sub.Items.Data = append(sub.Items.Data, it)
	}
	s.subs[id] = sub
}

// Item returns a recurring item with the given price and quantity.
func Item(priceID string, quantity int64) *stripe.SubscriptionItem {
	return &stripe.SubscriptionItem{Price: &stripe.Price{ID: priceID}, Quantity: quantity}
}

// Quantity returns the summed quantity of the items with priceID.
func (s *Stripe) Quantity(subID, priceID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, it := range s.items(subID) {
		if it.Price != nil && it.Price.ID == priceID {
			n += it.Quantity
		}
	}
	return n
}

// ItemCount returns the number of items with priceID.
func (s *Stripe) ItemCount(subID, priceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items(subID) {
		if it.Price != nil && it.Price.ID == priceID {
			n++
		}
	}
	return n
}

// Calls returns the mutating requests received so far.
func (s *Stripe) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// InvoiceItems returns the invoice items created so far.
func (s *Stripe) InvoiceItems() []*stripe.InvoiceItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.invoices)
}

// Status returns the subscription status, or "" for unknown ids.
func (s *Stripe) Status(subID string) stripe.SubscriptionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[subID]; ok {
		return sub.Status
	}
	return ""
}

// SetStatus changes the status of a subscription, as a trial ending or a
// failed payment would.
func (s *Stripe) SetStatus(subID string, status stripe.SubscriptionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[subID]; ok {
		sub.Status = status
	}
}

func (s *Stripe) GetSubscription(id string, _ *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("get_subscription"); err != nil {
		return nil, err
	}
	sub, ok := s.subs[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneSubscription(sub), nil
}

func (s *Stripe) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("update_subscription"); err != nil {
		return nil, err
	}
	sub, ok := s.subs[id]
	if !ok {
		return nil, notFound(id)
	}
	if params.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *params.CancelAtPeriodEnd
	}
	s.calls = append(s.calls, Call{Op: "update_subscription", ID: id})
	return cloneSubscription(sub), nil
}

func (s *Stripe) CancelSubscription(id string, _ *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("cancel_subscription"); err != nil {
		return nil, err
	}
	sub, ok := s.subs[id]
	if !ok {
		return nil, notFound(id)
	}
	sub.Status = stripe.SubscriptionStatusCanceled
	s.calls = append(s.calls, Call{Op: "cancel_subscription", ID: id})
	return cloneSubscription(sub), nil
}

func (s *Stripe) CreateSubscriptionItem(params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("create_subscription_item"); err != nil {
		return nil, err
	}
	if prev, ok := s.seen[idempotencyKey(&params.Params)].(*stripe.SubscriptionItem); ok {
		return prev, nil
	}
	subID := stripe.StringValue(params.Subscription)
	sub, ok := s.subs[subID]
	if !ok {
		return nil, notFound(subID)
	}
	item := &stripe.SubscriptionItem{
		ID:           s.nextID("si"),
		Price:        &stripe.Price{ID: stripe.StringValue(params.Price)},
		Quantity:     stripe.Int64Value(params.Quantity),
		Subscription: subID,
	}
	sub.Items.Data = append(sub.Items.Data, item)
	s.record("create_subscription_item", item.ID, item.Quantity, params.ProrationBehavior, &params.Params)
	cp := *item
	s.remember(&params.Params, &cp)
	return &cp, nil
}

func (s *Stripe) UpdateSubscriptionItem(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("update_subscription_item"); err != nil {
		return nil, err
	}
	item := s.findItem(id)
	if item == nil {
		return nil, notFound(id)
	}
	if params.Quantity != nil {
		if *params.Quantity < 0 {
			return nil, &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Type: stripe.ErrorTypeInvalidRequest, Msg: "quantity must be non-negative"}
		}
		item.Quantity = *params.Quantity
	}
	s.record("update_subscription_item", id, item.Quantity, params.ProrationBehavior, &params.Params)
	cp := *item
	return &cp, nil
}

func (s *Stripe) DeleteSubscriptionItem(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("delete_subscription_item"); err != nil {
		return nil, err
	}
	for _, sub := range s.subs {
		for i, it := range sub.Items.Data {
			if it.ID == id {
				sub.Items.Data = slices.Delete(sub.Items.Data, i, i+1)
				s.record("delete_subscription_item", id, 0, params.ProrationBehavior, &params.Params)
				return &stripe.SubscriptionItem{ID: id, Deleted: true}, nil
			}
		}
	}
	return nil, notFound(id)
}

func (s *Stripe) CreateInvoiceItem(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("create_invoice_item"); err != nil {
		return nil, err
	}
	if prev, ok := s.seen[idempotencyKey(&params.Params)].(*stripe.InvoiceItem); ok {
		return prev, nil
	}
	item := &stripe.InvoiceItem{
		ID:          s.nextID("ii"),
		Amount:      stripe.Int64Value(params.Amount),
		Currency:    stripe.Currency(stripe.StringValue(params.Currency)),
		Customer:    &stripe.Customer{ID: stripe.StringValue(params.Customer)},
		Description: stripe.StringValue(params.Description),
	}
	if params.Period != nil {
		item.Period = &stripe.Period{Start: stripe.Int64Value(params.Period.Start), End: stripe.Int64Value(params.Period.End)}
	}
	s.invoices = append(s.invoices, item)
	s.record("create_invoice_item", item.ID, 1, nil, &params.Params)
	s.remember(&params.Params, item)
	return item, nil
}

func (s *Stripe) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

func (s *Stripe) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%04d", prefix, s.seq)
}

func (s *Stripe) items(subID string) []*stripe.SubscriptionItem {
	sub, ok := s.subs[subID]
	if !ok {
		return nil
	}
	return sub.Items.Data
}

func (s *Stripe) findItem(id string) *stripe.SubscriptionItem {
	for _, sub := range s.subs {
		for _, it := range sub.Items.Data {
			if it.ID == id {
				return it
			}
		}
	}
	return nil
}

func (s *Stripe) record(op, id string, qty int64, proration *string, p *stripe.Params) {
	s.calls = append(s.calls, Call{
		Op:             op,
		ID:             id,
		Quantity:       qty,
		Proration:      stripe.StringValue(proration),
		IdempotencyKey: idempotencyKey(p),
	})
}

func (s *Stripe) remember(p *stripe.Params, v any) {
	if key := idempotencyKey(p); key != "" {
		s.seen[key] = v
	}
}

func idempotencyKey(p *stripe.Params) string {
	return stripe.StringValue(p.IdempotencyKey)
}

func notFound(id string) error {
	return &stripe.Error{
		HTTPStatusCode: http.StatusNotFound,
		Type:           stripe.ErrorTypeInvalidRequest,
		Code:           stripe.ErrorCodeResourceMissing,
		Msg:            "No such object: " + id,
	}
}

func cloneSubscription(sub *stripe.Subscription) *stripe.Subscription {
	cp := *sub
	cp.Items = &stripe.SubscriptionItemList{}
	for _, it := range sub.Items.Data {
		ic := *it
		cp.Items.Data = append(cp.Items.Data, &ic)
	}
	return &cp
}
