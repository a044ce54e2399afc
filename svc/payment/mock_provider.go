package payment

import "github.com/stripe/stripe-go/v76"

// MockStripeProvider is a StripeProvider backed by function fields.
// Unset fields return a minimal successful response.
type MockStripeProvider struct {
	GetSubscriptionFn        func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	UpdateSubscriptionFn     func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CancelSubscriptionFn     func(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	CreateSubscriptionItemFn func(params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	UpdateSubscriptionItemFn func(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	DeleteSubscriptionItemFn func(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	CreateInvoiceItemFn      func(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
}

func (m *MockStripeProvider) GetSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if m.GetSubscriptionFn != nil {
		return m.GetSubscriptionFn(id, params)
	}
	return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusActive}, nil
}

func (m *MockStripeProvider) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if m.UpdateSubscriptionFn != nil {
		return m.UpdateSubscriptionFn(id, params)
	}
	return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusActive}, nil
}

func (m *MockStripeProvider) CancelSubscription(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	if m.CancelSubscriptionFn != nil {
		return m.CancelSubscriptionFn(id, params)
	}
	return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusCanceled}, nil
}

func (m *MockStripeProvider) CreateSubscriptionItem(params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	if m.CreateSubscriptionItemFn != nil {
		return m.CreateSubscriptionItemFn(params)
	}
	return &stripe.SubscriptionItem{ID: "si_mock123", Quantity: stripe.Int64Value(params.Quantity)}, nil
}

func (m *MockStripeProvider) UpdateSubscriptionItem(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	if m.UpdateSubscriptionItemFn != nil {
		return m.UpdateSubscriptionItemFn(id, params)
	}
	return &stripe.SubscriptionItem{ID: id, Quantity: stripe.Int64Value(params.Quantity)}, nil
}

func (m *MockStripeProvider) DeleteSubscriptionItem(id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	if m.DeleteSubscriptionItemFn != nil {
		return m.DeleteSubscriptionItemFn(id, params)
	}
	return &stripe.SubscriptionItem{ID: id, Deleted: true}, nil
}

func (m *MockStripeProvider) CreateInvoiceItem(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error) {
	if m.CreateInvoiceItemFn != nil {
		return m.CreateInvoiceItemFn(params)
	}
	return &stripe.InvoiceItem{ID: "ii_mock123"}, nil
}
