package reconcile

// ChargeMode selects how an added content item is charged at the provider.
type ChargeMode string

const (
	// ChargeSubscriptionItem raises the additional item quantity and lets the
	// provider prorate the current period.
	ChargeSubscriptionItem ChargeMode = "subscription_item"
	// ChargeInvoiceItem bills the current period with a one-off invoice item
	// and raises the quantity without proration.
	ChargeInvoiceItem ChargeMode = "invoice_item"
)

// Config holds the billing settings. Prices come from the catalog in
// package billing, the same figures the user is quoted.
type Config struct {
	AddChargeMode ChargeMode `env:"BILLING_ADD_CHARGE_MODE" envDefault:"subscription_item"`
}

func (c Config) withDefaults() Config {
	if c.AddChargeMode != ChargeInvoiceItem {
		c.AddChargeMode = ChargeSubscriptionItem
	}
	return c
}
