package payment

import "time"

// Config holds the Stripe settings.
type Config struct {
	SecretKey string `env:"STRIPE_SECRET_KEY,required"`
	// AdditionalPriceID is the recurring price of one additional content item.
	AdditionalPriceID string        `env:"STRIPE_ADDITIONAL_PRICE_ID,required"`
	Timeout           time.Duration `env:"STRIPE_TIMEOUT" envDefault:"10s"`
	RateLimit         float64       `env:"STRIPE_RATE_LIMIT" envDefault:"20"`
	RateBurst         int           `env:"STRIPE_RATE_BURST" envDefault:"5"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	return c
}
