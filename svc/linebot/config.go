package linebot

import (
	"time"

	"github.com/dmitrymomot/linebilling/pkg/ratelimiter"
)

// Config holds the webhook settings.
type Config struct {
	// Path the webhook is mounted on.
	Path string `env:"LINE_WEBHOOK_PATH" envDefault:"/line/webhook"`
	// DedupTTL is how long a webhookEventId is remembered. LINE redelivers
	// for up to a day, so shorter values let late redeliveries through.
	DedupTTL    time.Duration `env:"LINE_EVENT_DEDUP_TTL" envDefault:"24h"`
	DedupPrefix string        `env:"LINE_EVENT_DEDUP_PREFIX" envDefault:"linebot:event:"`
	// EventTimeout bounds the processing of a single event, reply included.
	EventTimeout time.Duration `env:"LINE_EVENT_TIMEOUT" envDefault:"25s"`
	// RateCapacity messages a user may send in a burst; one more is allowed
	// every RateInterval.
	RateCapacity int           `env:"LINE_USER_RATE_CAPACITY" envDefault:"10"`
	RateInterval time.Duration `env:"LINE_USER_RATE_INTERVAL" envDefault:"3s"`
	RatePrefix   string        `env:"LINE_USER_RATE_PREFIX" envDefault:"linebot:rate:"`
	// Workers is the number of chat users whose events are handled in parallel.
	Workers      int   `env:"LINE_WEBHOOK_WORKERS" envDefault:"8"`
	MaxBodyBytes int64 `env:"LINE_WEBHOOK_MAX_BODY" envDefault:"1048576"`
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/line/webhook"
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 24 * time.Hour
	}
	if c.DedupPrefix == "" {
		c.DedupPrefix = "linebot:event:"
	}
	if c.RateCapacity <= 0 {
		c.RateCapacity = 10
	}
	if c.RateInterval <= 0 {
		c.RateInterval = 3 * time.Second
	}
	if c.RatePrefix == "" {
		c.RatePrefix = "linebot:rate:"
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 25 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	return c
}

// RateLimit returns the per-user token bucket settings.
func (c Config) RateLimit() ratelimiter.Config {
	c = c.withDefaults()
	return ratelimiter.Config{Capacity: c.RateCapacity, RefillRate: 1, RefillInterval: c.RateInterval}
}
