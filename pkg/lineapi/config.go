package lineapi

import "time"

// Config holds the Messaging API settings.
type Config struct {
	ChannelAccessToken string        `env:"LINE_CHANNEL_ACCESS_TOKEN,required"`
	BaseURL            string        `env:"LINE_API_BASE_URL" envDefault:"https://api.line.me"`
	Timeout            time.Duration `env:"LINE_TIMEOUT" envDefault:"5s"`
	ReplyRetries       int           `env:"LINE_REPLY_RETRIES" envDefault:"1"`
	PushRetries        int           `env:"LINE_PUSH_RETRIES" envDefault:"3"`
	BreakerThreshold   int           `env:"LINE_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerRecovery    time.Duration `env:"LINE_BREAKER_RECOVERY" envDefault:"30s"`
}
