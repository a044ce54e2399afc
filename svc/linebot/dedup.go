package linebot

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator remembers which webhook events were already taken.
type Deduplicator interface {
	// Claim returns true the first time id is seen within the TTL.
	Claim(ctx context.Context, id string) (bool, error)
}

// RedisDeduplicator claims event ids with SET NX.
type RedisDeduplicator struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisDeduplicator returns a Deduplicator storing keys under cfg.DedupPrefix.
func NewRedisDeduplicator(client redis.UniversalClient, cfg Config) *RedisDeduplicator {
	if client == nil {
		panic("linebot: redis client is required")
	}
	cfg = cfg.withDefaults()
	return &RedisDeduplicator{client: client, prefix: cfg.DedupPrefix, ttl: cfg.DedupTTL}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+id, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, errors.Join(ErrDedup, err)
	}
	return ok, nil
}
