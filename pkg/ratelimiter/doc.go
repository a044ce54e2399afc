// Package ratelimiter implements a keyed token bucket.
//
// A bucket holds up to Capacity tokens and gains RefillRate tokens every
// RefillInterval. Each Allow takes one token; a negative remainder means the
// call is over the limit:
//
//	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client, "ratelimit:"), ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     1,
//		RefillInterval: 3 * time.Second,
//	})
//	res, err := limiter.Allow(ctx, chatUserID)
//	if err == nil && !res.Allowed() {
//		// drop the message, try again after res.RetryAfter()
//	}
//
// RedisStore shares buckets between replicas and evaluates the refill and
// the take in one script. MemoryStore keeps buckets in process.
package ratelimiter
