package ratelimit

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRedisLimiter builds a limiter for a formatted rate such as "30-M"
// backed by Redis so all API replicas share one budget.
func NewRedisLimiter(client *redis.Client, formatted, prefix string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return limiter.New(store, rate), nil
}
