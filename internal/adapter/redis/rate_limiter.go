package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/pscheid92/hostingroble/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "hostingroble:ratelimit:"

// FixedWindowLimiter counts requests per key in fixed windows shared by all replicas.
// It fails open: when Redis cannot answer, the request is allowed.
type FixedWindowLimiter struct {
	rdb     *goredis.Client
	name    string
	limit   int
	window  time.Duration
	timeout time.Duration
	metrics *metrics.RateLimitMetrics
}

func NewFixedWindowLimiter(rdb *goredis.Client, name string, limit int, window time.Duration, m *metrics.RateLimitMetrics) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		rdb:     rdb,
		name:    name,
		limit:   limit,
		window:  window,
		timeout: 250 * time.Millisecond,
		metrics: m,
	}
}

// Allow consumes one request for key and reports whether it fits in the current window.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	redisKey := rateLimitPrefix + l.name + ":" + key

	var incr *goredis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		slog.Error("Rate limit store failed, allowing request", "limiter", l.name, "error", err)
		if l.metrics != nil {
			l.metrics.StoreErrors.Inc()
		}
		return true, nil
	}

	return incr.Val() <= int64(l.limit), nil
}
