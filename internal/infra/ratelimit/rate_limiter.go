package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fixora/auditreport/internal/infra/logger"
	"github.com/fixora/auditreport/internal/ports"
)

// Config configures the fixed-window limiter
type Config struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// redisLimiter counts requests per key in fixed windows using INCR and EXPIRE
type redisLimiter struct {
	client   *redis.Client
	logger   logger.Logger
	requests int
	window   time.Duration
}

// NewRateLimiter returns a Redis backed limiter, or one that allows everything
// when limiting is disabled or no client is configured.
func NewRateLimiter(config Config, client *redis.Client, log logger.Logger) ports.RateLimiter {
	if !config.Enabled || client == nil {
		log.Info(context.Background(), "Rate limiting disabled", nil)
		return noopLimiter{}
	}

	if config.Window < time.Second {
		config.Window = time.Minute
	}
	if config.Requests <= 0 {
		config.Requests = 60
	}

	log.Info(context.Background(), "Rate limiting initialized", map[string]interface{}{
		"requests": config.Requests,
		"window":   config.Window.String(),
	})

	return &redisLimiter{
		client:   client,
		logger:   log,
		requests: config.Requests,
		window:   config.Window,
	}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))

	pipeline := l.client.Pipeline()
	incr := pipeline.Incr(ctx, windowKey)
	pipeline.Expire(ctx, windowKey, l.window)

	if _, err := pipeline.Exec(ctx); err != nil {
		return true, l.requests, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	count := int(incr.Val())
	remaining := l.requests - count
	if remaining < 0 {
		remaining = 0
	}

	if count > l.requests {
		l.logger.Debug(ctx, "Rate limit exceeded", map[string]interface{}{
			"key":   key,
			"count": count,
			"limit": l.requests,
		})
		return false, 0, nil
	}

	return true, remaining, nil
}

type noopLimiter struct{}

func (noopLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	return true, -1, nil
}
