package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed fixed_window.lua
var fixedWindowScript string

// RedisLimiter enforces one global fixed-window budget per (class, client)
// across all replicas. The count/expire pair runs as a single Lua script, so
// two replicas racing on a fresh window cannot each start their own count.
type RedisLimiter struct {
	client    *redis.Client
	prefix    string
	scriptSHA string
}

type RedisLimiterOption func(*RedisLimiter)

// WithPrefix overrides the default key prefix.
func WithPrefix(prefix string) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.prefix = prefix
	}
}

func NewRedisLimiter(client *redis.Client, opts ...RedisLimiterOption) (*RedisLimiter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	sha, err := client.ScriptLoad(ctx, fixedWindowScript).Result()
	if err != nil {
		return nil, err
	}

	l := &RedisLimiter{
		client:    client,
		prefix:    "ratelimit:",
		scriptSHA: sha,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, clientKey string, class Class, limit Limit) (Decision, error) {
	key := l.prefix + string(class) + ":" + clientKey

	cmd := l.client.EvalSha(ctx, l.scriptSHA, []string{key},
		limit.Requests,
		limit.Window.Milliseconds(),
	)
	result, err := cmd.Result()
	if err != nil {
		return Decision{}, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, errors.New("invalid lua response format")
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	retryMs, _ := values[2].(int64)

	return Decision{
		Allow:      allowed == 1,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}
