package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/scailup/creditledger/internal/config"
)

const slidingWindowScript = `
local window = tonumber(ARGV[1])
local budget = tonumber(ARGV[2])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)
local cutoff = now - window

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", cutoff)

local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < budget then
  allowed = 1
  redis.call("ZADD", KEYS[1], now, now .. "-" .. math.random(1000000))
  count = count + 1
end
redis.call("PEXPIRE", KEYS[1], window)

local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end

return {allowed, budget - count, oldestScore + window - now}
`

// RedisWindow is the shared sliding window used when instances must agree
// on one budget.
type RedisWindow struct {
	client *redis.Client
	holder *config.EngineConfigHolder
	script *redis.Script
}

func NewRedisWindow(client *redis.Client, holder *config.EngineConfigHolder) *RedisWindow {
	if client == nil {
		return nil
	}
	return &RedisWindow{
		client: client,
		holder: holder,
		script: redis.NewScript(slidingWindowScript),
	}
}

func (r *RedisWindow) Allow(ctx context.Context, identity string) (*Result, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if identity == "" {
		return nil, errors.New("rate limiter identity is empty")
	}

	cfg := r.holder.Get().RateLimit
	if !cfg.Enabled || cfg.Budget <= 0 {
		return &Result{Allowed: true, Limit: cfg.Budget, Remaining: cfg.Budget}, nil
	}

	res, err := r.script.Run(
		ctx,
		r.client,
		[]string{"ratelimit:" + identity},
		int64(cfg.Window/time.Millisecond),
		cfg.Budget,
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 3 {
		return nil, errors.New("invalid rate limit script response")
	}

	allowed := castToInt(res[0]) == 1
	remaining := int(castToInt(res[1]))
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{Allowed: allowed, Limit: cfg.Budget, Remaining: remaining}
	if !allowed {
		retryAfter := time.Duration(castToInt(res[2])) * time.Millisecond
		if retryAfter < 0 {
			retryAfter = 0
		}
		result.RetryAfter = retryAfter
	}
	return result, nil
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
