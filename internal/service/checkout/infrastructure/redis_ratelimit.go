// internal/service/checkout/infrastructure/redis_ratelimit.go
package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgredis "vertex/internal/pkg/redis"
)

const scriptSlidingWindow = "rate_sliding_window"

// 滑动窗口限流。ZSET 里每个成员是一次调用，score 是时间戳（毫秒）；
// 先清理窗口外的旧成员，计数未超限才记入本次调用。
// KEYS[1] = 限流键
// ARGV[1] = 当前毫秒时间戳，ARGV[2] = 窗口毫秒数，ARGV[3] = 上限，ARGV[4] = 本次成员
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  return 0
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return 1
`

// RedisRateLimiter 是 RateLimiter 的 Redis ZSET 实现。
type RedisRateLimiter struct {
	client *pkgredis.Client
}

func NewRedisRateLimiter(client *pkgredis.Client) (*RedisRateLimiter, error) {
	if err := client.LoadScriptFromContent(scriptSlidingWindow, slidingWindowScript); err != nil {
		return nil, err
	}
	return &RedisRateLimiter{client: client}, nil
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	res, err := l.client.RunScript(ctx, scriptSlidingWindow,
		[]string{"checkout:rate:" + key},
		now.UnixMilli(), window.Milliseconds(), limit, rateMember(now))
	if err != nil {
		return false, err
	}
	allowed, _ := res.(int64)
	return allowed == 1, nil
}

// rateMember 生成本次调用在 ZSET 里的成员。时间戳本身不够唯一，
// 同一纳秒内的两次调用会被 ZADD 合并成一条，必须带随机后缀。
func rateMember(now time.Time) string {
	return now.Format(time.RFC3339Nano) + ":" + uuid.NewString()
}
