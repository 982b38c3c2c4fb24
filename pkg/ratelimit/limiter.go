package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/richxcame/trust-ring-detector/pkg/common"
	"github.com/richxcame/trust-ring-detector/pkg/config"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"go.uber.org/zap"
)

// fixedWindow counts hits in the current window and returns {count, pttl}
const fixedWindow = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`

// Result is the outcome of one rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a Redis fixed-window rate limiter shared by every API replica
type Limiter struct {
	client redis.Scripter
	script *redis.Script
	cfg    config.RateLimitConfig
	now    func() time.Time
}

// NewLimiter creates a limiter
func NewLimiter(client redis.Scripter, cfg config.RateLimitConfig) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		client: client,
		script: redis.NewScript(fixedWindow),
		cfg:    cfg,
		now:    time.Now,
	}
}

// WithNow overrides the clock
func (l *Limiter) WithNow(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) key(identity string) string {
	window := l.now().UnixNano() / int64(l.cfg.Window)
	return fmt.Sprintf("%s:%s:%d", l.cfg.RedisPrefix, identity, window)
}

// Allow records a hit for identity and reports whether it is within the limit.
// A disabled limiter or a non-positive limit allows everything.
func (l *Limiter) Allow(ctx context.Context, identity string) (Result, error) {
	if !l.cfg.Enabled || l.cfg.Limit <= 0 {
		return Result{Allowed: true, Limit: l.cfg.Limit, Remaining: max(l.cfg.Limit, 0)}, nil
	}

	res, err := l.script.Run(ctx, l.client, []string{l.key(identity)}, l.cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 2 {
		return Result{}, fmt.Errorf("rate limit check returned %d values", len(res))
	}

	count := int(res[0])
	out := Result{
		Allowed:   count <= l.cfg.Limit,
		Limit:     l.cfg.Limit,
		Remaining: max(l.cfg.Limit-count, 0),
	}
	if !out.Allowed && res[1] > 0 {
		out.RetryAfter = time.Duration(res[1]) * time.Millisecond
	}
	return out, nil
}

// Middleware limits requests per client IP. Redis failures let requests through.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WithContext(c.Request.Context()).Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			seconds := int(res.RetryAfter.Round(time.Second) / time.Second)
			c.Header("Retry-After", strconv.Itoa(max(seconds, 1)))
			common.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
