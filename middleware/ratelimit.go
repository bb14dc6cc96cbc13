package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"legal-ai-assistant/internal/config"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func skipRateLimit(c *gin.Context) bool {
	return c.FullPath() == "/health" || c.FullPath() == "/ready"
}

func rejectRateLimited(c *gin.Context, limit, window int) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", "0")
	c.Header("X-RateLimit-Reset", strconv.FormatInt(
		time.Now().Add(time.Duration(window)*time.Second).Unix(), 10))

	utils.RespondWithError(c, http.StatusTooManyRequests,
		"rate_limit_exceeded",
		"Too many requests. Please try again later.",
		gin.H{
			"retry_after": window,
			"limit":       limit,
		})
	c.Abort()
}

// RateLimitMiddleware implements rate limiting using Redis
// It limits requests per IP + endpoint combination
func RateLimitMiddleware(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipRateLimit(c) {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP() + ":" + c.FullPath()

		ctx, cancel := context.WithTimeout(c.Request.Context(), utils.ShortTimeout)
		defer cancel()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Fail open when Redis is down
			logger.Warn("Rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		if count == 1 {
			rdb.Expire(ctx, key, time.Duration(cfg.RateLimitWindow)*time.Second)
		}

		if count > int64(cfg.RateLimitReqs) {
			rejectRateLimited(c, cfg.RateLimitReqs, cfg.RateLimitWindow)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RateLimitReqs))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.RateLimitReqs-int(count)))
		c.Next()
	}
}

// LocalRateLimit is the single-process limiter used when Redis is disabled.
// Each client IP gets a token bucket refilled at limit per window.
func LocalRateLimit(limit, window int) gin.HandlerFunc {
	if limit <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newLocalLimiters(limit, time.Duration(window)*time.Second, time.Now)

	return func(c *gin.Context) {
		if skipRateLimit(c) {
			c.Next()
			return
		}
		if !limiters.allow(c.ClientIP()) {
			rejectRateLimited(c, limit, window)
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Next()
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiters keeps one bucket per client. A bucket idle for a whole
// window is full again, so it is dropped and recreated on the next request.
type localLimiters struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLocalLimiters(limit int, window time.Duration, now func() time.Time) *localLimiters {
	return &localLimiters{
		clients:   make(map[string]*clientLimiter),
		every:     rate.Every(window / time.Duration(limit)),
		burst:     limit,
		idle:      window,
		lastSweep: now(),
		now:       now,
	}
}

func (l *localLimiters) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) >= l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *localLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
