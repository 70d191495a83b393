package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per client IP in a fixed redis window.
// A nil limiter or an unreachable redis lets everything through: losing
// the limiter must never lock users out of their accounts.
type RateLimiter struct {
	client   *redis.Client
	window   time.Duration
	maxTries int
	log      *slog.Logger
}

func NewRateLimiter(client *redis.Client, window time.Duration, maxTries int, lgr *slog.Logger) *RateLimiter {
	return &RateLimiter{
		client:   client,
		window:   window,
		maxTries: maxTries,
		log:      lgr,
	}
}

func (rl *RateLimiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.client == nil {
			c.Next()

			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", scope, c.ClientIP())

		count, err := rl.client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			rl.log.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()

			return
		}

		if count == 1 {
			if err := rl.client.PExpire(c.Request.Context(), key, rl.window).Err(); err != nil {
				rl.log.Warn("failed to set rate limit window", "error", err)
			}
		}

		if count > int64(rl.maxTries) {
			newErrorResponse(c, http.StatusTooManyRequests, "Too many requests, please try again later")

			return
		}

		c.Next()
	}
}
