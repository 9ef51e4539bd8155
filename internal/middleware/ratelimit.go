package middleware

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/response"
)

type requestLimiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// RateLimit applies a fixed-window quota keyed by scope and client IP. A nil
// limiter disables the check entirely. Limiter errors never block requests;
// the limiter itself fails open and logs the outage.
func RateLimit(limiter requestLimiter, scope string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:%s", scope, c.ClientIP())
		allowed, _ := limiter.Allow(c.Request.Context(), key, limit)
		if !allowed {
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, "too many requests, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
