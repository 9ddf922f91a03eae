package middleware

import (
	"context"
	"strconv"

	apperr "socialgraph/pkg/errors"
	"socialgraph/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Throttle limits an authenticated route per user. A nil limiter disables
// it; limiter failures let the request through.
func Throttle(limiter RateLimiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if limiter == nil || user == nil {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), scope+":"+strconv.FormatInt(user.ID, 10))
		if err != nil {
			logger.Get().Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			throttled := apperr.TooManyRequests("request was throttled")
			c.AbortWithStatusJSON(apperr.HTTPStatus(throttled), gin.H{"error": throttled.Message})
			return
		}
		c.Next()
	}
}
