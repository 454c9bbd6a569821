package httpmw

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kandev/serverpool/internal/common/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimit rejects requests above perSecond with 429. A non-positive
// perSecond returns a pass-through handler.
func RateLimit(perSecond float64, burst int, log *logger.Logger) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.Warn("control API rate limit exceeded",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":  "RATE_LIMITED",
				"error": "too many requests",
			})
			return
		}
		c.Next()
	}
}
