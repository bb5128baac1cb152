package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/logging"
)

// RateLimit rejects requests beyond rps (with the given burst) with 429. It
// is meant for expensive routes such as uploads; the limit is shared by all
// clients. A non-positive rps disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			logging.FromContext(c.Request.Context()).Warn("rate limit exceeded", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   http.StatusText(http.StatusTooManyRequests),
			})
			return
		}
		c.Next()
	}
}
