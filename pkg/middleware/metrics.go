package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/cab-voice-agent/pkg/metrics"
)

// RequestMetrics counts requests per route. 5xx responses count as failed.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(c.Request.Method+" "+route, c.Writer.Status() < 500, time.Since(start))
	}
}
