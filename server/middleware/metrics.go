package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/regkit/observability"
)

// GinMetrics records request count and latency labelled by the matched
// route template, so "/v1/discover/:service" stays one series. Unmatched
// requests are labelled "unmatched". A nil m records nothing.
func GinMetrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequest(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
