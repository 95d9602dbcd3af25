package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts and latencies. The route template is used
// as the path label so that label cardinality stays bounded.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		active := m.HTTPActiveRequests.WithLabelValues(c.Request.Method, path)
		active.Inc()
		start := time.Now()

		c.Next()

		active.Dec()
		prometheus.RecordHTTPRequest(m, c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
