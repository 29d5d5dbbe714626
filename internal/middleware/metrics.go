package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/genegpt-server/internal/metrics"
)

// HTTPMetrics records request count and latency per route template, so
// path parameters such as user ids do not explode label cardinality.
func HTTPMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ObserveHTTP(c.Request.Method, route, status, time.Since(start))
	}
}

// BodyLimit caps request bodies at maxBytes.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
