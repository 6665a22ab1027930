package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pamoka/timetable-api/internal/service"
)

// Metrics observes every timetable request. Scrapes and health checks are
// skipped so they do not drown the lesson traffic in the histograms.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if metricsSvc == nil || path == "/metrics" || path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
