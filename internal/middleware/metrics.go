package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-lifecycle-api/internal/service"
)

const (
	unmatchedRoute = "unmatched"
	anonymousRole  = "anonymous"
)

// Metrics records one observation per request, labelled by the matched route
// template and the caller's role. Paths without a route share one label so
// probing random URLs cannot grow the series set.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		role := anonymousRole
		if claims := CurrentUser(c); claims != nil && claims.Role != "" {
			role = string(claims.Role)
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, role, c.Writer.Status(), time.Since(start))
	}
}
