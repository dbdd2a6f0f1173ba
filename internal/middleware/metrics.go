// Package middleware provides Gin HTTP middleware for the consumer registry.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB
// work. Auth populates the Actor identity that handlers pass into the
// registration core; the core itself performs every capability check, so there
// is no separate authorization middleware.
package middleware

import (
	"fmt"
	"time"

	"github.com/consumer-registry/consumer-registry/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request count and latency for every request that
// passes through the router.
//
// The path label is set from c.FullPath(), which returns the matched Gin route
// template (e.g. /api/v1/consumers/:key/approve) rather than the raw URL.
// Requests that do not match any registered route (404/405) use the literal
// string "<no-route>" so unhandled paths do not inflate label cardinality.
//
// Must be registered after gin.Recovery() and RequestIDMiddleware so the
// status set by error handlers is captured correctly.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
