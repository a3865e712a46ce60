package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger writes one access line per request, including the limiter key
// (subject or IP) and the upstream the request was routed to.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		requestID := c.GetString("request_id")
		key := c.GetString("rate_limit_key")
		if key == "" {
			key = c.ClientIP()
		}
		upstream := c.GetString("upstream")
		if upstream == "" {
			upstream = "-"
		}

		log.Printf("[%s] %s %s - %d - %v - %s -> %s",
			requestID,
			method,
			path,
			statusCode,
			latency,
			key,
			upstream,
		)
	}
}
