// Package apierror defines the uniform error envelope the gateway returns
// for failures it generates itself. Upstream responses, including upstream
// errors, are never rewritten into this envelope.
package apierror

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Machine-readable error codes.
const (
	CodeRouteNotFound       = "route_not_found"
	CodeUpstreamUnreachable = "upstream_unreachable"
	CodeUpstreamTimeout     = "upstream_timeout"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeRateLimitExceeded   = "rate_limit_exceeded"
	CodeTokenMissing        = "token_missing"
	CodeTokenMalformed      = "token_malformed"
	CodeTokenExpired        = "token_expired"
	CodeInsufficientScope   = "insufficient_scope"
	CodeInternal            = "internal_error"
)

type Envelope struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
	Window     string `json:"window,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Abort writes the envelope and stops the middleware chain.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Error:     code,
		Message:   message,
		RequestID: c.GetString("request_id"),
	})
}

// AbortRateLimited writes a 429 naming the exceeded window and carrying the
// retry delay both in the body and the Retry-After header.
func AbortRateLimited(c *gin.Context, window string, retryAfter time.Duration) {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(429, Envelope{
		Error:      CodeRateLimitExceeded,
		Message:    "Rate limit exceeded for the " + window + " window",
		RequestID:  c.GetString("request_id"),
		Window:     window,
		RetryAfter: seconds,
	})
}
