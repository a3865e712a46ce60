package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sistema-pontificia/gateway/internal/apierror"
	"github.com/sistema-pontificia/gateway/internal/config"
	"github.com/sistema-pontificia/gateway/internal/ratelimit"
	"github.com/sistema-pontificia/gateway/internal/token"
)

// RateLimit enforces the two-tier policy: authenticated traffic is keyed
// by token subject, anonymous traffic by client IP with stricter limits.
// It runs before the auth check, so the subject is taken from a
// best-effort token parse; enforcement of bad tokens stays with Auth.
func RateLimit(limiter *ratelimit.Limiter, verifier *token.Verifier, cfg config.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key, tier string
		var limits ratelimit.Limits

		if subject := verifier.SubjectOf(c.GetHeader("Authorization")); subject != "" {
			key = "sub:" + subject
			tier = "authenticated"
			limits = ratelimit.Limits{
				PerMinute: cfg.Authenticated.PerMinute,
				PerHour:   cfg.Authenticated.PerHour,
			}
		} else {
			key = "ip:" + c.ClientIP()
			tier = "anonymous"
			limits = ratelimit.Limits{
				PerMinute: cfg.Anonymous.PerMinute,
				PerHour:   cfg.Anonymous.PerHour,
			}
		}

		c.Set("rate_limit_key", key)

		decision := limiter.Check(c.Request.Context(), key, limits)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
		c.Header("X-RateLimit-Tier", tier)
		if !decision.ResetAt.IsZero() {
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAt.Unix()))
		}

		if !decision.Allowed {
			apierror.AbortRateLimited(c, string(decision.Window), decision.RetryAfter)
			return
		}

		c.Next()
	}
}
