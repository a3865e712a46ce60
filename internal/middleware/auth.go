package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sistema-pontificia/gateway/internal/apierror"
	"github.com/sistema-pontificia/gateway/internal/token"
)

// Headers the gateway forwards upstream so services can trust the
// gateway-validated identity instead of re-parsing the token.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// Auth validates the bearer token before the request reaches the proxy.
// Paths on the exclusion list (login, registration, health, docs) pass
// through as anonymous. Everything else needs a valid, unexpired token;
// the 401 code tells clients whether to refresh (token_expired) or
// re-login (token_missing / token_malformed).
func Auth(verifier *token.Verifier, excludedPaths []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if pathExcluded(c.Request.URL.Path, excludedPaths) {
			c.Next()
			return
		}

		claims, err := verifier.FromHeader(c.GetHeader("Authorization"))
		if err != nil {
			switch {
			case errors.Is(err, token.ErrMissing):
				apierror.Abort(c, http.StatusUnauthorized, apierror.CodeTokenMissing, "Authentication required")
			case errors.Is(err, token.ErrExpired):
				apierror.Abort(c, http.StatusUnauthorized, apierror.CodeTokenExpired, "Token has expired")
			default:
				apierror.Abort(c, http.StatusUnauthorized, apierror.CodeTokenMalformed, "Invalid token")
			}
			return
		}

		c.Set("claims", claims)
		c.Set("user_id", claims.SubjectID())
		c.Set("email", claims.Email)

		// Propagate identity to the upstream.
		c.Request.Header.Set(HeaderUserID, claims.SubjectID())
		if claims.Email != "" {
			c.Request.Header.Set(HeaderUserEmail, claims.Email)
		}

		c.Next()
	}
}

// pathExcluded reports whether path bypasses authentication. The root
// entry "/" matches exactly; every other entry matches by prefix.
func pathExcluded(path string, excluded []string) bool {
	for _, prefix := range excluded {
		if prefix == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ClaimsFrom returns the validated claims attached by Auth, or nil for
// anonymous requests.
func ClaimsFrom(c *gin.Context) *token.Claims {
	v, ok := c.Get("claims")
	if !ok {
		return nil
	}
	claims, _ := v.(*token.Claims)
	return claims
}
