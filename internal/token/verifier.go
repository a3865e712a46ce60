// Package token verifies the bearer tokens presented to the gateway. The
// gateway never issues tokens; the auth upstream does. Verification is
// stateless: signature, expiry and required claims only, no revocation
// list.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissing means no Authorization header was presented.
	ErrMissing = errors.New("authorization header missing")
	// ErrMalformed covers bad header structure, bad signatures and
	// undecodable tokens.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired means the token was well signed but past its expiry, so
	// the client should refresh rather than re-login.
	ErrExpired = errors.New("token expired")
)

// Claims are the decoded token claims the gateway cares about.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// FromHeader extracts the token from an Authorization header value and
// verifies it.
func (v *Verifier) FromHeader(header string) (*Claims, error) {
	if header == "" {
		return nil, ErrMissing
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return nil, fmt.Errorf("%w: expected Bearer <token>", ErrMalformed)
	}

	return v.Verify(strings.TrimSpace(parts[1]))
}

// Verify checks signature, expiry and required claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !token.Valid {
		return nil, ErrMalformed
	}

	if claims.UserID == "" && claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrMalformed)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}

	return claims, nil
}

// SubjectOf is a best-effort subject lookup used for rate-limit keying
// before full validation runs. Returns "" when the token is absent or does
// not verify.
func (v *Verifier) SubjectOf(header string) string {
	claims, err := v.FromHeader(header)
	if err != nil {
		return ""
	}
	return claims.SubjectID()
}

// SubjectID returns the stable identity of the token holder.
func (c *Claims) SubjectID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Generate signs a token for the given identity. Used by tests and the
// local dummy backend; production tokens come from the auth upstream.
func Generate(secret, userID, email string, scopes []string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Email:  email,
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
