// Package proxy forwards inbound requests to the upstream selected by the
// route table. Upstream responses, including upstream-generated errors,
// stream back verbatim; the gateway only manufactures its own error
// envelope for failures between the client and the upstream.
package proxy

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sistema-pontificia/gateway/internal/apierror"
	"github.com/sistema-pontificia/gateway/internal/circuitbreaker"
	"github.com/sistema-pontificia/gateway/internal/middleware"
	"github.com/sistema-pontificia/gateway/internal/routetable"
)

// Hop-by-hop headers are only meaningful for one connection leg and must
// not be blindly forwarded (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type Proxy struct {
	table  *routetable.Table
	client *http.Client

	breakerCfg circuitbreaker.Config
	mu         sync.Mutex
	breakers   map[string]*circuitbreaker.Breaker
}

func New(table *routetable.Table, breakerCfg circuitbreaker.Config) *Proxy {
	return &Proxy{
		table: table,
		// Per-route deadlines come from the request context, so the
		// client itself carries no timeout.
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breakerCfg: breakerCfg,
		breakers:   make(map[string]*circuitbreaker.Breaker),
	}
}

// breakerFor returns the breaker for one upstream, creating it on first
// use.
func (p *Proxy) breakerFor(name string) *circuitbreaker.Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.breakers[name]
	if !ok {
		b = circuitbreaker.New(p.breakerCfg)
		p.breakers[name] = b
	}
	return b
}

// BreakerState reports the breaker state for one upstream, for the admin
// surface.
func (p *Proxy) BreakerState(name string) string {
	return p.breakerFor(name).State().String()
}

// Handle resolves the route for the request and forwards it.
func (p *Proxy) Handle(c *gin.Context) {
	route, ok := p.table.Resolve(c.Request.URL.Path)
	if !ok {
		apierror.Abort(c, http.StatusNotFound, apierror.CodeRouteNotFound,
			"No route configured for "+c.Request.URL.Path)
		return
	}

	if route.RequiredScope != "" {
		claims := middleware.ClaimsFrom(c)
		if claims == nil {
			apierror.Abort(c, http.StatusUnauthorized, apierror.CodeTokenMissing, "Authentication required")
			return
		}
		if !claims.HasScope(route.RequiredScope) {
			apierror.Abort(c, http.StatusForbidden, apierror.CodeInsufficientScope,
				"Token lacks required scope "+route.RequiredScope)
			return
		}
	}

	c.Set("upstream", route.Name)

	breaker := p.breakerFor(route.Name)
	if !breaker.Allow() {
		apierror.Abort(c, http.StatusServiceUnavailable, apierror.CodeUpstreamUnavailable,
			"Upstream service "+route.Name+" is temporarily unavailable")
		return
	}

	p.forward(c, route, breaker)
}

func (p *Proxy) forward(c *gin.Context, route *routetable.Route, breaker *circuitbreaker.Breaker) {
	// Client disconnects cancel the upstream call through the request
	// context; the route timeout bounds it either way.
	ctx, cancel := context.WithTimeout(c.Request.Context(), route.Timeout)
	defer cancel()

	outURL := *route.Upstream
	outURL.Path = route.UpstreamPath(c.Request.URL.Path)
	outURL.RawQuery = c.Request.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, outURL.String(), c.Request.Body)
	if err != nil {
		apierror.Abort(c, http.StatusBadGateway, apierror.CodeUpstreamUnreachable,
			"Failed to build upstream request")
		return
	}
	req.ContentLength = c.Request.ContentLength

	copyHeaders(req.Header, c.Request.Header)
	req.Header.Set("X-Forwarded-Host", c.Request.Host)
	req.Header.Set("X-Forwarded-Proto", requestScheme(c.Request))
	req.Header.Set("X-Forwarded-For", c.ClientIP())

	resp, err := p.client.Do(req)
	if err != nil && p.shouldRetry(route, c.Request, ctx) {
		log.Printf("[%s] retrying %s %s after: %v",
			c.GetString("request_id"), c.Request.Method, outURL.String(), err)
		resp, err = p.client.Do(req.Clone(ctx))
	}
	if err != nil {
		// A client disconnect says nothing about the upstream.
		if !errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			breaker.RecordFailure()
		}
		p.writeUpstreamError(c, route, ctx, err)
		return
	}
	defer resp.Body.Close()

	breaker.RecordSuccess()

	copyHeaders(c.Writer.Header(), resp.Header)
	c.Writer.WriteHeader(resp.StatusCode)

	// Stream without buffering; upstream bodies can be large downloads.
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		log.Printf("[%s] error streaming response from %s: %v",
			c.GetString("request_id"), route.Name, err)
	}
}

// shouldRetry allows one retry for idempotent methods on routes that opt
// in. Timeouts are never retried: the route deadline already elapsed, and
// a retry would only let the client wait twice. Requests with a body are
// not retried either, since the body was already consumed.
func (p *Proxy) shouldRetry(route *routetable.Route, r *http.Request, ctx context.Context) bool {
	if !route.RetryIdempotent {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	if r.ContentLength > 0 {
		return false
	}
	return ctx.Err() == nil
}

func (p *Proxy) writeUpstreamError(c *gin.Context, route *routetable.Route, ctx context.Context, err error) {
	requestID := c.GetString("request_id")

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Printf("[%s] upstream %s timed out after %v: %v", requestID, route.Name, route.Timeout, err)
		apierror.Abort(c, http.StatusGatewayTimeout, apierror.CodeUpstreamTimeout,
			"Upstream service "+route.Name+" timed out")
		return
	}

	if errors.Is(err, context.Canceled) {
		// Client went away; nothing useful to write.
		c.Abort()
		return
	}

	log.Printf("[%s] upstream %s unreachable: %v", requestID, route.Name, err)
	apierror.Abort(c, http.StatusBadGateway, apierror.CodeUpstreamUnreachable,
		"Upstream service "+route.Name+" is unreachable")
}

// copyHeaders copies src into dst minus hop-by-hop headers, including any
// named by the Connection header.
func copyHeaders(dst, src http.Header) {
	dropped := make(map[string]bool, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		dropped[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dropped[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	for key, values := range src {
		if dropped[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
