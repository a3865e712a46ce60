// Package routetable resolves inbound request paths to upstream services
// by longest-prefix match. The table is built once at startup and is
// read-only afterwards, so lookups need no locking.
package routetable

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sistema-pontificia/gateway/internal/config"
)

// Route is one immutable entry of the table.
type Route struct {
	Name            string
	Prefix          string
	Upstream        *url.URL
	Timeout         time.Duration
	RetryIdempotent bool
	StripPrefix     bool
	RequiredScope   string
}

type Table struct {
	routes []Route
}

func New(cfgs []config.RouteConfig) (*Table, error) {
	routes := make([]Route, 0, len(cfgs))

	for _, rc := range cfgs {
		upstream, err := url.Parse(rc.Upstream)
		if err != nil {
			return nil, fmt.Errorf("route %q: invalid upstream URL: %w", rc.Name, err)
		}

		routes = append(routes, Route{
			Name:            rc.Name,
			Prefix:          rc.Prefix,
			Upstream:        upstream,
			Timeout:         rc.Timeout(),
			RetryIdempotent: rc.RetryIdempotent,
			StripPrefix:     rc.StripPrefix,
			RequiredScope:   rc.RequiredScope,
		})
	}

	return &Table{routes: routes}, nil
}

// Resolve returns the route with the longest prefix matching path. Among
// equal-length prefixes the first declared wins, though config validation
// rejects exact duplicates.
func (t *Table) Resolve(path string) (*Route, bool) {
	var best *Route

	for i := range t.routes {
		route := &t.routes[i]
		if !strings.HasPrefix(path, route.Prefix) {
			continue
		}
		if best == nil || len(route.Prefix) > len(best.Prefix) {
			best = route
		}
	}

	if best == nil {
		return nil, false
	}
	return best, true
}

// UpstreamPath returns the path to forward upstream. Routes with
// StripPrefix drop their own prefix so the upstream sees service-local
// paths; by default the full inbound path is forwarded.
func (r *Route) UpstreamPath(path string) string {
	if !r.StripPrefix {
		return path
	}

	stripped := strings.TrimPrefix(path, r.Prefix)
	if !strings.HasPrefix(stripped, "/") {
		stripped = "/" + stripped
	}
	return stripped
}

// Routes returns a copy of all entries, for the admin surface.
func (t *Table) Routes() []Route {
	routes := make([]Route, len(t.routes))
	copy(routes, t.routes)
	return routes
}
