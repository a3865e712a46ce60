package routetable

import (
	"testing"

	"github.com/sistema-pontificia/gateway/internal/config"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()

	table, err := New([]config.RouteConfig{
		{Name: "auth", Prefix: "/api/auth", Upstream: "http://localhost:3001", TimeoutSeconds: 30},
		{Name: "users", Prefix: "/api/users", Upstream: "http://localhost:3002", TimeoutSeconds: 30},
		{Name: "reports", Prefix: "/api/reports", Upstream: "http://localhost:3006", TimeoutSeconds: 60},
		{Name: "report-exports", Prefix: "/api/reports/exports", Upstream: "http://localhost:3008", TimeoutSeconds: 120},
	})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}
	return table
}

func TestResolveMatchesPrefix(t *testing.T) {
	table := newTestTable(t)

	tests := []struct {
		path string
		want string
	}{
		{"/api/auth/login", "auth"},
		{"/api/auth", "auth"},
		{"/api/users/42/profile", "users"},
		{"/api/reports/monthly", "reports"},
	}

	for _, tt := range tests {
		route, ok := table.Resolve(tt.path)
		if !ok {
			t.Errorf("Resolve(%q): no route found", tt.path)
			continue
		}
		if route.Name != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.path, route.Name, tt.want)
		}
	}
}

func TestResolvePrefersLongestPrefix(t *testing.T) {
	table := newTestTable(t)

	route, ok := table.Resolve("/api/reports/exports/2026")
	if !ok {
		t.Fatal("no route found")
	}
	if route.Name != "report-exports" {
		t.Errorf("got %q, want report-exports (longest prefix must win)", route.Name)
	}
}

func TestResolveNotFound(t *testing.T) {
	table := newTestTable(t)

	if _, ok := table.Resolve("/api/unknown/thing"); ok {
		t.Error("expected no route for unconfigured path")
	}
	if _, ok := table.Resolve("/"); ok {
		t.Error("expected no route for root path")
	}
}

func TestResolveFirstDeclaredWinsOnTie(t *testing.T) {
	table, err := New([]config.RouteConfig{
		{Name: "first", Prefix: "/api/v1", Upstream: "http://localhost:4001", TimeoutSeconds: 10},
		{Name: "second", Prefix: "/api/v2", Upstream: "http://localhost:4002", TimeoutSeconds: 10},
	})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	route, ok := table.Resolve("/api/v1/items")
	if !ok || route.Name != "first" {
		t.Errorf("got %v, want first", route)
	}
}

func TestUpstreamPath(t *testing.T) {
	keep := Route{Prefix: "/api/users"}
	strip := Route{Prefix: "/api/users", StripPrefix: true}

	if got := keep.UpstreamPath("/api/users/42"); got != "/api/users/42" {
		t.Errorf("keep: got %q, want full path", got)
	}
	if got := strip.UpstreamPath("/api/users/42"); got != "/42" {
		t.Errorf("strip: got %q, want /42", got)
	}
	if got := strip.UpstreamPath("/api/users"); got != "/" {
		t.Errorf("strip bare prefix: got %q, want /", got)
	}
}

func TestRoutesReturnsCopy(t *testing.T) {
	table := newTestTable(t)

	routes := table.Routes()
	routes[0].Name = "mutated"

	route, _ := table.Resolve("/api/auth/login")
	if route.Name != "auth" {
		t.Error("mutating the Routes() result must not affect the table")
	}
}
