// Package router provides the route table and prefix matching for the
// gateway. Routes are evaluated in declaration order and the first match
// wins; ordering, not prefix length, is the tie-break. Callers must register
// specific prefixes ahead of the generic catch-all.
package router

import (
	"net/url"
	"strings"

	"github.com/ElieObadia/backend-proxy/internal/observability"
	"github.com/ElieObadia/backend-proxy/internal/util"
)

// Route maps a URL path prefix to one backend target and a path rewrite.
type Route struct {
	// Name labels the route in diagnostics and error bodies. It has no
	// effect on matching.
	Name string

	// Prefix is a literal path prefix matched at a segment boundary.
	Prefix string

	// Target is the backend base URL. Resolved once at configuration time,
	// immutable afterwards.
	Target *url.URL

	// Replacement substitutes the matched prefix in the forwarded path.
	// Usually empty, occasionally a different literal such as "/collect".
	Replacement string
}

// RouteSpec is the pre-parse form of a Route as it appears in configuration.
type RouteSpec struct {
	Name        string
	Prefix      string
	Target      string
	Replacement string
}

// Match is the result of resolving a request path against the table.
type Match struct {
	Route *Route

	// ForwardPath is the rewritten path sent to the backend.
	ForwardPath string
}

// Table is the ordered, immutable route table. It is built once at startup
// and safe for concurrent reads without locking.
type Table struct {
	routes []*Route
	logger observability.Logger
}

// NewTable builds a route table from specs, preserving declaration order.
func NewTable(logger observability.Logger, specs ...RouteSpec) (*Table, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	routes := make([]*Route, 0, len(specs))
	seen := make(map[string]bool, len(specs))

	for _, spec := range specs {
		route, err := compileRoute(spec)
		if err != nil {
			return nil, err
		}
		if seen[route.Name] {
			return nil, util.NewConfigError("routes", "duplicate route name: "+route.Name)
		}
		seen[route.Name] = true
		routes = append(routes, route)
	}

	return &Table{routes: routes, logger: logger}, nil
}

// compileRoute validates a spec and resolves its target URL.
func compileRoute(spec RouteSpec) (*Route, error) {
	if spec.Name == "" {
		return nil, util.NewConfigError("routes", "route name must not be empty")
	}
	if spec.Prefix == "" || !strings.HasPrefix(spec.Prefix, "/") {
		return nil, util.NewConfigError("routes",
			"route "+spec.Name+": prefix must start with /")
	}

	target, err := url.Parse(spec.Target)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("routes",
			"route "+spec.Name+": invalid target URL", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, util.NewConfigError("routes",
			"route "+spec.Name+": target must be an absolute http(s) URL")
	}
	if target.Host == "" {
		return nil, util.NewConfigError("routes",
			"route "+spec.Name+": target is missing a host")
	}

	return &Route{
		Name:        spec.Name,
		Prefix:      strings.TrimSuffix(spec.Prefix, "/"),
		Target:      target,
		Replacement: spec.Replacement,
	}, nil
}

// Match scans the table in declaration order and returns the first route
// whose prefix matches the path at a segment boundary, together with the
// rewritten forward path. Returns false when nothing matches.
func (t *Table) Match(path string) (*Match, bool) {
	for _, route := range t.routes {
		if !matchesPrefix(path, route.Prefix) {
			continue
		}

		forward, err := Rewrite(path, route.Prefix, route.Replacement)
		if err != nil {
			// Unreachable given matchesPrefix above; treat as a miss rather
			// than forwarding a mis-rewritten path.
			t.logger.Error("rewrite precondition violated",
				observability.String("route", route.Name),
				observability.String("path", path),
				observability.Error(err),
			)
			routerMetrics().rewriteFailures.Inc()
			continue
		}

		routerMetrics().matches.WithLabelValues(route.Name).Inc()
		return &Match{Route: route, ForwardPath: forward}, true
	}

	routerMetrics().misses.Inc()
	return nil, false
}

// Routes returns the routes in declaration order.
func (t *Table) Routes() []*Route {
	routes := make([]*Route, len(t.routes))
	copy(routes, t.routes)
	return routes
}

// matchesPrefix reports whether prefix matches path at a segment boundary:
// the path equals the prefix or continues with a slash.
func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
