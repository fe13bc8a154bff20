package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElieObadia/backend-proxy/internal/observability"
	"github.com/ElieObadia/backend-proxy/internal/util"
)

// referenceSpecs mirrors the production route order: specific prefixes first,
// the generic /api catch-all last.
func referenceSpecs() []RouteSpec {
	return []RouteSpec{
		{Name: "classifier", Prefix: "/api/classify", Target: "http://classifier:5001"},
		{Name: "cleaner", Prefix: "/api/clean", Target: "http://cleaner:5002"},
		{Name: "generator", Prefix: "/api/generate", Target: "http://generator:5003"},
		{Name: "collector", Prefix: "/api/collect", Target: "http://collector:5004", Replacement: "/collect"},
		{Name: "companies", Prefix: "/api/companies", Target: "http://collector:5004", Replacement: "/companies"},
		{Name: "fallback", Prefix: "/api", Target: "http://collector:5004"},
	}
}

func newReferenceTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(observability.NopLogger(), referenceSpecs()...)
	require.NoError(t, err)
	return table
}

func TestNewTable_ValidatesSpecs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec RouteSpec
	}{
		{"empty name", RouteSpec{Prefix: "/api", Target: "http://backend:8080"}},
		{"empty prefix", RouteSpec{Name: "r", Target: "http://backend:8080"}},
		{"relative prefix", RouteSpec{Name: "r", Prefix: "api", Target: "http://backend:8080"}},
		{"missing scheme", RouteSpec{Name: "r", Prefix: "/api", Target: "backend:8080"}},
		{"unsupported scheme", RouteSpec{Name: "r", Prefix: "/api", Target: "ftp://backend"}},
		{"missing host", RouteSpec{Name: "r", Prefix: "/api", Target: "http://"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewTable(observability.NopLogger(), tt.spec)
			assert.ErrorIs(t, err, util.ErrConfigInvalid)
		})
	}
}

func TestNewTable_DuplicateName(t *testing.T) {
	t.Parallel()

	_, err := NewTable(observability.NopLogger(),
		RouteSpec{Name: "dup", Prefix: "/a", Target: "http://a:1"},
		RouteSpec{Name: "dup", Prefix: "/b", Target: "http://b:2"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestTable_Match_FirstMatchWins(t *testing.T) {
	t.Parallel()

	table := newReferenceTable(t)

	tests := []struct {
		path    string
		route   string
		forward string
	}{
		{"/api/classify/batch", "classifier", "/batch"},
		{"/api/classify", "classifier", "/"},
		{"/api/clean/emails", "cleaner", "/emails"},
		{"/api/generate/preview", "generator", "/preview"},
		{"/api/collect/ingest", "collector", "/collect/ingest"},
		{"/api/collect", "collector", "/collect"},
		{"/api/companies/123", "companies", "/companies/123"},
		{"/api/unknownthing", "fallback", "/unknownthing"},
		{"/api", "fallback", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			match, ok := table.Match(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.route, match.Route.Name)
			assert.Equal(t, tt.forward, match.ForwardPath)
		})
	}
}

// Registration order, not prefix length, decides which route wins. A table
// declared with the catch-all first must shadow every specific route.
func TestTable_Match_OrderIsTheTieBreak(t *testing.T) {
	t.Parallel()

	table, err := NewTable(observability.NopLogger(),
		RouteSpec{Name: "fallback", Prefix: "/api", Target: "http://collector:5004"},
		RouteSpec{Name: "classifier", Prefix: "/api/classify", Target: "http://classifier:5001"},
	)
	require.NoError(t, err)

	match, ok := table.Match("/api/classify/batch")
	require.True(t, ok)
	assert.Equal(t, "fallback", match.Route.Name)
	assert.Equal(t, "/classify/batch", match.ForwardPath)
}

func TestTable_Match_SegmentBoundary(t *testing.T) {
	t.Parallel()

	table := newReferenceTable(t)

	// /apifoo shares the literal prefix bytes but not a path segment.
	_, ok := table.Match("/apifoo")
	assert.False(t, ok)

	// /api/classifyx must not hit the classifier route; it falls through to
	// the /api catch-all.
	match, ok := table.Match("/api/classifyx")
	require.True(t, ok)
	assert.Equal(t, "fallback", match.Route.Name)
	assert.Equal(t, "/classifyx", match.ForwardPath)
}

func TestTable_Match_Miss(t *testing.T) {
	t.Parallel()

	table := newReferenceTable(t)

	for _, path := range []string{"/", "/health", "/other/api"} {
		_, ok := table.Match(path)
		assert.False(t, ok, "path %s should not match", path)
	}
}

func TestTable_Routes_PreservesOrder(t *testing.T) {
	t.Parallel()

	table := newReferenceTable(t)
	routes := table.Routes()
	require.Len(t, routes, 6)

	names := make([]string, len(routes))
	for i, r := range routes {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"classifier", "cleaner", "generator", "collector", "companies", "fallback"}, names)
}

func TestCompileRoute_TrimsTrailingSlash(t *testing.T) {
	t.Parallel()

	table, err := NewTable(observability.NopLogger(),
		RouteSpec{Name: "classifier", Prefix: "/api/classify/", Target: "http://classifier:5001"},
	)
	require.NoError(t, err)

	match, ok := table.Match("/api/classify/batch")
	require.True(t, ok)
	assert.Equal(t, "/batch", match.ForwardPath)
}
