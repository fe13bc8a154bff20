package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElieObadia/backend-proxy/internal/util"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()

	assert.Equal(t, 8020, cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.AllowedOrigin)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout.Duration())
	assert.Equal(t, 3*time.Second, cfg.ProbeTimeout.Duration())
	assert.Equal(t, "http://localhost:5001", cfg.Services.Classifier)
	assert.Equal(t, "http://localhost:5004", cfg.Services.Collector)
	assert.Zero(t, cfg.RateLimit.RPS, "rate limiting is off by default")
	assert.False(t, cfg.CircuitBreaker.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvAllowedOrigin, "https://app.example.com")
	t.Setenv(EnvClassifierURL, "http://classifier.internal:8080")
	t.Setenv(EnvCollectorURL, "http://collector.internal:8080")
	t.Setenv(EnvUpstreamTO, "45s")
	t.Setenv(EnvRateLimitRPS, "100")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://app.example.com", cfg.AllowedOrigin)
	assert.Equal(t, "http://classifier.internal:8080", cfg.Services.Classifier)
	assert.Equal(t, "http://collector.internal:8080", cfg.Services.Collector)
	assert.Equal(t, "http://localhost:5002", cfg.Services.Cleaner, "unset vars keep defaults")
	assert.Equal(t, 45*time.Second, cfg.UpstreamTimeout.Duration())
	assert.Equal(t, 100, cfg.RateLimit.RPS)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"bad port", EnvPort, "not-a-port"},
		{"bad upstream timeout", EnvUpstreamTO, "thirty seconds"},
		{"bad probe timeout", EnvProbeTO, "3x"},
		{"bad rate", EnvRateLimitRPS, "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			_, err := FromEnv()
			require.Error(t, err)
			assert.ErrorIs(t, err, util.ErrConfigInvalid)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"empty origin", func(c *Config) { c.AllowedOrigin = "" }, true},
		{"zero upstream timeout", func(c *Config) { c.UpstreamTimeout = 0 }, true},
		{"zero probe timeout", func(c *Config) { c.ProbeTimeout = 0 }, true},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }, true},
		{"relative target", func(c *Config) { c.Services.Cleaner = "localhost:5002" }, true},
		{"bad scheme", func(c *Config) { c.Services.Generator = "ftp://host:21" }, true},
		{"https target", func(c *Config) { c.Services.Collector = "https://collector.example.com" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, util.ErrConfigInvalid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRoutes_OrderAndTargets(t *testing.T) {
	t.Parallel()

	cfg := Default()
	specs := cfg.Routes()

	require.Len(t, specs, 6)

	prefixes := make([]string, len(specs))
	for i, s := range specs {
		prefixes[i] = s.Prefix
	}
	assert.Equal(t, []string{
		"/api/classify",
		"/api/clean",
		"/api/generate",
		"/api/collect",
		"/api/companies",
		"/api",
	}, prefixes)

	assert.Equal(t, "/api", specs[len(specs)-1].Prefix, "catch-all must be declared last")

	assert.Equal(t, cfg.Services.Classifier, specs[0].Target)
	assert.Equal(t, cfg.Services.Collector, specs[3].Target)
	assert.Equal(t, "/collect", specs[3].Replacement)
	assert.Equal(t, cfg.Services.Collector, specs[4].Target)
	assert.Equal(t, "/companies", specs[4].Replacement)
	assert.Equal(t, cfg.Services.Collector, specs[5].Target)
	assert.Empty(t, specs[5].Replacement, "catch-all strips the /api prefix")
}
