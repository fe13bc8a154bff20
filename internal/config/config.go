// Package config holds the gateway configuration: listening port, allowed
// client origin, backend target addresses, and timeouts. Everything has a
// default suitable for local development; production deployments override
// every target address through the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ElieObadia/backend-proxy/internal/router"
	"github.com/ElieObadia/backend-proxy/internal/util"
)

// Environment variable names read by FromEnv.
const (
	EnvPort          = "PORT"
	EnvAllowedOrigin = "ALLOWED_ORIGIN"
	EnvClassifierURL = "CLASSIFIER_SERVICE_URL"
	EnvCleanerURL    = "CLEANER_SERVICE_URL"
	EnvGeneratorURL  = "GENERATOR_SERVICE_URL"
	EnvCollectorURL  = "COLLECTOR_SERVICE_URL"
	EnvUpstreamTO    = "UPSTREAM_TIMEOUT"
	EnvProbeTO       = "PROBE_TIMEOUT"
	EnvRateLimitRPS  = "RATE_LIMIT_RPS"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFormat     = "LOG_FORMAT"
)

// Config is the root gateway configuration.
type Config struct {
	Port            int            `yaml:"port"`
	AllowedOrigin   string         `yaml:"allowedOrigin"`
	UpstreamTimeout Duration       `yaml:"upstreamTimeout"`
	ProbeTimeout    Duration       `yaml:"probeTimeout"`
	RateLimit       RateLimit      `yaml:"rateLimit"`
	CircuitBreaker  CircuitBreaker `yaml:"circuitBreaker"`
	Log             Log            `yaml:"log"`
	Services        Services       `yaml:"services"`
}

// Services holds one target base URL per backend service.
type Services struct {
	Classifier string `yaml:"classifier"`
	Cleaner    string `yaml:"cleaner"`
	Generator  string `yaml:"generator"`
	Collector  string `yaml:"collector"`
}

// RateLimit configures the optional per-client limiter. RPS 0 disables it.
type RateLimit struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// CircuitBreaker configures the optional per-route breaker.
type CircuitBreaker struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold uint32   `yaml:"threshold"`
	Interval  Duration `yaml:"interval"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the local-development configuration.
func Default() *Config {
	return &Config{
		Port:            8020,
		AllowedOrigin:   "http://localhost:3000",
		UpstreamTimeout: Duration(30 * time.Second),
		ProbeTimeout:    Duration(3 * time.Second),
		CircuitBreaker: CircuitBreaker{
			Threshold: 5,
			Interval:  Duration(30 * time.Second),
		},
		Log: Log{Level: "info", Format: "json"},
		Services: Services{
			Classifier: "http://localhost:5001",
			Cleaner:    "http://localhost:5002",
			Generator:  "http://localhost:5003",
			Collector:  "http://localhost:5004",
		},
	}
}

// FromEnv builds a configuration from environment variables layered over
// the defaults.
func FromEnv() (*Config, error) {
	cfg := Default()

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, util.NewConfigErrorWithCause(EnvPort, "invalid port", err)
		}
		cfg.Port = port
	}
	if v := os.Getenv(EnvAllowedOrigin); v != "" {
		cfg.AllowedOrigin = v
	}
	if v := os.Getenv(EnvClassifierURL); v != "" {
		cfg.Services.Classifier = v
	}
	if v := os.Getenv(EnvCleanerURL); v != "" {
		cfg.Services.Cleaner = v
	}
	if v := os.Getenv(EnvGeneratorURL); v != "" {
		cfg.Services.Generator = v
	}
	if v := os.Getenv(EnvCollectorURL); v != "" {
		cfg.Services.Collector = v
	}
	if v := os.Getenv(EnvUpstreamTO); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, util.NewConfigErrorWithCause(EnvUpstreamTO, "invalid duration", err)
		}
		cfg.UpstreamTimeout = Duration(d)
	}
	if v := os.Getenv(EnvProbeTO); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, util.NewConfigErrorWithCause(EnvProbeTO, "invalid duration", err)
		}
		cfg.ProbeTimeout = Duration(d)
	}
	if v := os.Getenv(EnvRateLimitRPS); v != "" {
		rps, err := strconv.Atoi(v)
		if err != nil {
			return nil, util.NewConfigErrorWithCause(EnvRateLimitRPS, "invalid rate", err)
		}
		cfg.RateLimit.RPS = rps
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Log.Format = v
	}

	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return util.NewConfigError("port", fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.AllowedOrigin == "" {
		return util.NewConfigError("allowedOrigin", "allowed origin must not be empty")
	}
	if c.UpstreamTimeout.Duration() <= 0 {
		return util.NewConfigError("upstreamTimeout", "upstream timeout must be positive")
	}
	if c.ProbeTimeout.Duration() <= 0 {
		return util.NewConfigError("probeTimeout", "probe timeout must be positive")
	}
	if c.RateLimit.RPS < 0 {
		return util.NewConfigError("rateLimit.rps", "rps must not be negative")
	}

	targets := map[string]string{
		"services.classifier": c.Services.Classifier,
		"services.cleaner":    c.Services.Cleaner,
		"services.generator":  c.Services.Generator,
		"services.collector":  c.Services.Collector,
	}
	for field, target := range targets {
		u, err := url.Parse(target)
		if err != nil {
			return util.NewConfigErrorWithCause(field, "invalid target URL", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return util.NewConfigError(field, "target must be an absolute http(s) URL")
		}
	}

	return nil
}

// Routes derives the ordered route list from the configured targets.
// Specific prefixes are declared before the generic /api catch-all; matching
// is order-dependent, so this order is a correctness invariant and must not
// be rearranged.
func (c *Config) Routes() []router.RouteSpec {
	return []router.RouteSpec{
		{Name: "classifier", Prefix: "/api/classify", Target: c.Services.Classifier},
		{Name: "cleaner", Prefix: "/api/clean", Target: c.Services.Cleaner},
		{Name: "generator", Prefix: "/api/generate", Target: c.Services.Generator},
		{Name: "collector", Prefix: "/api/collect", Target: c.Services.Collector, Replacement: "/collect"},
		{Name: "companies", Prefix: "/api/companies", Target: c.Services.Collector, Replacement: "/companies"},
		{Name: "fallback", Prefix: "/api", Target: c.Services.Collector},
	}
}
