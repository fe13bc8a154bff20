// Package server assembles the HTTP front of the gateway: the middleware
// chain, the operational endpoints, and the catch-all proxy dispatch.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ElieObadia/backend-proxy/internal/config"
	"github.com/ElieObadia/backend-proxy/internal/diagnostics"
	"github.com/ElieObadia/backend-proxy/internal/middleware"
	"github.com/ElieObadia/backend-proxy/internal/observability"
	"github.com/ElieObadia/backend-proxy/internal/proxy"
	"github.com/ElieObadia/backend-proxy/internal/router"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg        *config.Config
	logger     observability.Logger
	engine     *gin.Engine
	httpServer *http.Server
	table      *router.Table
	dispatcher *proxy.Dispatcher
	prober     *diagnostics.Prober
	limiter    *middleware.RateLimiter
}

// New assembles a server from configuration: route table, dispatcher,
// prober, middleware chain, and endpoint registration.
func New(cfg *config.Config, logger observability.Logger) (*Server, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	table, err := router.NewTable(logger, cfg.Routes()...)
	if err != nil {
		return nil, fmt.Errorf("building route table: %w", err)
	}

	dispatchOpts := []proxy.Option{
		proxy.WithLogger(logger),
		proxy.WithTimeout(cfg.UpstreamTimeout.Duration()),
	}
	if cfg.CircuitBreaker.Enabled {
		dispatchOpts = append(dispatchOpts, proxy.WithCircuitBreaker(proxy.BreakerConfig{
			Threshold: cfg.CircuitBreaker.Threshold,
			Interval:  cfg.CircuitBreaker.Interval.Duration(),
		}))
	}
	dispatcher := proxy.NewDispatcher(table, dispatchOpts...)

	collector, err := url.Parse(cfg.Services.Collector)
	if err != nil {
		return nil, fmt.Errorf("parsing collector target: %w", err)
	}
	prober := diagnostics.NewProber(collector,
		diagnostics.WithProbeTimeout(cfg.ProbeTimeout.Duration()),
		diagnostics.WithProbeLogger(logger),
	)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		table:      table,
		dispatcher: dispatcher,
		prober:     prober,
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.engine.Use(middleware.Recovery(logger))
	s.engine.Use(middleware.Logging(logger))
	s.engine.Use(middleware.CORS(cfg.AllowedOrigin))
	if cfg.RateLimit.RPS > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
		s.engine.Use(middleware.RateLimit(s.limiter))
	}

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/diagnostic", s.handleDiagnostic)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.NoRoute(s.handleProxy)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler exposes the assembled engine. Mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the HTTP server until it fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("gateway listening",
		observability.String("addr", s.httpServer.Addr),
		observability.Int("routes", len(s.table.Routes())),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("gateway shutting down")

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// handleHealth reports that the gateway process itself is alive. It never
// dials the backends; reachability questions belong to /diagnostic.
func (s *Server) handleHealth(c *gin.Context) {
	services := make(map[string]string)
	for _, route := range s.table.Routes() {
		services[route.Name] = route.Target.Host
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

// handleDiagnostic runs the address-variant reachability probe and returns
// the raw report.
func (s *Server) handleDiagnostic(c *gin.Context) {
	report := s.prober.Run(c.Request.Context())
	c.JSON(http.StatusOK, report)
}

// handleProxy resolves the path against the route table and dispatches to
// the matched backend. Unmatched paths get a JSON 404.
func (s *Server) handleProxy(c *gin.Context) {
	match, ok := s.table.Match(c.Request.URL.Path)
	if !ok {
		s.logger.Warn("no route for path",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
		)
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
		return
	}

	s.dispatcher.Forward(c.Writer, c.Request, match)
}
