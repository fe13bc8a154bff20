// Package proxy implements the backend dispatcher: it forwards matched
// requests to their target service with change-origin semantics and
// normalizes transport failures into structured client responses.
package proxy

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ElieObadia/backend-proxy/internal/observability"
	"github.com/ElieObadia/backend-proxy/internal/router"
)

// DefaultUpstreamTimeout bounds how long the dispatcher waits for a backend
// to begin responding.
const DefaultUpstreamTimeout = 30 * time.Second

// hopHeaders are headers that must not be forwarded.
var hopHeaders = []string{
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

// Dispatcher forwards requests to backend targets. One reverse proxy is
// built per route at construction; the table is immutable so nothing here
// needs locking.
type Dispatcher struct {
	logger   observability.Logger
	timeout  time.Duration
	trans    http.RoundTripper
	proxies  map[string]*httputil.ReverseProxy
	breakers map[string]*gobreaker.CircuitBreaker
	cbCfg    *BreakerConfig
}

// BreakerConfig configures the optional per-route circuit breaker. When nil,
// every dispatch goes straight to the transport.
type BreakerConfig struct {
	// Threshold is the minimum number of observed requests before the
	// failure ratio can trip the breaker.
	Threshold uint32

	// Interval is both the rolling window and the open-state timeout.
	Interval time.Duration
}

// Option is a functional option for configuring the dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTimeout sets the upstream response-header timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithTransport overrides the upstream transport. Mostly for tests.
func WithTransport(trans http.RoundTripper) Option {
	return func(d *Dispatcher) {
		d.trans = trans
	}
}

// WithCircuitBreaker enables a per-route circuit breaker. An open breaker
// short-circuits dispatches to the 503 outcome without dialing the backend.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(d *Dispatcher) {
		d.cbCfg = &cfg
	}
}

// NewDispatcher builds a dispatcher for every route in the table.
func NewDispatcher(table *router.Table, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:   observability.NopLogger(),
		timeout:  DefaultUpstreamTimeout,
		proxies:  make(map[string]*httputil.ReverseProxy),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.trans == nil {
		d.trans = newTransport(d.timeout)
	}

	for _, route := range table.Routes() {
		d.proxies[route.Name] = d.buildProxy(route)
		if d.cbCfg != nil {
			d.breakers[route.Name] = d.buildBreaker(route.Name)
		}
	}

	return d
}

// newTransport returns the pooled upstream transport. ResponseHeaderTimeout
// bounds time to first byte, not body streaming, so long downloads survive.
func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}
}

// Forward dispatches the request to the matched route's backend. The
// response is streamed back verbatim on success; on transport failure the
// classified JSON body is written instead. Client disconnects propagate to
// the upstream call through the request context.
func (d *Dispatcher) Forward(w http.ResponseWriter, r *http.Request, match *router.Match) {
	route := match.Route
	start := time.Now()

	state := &dispatchState{}
	outReq := r.Clone(context.WithValue(r.Context(), dispatchStateKey{}, state))
	outReq.URL.Path = match.ForwardPath
	outReq.URL.RawPath = ""

	d.logger.Info("forwarding request",
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.String("forwardPath", match.ForwardPath),
		observability.String("target", route.Target.String()),
		observability.String("service", route.Name),
	)

	if br := d.breakers[route.Name]; br != nil {
		_, err := br.Execute(func() (any, error) {
			d.proxies[route.Name].ServeHTTP(w, outReq)
			return nil, state.err
		})
		if isBreakerOpen(err) {
			d.logger.Warn("circuit open, short-circuiting dispatch",
				observability.String("service", route.Name),
			)
			dispatcherMetrics().failures.WithLabelValues(route.Name, string(FailureUnavailable)).Inc()
			writeFailure(w, FailureUnavailable, route.Name, route.Target.String(), d.timeout, err)
		}
	} else {
		d.proxies[route.Name].ServeHTTP(w, outReq)
	}

	dispatcherMetrics().duration.WithLabelValues(route.Name).Observe(time.Since(start).Seconds())
}

// isBreakerOpen reports whether the breaker rejected the call without
// running it.
func isBreakerOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

// dispatchState carries the transport error out of the reverse proxy's
// error handler so the circuit breaker can count it.
type dispatchState struct {
	err error
}

type dispatchStateKey struct{}

// buildProxy constructs the reverse proxy for one route.
func (d *Dispatcher) buildProxy(route *router.Route) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Director:       changeOrigin(route.Target),
		Transport:      d.trans,
		FlushInterval:  -1,
		ErrorHandler:   d.errorHandler(route),
		ModifyResponse: d.logResponse(route),
	}
}

// buildBreaker constructs the circuit breaker for one route.
func (d *Dispatcher) buildBreaker(name string) *gobreaker.CircuitBreaker {
	cfg := d.cbCfg
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.Interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.Threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Info("circuit breaker state change",
				observability.String("service", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
}

// changeOrigin returns the director applying change-origin semantics: the
// request is re-addressed to the target and the Host header is overridden
// with the target's own host.
func changeOrigin(target *url.URL) func(*http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host

		if target.Path != "" && target.Path != "/" {
			req.URL.Path = strings.TrimSuffix(target.Path, "/") + req.URL.Path
		}

		for _, h := range hopHeaders {
			req.Header.Del(h)
		}

		if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
				clientIP = prior + ", " + clientIP
			}
			req.Header.Set("X-Forwarded-For", clientIP)
		}
		if req.TLS != nil {
			req.Header.Set("X-Forwarded-Proto", "https")
		} else {
			req.Header.Set("X-Forwarded-Proto", "http")
		}
		req.Header.Set("X-Forwarded-Host", req.Host)

		req.Host = target.Host

		if _, ok := req.Header["User-Agent"]; !ok {
			// Keep the transport from injecting its default.
			req.Header.Set("User-Agent", "")
		}
	}
}

// logResponse records and logs the backend response before it is streamed
// back to the client unmodified.
func (d *Dispatcher) logResponse(route *router.Route) func(*http.Response) error {
	return func(resp *http.Response) error {
		dispatcherMetrics().requests.WithLabelValues(route.Name, strconv.Itoa(resp.StatusCode)).Inc()

		d.logger.Info("received response",
			observability.String("service", route.Name),
			observability.String("target", route.Target.String()),
			observability.Int("status", resp.StatusCode),
		)
		return nil
	}
}

// errorHandler classifies a transport failure and writes the corresponding
// structured response. All backend failures are fully recovered here; none
// propagate as gateway-internal faults.
func (d *Dispatcher) errorHandler(route *router.Route) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if state, ok := r.Context().Value(dispatchStateKey{}).(*dispatchState); ok {
			state.err = err
		}

		class := Classify(err)
		dispatcherMetrics().failures.WithLabelValues(route.Name, string(class)).Inc()

		if class == FailureCanceled {
			d.logger.Warn("client disconnected before backend response",
				observability.String("service", route.Name),
				observability.String("path", r.URL.Path),
			)
			return
		}

		d.logger.Error("backend dispatch failed",
			observability.String("service", route.Name),
			observability.String("target", route.Target.String()),
			observability.String("class", string(class)),
			observability.Int("status", StatusForClass(class)),
			observability.Error(err),
		)

		writeFailure(w, class, route.Name, route.Target.String(), d.timeout, err)
	}
}
