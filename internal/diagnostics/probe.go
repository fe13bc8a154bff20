// Package diagnostics provides the on-demand reachability probe. It exists
// to diagnose ambiguous internal-network addressing and runs out-of-band:
// it shares nothing with the routing pipeline beyond target hostnames.
package diagnostics

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ElieObadia/backend-proxy/internal/observability"
)

// DefaultProbeTimeout bounds each individual variant probe.
const DefaultProbeTimeout = 3 * time.Second

// probeNote explains the report to whoever is reading it.
const probeNote = "Each variant probes the same backend under a different " +
	"address form. Disagreement between variants usually means a " +
	"port-specific DNS or service entry inside the internal network."

// VariantResult is the outcome of probing one address variant.
type VariantResult struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
	URL        string `json:"url"`
}

// Report is the full diagnostics response.
type Report struct {
	Timestamp    string                   `json:"timestamp"`
	ServiceTests map[string]VariantResult `json:"serviceTests"`
	Note         string                   `json:"note"`
}

// Prober issues independent health-check requests against a fixed set of
// address variants for one backend.
type Prober struct {
	variants map[string]string
	timeout  time.Duration
	client   *http.Client
	logger   observability.Logger
}

// ProberOption is a functional option for configuring the prober.
type ProberOption func(*Prober)

// WithProbeTimeout sets the per-variant timeout.
func WithProbeTimeout(timeout time.Duration) ProberOption {
	return func(p *Prober) {
		p.timeout = timeout
	}
}

// WithProbeLogger sets the logger for the prober.
func WithProbeLogger(logger observability.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

// NewProber derives the probe variants from the target's address: the
// address as configured, the bare host without a port, and the host with an
// explicit port 80. Variants that collapse to the same URL are dropped.
func NewProber(target *url.URL, opts ...ProberOption) *Prober {
	p := &Prober{
		timeout: DefaultProbeTimeout,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = &http.Client{}
	}

	p.variants = map[string]string{
		"as-configured": target.String(),
	}

	bare := *target
	bare.Host = target.Hostname()
	if bare.String() != target.String() {
		p.variants["no-port"] = bare.String()
	}

	port80 := *target
	port80.Host = target.Hostname() + ":80"
	if port80.String() != target.String() {
		p.variants["port-80"] = port80.String()
	}

	return p
}

// Run probes every variant concurrently and collects the per-variant
// results. Each probe carries its own timeout; a slow variant never stalls
// the others.
func (p *Prober) Run(ctx context.Context) Report {
	report := Report{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		ServiceTests: make(map[string]VariantResult, len(p.variants)),
		Note:         probeNote,
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for name, variantURL := range p.variants {
		wg.Add(1)
		go func(name, variantURL string) {
			defer wg.Done()
			result := p.probe(ctx, variantURL)

			mu.Lock()
			report.ServiceTests[name] = result
			mu.Unlock()
		}(name, variantURL)
	}

	wg.Wait()
	return report
}

// probe issues a single GET against one variant.
func (p *Prober) probe(ctx context.Context, variantURL string) VariantResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, variantURL, http.NoBody)
	if err != nil {
		return VariantResult{Status: "unreachable", Error: err.Error(), URL: variantURL}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("probe failed",
			observability.String("url", variantURL),
			observability.Error(err),
		)
		return VariantResult{Status: "unreachable", Error: err.Error(), URL: variantURL}
	}
	defer resp.Body.Close()

	p.logger.Debug("probe succeeded",
		observability.String("url", variantURL),
		observability.Int("status", resp.StatusCode),
	)
	return VariantResult{Status: "reachable", StatusCode: resp.StatusCode, URL: variantURL}
}
