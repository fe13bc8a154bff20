package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// FailureClass is the stable category assigned to a transport failure.
type FailureClass string

const (
	// FailureUnavailable is a backend that refused the connection.
	FailureUnavailable FailureClass = "unavailable"

	// FailureTimeout is a backend that did not start responding in time.
	FailureTimeout FailureClass = "timeout"

	// FailureCanceled is an inbound client that went away before the
	// backend answered. No response can be written.
	FailureCanceled FailureClass = "canceled"

	// FailureProxy is any other transport failure.
	FailureProxy FailureClass = "proxy_error"
)

// Classify maps a transport error to exactly one failure class. Refusal is
// checked before timeout: a refused connection is never a timeout, but some
// transports wrap both conditions in the same error chain.
func Classify(err error) FailureClass {
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return FailureUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureProxy
}

// errnoToken returns a short symbolic code for the 500 proxy-error body,
// mirroring the error codes clients already handle programmatically.
func errnoToken(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET:
			return "ECONNRESET"
		case syscall.EPIPE:
			return "EPIPE"
		case syscall.ECONNABORTED:
			return "ECONNABORTED"
		case syscall.EHOSTUNREACH:
			return "EHOSTUNREACH"
		case syscall.ENETUNREACH:
			return "ENETUNREACH"
		case syscall.ECONNREFUSED:
			return "ECONNREFUSED"
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "ENOTFOUND"
	}
	return "EPROXY"
}

// unavailableBody is the 503 response. It discloses the resolved target so
// operators can spot misconfigured service addresses from client reports.
type unavailableBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Service   string `json:"service"`
	Target    string `json:"target"`
	Timestamp string `json:"timestamp"`
}

// timeoutBody is the 504 response.
type timeoutBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Service string `json:"service"`
}

// proxyErrorBody is the 500 response for unclassified transport failures.
type proxyErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Service string `json:"service"`
}

// StatusForClass returns the HTTP status produced for a failure class.
// FailureCanceled has no status: nothing is written to a gone client.
func StatusForClass(class FailureClass) int {
	switch class {
	case FailureUnavailable:
		return http.StatusServiceUnavailable
	case FailureTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure writes the classified JSON body for a failed dispatch.
func writeFailure(w http.ResponseWriter, class FailureClass, service, target string, timeout time.Duration, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForClass(class))

	var body any
	switch class {
	case FailureUnavailable:
		body = unavailableBody{
			Error:     "Service Unavailable",
			Message:   fmt.Sprintf("%s service is unavailable", service),
			Service:   service,
			Target:    target,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
	case FailureTimeout:
		body = timeoutBody{
			Error:   "Gateway Timeout",
			Message: fmt.Sprintf("%s service did not respond within %s", service, timeout),
			Service: service,
		}
	default:
		body = proxyErrorBody{
			Error:   "Proxy Error",
			Message: fmt.Sprintf("unexpected error while proxying to %s service", service),
			Code:    errnoToken(err),
			Service: service,
		}
	}

	_ = json.NewEncoder(w).Encode(body)
}
