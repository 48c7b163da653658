package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llmwebagent/agent/internal/logging"
)

// Pool holds at most one persistent connection and one HTTP client, for
// the URLs it was built with, and implements the hybrid selection policy of
// spec.md §4.1. It is an explicit, constructible-in-tests service
// locator rather than a hidden package-level global (spec.md §9
// REDESIGN FLAGS).
type Pool struct {
	http       *HTTPTransport
	persistent *PersistentTransport

	mu    sync.Mutex
	stats Stats
}

// NewPool wires an HTTP transport (always present) and, when wsURL is
// non-empty, a persistent transport attempted once at construction.
func NewPool(httpBaseURL, apiKey, wsURL string, timeout, reconnectCooldown time.Duration, logger logging.Logger) *Pool {
	p := &Pool{
		http: NewHTTPTransport(httpBaseURL, apiKey, timeout, logger),
	}
	if wsURL != "" {
		p.persistent = NewPersistentTransport(wsURL, reconnectCooldown, logger)
	}
	return p
}

// GetProvider returns the persistent transport when connected,
// otherwise the HTTP transport (spec.md §4.1).
func (p *Pool) GetProvider(preferPersistent bool) Transport {
	if preferPersistent && p.persistent != nil && p.persistent.Connected() {
		return p.persistent
	}
	return p.http
}

// Complete routes through GetProvider and records stats, falling back
// to HTTP transparently when the persistent transport fails — this is
// the behavior the S3 scenario asserts (httpRequests ≥ 1, wsFailures ≥ 1).
func (p *Pool) Complete(ctx context.Context, req Request, preferPersistent bool) (Response, error) {
	if preferPersistent && p.persistent != nil && !p.persistent.Connected() {
		// At most one dial per reconnect cool-down; a refusal or failed
		// dial leaves the request on HTTP below.
		_ = p.persistent.connect(ctx)
	}
	if preferPersistent && p.persistent != nil && p.persistent.Connected() {
		resp, err := p.persistent.Complete(ctx, req)
		if err == nil {
			atomic.AddInt64(&p.stats.WSRequests, 1)
			return resp, nil
		}
		atomic.AddInt64(&p.stats.WSFailures, 1)
		// fall through to HTTP
	}
	resp, err := p.http.Complete(ctx, req)
	if err == nil {
		atomic.AddInt64(&p.stats.HTTPRequests, 1)
	}
	return resp, err
}

// Stats returns a snapshot of request/failure counters.
func (p *Pool) Stats() Stats {
	return Stats{
		HTTPRequests: atomic.LoadInt64(&p.stats.HTTPRequests),
		WSRequests:   atomic.LoadInt64(&p.stats.WSRequests),
		WSFailures:   atomic.LoadInt64(&p.stats.WSFailures),
	}
}

// Close releases the persistent connection, if any.
func (p *Pool) Close() error {
	if p.persistent != nil {
		return p.persistent.Close()
	}
	return nil
}
