// Package transport implements the LLM transport layer (spec.md §4.1):
// a stateless HTTP transport and a persistent, duplex WebSocket
// transport behind one interface, plus a process-wide pool that picks
// between them and manages reconnection.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/llmwebagent/agent/internal/model"
)

// Request is a single chat-completion-style call to the planning LLM.
type Request struct {
	Model       string
	SystemPrompt string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Response is the transport-agnostic result of a Request.
type Response struct {
	Content string
	// Provider is which transport actually served the request, useful
	// for the S3 stats assertion (httpRequests, wsFailures).
	Provider string
}

// Chunk is one piece of a streamed response (spec.md §4.1 — defined but
// not wired into plan delivery by default; see Open Questions).
type Chunk struct {
	Delta string
	Done  bool
}

// Transport is the common contract implemented by HTTPTransport and
// PersistentTransport.
type Transport interface {
	// Complete performs a single request/response call.
	Complete(ctx context.Context, req Request) (Response, error)
	// Stream performs a request, delivering incremental chunks on the
	// returned channel. The channel is closed when the stream ends or
	// ctx is cancelled.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
	// Name identifies the transport for stats/logging ("http", "ws").
	Name() string
}

// Stats tracks aggregate counters surfaced to callers/tests, matching
// the S3 scenario's httpRequests/wsFailures assertions.
type Stats struct {
	HTTPRequests int64
	WSRequests   int64
	WSFailures   int64
}

var (
	// ErrTimeout mirrors model.ErrTransportTimeout for transport-local use.
	ErrTimeout = model.ErrTransportTimeout
	// ErrDisconnected signals the persistent transport lost its connection.
	ErrDisconnected = model.ErrTransportDisconnect
	// ErrParse signals a malformed transport payload.
	ErrParse = model.ErrTransportParse
	// ErrRateLimit signals the remote endpoint rejected the request for rate.
	ErrRateLimit = model.ErrTransportRateLimit
)

// classifyError maps a low-level transport failure to one of the
// sentinel errors the Planner/Engine branch on (spec.md §9).
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// defaultHeartbeatInterval is how often the persistent transport pings
// the remote endpoint to detect a silent disconnect.
const defaultHeartbeatInterval = 20 * time.Second
