package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/llmwebagent/agent/internal/logging"
)

// wireRequest is the framed JSON envelope the persistent endpoint
// expects, per spec.md §6: {request_id, type, payload}.
type wireRequest struct {
	RequestID string          `json:"request_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// wireResponse is the framed JSON envelope the persistent endpoint
// emits: {request_id, type, payload|error}.
type wireResponse struct {
	RequestID string          `json:"request_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
}

type waiter struct {
	ch chan wireResponse
}

// PersistentTransport is a single long-lived duplex WebSocket
// connection. Each outbound request carries a fresh correlation id;
// an internal demultiplexer routes inbound frames to the waiter keyed
// by that id (spec.md §4.1). Grounded on the teacher's
// ui/transports/websocket/websocket.go framing, adapted from a
// server-accepting to a client-dialing role.
type PersistentTransport struct {
	url    string
	logger logging.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	waiters  map[string]*waiter
	connected bool

	reconnectCooldown time.Duration
	lastReconnectAt   time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPersistentTransport dials url and starts the read/heartbeat loops.
// Connection failures are not fatal here: the pool falls back to HTTP
// and later calls to Complete will attempt reconnection subject to the
// cooldown.
func NewPersistentTransport(url string, reconnectCooldown time.Duration, logger logging.Logger) *PersistentTransport {
	if logger == nil {
		logger = logging.NoOp{}
	}
	t := &PersistentTransport{
		url:               url,
		logger:            logger,
		waiters:           make(map[string]*waiter),
		reconnectCooldown: reconnectCooldown,
		closed:            make(chan struct{}),
	}
	t.connect(context.Background())
	return t
}

func (t *PersistentTransport) Name() string { return "ws" }

// Connected reports whether the duplex connection is currently usable.
func (t *PersistentTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *PersistentTransport) connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if !t.lastReconnectAt.IsZero() && time.Since(t.lastReconnectAt) < t.reconnectCooldown {
		t.mu.Unlock()
		return fmt.Errorf("transport: reconnect cooldown active: %w", ErrDisconnected)
	}
	t.lastReconnectAt = time.Now()
	t.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, t.url, nil)
	if err != nil {
		t.logger.Warn("persistent transport dial failed", map[string]interface{}{"url": t.url, "error": err.Error()})
		return fmt.Errorf("transport: dial failed: %w", ErrDisconnected)
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	go t.readLoop(conn)
	go t.heartbeatLoop(conn)
	return nil
}

func (t *PersistentTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleDisconnect(conn, err)
			return
		}
		var resp wireResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			t.logger.Warn("persistent transport received unparsable frame", map[string]interface{}{"error": err.Error()})
			continue
		}
		t.deliver(resp)
	}
}

func (t *PersistentTransport) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(defaultHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
			if t.Connected() {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					t.handleDisconnect(conn, err)
					return
				}
			}
		}
	}
}

// handleDisconnect fails every outstanding waiter with ErrDisconnected
// and marks the connection dead, per spec.md §4.1.
func (t *PersistentTransport) handleDisconnect(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return // already superseded by a newer connection
	}
	t.connected = false
	t.conn = nil
	waiters := t.waiters
	t.waiters = make(map[string]*waiter)
	t.mu.Unlock()

	t.logger.Warn("persistent transport disconnected", map[string]interface{}{"error": cause.Error()})
	for id, w := range waiters {
		w.ch <- wireResponse{RequestID: id, Error: ErrDisconnected.Error()}
	}
}

func (t *PersistentTransport) deliver(resp wireResponse) {
	t.mu.Lock()
	w, ok := t.waiters[resp.RequestID]
	if ok {
		delete(t.waiters, resp.RequestID)
	}
	t.mu.Unlock()
	if ok {
		w.ch <- resp
	}
}

// Complete sends one request over the duplex connection and waits for
// the matching correlation id. If currently disconnected it makes one
// reconnect attempt, refused while the reconnect cool-down is active;
// there is no repeated or backed-off redialling.
func (t *PersistentTransport) Complete(ctx context.Context, req Request) (Response, error) {
	if !t.Connected() {
		if _, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, t.connect(ctx)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(1)); err != nil {
			return Response{}, fmt.Errorf("transport: %w", ErrDisconnected)
		}
	}

	id := uuid.NewString()
	payload, err := json.Marshal(map[string]interface{}{
		"model":        req.Model,
		"system":       req.SystemPrompt,
		"prompt":       req.Prompt,
		"temperature":  req.Temperature,
		"max_tokens":   req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("transport: marshaling payload: %w", err)
	}

	envelope := wireRequest{RequestID: id, Type: "chat.completions", Payload: payload}
	data, err := json.Marshal(envelope)
	if err != nil {
		return Response{}, fmt.Errorf("transport: marshaling envelope: %w", err)
	}

	w := &waiter{ch: make(chan wireResponse, 1)}
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return Response{}, ErrDisconnected
	}
	t.waiters[id] = w
	t.mu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.mu.Lock()
		delete(t.waiters, id)
		t.mu.Unlock()
		return Response{}, fmt.Errorf("transport: write failed: %w", ErrDisconnected)
	}

	select {
	case resp := <-w.ch:
		if resp.Error != "" {
			return Response{}, fmt.Errorf("transport: %s: %w", resp.Error, ErrDisconnected)
		}
		var parsed struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(resp.Payload, &parsed); err != nil {
			return Response{}, fmt.Errorf("transport: %w: %v", ErrParse, err)
		}
		return Response{Content: parsed.Content, Provider: t.Name()}, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.waiters, id)
		t.mu.Unlock()
		return Response{}, ErrTimeout
	}
}

// Stream is not wired to plan delivery; it degrades to Complete
// followed by a single terminal chunk (spec.md §11 Open Questions).
func (t *PersistentTransport) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	ch := make(chan Chunk, 1)
	resp, err := t.Complete(ctx, req)
	if err != nil {
		close(ch)
		return ch, err
	}
	ch <- Chunk{Delta: resp.Content, Done: true}
	close(ch)
	return ch, nil
}

// Close tears down the connection and background loops.
func (t *PersistentTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
