package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolPrefersPersistentWhenConnected(t *testing.T) {
	ws := echoServer(t)
	defer ws.Close()

	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("http transport should not be used while ws is connected")
	}))
	defer httpSrv.Close()

	pool := &Pool{
		http:       NewHTTPTransport(httpSrv.URL, "key", time.Second, nil),
		persistent: NewPersistentTransport(wsURL(ws), 50*time.Millisecond, nil),
	}
	defer pool.Close()

	resp, err := pool.Complete(context.Background(), Request{Prompt: "hi"}, true)
	require.NoError(t, err)
	assert.Equal(t, "hi-reply", resp.Content)
	assert.Equal(t, int64(1), pool.Stats().WSRequests)
	assert.Equal(t, int64(0), pool.Stats().HTTPRequests)
}

func TestPoolFallsBackToHTTPAfterPersistentOutage(t *testing.T) {
	ws := echoServer(t)

	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Content: "http-fallback"}}},
		})
	}))
	defer httpSrv.Close()

	pool := &Pool{
		http:       NewHTTPTransport(httpSrv.URL, "key", time.Second, nil),
		persistent: NewPersistentTransport(wsURL(ws), 10*time.Millisecond, nil),
	}
	defer pool.Close()
	require.True(t, pool.persistent.Connected())

	ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && pool.persistent.Connected() {
		time.Sleep(10 * time.Millisecond)
	}
	require.False(t, pool.persistent.Connected())

	resp, err := pool.Complete(context.Background(), Request{Prompt: "hi"}, true)
	require.NoError(t, err)
	assert.Equal(t, "http-fallback", resp.Content)
	assert.GreaterOrEqual(t, pool.Stats().HTTPRequests, int64(1))
}
