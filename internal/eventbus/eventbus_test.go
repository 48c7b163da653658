package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/llmwebagent/agent/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversMonotonicSequence(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()

	bus.Publish(model.EventRunStarted, map[string]interface{}{"goal": "sign in"})
	bus.Publish(model.EventStep, map[string]interface{}{"step_id": "step_0"})

	evt1 := <-sub.Events
	evt2 := <-sub.Events
	assert.Equal(t, uint64(1), evt1.Sequence)
	assert.Equal(t, uint64(2), evt2.Sequence)
}

func TestSubscribeDeliversCurrentStateFirst(t *testing.T) {
	bus := New(4)
	bus.Publish(model.EventState, map[string]interface{}{"phase": "planning"})
	bus.Publish(model.EventStep, map[string]interface{}{"step_id": "step_0"})

	sub := bus.Subscribe()
	first := <-sub.Events
	assert.Equal(t, model.EventState, first.Kind)
	assert.Equal(t, "planning", first.Payload["phase"])
}

func TestFullQueueDropsOldestAndIncrementsCounter(t *testing.T) {
	bus := New(2)
	sub := bus.Subscribe()

	bus.Publish(model.EventStep, map[string]interface{}{"n": 1})
	bus.Publish(model.EventStep, map[string]interface{}{"n": 2})
	bus.Publish(model.EventStep, map[string]interface{}{"n": 3})

	assert.Equal(t, uint64(1), sub.Dropped())

	first := <-sub.Events
	assert.Equal(t, 2, first.Payload["n"])
	second := <-sub.Events
	assert.Equal(t, 3, second.Payload["n"])
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events
	assert.False(t, ok)
}

func TestLogSinkDrainsUntilContextCancelled(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	sink := NewLogSink(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx, sub)
		close(done)
	}()

	bus.Publish(model.EventRunCompleted, map[string]interface{}{"status": "succeeded"})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "log sink did not stop after context cancellation")
	}
}
