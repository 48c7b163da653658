package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/llmwebagent/agent/internal/driver/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMapsKnownPatternsToKinds(t *testing.T) {
	assert.Equal(t, KindElementNotFound, Classify(errors.New("could not find element matching selector")))
	assert.Equal(t, KindElementNotVisible, Classify(errors.New("element is hidden")))
	assert.Equal(t, KindTimeout, Classify(errors.New("context deadline exceeded")))
	assert.Equal(t, KindNavigationFailed, Classify(errors.New("net::ERR_CONNECTION_REFUSED")))
	assert.Equal(t, KindUnknown, Classify(errors.New("something entirely unrelated")))
}

func TestRecoverElementNotFoundEscalatesThroughLadder(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	r := New(3, nil)
	rctx := &Context{StepID: "step_1"}
	err := errors.New("element not found")

	res1 := r.Recover(context.Background(), page, err, rctx)
	assert.Equal(t, "wait_short", res1.ActionTaken)
	assert.True(t, res1.ShouldRetry)

	res2 := r.Recover(context.Background(), page, err, rctx)
	assert.Equal(t, "scroll_down", res2.ActionTaken)

	res3 := r.Recover(context.Background(), page, err, rctx)
	assert.Contains(t, []string{"dismiss_overlays", "none"}, res3.ActionTaken)

	res4 := r.Recover(context.Background(), page, err, rctx)
	assert.False(t, res4.ShouldRetry)
	assert.Equal(t, "max_attempts_exceeded", res4.ActionTaken)
}

func TestRecoverTimeoutDoublesTimeoutThenCaps(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	r := New(3, nil)
	rctx := &Context{StepID: "step_2", Timeout: 5 * time.Second}

	res := r.Recover(context.Background(), page, errors.New("operation timed out"), rctx)
	require.True(t, res.ShouldRetry)
	assert.Equal(t, 10*time.Second, res.NewTimeout)
}

func TestRecoverFillFailedClearsFieldFirst(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	page.AddNode(&fake.Node{Tag: "input", Visible: true, Enabled: true, Attrs: map[string]string{"id": "pw"}})
	r := New(3, nil)
	rctx := &Context{StepID: "step_3", Selector: "#pw"}

	res := r.Recover(context.Background(), page, errors.New("fill failed: readonly"), rctx)
	assert.Equal(t, "clear_field", res.ActionTaken)
	assert.True(t, res.ShouldRetry)
}

func TestRecoverElementDetachedFlagsReResolve(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	r := New(3, nil)
	rctx := &Context{StepID: "step_4"}

	res := r.Recover(context.Background(), page, errors.New("stale element reference"), rctx)
	assert.True(t, rctx.ReResolve)
	assert.True(t, res.ShouldRetry)
}

func TestResetAttemptsClearsCounterForStep(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	r := New(1, nil)
	rctx := &Context{StepID: "step_5"}
	err := errors.New("element not found")

	r.Recover(context.Background(), page, err, rctx)
	exhausted := r.Recover(context.Background(), page, err, rctx)
	assert.False(t, exhausted.ShouldRetry)

	r.ResetAttempts("step_5")
	res := r.Recover(context.Background(), page, err, rctx)
	assert.True(t, res.ShouldRetry)
}

func TestDismissOverlaysClicksFirstVisibleMatch(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	page.AddNode(&fake.Node{Tag: "button", Visible: true, Enabled: true, Attrs: map[string]string{"class": "close-button"}})
	r := New(3, nil)

	ok := r.dismissOverlays(context.Background(), page)
	assert.True(t, ok)
}
