package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmwebagent/agent/internal/config"
	"github.com/llmwebagent/agent/internal/driver/fake"
	"github.com/llmwebagent/agent/internal/eventbus"
	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/internal/model"
	"github.com/llmwebagent/agent/internal/planner"
	"github.com/llmwebagent/agent/internal/profiler"
	"github.com/llmwebagent/agent/internal/recovery"
	"github.com/llmwebagent/agent/internal/resolver"
	"github.com/llmwebagent/agent/internal/store"
	"github.com/llmwebagent/agent/internal/tracker"
	"github.com/llmwebagent/agent/internal/transport"
	"github.com/llmwebagent/agent/internal/validator"
)

// stubPlanTransport returns a fixed LLM response, bypassing any real
// network call so Planner.Plan is deterministic in tests.
type stubPlanTransport struct{ content string }

func (s stubPlanTransport) Complete(ctx context.Context, req transport.Request) (transport.Response, error) {
	return transport.Response{Content: s.content, Provider: "stub"}, nil
}

func (s stubPlanTransport) Stream(ctx context.Context, req transport.Request) (<-chan transport.Chunk, error) {
	return nil, errors.New("not implemented")
}

func (s stubPlanTransport) Name() string { return "stub" }

// testHarness bundles one Engine with the collaborators a test needs to
// inspect afterwards (the tracker, to assert on learned patterns).
type testHarness struct {
	engine  *Engine
	tracker *tracker.Tracker
}

func newHarness(t *testing.T, planJSON string, maxRecoveryAttempts, lookahead int) *testHarness {
	t.Helper()
	dir := t.TempDir()
	backend := store.FileBackend{}

	pl := planner.New(stubPlanTransport{content: planJSON}, "test-model", logging.NoOp{})
	pr := profiler.New(filepath.Join(dir, "site_profiles.json"), backend, logging.NoOp{})
	tr := tracker.New(filepath.Join(dir, "selector_patterns.json"), backend, logging.NoOp{})
	rs := resolver.New(200*time.Millisecond, logging.NoOp{})
	v := validator.New(true)
	rc := recovery.New(maxRecoveryAttempts, logging.NoOp{})
	bus := eventbus.New(8)

	cfg := &config.Config{
		Lookahead:           lookahead,
		StepTimeout:         5 * time.Second,
		LocatorTimeout:      200 * time.Millisecond,
		MaxRecoveryAttempts: maxRecoveryAttempts,
	}

	eng := New(cfg, pl, pr, tr, rs, v, rc, bus, logging.NoOp{})
	return &testHarness{engine: eng, tracker: tr}
}

const loginPlanJSON = `{"steps":[
  {"action":"navigate","target":"https://example.com/login","value":"https://example.com/login"},
  {"action":"fill","target":"Username","value":"standard_user","locators":[{"strategy":"testid","value":"username"}]},
  {"action":"fill","target":"Password","value":"secret_sauce","locators":[{"strategy":"testid","value":"password"}]},
  {"action":"click","target":"Login","locators":[{"strategy":"testid","value":"login-btn"}]}
]}`

func loginPage() *fake.Page {
	p := fake.NewPage("https://example.com/login", "Login")
	p.AddNode(&fake.Node{TestID: "username", Tag: "input", Visible: true, Enabled: true, Attrs: map[string]string{"id": "username"}})
	p.AddNode(&fake.Node{TestID: "password", Tag: "input", Visible: true, Enabled: true, Attrs: map[string]string{"id": "password"}})
	p.AddNode(&fake.Node{
		TestID: "login-btn", Tag: "button", Visible: true, Enabled: true,
		Attrs: map[string]string{"id": "login-btn"}, ClickNavigatesTo: "https://example.com/inventory",
	})
	return p
}

func TestRunSucceedsForLoginHappyPath(t *testing.T) {
	h := newHarness(t, loginPlanJSON, 3, 0)
	page := loginPage()

	result, err := h.engine.Run(context.Background(), page, "Open saucedemo, log in as standard_user / secret_sauce, wait for inventory")
	require.NoError(t, err)

	assert.Equal(t, model.RunSucceeded, result.Status)
	require.Len(t, result.StepResults, 4)
	for _, sr := range result.StepResults {
		assert.True(t, sr.Success, "step %s should have succeeded: %s", sr.StepID, sr.ErrorMessage)
	}
	assert.Equal(t, "https://example.com/inventory", page.URL())

	selector, ok := h.tracker.ExactMatch("example.com", "Username")
	require.True(t, ok)
	assert.Equal(t, "username", selector)
}

func TestRunWithLookaheadStillCompletesEveryStep(t *testing.T) {
	h := newHarness(t, loginPlanJSON, 3, 2)
	page := loginPage()

	result, err := h.engine.Run(context.Background(), page, "log in")
	require.NoError(t, err)

	assert.Equal(t, model.RunSucceeded, result.Status)
	assert.Len(t, result.StepResults, 4)
}

func TestLocatorFallbackReplacesStaleExactMatchCache(t *testing.T) {
	planJSON := `{"steps":[
	  {"action":"click","target":"Sign In","locators":[
	    {"strategy":"css","value":"#old-btn"},
	    {"strategy":"role","value":"button","accessible_name":"Sign In"}
	  ]}
	]}`
	h := newHarness(t, planJSON, 3, 0)
	h.tracker.RecordSuccess("example.com", "Sign In", model.StrategyCSS, "#old-btn")

	page := fake.NewPage("https://example.com/", "Home")
	page.AddNode(&fake.Node{
		Tag: "button", Role: "button", Name: "Sign In", Visible: true, Enabled: true,
		Attrs: map[string]string{"id": "new-btn"}, ClickNavigatesTo: "https://example.com/account",
	})

	result, err := h.engine.Run(context.Background(), page, "sign in")
	require.NoError(t, err)

	require.Equal(t, model.RunSucceeded, result.Status)
	require.Len(t, result.StepResults, 1)
	sr := result.StepResults[0]
	assert.True(t, sr.Success)
	assert.Equal(t, model.StrategyRole, sr.Strategy)

	selector, ok := h.tracker.ExactMatch("example.com", "Sign In")
	require.True(t, ok)
	assert.NotEqual(t, "#old-btn", selector, "stale cache entry should have been replaced")
}

func TestFillErrorRetrySucceedsOnceTransientFailureClears(t *testing.T) {
	planJSON := `{"steps":[
	  {"action":"fill","target":"Email","value":"john@doe.com","locators":[{"strategy":"testid","value":"email"}]}
	]}`
	h := newHarness(t, planJSON, 5, 0)

	page := fake.NewPage("https://example.com/", "Home")
	page.AddNode(&fake.Node{
		TestID: "email", Tag: "input", Visible: true, Enabled: true,
		Attrs: map[string]string{"id": "email"}, FailFillCount: 2,
	})

	result, err := h.engine.Run(context.Background(), page, "fill in email")
	require.NoError(t, err)

	require.Equal(t, model.RunSucceeded, result.Status)
	require.Len(t, result.StepResults, 1)
	sr := result.StepResults[0]
	assert.True(t, sr.Success)
	assert.Equal(t, "email", sr.SelectorUsed)
}

func TestNonOptionalStepFailureStopsRunAsFailed(t *testing.T) {
	planJSON := `{"steps":[
	  {"action":"click","target":"Missing Button","locators":[{"strategy":"testid","value":"does-not-exist"}]},
	  {"action":"click","target":"Never Reached","locators":[{"strategy":"testid","value":"also-missing"}]}
	]}`
	h := newHarness(t, planJSON, 1, 0)
	page := fake.NewPage("https://example.com/", "Home")

	result, err := h.engine.Run(context.Background(), page, "click missing button")
	require.NoError(t, err)

	assert.Equal(t, model.RunFailed, result.Status)
	require.Len(t, result.StepResults, 1)
	assert.False(t, result.StepResults[0].Success)
	assert.Error(t, result.FirstError)
}

func TestOptionalStepFailureDoesNotFailRun(t *testing.T) {
	planJSON := `{"steps":[
	  {"action":"click","target":"Maybe Banner","optional":true,"locators":[{"strategy":"testid","value":"banner-dismiss"}]},
	  {"action":"click","target":"Continue","locators":[{"strategy":"testid","value":"continue-btn"}]}
	]}`
	h := newHarness(t, planJSON, 1, 0)

	page := fake.NewPage("https://example.com/", "Home")
	page.AddNode(&fake.Node{
		TestID: "continue-btn", Tag: "button", Visible: true, Enabled: true,
		Attrs: map[string]string{"id": "continue-btn"}, ClickNavigatesTo: "https://example.com/next",
	})

	result, err := h.engine.Run(context.Background(), page, "dismiss banner then continue")
	require.NoError(t, err)

	assert.Equal(t, model.RunSucceeded, result.Status)
	require.Len(t, result.StepResults, 2)
	assert.False(t, result.StepResults[0].Success)
	assert.Equal(t, string(recovery.KindElementNotFound), result.StepResults[0].ErrorKind)
	assert.True(t, result.StepResults[1].Success)
}

func TestCooperativeCancellationStopsRunEarly(t *testing.T) {
	planJSON := `{"steps":[
	  {"action":"click","target":"One","locators":[{"strategy":"testid","value":"one"}]},
	  {"action":"click","target":"Two","locators":[{"strategy":"testid","value":"two"}]},
	  {"action":"click","target":"Three","locators":[{"strategy":"testid","value":"three"}]}
	]}`
	h := newHarness(t, planJSON, 3, 0)

	page := fake.NewPage("https://example.com/", "Home")
	for _, id := range []string{"one", "two", "three"} {
		page.AddNode(&fake.Node{
			TestID: id, Tag: "button", Visible: true, Enabled: true,
			Attrs: map[string]string{"id": id}, ClickNavigatesTo: "https://example.com/" + id,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	result, err := h.engine.Run(ctx, page, "click one two three")
	require.NoError(t, err)

	assert.Equal(t, model.RunCancelled, result.Status)
	assert.Less(t, len(result.StepResults), 3)
}

func TestCancelledContextBeforeRunReportsCancelledImmediately(t *testing.T) {
	h := newHarness(t, loginPlanJSON, 3, 0)
	page := loginPage()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.engine.Run(ctx, page, "log in")
	require.NoError(t, err)

	assert.Equal(t, model.RunCancelled, result.Status)
	assert.Empty(t, result.StepResults)
}

// Plan() falls back to the rule-based tokenizer whenever a plan parses
// to zero steps, and the tokenizer always emits at least one step, so a
// run is never left with nothing to do even for a malformed response.
func TestRunFallsBackToTokenizerWhenPlanJSONIsEmpty(t *testing.T) {
	h := newHarness(t, `{"steps":[]}`, 3, 0)
	page := fake.NewPage("https://example.com/", "Home")

	result, err := h.engine.Run(context.Background(), page, "click the submit button")
	require.NoError(t, err)
	require.Len(t, result.StepResults, 1)
}
