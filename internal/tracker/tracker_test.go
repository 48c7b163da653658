package tracker

import (
	"testing"

	"github.com/llmwebagent/agent/internal/model"
	"github.com/llmwebagent/agent/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywordsFiltersStopWordsAndShortTokens(t *testing.T) {
	got := ExtractKeywords("Click the Submit Order button now!")
	assert.Equal(t, []string{"submit", "order", "now"}, got)
}

func TestRecordSuccessThenExactMatch(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir+"/patterns.json", store.FileBackend{}, nil)

	tr.RecordSuccess("example.com", "Submit Order", model.StrategyRole, "#submit-order")
	sel, ok := tr.ExactMatch("example.com", "Submit Order")
	require.True(t, ok)
	assert.Equal(t, "#submit-order", sel)
}

func TestRecordSuccessMergesOverlappingPattern(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir+"/patterns.json", store.FileBackend{}, nil)

	tr.RecordSuccess("example.com", "Submit Order", model.StrategyRole, "#a")
	tr.RecordSuccess("example.com", "Submit Form", model.StrategyRole, "#b")

	d := tr.domains["example.com"]
	require.Len(t, d.Patterns, 1, "overlapping 'submit' keyword should merge into one pattern")
	assert.Equal(t, 2, d.Patterns[0].SuccessCount)
	assert.ElementsMatch(t, []string{"submit", "order", "form"}, d.Patterns[0].Keywords)
}

func TestRecordFailureIncrementsCounters(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir+"/patterns.json", store.FileBackend{}, nil)

	tr.RecordSuccess("example.com", "Submit Order", model.StrategyRole, "#a")
	tr.RecordFailure("example.com", "Submit Order", model.StrategyRole)

	d := tr.domains["example.com"]
	assert.Equal(t, 1, d.Patterns[0].FailureCount)
	assert.Equal(t, 1, d.TypeFailureCounts[model.StrategyRole])
}

func TestSuggestRanksByConfidenceDescending(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir+"/patterns.json", store.FileBackend{}, nil)

	for i := 0; i < 10; i++ {
		tr.RecordSuccess("example.com", "Submit Order", model.StrategyRole, "#a")
	}
	tr.RecordSuccess("example.com", "Submit Order", model.StrategyCSS, "#b")

	suggestions := tr.Suggest("example.com", "Submit Order")
	require.NotEmpty(t, suggestions)
	// The exact-match cache ("#b") gives CSS 1.0, tying role's pattern
	// confidence (0.7*1 + 0.3*1); ties sort by strategy name.
	assert.Equal(t, model.StrategyCSS, suggestions[0].Strategy)
	for i := 1; i < len(suggestions); i++ {
		assert.GreaterOrEqual(t, suggestions[i-1].Confidence, suggestions[i].Confidence)
	}
}

func TestSuggestReturnsNilForUnknownDomain(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir+"/patterns.json", store.FileBackend{}, nil)
	assert.Nil(t, tr.Suggest("unknown.com", "anything"))
}

func TestFlushPersistsAcrossNewTracker(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/patterns.json"
	tr := New(path, store.FileBackend{}, nil)
	tr.RecordSuccess("example.com", "Submit Order", model.StrategyRole, "#a")
	tr.Flush()

	reloaded := New(path, store.FileBackend{}, nil)
	sel, ok := reloaded.ExactMatch("example.com", "Submit Order")
	require.True(t, ok)
	assert.Equal(t, "#a", sel)
}
