package profiler

import (
	"context"
	"testing"

	"github.com/llmwebagent/agent/internal/driver/fake"
	"github.com/llmwebagent/agent/internal/model"
	"github.com/llmwebagent/agent/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfileBuildsBaselineProfileWhenProbeIsEmpty(t *testing.T) {
	dir := t.TempDir()
	p := New(dir+"/profiles.json", store.FileBackend{}, nil)

	page := fake.NewPage("https://react-app.example.com/home", "")
	// fake.Page.Evaluate returns (nil, nil) and RawHTML is empty, so
	// detection falls back to vanilla/low confidence; the profile still
	// carries the page's domain and the text baseline strategy.
	profile, err := p.GetProfile(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "react-app.example.com", profile.Domain)
	assert.Contains(t, profile.SelectorPriorities, model.StrategyText)
}

func TestGetProfileCachesPerDomain(t *testing.T) {
	dir := t.TempDir()
	p := New(dir+"/profiles.json", store.FileBackend{}, nil)
	page := fake.NewPage("https://example.com/a", "")

	first, err := p.GetProfile(context.Background(), page)
	require.NoError(t, err)
	second, err := p.GetProfile(context.Background(), page)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRecordOutcomePromotesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	p := New(dir+"/profiles.json", store.FileBackend{}, nil)
	page := fake.NewPage("https://example.com", "")

	profile, err := p.GetProfile(context.Background(), page)
	require.NoError(t, err)
	before := append([]model.LocatorStrategy(nil), profile.SelectorPriorities...)

	last := before[len(before)-1]
	p.RecordOutcome("example.com", last, true)
	assert.NotEqual(t, before, profile.SelectorPriorities)
}

func TestGetProfileFallsBackToMarkupFingerprintWhenProbeIsEmpty(t *testing.T) {
	dir := t.TempDir()
	p := New(dir+"/profiles.json", store.FileBackend{}, nil)

	page := fake.NewPage("https://next-app.example.com", "")
	page.RawHTML = `<html><body><script>window.__NEXT_DATA__={}</script><button class="MuiButton-root">Go</button></body></html>`

	profile, err := p.GetProfile(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "next", profile.Framework)
	assert.Equal(t, model.StrategyCSS, profile.SelectorPriorities[0])
}

func TestDetectComponentLibraryMatchesMUI(t *testing.T) {
	html := `<button class="MuiButton-root MuiButtonBase-root">Go</button>`
	assert.Equal(t, "mui", detectComponentLibrary(html))
}

func TestDetectComponentLibraryNoMatch(t *testing.T) {
	assert.Equal(t, "", detectComponentLibrary(`<div class="plain">hi</div>`))
}

func TestFingerprintFrameworkDetectsNext(t *testing.T) {
	assert.Equal(t, "next", fingerprintFramework(`<script>window.__NEXT_DATA__={}</script>`))
}

func TestFingerprintFrameworkNoSignatureFound(t *testing.T) {
	assert.Equal(t, "", fingerprintFramework(`<html><body>plain</body></html>`))
}
