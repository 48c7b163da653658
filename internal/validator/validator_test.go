package validator

import (
	"context"
	"testing"

	"github.com/llmwebagent/agent/internal/driver/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreValidateStrictRequiresAllChecks(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	page.AddNode(&fake.Node{Tag: "button", Visible: true, Enabled: false, Attrs: map[string]string{"id": "x"}})
	el, err := page.QuerySelector(context.Background(), "#x")
	require.NoError(t, err)

	v := New(true)
	res := v.PreValidate(context.Background(), page, el)
	assert.False(t, res.Success)
}

func TestPreValidateNonStrictAcceptsVisibleOnly(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	page.AddNode(&fake.Node{Tag: "button", Visible: true, Enabled: false, Attrs: map[string]string{"id": "x"}})
	el, err := page.QuerySelector(context.Background(), "#x")
	require.NoError(t, err)

	v := New(false)
	res := v.PreValidate(context.Background(), page, el)
	assert.True(t, res.Success)
}

func TestPostValidateFillRequiresTwoOfThreeMethods(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	page.AddNode(&fake.Node{Tag: "input", Visible: true, Enabled: true, Attrs: map[string]string{"id": "email"}})
	el, err := page.QuerySelector(context.Background(), "#email")
	require.NoError(t, err)
	require.NoError(t, el.Fill(context.Background(), "john@doe.com"))

	v := New(true)
	res := v.PostValidateFill(context.Background(), page, el, "#email", "john@doe.com")
	assert.True(t, res.Success)
}

func TestPostValidateFillEmptyReadIsImmediateFailure(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	page.AddNode(&fake.Node{Tag: "input", Visible: true, Enabled: true, FillNoOps: true, Attrs: map[string]string{"id": "email"}})
	el, err := page.QuerySelector(context.Background(), "#email")
	require.NoError(t, err)
	require.NoError(t, el.Fill(context.Background(), "john@doe.com"))

	v := New(true)
	res := v.PostValidateFill(context.Background(), page, el, "#email", "john@doe.com")
	assert.False(t, res.Success)
}

func TestPostValidateNavigateToleratesWWWAndTrailingSlash(t *testing.T) {
	page := fake.NewPage("https://www.example.com/home/", "")
	v := New(true)
	res := v.PostValidateNavigate(page, "https://example.com/home")
	assert.True(t, res.Success)
}

func TestPostValidateSelectMatchesByTextFallback(t *testing.T) {
	page := fake.NewPage("https://example.com", "")
	page.AddNode(&fake.Node{Tag: "option", Text: "United States", Attrs: map[string]string{"id": "opt"}})
	el, err := page.QuerySelector(context.Background(), "#opt")
	require.NoError(t, err)

	v := New(true)
	res := v.PostValidateSelect(context.Background(), el, "united states")
	assert.True(t, res.Success)
}
