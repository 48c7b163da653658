package webagent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmwebagent/agent/internal/config"
)

// newTestConfig builds a Config rooted in a temp dir so tests never
// touch a developer's real ~/.webagent cache files.
func newTestConfig(t *testing.T, opts ...config.Option) *config.Config {
	t.Helper()
	dir := t.TempDir()
	base := []config.Option{
		config.WithProfileCachePath(filepath.Join(dir, "site_profiles.json")),
		config.WithPatternCachePath(filepath.Join(dir, "selector_patterns.json")),
	}
	cfg, err := config.New(append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

// Engine/Resolver/Validator/Recovery behavior is covered end-to-end in
// internal/engine; these tests cover only what the facade itself adds:
// constructing the collaborator graph from a Config and picking the
// right store.Backend.

func TestNewWiresAnAgentWithEmptyStores(t *testing.T) {
	cfg := newTestConfig(t)

	agent, err := New(cfg, nil)
	require.NoError(t, err)
	defer agent.Close()

	assert.Empty(t, agent.Profiles().Profiles)
	assert.Empty(t, agent.Patterns().Domains)
	assert.Equal(t, int64(0), agent.TransportStats().HTTPRequests)

	sub := agent.Events()
	defer sub.Unsubscribe()
}

func TestNewWithNilConfigFallsBackToDefaults(t *testing.T) {
	agent, err := New(nil, nil)
	require.NoError(t, err)
	defer agent.Close()

	assert.NotNil(t, agent.cfg)
	assert.Greater(t, agent.cfg.Lookahead, -1)
}

func TestResolveBackendPicksFileBackendWithoutRedisURL(t *testing.T) {
	cfg := newTestConfig(t)

	backend, err := resolveBackend(cfg)
	require.NoError(t, err)
	_, ok := backend.(interface {
		LoadJSON(ctx context.Context, name string, dst interface{}) error
		SaveJSON(ctx context.Context, name string, src interface{}) error
	})
	assert.True(t, ok)
}

func TestResolveBackendReturnsErrorForUnreachableRedis(t *testing.T) {
	cfg := newTestConfig(t, config.WithRedisURL("redis://127.0.0.1:1"))

	_, err := resolveBackend(cfg)
	assert.Error(t, err)
}
