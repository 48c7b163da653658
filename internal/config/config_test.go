package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Lookahead)
	assert.Equal(t, 30*time.Second, c.StepTimeout)
	assert.Equal(t, 3, c.MaxRecoveryAttempts)
}

func TestNewEnvOverridesDefaults(t *testing.T) {
	t.Setenv("WEBAGENT_LOOKAHEAD", "5")
	t.Setenv("WEBAGENT_MAX_RECOVERY_ATTEMPTS", "7")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, 5, c.Lookahead)
	assert.Equal(t, 7, c.MaxRecoveryAttempts)
}

func TestOptionsOverrideEnv(t *testing.T) {
	t.Setenv("WEBAGENT_LOOKAHEAD", "5")

	c, err := New(WithLookahead(9))
	require.NoError(t, err)
	assert.Equal(t, 9, c.Lookahead)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	_, err := New(WithLookahead(-1))
	assert.Error(t, err)

	_, err = New(WithMaxRecoveryAttempts(0))
	assert.Error(t, err)
}

func TestFromYAMLFilePartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lookahead: 4\nmax_recovery_attempts: 6\n"), 0o644))

	opts, err := FromYAMLFile(path)
	require.NoError(t, err)

	c, err := New(opts...)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Lookahead)
	assert.Equal(t, 6, c.MaxRecoveryAttempts)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30*time.Second, c.StepTimeout)
}
