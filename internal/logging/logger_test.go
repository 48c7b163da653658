package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	p := NewProduction("webagent", true, "json")
	p.output = &buf

	p.Info("resolved locator", map[string]interface{}{"strategy": "testid"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "webagent", entry["service"])
	assert.Equal(t, "testid", entry["strategy"])
}

func TestProductionDebugGatedByFlag(t *testing.T) {
	var buf bytes.Buffer
	p := NewProduction("webagent", false, "text")
	p.output = &buf

	p.Debug("should not appear", nil)
	assert.Empty(t, buf.String())

	p.debug = true
	p.Debug("now it appears", nil)
	assert.Contains(t, buf.String(), "now it appears")
}

func TestWithComponentTagsOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewProduction("webagent", false, "text")
	p.output = &buf

	comp := p.WithComponent("resolver")
	comp.Info("hello", nil)
	assert.Contains(t, buf.String(), "webagent/resolver")
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	var l Logger = NoOp{}
	assert.NotPanics(t, func() {
		l.Info("x", nil)
		l.Error("x", nil)
	})
}
