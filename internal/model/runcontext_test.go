package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunContextTemplateResolution(t *testing.T) {
	c := NewRunContext("run-1")
	c.SetClipboard("username", "standard_user")
	c.SetVariable("env", "staging")
	c.SetExtracted("price", "19.99")

	assert.Equal(t, "standard_user", c.ResolveTemplate("{{username}}"))
	assert.Equal(t, "staging", c.ResolveTemplate("{{env}}"))
	assert.Equal(t, "19.99", c.ResolveTemplate("{{price}}"))
	assert.Equal(t, "price=19.99!", c.ResolveTemplate("price={{price}}!"))
	// nested source.key fallback
	assert.Equal(t, "19.99", c.ResolveTemplate("{{cart.price}}"))
	// unknown key is left as-is
	assert.Equal(t, "{{nope}}", c.ResolveTemplate("{{nope}}"))
}

func TestRunContextDOMCacheInvalidatesOnURLChange(t *testing.T) {
	c := NewRunContext("run-1")
	c.SetCurrentPage("https://a.example.com", "A")
	c.SetDOMCache("https://a.example.com", "snapshot-a")

	snap, ok := c.DOMCacheFor("https://a.example.com")
	assert.True(t, ok)
	assert.Equal(t, "snapshot-a", snap)

	c.SetCurrentPage("https://b.example.com", "B")
	_, ok = c.DOMCacheFor("https://a.example.com")
	assert.False(t, ok, "cache must not survive a URL change")
}

func TestRunContextFlagsConsumedOnce(t *testing.T) {
	c := NewRunContext("run-1")
	assert.False(t, c.ConsumeFlag("force_click"))

	c.SetFlag("force_click")
	assert.True(t, c.ConsumeFlag("force_click"))
	assert.False(t, c.ConsumeFlag("force_click"), "flag must be consumed at most once")
}
