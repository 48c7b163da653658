package model

import (
	"strings"
	"sync"
	"time"
)

// ActionHistoryEntry records one executed step outcome for later inspection
// (e.g. by Error Recovery or report generation collaborators).
type ActionHistoryEntry struct {
	StepID    string
	Action    Action
	Success   bool
	Strategy  LocatorStrategy
	Timestamp time.Time
}

// DOMCache is a snapshot of page structure keyed by the URL it was built
// for. Readers must check URL before trusting Snapshot (spec.md §3, §5).
type DOMCache struct {
	URL       string
	Snapshot  interface{}
	BuiltAt   time.Time
}

// RunContext is mutable, run-scoped state: clipboard, variables, action
// history, and a DOM cache invalidated on navigation. It is owned by
// exactly one run and never shared (spec.md §5).
type RunContext struct {
	RunID string

	mu          sync.RWMutex
	clipboard   map[string]string
	variables   map[string]string
	extracted   map[string]string
	history     []ActionHistoryEntry
	currentURL  string
	currentTitle string
	domCache    *DOMCache

	// Named single-consume flags (SetFlag/ConsumeFlag). Error Recovery's
	// force-click and type-slowly flags travel on recovery.Context
	// instead; the Engine and Resolver do not read these.
	flags map[string]bool
}

// NewRunContext creates an empty RunContext for a fresh run.
func NewRunContext(runID string) *RunContext {
	return &RunContext{
		RunID:     runID,
		clipboard: make(map[string]string),
		variables: make(map[string]string),
		extracted: make(map[string]string),
		flags:     make(map[string]bool),
	}
}

// SetClipboard stores a value under key, e.g. from an `extract` step.
func (c *RunContext) SetClipboard(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clipboard[key] = value
}

// SetVariable stores a caller-supplied variable.
func (c *RunContext) SetVariable(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[key] = value
}

// SetExtracted stores a value extracted from the page outside the
// clipboard namespace (used by the nested `source.key` fallback lookup).
func (c *RunContext) SetExtracted(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extracted[key] = value
}

// Clipboard returns a copy of every value recorded via SetClipboard
// (the accumulated result of `extract` steps for the run).
func (c *RunContext) Clipboard() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.clipboard))
	for k, v := range c.clipboard {
		out[k] = v
	}
	return out
}

// RecordAction appends an entry to the action history.
func (c *RunContext) RecordAction(e ActionHistoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, e)
}

// History returns a copy of the action history recorded so far.
func (c *RunContext) History() []ActionHistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ActionHistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// SetFlag sets a named recovery flag (e.g. "force_click", "slow_type").
func (c *RunContext) SetFlag(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[name] = true
}

// ConsumeFlag reports whether name was set and clears it, so a flag is
// applied at most once (spec.md §9).
func (c *RunContext) ConsumeFlag(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flags[name] {
		delete(c.flags, name)
		return true
	}
	return false
}

// SetCurrentPage updates the current URL/title and invalidates the DOM
// cache if the URL changed (spec.md §3 invariant).
func (c *RunContext) SetCurrentPage(url, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentURL != url {
		c.domCache = nil
	}
	c.currentURL = url
	c.currentTitle = title
}

// CurrentURL returns the last-known page URL.
func (c *RunContext) CurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// CurrentTitle returns the last-known page title.
func (c *RunContext) CurrentTitle() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTitle
}

// SetDOMCache stores a snapshot for the given URL.
func (c *RunContext) SetDOMCache(url string, snapshot interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.domCache = &DOMCache{URL: url, Snapshot: snapshot, BuiltAt: time.Now()}
}

// DOMCacheFor returns the cached snapshot if it still matches the current
// URL, or (nil, false) otherwise — this is how readers observe invalidation.
func (c *RunContext) DOMCacheFor(url string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.domCache == nil || c.domCache.URL != url || c.currentURL != url {
		return nil, false
	}
	return c.domCache.Snapshot, true
}

// ResolveTemplate expands `{{key}}` tokens in s, searching clipboard,
// then variables, then extracted, and finally falling back to a nested
// `source.key` lookup (spec.md §3).
func (c *RunContext) ResolveTemplate(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+2 : end])
		b.WriteString(c.lookup(key))
		rest = rest[end+2:]
	}
	return b.String()
}

func (c *RunContext) lookup(key string) string {
	if v, ok := c.clipboard[key]; ok {
		return v
	}
	if v, ok := c.variables[key]; ok {
		return v
	}
	if v, ok := c.extracted[key]; ok {
		return v
	}
	// nested `source.key` fallback
	if idx := strings.Index(key, "."); idx >= 0 {
		nestedKey := key[idx+1:]
		if v, ok := c.extracted[nestedKey]; ok {
			return v
		}
		if v, ok := c.clipboard[nestedKey]; ok {
			return v
		}
	}
	return "{{" + key + "}}"
}
