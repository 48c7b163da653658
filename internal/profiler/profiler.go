// Package profiler implements the Site Profiler (spec.md §4.2): it
// detects a page's front-end framework, derives an initial selector
// priority list, and learns per-domain priorities from resolution
// outcomes.
package profiler

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/llmwebagent/agent/internal/driver"
	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/internal/model"
	"github.com/llmwebagent/agent/internal/store"
)

// snapshotScript is evaluated in the page to detect the framework and
// count accessibility-attribute density. The fake driver and any real
// driver are both expected to return a map shaped like probeResult.
const snapshotScript = `(() => {
  const has = (k) => typeof window[k] !== 'undefined';
  let framework = 'vanilla';
  if (document.querySelector('[ng-version]')) framework = 'angular';
  else if (has('__NEXT_DATA__')) framework = 'next';
  else if (has('__NUXT__')) framework = 'nuxt';
  else if (document.querySelector('[data-v-app]') || has('__VUE__')) framework = 'vue';
  else if (document.querySelector('[data-reactroot]') || has('React')) framework = 'react';
  const count = (sel) => document.querySelectorAll(sel).length;
  return {
    framework: framework,
    testid: count('[data-testid]'),
    cy: count('[data-cy]'),
    ariaLabel: count('[aria-label]'),
    role: count('[role]'),
    id: count('[id]'),
    name: count('[name]'),
    placeholder: count('[placeholder]'),
  };
})()`

// rawHTMLScript fetches the document's raw markup for the cold-start
// fingerprint fallback (fingerprintFramework/detectComponentLibrary)
// when the structured snapshotScript probe can't name a framework.
const rawHTMLScript = `document.documentElement.outerHTML`

type probeResult struct {
	Framework   string
	TestID      int
	Cy          int
	AriaLabel   int
	Role        int
	ID          int
	Name        int
	Placeholder int
}

// Profiler detects and learns site profiles, backed by a store.Backend
// for disk persistence (spec.md §6).
type Profiler struct {
	mu       sync.Mutex
	profiles map[string]*model.SiteProfile
	path     string
	backend  store.Backend
	logger   logging.Logger
}

// New builds a Profiler, eagerly loading any previously persisted
// profiles from path via backend.
func New(path string, backend store.Backend, logger logging.Logger) *Profiler {
	if logger == nil {
		logger = logging.NoOp{}
	}
	p := &Profiler{profiles: make(map[string]*model.SiteProfile), path: path, backend: backend, logger: logger}

	var persisted model.ProfileStore
	if err := backend.LoadJSON(context.Background(), path, &persisted); err == nil && persisted.Profiles != nil {
		p.profiles = persisted.Profiles
	}
	return p
}

// DomainOf extracts the lower-cased hostname from a URL, falling back
// to the lower-cased raw string when it cannot be parsed. Exported so
// the Engine and other callers key learning stores by the same domain
// string the Profiler uses internally.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}

// GetProfile returns the SiteProfile for page's current domain,
// running cold-start detection when no profile exists yet.
func (p *Profiler) GetProfile(ctx context.Context, page driver.Page) (*model.SiteProfile, error) {
	domain := DomainOf(page.URL())

	p.mu.Lock()
	existing, ok := p.profiles[domain]
	p.mu.Unlock()
	if ok {
		return existing, nil
	}

	raw, err := page.Evaluate(ctx, snapshotScript, nil)
	if err != nil {
		return nil, model.NewEngineError("profiler.GetProfile", "driver-error", "", "evaluating snapshot script", err)
	}

	result := decodeProbe(raw)
	framework := result.Framework
	priorities := priorityFromDensity(result)

	if framework == "" || framework == model.FrameworkVanilla {
		// The structured probe couldn't name a framework (e.g. before any
		// JS-evaluate hook is available) — fall back to the cheap
		// markup-signature guess, and bias toward CSS-class locators
		// when a known component library's naming convention is found.
		if rawHTML, herr := page.Evaluate(ctx, rawHTMLScript, nil); herr == nil {
			if html, ok := rawHTML.(string); ok && html != "" {
				if guess := fingerprintFramework(html); guess != "" {
					framework = guess
				}
				if detectComponentLibrary(html) != "" {
					priorities = promoteCSS(priorities)
				}
			}
		}
	}
	if framework == "" {
		framework = model.FrameworkVanilla
	}

	profile := &model.SiteProfile{
		Domain:              domain,
		Framework:           framework,
		SelectorPriorities:  priorities,
		DetectionConfidence: confidenceFromDensity(result),
		WaitPolicy:          model.WaitPolicyForFramework(framework),
	}
	profile.EnsureTextBaseline()

	p.mu.Lock()
	p.profiles[domain] = profile
	p.mu.Unlock()
	p.flush()
	return profile, nil
}

// decodeProbe tolerates both a typed probeResult (from Go-side fakes
// in tests) and a map[string]interface{} (from a real JS evaluate).
func decodeProbe(raw interface{}) probeResult {
	if pr, ok := raw.(probeResult); ok {
		return pr
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return probeResult{Framework: model.FrameworkVanilla}
	}
	asInt := func(k string) int {
		if v, ok := m[k].(int); ok {
			return v
		}
		if v, ok := m[k].(float64); ok {
			return int(v)
		}
		return 0
	}
	framework, _ := m["framework"].(string)
	if framework == "" {
		framework = model.FrameworkVanilla
	}
	return probeResult{
		Framework:   framework,
		TestID:      asInt("testid"),
		Cy:          asInt("cy"),
		AriaLabel:   asInt("ariaLabel"),
		Role:        asInt("role"),
		ID:          asInt("id"),
		Name:        asInt("name"),
		Placeholder: asInt("placeholder"),
	}
}

// priorityFromDensity ranks strategies by how densely the page exposes
// the attributes each strategy depends on (spec.md §4.2).
func priorityFromDensity(r probeResult) []model.LocatorStrategy {
	type scored struct {
		strategy model.LocatorStrategy
		score    int
	}
	candidates := []scored{
		{model.StrategyTestID, r.TestID + r.Cy},
		{model.StrategyRole, r.Role},
		{model.StrategyLabel, r.AriaLabel},
		{model.StrategyPlaceholder, r.Placeholder},
		{model.StrategyAria, r.AriaLabel},
		{model.StrategyCSS, r.ID + r.Name},
	}
	// Stable sort by descending score; ties keep declaration order so
	// the result is deterministic for equal-density pages.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	out := make([]model.LocatorStrategy, 0, len(candidates)+1)
	for _, c := range candidates {
		out = append(out, c.strategy)
	}
	return out
}

// promoteCSS moves model.StrategyCSS to the front of priorities: a
// detected UI component library's predictable class-naming convention
// (spec.md's dropped framework_hints.py supplement) makes CSS-class
// locators a stronger signal than the plain attribute density implies.
func promoteCSS(priorities []model.LocatorStrategy) []model.LocatorStrategy {
	out := make([]model.LocatorStrategy, 0, len(priorities))
	out = append(out, model.StrategyCSS)
	for _, s := range priorities {
		if s != model.StrategyCSS {
			out = append(out, s)
		}
	}
	return out
}

func confidenceFromDensity(r probeResult) float64 {
	total := r.TestID + r.Cy + r.AriaLabel + r.Role + r.ID + r.Name + r.Placeholder
	switch {
	case total >= 20:
		return 0.9
	case total >= 5:
		return 0.6
	default:
		return 0.3
	}
}

// RecordOutcome nudges the domain's priority list one slot toward the
// front (success) or back (failure), per spec.md §4.2.
func (p *Profiler) RecordOutcome(domain string, strategy model.LocatorStrategy, success bool) {
	p.mu.Lock()
	profile, ok := p.profiles[domain]
	if !ok {
		p.mu.Unlock()
		return
	}
	if success {
		profile.Promote(strategy)
	} else {
		profile.Demote(strategy)
	}
	p.mu.Unlock()
	p.flush()
}

// Dump returns a snapshot of every detected/learned profile, for
// introspection tools (the `profile show` CLI command).
func (p *Profiler) Dump() model.ProfileStore {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := model.ProfileStore{Profiles: make(map[string]*model.SiteProfile, len(p.profiles))}
	for k, v := range p.profiles {
		out.Profiles[k] = v
	}
	return out
}

// flush persists all known profiles, best-effort (spec.md §4.2: "flushed
// to disk on update (best-effort)").
func (p *Profiler) flush() {
	p.mu.Lock()
	snapshot := model.ProfileStore{Profiles: make(map[string]*model.SiteProfile, len(p.profiles))}
	for k, v := range p.profiles {
		snapshot.Profiles[k] = v
	}
	p.mu.Unlock()

	if err := p.backend.SaveJSON(context.Background(), p.path, snapshot); err != nil {
		p.logger.Warn("profiler: failed to flush site profiles", map[string]interface{}{"error": err.Error()})
	}
}
