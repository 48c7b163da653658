// Package tracker implements the Pattern Tracker (spec.md §4.3):
// per-domain learning from (target, strategy) outcomes, an exact-match
// selector cache, and domain-wide strategy success rates.
package tracker

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/internal/model"
	"github.com/llmwebagent/agent/internal/store"
)

// flushEvery is N in "persistence is flushed every N (default 5)
// successes" (spec.md §4.3).
const flushEvery = 5

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "to": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"and": {}, "or": {}, "is": {}, "at": {}, "with": {}, "this": {}, "that": {},
	"click": {}, "button": {}, "field": {}, "input": {},
}

var punctuation = regexp.MustCompile(`[^a-z0-9\s]`)

// ExtractKeywords lower-cases target, strips punctuation, splits on
// whitespace, and drops stop-words and single-character tokens.
func ExtractKeywords(target string) []string {
	cleaned := punctuation.ReplaceAllString(strings.ToLower(target), " ")
	fields := strings.Fields(cleaned)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Tracker is the Pattern Tracker: per-domain learned keyword→strategy
// mappings plus an exact-match cache, persisted via a store.Backend.
type Tracker struct {
	mu      sync.Mutex
	domains map[string]*model.DomainPatterns
	path    string
	backend store.Backend
	logger  logging.Logger

	sinceFlush int
}

// New builds a Tracker, eagerly loading any previously persisted
// patterns from path via backend.
func New(path string, backend store.Backend, logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.NoOp{}
	}
	tr := &Tracker{domains: make(map[string]*model.DomainPatterns), path: path, backend: backend, logger: logger}

	var persisted model.PatternStore
	if err := backend.LoadJSON(context.Background(), path, &persisted); err == nil && persisted.Domains != nil {
		tr.domains = persisted.Domains
	}
	return tr
}

func (tr *Tracker) domainFor(domain string) *model.DomainPatterns {
	d, ok := tr.domains[domain]
	if !ok {
		d = model.NewDomainPatterns()
		tr.domains[domain] = d
	}
	return d
}

// RecordSuccess updates the exact-match cache and pattern counters for
// (domain, target, strategy, selector), merging into an overlapping
// same-strategy pattern or creating a new one (spec.md §4.3).
func (tr *Tracker) RecordSuccess(domain, target string, strategy model.LocatorStrategy, selector string) {
	keywords := ExtractKeywords(target)

	tr.mu.Lock()
	d := tr.domainFor(domain)
	d.ExactMatches[strings.ToLower(target)] = selector
	d.TypeSuccessCounts[strategy]++
	d.TotalResolutions++
	d.LastUpdated = time.Now()

	merged := false
	for _, p := range d.Patterns {
		if p.Strategy == strategy && p.Overlaps(keywords) {
			p.MergeKeywords(keywords)
			p.SuccessCount++
			p.LastSuccess = time.Now()
			merged = true
			break
		}
	}
	if !merged {
		d.Patterns = append(d.Patterns, &model.LearnedPattern{
			Keywords:     keywords,
			Strategy:     strategy,
			SuccessCount: 1,
			LastSuccess:  time.Now(),
		})
	}
	tr.sinceFlush++
	shouldFlush := tr.sinceFlush >= flushEvery
	if shouldFlush {
		tr.sinceFlush = 0
	}
	tr.mu.Unlock()

	if shouldFlush {
		tr.flush()
	}
}

// RecordFailure increments failure counters on matching patterns and
// the domain-wide type failure count.
func (tr *Tracker) RecordFailure(domain, target string, strategy model.LocatorStrategy) {
	keywords := ExtractKeywords(target)

	tr.mu.Lock()
	d := tr.domainFor(domain)
	d.TypeFailureCounts[strategy]++
	d.TotalResolutions++
	d.LastUpdated = time.Now()
	for _, p := range d.Patterns {
		if p.Strategy == strategy && p.Overlaps(keywords) {
			p.FailureCount++
		}
	}
	tr.mu.Unlock()
}

// ExactMatch returns the cached selector for domain+target, if any.
func (tr *Tracker) ExactMatch(domain, target string) (string, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	d, ok := tr.domains[domain]
	if !ok {
		return "", false
	}
	sel, ok := d.ExactMatches[strings.ToLower(target)]
	return sel, ok
}

// Suggest returns a ranked, deduplicated list of (strategy, confidence)
// combining exact-match (1.0), matching patterns, and domain-wide type
// success rates weighted 0.5 (spec.md §4.3).
func (tr *Tracker) Suggest(domain, target string) []model.Suggestion {
	keywords := ExtractKeywords(target)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	d, ok := tr.domains[domain]
	if !ok {
		return nil
	}

	best := make(map[model.LocatorStrategy]float64)
	var exactSelector string

	if selector, exact := d.ExactMatches[strings.ToLower(target)]; exact {
		// The exact-match cache always resolves via a CSS selector
		// (resolver.Resolve binds it with model.StrategyCSS), so its
		// 1.0 confidence folds into the CSS entry here rather than
		// being discarded (spec.md §4.3: "combines exact-match
		// (confidence 1.0) + ...").
		best[model.StrategyCSS] = 1.0
		exactSelector = selector
	}

	for _, p := range d.Patterns {
		if !p.Overlaps(keywords) {
			continue
		}
		if c := p.Confidence(); c > best[p.Strategy] {
			best[p.Strategy] = c
		}
	}

	for strategy := range d.TypeSuccessCounts {
		rate := d.TypeSuccessRate(strategy) * 0.5
		if rate > best[strategy] {
			best[strategy] = rate
		}
	}

	out := make([]model.Suggestion, 0, len(best))
	for strategy, confidence := range best {
		s := model.Suggestion{Strategy: strategy, Confidence: confidence}
		if strategy == model.StrategyCSS && exactSelector != "" {
			s.Selector = exactSelector
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

func (tr *Tracker) flush() {
	tr.mu.Lock()
	snapshot := model.PatternStore{Domains: make(map[string]*model.DomainPatterns, len(tr.domains))}
	for k, v := range tr.domains {
		snapshot.Domains[k] = v
	}
	tr.mu.Unlock()

	if err := tr.backend.SaveJSON(context.Background(), tr.path, snapshot); err != nil {
		tr.logger.Warn("tracker: failed to flush selector patterns", map[string]interface{}{"error": err.Error()})
	}
}

// Flush forces an immediate persist, used by callers that want a
// durable checkpoint outside the every-N-successes cadence (e.g. at
// run completion).
func (tr *Tracker) Flush() {
	tr.flush()
}

// Dump returns a snapshot of every learned domain, for introspection
// tools (the `pattern show` CLI command) rather than for resolution.
func (tr *Tracker) Dump() model.PatternStore {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := model.PatternStore{Domains: make(map[string]*model.DomainPatterns, len(tr.domains))}
	for k, v := range tr.domains {
		out.Domains[k] = v
	}
	return out
}
