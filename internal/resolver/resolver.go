// Package resolver implements the Accessibly-first Resolver (spec.md
// §4.5): given a step's candidate locators, a site profile, and
// learned pattern hints, it binds the best-matching DOM element within
// bounded per-attempt timeouts.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/llmwebagent/agent/internal/driver"
	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/internal/model"
)

// defaultLocatorTimeout is the per-attempt deadline (spec.md §6).
const defaultLocatorTimeout = 2 * time.Second

// fallbackWaitTimeout bounds the fallback tier's wait-for-visible pass
// (spec.md §4.5: "up to 3 s on the first three locators").
const fallbackWaitTimeout = 3 * time.Second

// fuzzyTextTags restricts the fuzzy-text fallback to interactive
// elements, per spec.md §4.5.
var fuzzyTextTags = map[string]struct{}{
	"button": {}, "a": {}, "input": {}, "select": {}, "textarea": {},
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Success           bool
	Element           driver.Element
	UsedStrategy      model.LocatorStrategy
	SelectorText      string
	AlternativesTried []string
	Confidence        float64
}

// ExactMatcher looks up a cached exact selector for (domain, target).
type ExactMatcher interface {
	ExactMatch(domain, target string) (string, bool)
}

// PatternSource additionally ranks locator strategies by what the
// Pattern Tracker has learned for (domain, target), folding exact-match
// confidence, learned-pattern confidence, and domain-wide success rates
// into one ordering signal (spec.md §4.3).
type PatternSource interface {
	ExactMatcher
	Suggest(domain, target string) []model.Suggestion
}

// Resolver binds PlannedStep locators to live driver.Elements.
type Resolver struct {
	locatorTimeout time.Duration
	logger         logging.Logger
}

// New builds a Resolver with the given per-attempt locator timeout.
func New(locatorTimeout time.Duration, logger logging.Logger) *Resolver {
	if locatorTimeout <= 0 {
		locatorTimeout = defaultLocatorTimeout
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Resolver{locatorTimeout: locatorTimeout, logger: logger}
}

// Resolve implements the ordering/binding/fallback algorithm of
// spec.md §4.5, using the Resolver's configured per-attempt timeout.
func (r *Resolver) Resolve(ctx context.Context, page driver.Page, locators []model.Locator, profile *model.SiteProfile, domain, target string, patterns PatternSource) Resolution {
	return r.resolve(ctx, page, locators, profile, domain, target, patterns, r.locatorTimeout)
}

// ResolveWithTimeout overrides the per-attempt timeout for one call. The
// engine uses this to apply Error Recovery's extended timeout
// (recovery.Result.NewTimeout) to the re-resolution a timeout retry
// performs (spec.md §4.7: "timeout: double current timeout, cap 30s").
func (r *Resolver) ResolveWithTimeout(ctx context.Context, page driver.Page, locators []model.Locator, profile *model.SiteProfile, domain, target string, patterns PatternSource, timeout time.Duration) Resolution {
	if timeout <= 0 {
		timeout = r.locatorTimeout
	}
	return r.resolve(ctx, page, locators, profile, domain, target, patterns, timeout)
}

func (r *Resolver) resolve(ctx context.Context, page driver.Page, locators []model.Locator, profile *model.SiteProfile, domain, target string, patterns PatternSource, timeout time.Duration) Resolution {
	if exactSelector, ok := patterns.ExactMatch(domain, target); ok {
		if el := r.tryBind(ctx, page, model.Locator{Strategy: model.StrategyCSS, Value: exactSelector}, timeout); el != nil {
			return Resolution{Success: true, Element: el, UsedStrategy: model.StrategyCSS, SelectorText: exactSelector, Confidence: 0.99}
		}
	}

	ordered := reorderByPatterns(reorder(locators, profile), patterns.Suggest(domain, target))

	var tried []string
	for _, loc := range ordered {
		if el := r.tryBind(ctx, page, loc, timeout); el != nil {
			return Resolution{
				Success:      true,
				Element:      el,
				UsedStrategy: loc.Strategy,
				SelectorText: loc.Value,
				Confidence:   loc.Strategy.IntrinsicConfidence(),
				AlternativesTried: tried,
			}
		}
		tried = append(tried, loc.Value)
	}

	if res, ok := r.fallback(ctx, page, ordered, target); ok {
		res.AlternativesTried = tried
		return res
	}

	return Resolution{Success: false, AlternativesTried: tried}
}

// reorder applies the SiteProfile's learned priority order to the
// locator candidates, preserving any strategy the profile doesn't rank
// at the end in their original relative order.
func reorder(locators []model.Locator, profile *model.SiteProfile) []model.Locator {
	if profile == nil || len(profile.SelectorPriorities) == 0 {
		return locators
	}
	rank := make(map[model.LocatorStrategy]int, len(profile.SelectorPriorities))
	for i, s := range profile.SelectorPriorities {
		rank[s] = i
	}
	out := append([]model.Locator(nil), locators...)
	unranked := len(profile.SelectorPriorities)
	rankOf := func(l model.Locator) int {
		if i, ok := rank[l.Strategy]; ok {
			return i
		}
		return unranked
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rankOf(out[j]) < rankOf(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// reorderByPatterns nudges locators whose strategy carries a Pattern
// Tracker suggestion (spec.md §4.3) ahead of unranked ones, by
// descending confidence; ties and unranked locators keep their
// existing relative order.
func reorderByPatterns(locators []model.Locator, suggestions []model.Suggestion) []model.Locator {
	if len(suggestions) == 0 {
		return locators
	}
	confidence := make(map[model.LocatorStrategy]float64, len(suggestions))
	for _, s := range suggestions {
		confidence[s.Strategy] = s.Confidence
	}
	out := append([]model.Locator(nil), locators...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && confidence[out[j].Strategy] > confidence[out[j-1].Strategy]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// tryBind attempts one locator with the given per-attempt timeout,
// requiring the matched element (or one of the first 5 candidates) to
// be visible (spec.md §4.5 step 3).
func (r *Resolver) tryBind(ctx context.Context, page driver.Page, loc model.Locator, timeout time.Duration) driver.Element {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := r.bindOne(attemptCtx, page, loc)
	if err != nil || el == nil {
		return nil
	}
	visible, _ := el.IsVisible(attemptCtx)
	if visible {
		return el
	}

	candidates, err := page.QuerySelectorAll(attemptCtx, loc.Value)
	if err != nil {
		return nil
	}
	limit := 5
	if len(candidates) < limit {
		limit = len(candidates)
	}
	for i := 0; i < limit; i++ {
		if ok, _ := candidates[i].IsVisible(attemptCtx); ok {
			return candidates[i]
		}
	}
	return nil
}

func (r *Resolver) bindOne(ctx context.Context, page driver.Page, loc model.Locator) (driver.Element, error) {
	switch loc.Strategy {
	case model.StrategyTestID:
		return page.GetByTestID(ctx, loc.Value)
	case model.StrategyRole:
		return page.GetByRole(ctx, loc.Value, loc.AccessibleName)
	case model.StrategyLabel:
		return page.GetByLabel(ctx, loc.Value)
	case model.StrategyPlaceholder:
		return page.GetByPlaceholder(ctx, loc.Value)
	case model.StrategyText:
		return page.GetByText(ctx, loc.Value, loc.ExactMatch)
	case model.StrategyAria:
		return page.Locator(ctx, fmt.Sprintf("[aria-label=%q]", loc.Value))
	case model.StrategyCSS:
		return page.Locator(ctx, loc.Value)
	case model.StrategyXPath:
		return page.Locator(ctx, loc.Value)
	default:
		return nil, fmt.Errorf("resolver: unknown strategy %q", loc.Strategy)
	}
}

// fallback implements the two-stage degraded tier of spec.md §4.5:
// wait-for-visible on the first three locators, then fuzzy text match.
func (r *Resolver) fallback(ctx context.Context, page driver.Page, locators []model.Locator, target string) (Resolution, bool) {
	limit := 3
	if len(locators) < limit {
		limit = len(locators)
	}
	for i := 0; i < limit; i++ {
		loc := locators[i]
		waitCtx, cancel := context.WithTimeout(ctx, fallbackWaitTimeout)
		el, err := r.bindOne(waitCtx, page, loc)
		if err == nil && el != nil {
			if waitErr := el.WaitFor(waitCtx, driver.StateVisible, fallbackWaitTimeout); waitErr == nil {
				cancel()
				return Resolution{Success: true, Element: el, UsedStrategy: loc.Strategy, SelectorText: loc.Value, Confidence: loc.Strategy.IntrinsicConfidence()}, true
			}
		}
		cancel()
	}

	for _, word := range strings.Fields(target) {
		if len(word) < 3 {
			continue
		}
		el, err := page.GetByText(ctx, word, false)
		if err != nil || el == nil {
			continue
		}
		tag, _ := el.Evaluate(ctx, "el => el.tagName.toLowerCase()", nil)
		if tagStr, ok := tag.(string); ok && tagStr != "" {
			if _, allowed := fuzzyTextTags[tagStr]; !allowed {
				continue
			}
		}
		return Resolution{Success: true, Element: el, UsedStrategy: model.StrategyText, SelectorText: word, Confidence: 0.5}, true
	}

	return Resolution{}, false
}
