package model

import "time"

// LearnedPattern is per-(domain, target-keywords) learning: which
// strategy has historically won for targets matching these keywords.
type LearnedPattern struct {
	Keywords      []string        `json:"keywords"`
	Strategy      LocatorStrategy `json:"strategy"`
	SuccessCount  int             `json:"success_count"`
	FailureCount  int             `json:"failure_count"`
	LastSuccess   time.Time       `json:"last_success"`
}

// Confidence implements the derived-confidence formula from spec.md §3:
// 0.7*successRate + 0.3*min(successCount/10, 1).
func (p *LearnedPattern) Confidence() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	successRate := float64(p.SuccessCount) / float64(total)
	volumeTerm := float64(p.SuccessCount) / 10.0
	if volumeTerm > 1 {
		volumeTerm = 1
	}
	return 0.7*successRate + 0.3*volumeTerm
}

// Overlaps reports whether p's keyword set shares at least one keyword
// with other, used to decide whether a new observation should merge into
// an existing pattern (spec.md §4.3).
func (p *LearnedPattern) Overlaps(keywords []string) bool {
	set := make(map[string]struct{}, len(p.Keywords))
	for _, k := range p.Keywords {
		set[k] = struct{}{}
	}
	for _, k := range keywords {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

// MergeKeywords adds any keywords not already present.
func (p *LearnedPattern) MergeKeywords(keywords []string) {
	set := make(map[string]struct{}, len(p.Keywords))
	for _, k := range p.Keywords {
		set[k] = struct{}{}
	}
	for _, k := range keywords {
		if _, ok := set[k]; !ok {
			p.Keywords = append(p.Keywords, k)
			set[k] = struct{}{}
		}
	}
}

// DomainPatterns is the per-domain learning store: patterns, an
// exact-match selector cache, and domain-wide type success/failure
// counters (spec.md §6).
type DomainPatterns struct {
	Patterns           []*LearnedPattern  `json:"patterns"`
	ExactMatches       map[string]string  `json:"exact_matches"`
	TypeSuccessCounts  map[LocatorStrategy]int `json:"type_success_counts"`
	TypeFailureCounts  map[LocatorStrategy]int `json:"type_failure_counts"`
	FirstSeen          time.Time          `json:"first_seen"`
	LastUpdated        time.Time          `json:"last_updated"`
	TotalResolutions   int                `json:"total_resolutions"`
}

// NewDomainPatterns returns an initialized, empty DomainPatterns.
func NewDomainPatterns() *DomainPatterns {
	return &DomainPatterns{
		ExactMatches:      make(map[string]string),
		TypeSuccessCounts: make(map[LocatorStrategy]int),
		TypeFailureCounts: make(map[LocatorStrategy]int),
		FirstSeen:         time.Now(),
	}
}

// TypeSuccessRate returns the domain-wide success rate for strategy,
// or 0 if it has never been attempted.
func (d *DomainPatterns) TypeSuccessRate(strategy LocatorStrategy) float64 {
	success := d.TypeSuccessCounts[strategy]
	failure := d.TypeFailureCounts[strategy]
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total)
}

// PatternStore is the persisted shape of selector_patterns.json.
type PatternStore struct {
	Domains map[string]*DomainPatterns `json:"domains"`
}

// Suggestion is one ranked (strategy, confidence) pair returned by
// PatternTracker.Suggest. Selector is set only for the exact-match
// entry, carrying the cached selector text alongside its strategy.
type Suggestion struct {
	Strategy   LocatorStrategy
	Confidence float64
	Selector   string
}
