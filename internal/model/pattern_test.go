package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLearnedPatternConfidence(t *testing.T) {
	p := &LearnedPattern{SuccessCount: 5, FailureCount: 0}
	// successRate=1.0, volumeTerm=0.5 -> 0.7 + 0.15 = 0.85
	assert.InDelta(t, 0.85, p.Confidence(), 1e-9)

	empty := &LearnedPattern{}
	assert.Equal(t, 0.0, empty.Confidence())
}

func TestLearnedPatternOverlapsAndMerge(t *testing.T) {
	p := &LearnedPattern{Keywords: []string{"sign", "in"}}
	assert.True(t, p.Overlaps([]string{"in", "button"}))
	assert.False(t, p.Overlaps([]string{"checkout"}))

	p.MergeKeywords([]string{"in", "button"})
	assert.ElementsMatch(t, []string{"sign", "in", "button"}, p.Keywords)
}

func TestDomainPatternsTypeSuccessRate(t *testing.T) {
	d := NewDomainPatterns()
	assert.Equal(t, 0.0, d.TypeSuccessRate(StrategyRole))

	d.TypeSuccessCounts[StrategyRole] = 3
	d.TypeFailureCounts[StrategyRole] = 1
	assert.InDelta(t, 0.75, d.TypeSuccessRate(StrategyRole), 1e-9)
}
