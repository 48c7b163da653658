package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteProfileEnsureTextBaseline(t *testing.T) {
	p := &SiteProfile{SelectorPriorities: []LocatorStrategy{StrategyTestID, StrategyRole}}
	p.EnsureTextBaseline()
	assert.Contains(t, p.SelectorPriorities, StrategyText)

	// Idempotent.
	before := len(p.SelectorPriorities)
	p.EnsureTextBaseline()
	assert.Len(t, p.SelectorPriorities, before)
}

func TestSiteProfilePromoteDemote(t *testing.T) {
	p := &SiteProfile{SelectorPriorities: []LocatorStrategy{StrategyTestID, StrategyRole, StrategyText}}

	p.Promote(StrategyRole)
	assert.Equal(t, []LocatorStrategy{StrategyRole, StrategyTestID, StrategyText}, p.SelectorPriorities)

	p.Demote(StrategyRole)
	assert.Equal(t, []LocatorStrategy{StrategyTestID, StrategyRole, StrategyText}, p.SelectorPriorities)

	// Already-first / already-last are no-ops, not panics.
	p.Promote(StrategyTestID)
	p.Demote(StrategyText)
	assert.Equal(t, []LocatorStrategy{StrategyTestID, StrategyRole, StrategyText}, p.SelectorPriorities)
}

func TestWaitPolicyForFramework(t *testing.T) {
	assert.Equal(t, WaitNetworkIdle, WaitPolicyForFramework(FrameworkReact))
	assert.Equal(t, WaitNetworkIdle, WaitPolicyForFramework(FrameworkNuxt))
	assert.Equal(t, WaitDOMContentLoaded, WaitPolicyForFramework(FrameworkAngular))
	assert.Equal(t, WaitLoad, WaitPolicyForFramework(FrameworkVanilla))
	assert.Equal(t, WaitLoad, WaitPolicyForFramework("unknown"))
}
