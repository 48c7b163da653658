package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannedStepValidate_NavigateRequiresAbsoluteURL(t *testing.T) {
	s := &PlannedStep{ID: "s1", Action: ActionNavigate, Target: "saucedemo", Value: "not-a-url"}
	require.Error(t, s.Validate())

	s.Value = "https://www.saucedemo.com"
	assert.NoError(t, s.Validate())
}

func TestPlannedStepValidate_NonNavigateRequiresLocator(t *testing.T) {
	s := &PlannedStep{ID: "s2", Action: ActionClick, Target: "Sign In"}
	require.Error(t, s.Validate())

	s.SynthesizeTextLocator()
	assert.NoError(t, s.Validate())
	assert.Equal(t, StrategyText, s.Locators[0].Strategy)
}

func TestPlannedStepValidate_ExtractRequiresStorageKey(t *testing.T) {
	s := &PlannedStep{ID: "s3", Action: ActionExtract, Target: "price"}
	require.Error(t, s.Validate())
	s.Value = "price_key"
	assert.NoError(t, s.Validate())
}

func TestLocatorStrategyIntrinsicConfidence(t *testing.T) {
	assert.Equal(t, 0.98, StrategyTestID.IntrinsicConfidence())
	assert.Equal(t, 0.50, StrategyXPath.IntrinsicConfidence())
	assert.Equal(t, 0.0, LocatorStrategy("bogus").IntrinsicConfidence())
}
