package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML-facing shape read by FromYAMLFile (cmd/webagent
// has no flag that loads such a file),
// expressed in plain scalar fields (durations as milliseconds/seconds)
// rather than time.Duration so it stays a thin, obvious YAML document.
type fileConfig struct {
	Lookahead                 *int    `yaml:"lookahead"`
	StepTimeoutMs             *int    `yaml:"step_timeout_ms"`
	LocatorTimeoutMs          *int    `yaml:"locator_timeout_ms"`
	LLMTimeoutSec             *int    `yaml:"llm_timeout_sec"`
	PreferPersistentTransport *bool   `yaml:"prefer_persistent_transport"`
	MaxRecoveryAttempts       *int    `yaml:"max_recovery_attempts"`
	ProfileCachePath          *string `yaml:"profile_cache_path"`
	PatternCachePath          *string `yaml:"pattern_cache_path"`
	RedisURL                  *string `yaml:"redis_url"`
}

// FromYAMLFile reads path and returns Options that override only the
// fields present in the document, so a partial YAML file layers cleanly
// on top of env-derived defaults.
func FromYAMLFile(path string) ([]Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	var opts []Option
	if fc.Lookahead != nil {
		opts = append(opts, WithLookahead(*fc.Lookahead))
	}
	if fc.StepTimeoutMs != nil {
		opts = append(opts, WithStepTimeout(time.Duration(*fc.StepTimeoutMs)*time.Millisecond))
	}
	if fc.LocatorTimeoutMs != nil {
		opts = append(opts, WithLocatorTimeout(time.Duration(*fc.LocatorTimeoutMs)*time.Millisecond))
	}
	if fc.LLMTimeoutSec != nil {
		opts = append(opts, WithLLMTimeout(time.Duration(*fc.LLMTimeoutSec)*time.Second))
	}
	if fc.PreferPersistentTransport != nil {
		opts = append(opts, WithPreferPersistentTransport(*fc.PreferPersistentTransport))
	}
	if fc.MaxRecoveryAttempts != nil {
		opts = append(opts, WithMaxRecoveryAttempts(*fc.MaxRecoveryAttempts))
	}
	if fc.ProfileCachePath != nil {
		opts = append(opts, WithProfileCachePath(*fc.ProfileCachePath))
	}
	if fc.PatternCachePath != nil {
		opts = append(opts, WithPatternCachePath(*fc.PatternCachePath))
	}
	if fc.RedisURL != nil {
		opts = append(opts, WithRedisURL(*fc.RedisURL))
	}
	return opts, nil
}
