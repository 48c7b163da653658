// Package config assembles the engine's runtime configuration (spec.md
// §6) with the teacher's three-layer priority: defaults, then
// environment variables, then functional options supplied by the
// caller (highest priority wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds every caller-tunable key from spec.md §6.
type Config struct {
	// Lookahead is the number of steps to pre-resolve speculatively.
	Lookahead int
	// StepTimeout is the per-step deadline.
	StepTimeout time.Duration
	// LocatorTimeout is the per-locator-attempt deadline.
	LocatorTimeout time.Duration
	// LLMTimeout is the per-LLM-request deadline.
	LLMTimeout time.Duration
	// PreferPersistentTransport prefers WebSocket over HTTP when both
	// are available.
	PreferPersistentTransport bool
	// MaxRecoveryAttempts caps attempts per (step, error-kind).
	MaxRecoveryAttempts int
	// ProfileCachePath is the site_profiles.json location.
	ProfileCachePath string
	// PatternCachePath is the selector_patterns.json location.
	PatternCachePath string

	// ReconnectCooldown bounds persistent-transport reconnect attempts
	// to at most one per interval (spec.md §4.1).
	ReconnectCooldown time.Duration

	// RedisURL optionally backs the profile/pattern stores with a
	// shared cache instead of local JSON files (SPEC_FULL.md §3).
	RedisURL string

	// LLMBaseURL, LLMAPIKey and LLMModel configure the HTTP transport
	// used for planning (SPEC_FULL.md §3).
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// LLMWebSocketURL, when set, enables the persistent transport
	// alongside the HTTP one (spec.md §4.1).
	LLMWebSocketURL string
}

// Option mutates a Config during construction.
type Option func(*Config)

func WithLookahead(n int) Option                  { return func(c *Config) { c.Lookahead = n } }
func WithStepTimeout(d time.Duration) Option       { return func(c *Config) { c.StepTimeout = d } }
func WithLocatorTimeout(d time.Duration) Option    { return func(c *Config) { c.LocatorTimeout = d } }
func WithLLMTimeout(d time.Duration) Option        { return func(c *Config) { c.LLMTimeout = d } }
func WithPreferPersistentTransport(b bool) Option  { return func(c *Config) { c.PreferPersistentTransport = b } }
func WithMaxRecoveryAttempts(n int) Option         { return func(c *Config) { c.MaxRecoveryAttempts = n } }
func WithProfileCachePath(p string) Option         { return func(c *Config) { c.ProfileCachePath = p } }
func WithPatternCachePath(p string) Option         { return func(c *Config) { c.PatternCachePath = p } }
func WithReconnectCooldown(d time.Duration) Option { return func(c *Config) { c.ReconnectCooldown = d } }
func WithRedisURL(u string) Option                 { return func(c *Config) { c.RedisURL = u } }
func WithLLMBaseURL(u string) Option                { return func(c *Config) { c.LLMBaseURL = u } }
func WithLLMAPIKey(k string) Option                 { return func(c *Config) { c.LLMAPIKey = k } }
func WithLLMModel(m string) Option                  { return func(c *Config) { c.LLMModel = m } }
func WithLLMWebSocketURL(u string) Option           { return func(c *Config) { c.LLMWebSocketURL = u } }

// defaults returns a Config populated with spec.md §6's defaults.
func defaults() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".webagent")
	return Config{
		Lookahead:                 2,
		StepTimeout:               30 * time.Second,
		LocatorTimeout:            2 * time.Second,
		LLMTimeout:                120 * time.Second,
		PreferPersistentTransport: true,
		MaxRecoveryAttempts:       3,
		ProfileCachePath:          filepath.Join(base, "site_profiles.json"),
		PatternCachePath:          filepath.Join(base, "selector_patterns.json"),
		ReconnectCooldown:         60 * time.Second,
		LLMBaseURL:                "https://api.openai.com/v1",
		LLMModel:                  "gpt-4o-mini",
	}
}

// loadEnv applies WEBAGENT_* environment overrides, mirroring the
// teacher's GOMIND_* convention.
func loadEnv(c *Config) error {
	if v := os.Getenv("WEBAGENT_LOOKAHEAD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBAGENT_LOOKAHEAD: %w", err)
		}
		c.Lookahead = n
	}
	if v := os.Getenv("WEBAGENT_STEP_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBAGENT_STEP_TIMEOUT_MS: %w", err)
		}
		c.StepTimeout = time.Duration(n) * time.Millisecond
	}
	if v := os.Getenv("WEBAGENT_LOCATOR_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBAGENT_LOCATOR_TIMEOUT_MS: %w", err)
		}
		c.LocatorTimeout = time.Duration(n) * time.Millisecond
	}
	if v := os.Getenv("WEBAGENT_LLM_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBAGENT_LLM_TIMEOUT_SEC: %w", err)
		}
		c.LLMTimeout = time.Duration(n) * time.Second
	}
	if v := os.Getenv("WEBAGENT_PREFER_PERSISTENT_TRANSPORT"); v != "" {
		c.PreferPersistentTransport = v == "true" || v == "1"
	}
	if v := os.Getenv("WEBAGENT_MAX_RECOVERY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBAGENT_MAX_RECOVERY_ATTEMPTS: %w", err)
		}
		c.MaxRecoveryAttempts = n
	}
	if v := os.Getenv("WEBAGENT_PROFILE_CACHE_PATH"); v != "" {
		c.ProfileCachePath = v
	}
	if v := os.Getenv("WEBAGENT_PATTERN_CACHE_PATH"); v != "" {
		c.PatternCachePath = v
	}
	if v := os.Getenv("WEBAGENT_REDIS_URL"); v != "" {
		c.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("WEBAGENT_LLM_BASE_URL"); v != "" {
		c.LLMBaseURL = v
	}
	if v := os.Getenv("WEBAGENT_LLM_API_KEY"); v != "" {
		c.LLMAPIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLMAPIKey = v
	}
	if v := os.Getenv("WEBAGENT_LLM_MODEL"); v != "" {
		c.LLMModel = v
	}
	if v := os.Getenv("WEBAGENT_LLM_WS_URL"); v != "" {
		c.LLMWebSocketURL = v
	}
	return nil
}

// New assembles a Config: defaults, then environment, then opts.
func New(opts ...Option) (*Config, error) {
	c := defaults()
	if err := loadEnv(&c); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations that would violate engine invariants.
func (c *Config) Validate() error {
	if c.Lookahead < 0 {
		return fmt.Errorf("config: lookahead must be >= 0, got %d", c.Lookahead)
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("config: step timeout must be positive")
	}
	if c.LocatorTimeout <= 0 {
		return fmt.Errorf("config: locator timeout must be positive")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("config: llm timeout must be positive")
	}
	if c.MaxRecoveryAttempts < 1 {
		return fmt.Errorf("config: max recovery attempts must be >= 1")
	}
	return nil
}
