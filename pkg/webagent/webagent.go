// Package webagent is the public entry point: it wires every internal
// collaborator (Transport, Profiler, Tracker, Resolver, Validator,
// Recovery, Planner, Engine, EventBus) into one constructible Agent,
// the way the teacher's pkg/agent wires a gomind BaseAgent around its
// own internal registry/discovery/communication pieces.
package webagent

import (
	"context"
	"fmt"

	"github.com/llmwebagent/agent/internal/config"
	"github.com/llmwebagent/agent/internal/driver"
	"github.com/llmwebagent/agent/internal/engine"
	"github.com/llmwebagent/agent/internal/eventbus"
	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/internal/model"
	"github.com/llmwebagent/agent/internal/planner"
	"github.com/llmwebagent/agent/internal/profiler"
	"github.com/llmwebagent/agent/internal/recovery"
	"github.com/llmwebagent/agent/internal/resolver"
	"github.com/llmwebagent/agent/internal/store"
	"github.com/llmwebagent/agent/internal/telemetry"
	"github.com/llmwebagent/agent/internal/tracker"
	"github.com/llmwebagent/agent/internal/transport"
	"github.com/llmwebagent/agent/internal/validator"
)

// Agent bundles an Adaptive Engine with the collaborators a caller may
// want direct access to after a run: the EventBus for live progress,
// and the Profiler/Tracker for introspecting what has been learned.
type Agent struct {
	engine   *engine.Engine
	bus      *eventbus.Bus
	profiler *profiler.Profiler
	tracker  *tracker.Tracker
	pool     *transport.Pool
	cfg      *config.Config
}

// poolTransport adapts transport.Pool's three-argument Complete to the
// plain transport.Transport shape the Planner expects, fixing the
// hybrid-selection preference at construction time.
type poolTransport struct {
	pool             *transport.Pool
	preferPersistent bool
}

func (t poolTransport) Complete(ctx context.Context, req transport.Request) (transport.Response, error) {
	return t.pool.Complete(ctx, req, t.preferPersistent)
}

func (t poolTransport) Stream(ctx context.Context, req transport.Request) (<-chan transport.Chunk, error) {
	return t.pool.GetProvider(t.preferPersistent).Stream(ctx, req)
}

func (t poolTransport) Name() string {
	return t.pool.GetProvider(t.preferPersistent).Name()
}

// New wires an Agent from cfg. When cfg.RedisURL is set, the Site
// Profiler and Pattern Tracker share a RedisStore instead of writing
// local JSON files, so multiple Agent processes learn from the same
// store (SPEC_FULL.md §3).
func New(cfg *config.Config, logger logging.Logger) (*Agent, error) {
	if cfg == nil {
		var err error
		cfg, err = config.New()
		if err != nil {
			return nil, fmt.Errorf("webagent: building default config: %w", err)
		}
	}
	if logger == nil {
		logger = logging.NoOp{}
	}

	backend, err := resolveBackend(cfg)
	if err != nil {
		return nil, err
	}

	pool := transport.NewPool(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMWebSocketURL, cfg.LLMTimeout, cfg.ReconnectCooldown, logger)
	pt := poolTransport{pool: pool, preferPersistent: cfg.PreferPersistentTransport}

	pl := planner.New(pt, cfg.LLMModel, logger)
	pr := profiler.New(cfg.ProfileCachePath, backend, logger)
	tr := tracker.New(cfg.PatternCachePath, backend, logger)
	rs := resolver.New(cfg.LocatorTimeout, logger)
	v := validator.New(true)
	rc := recovery.New(cfg.MaxRecoveryAttempts, logger)
	bus := eventbus.New(64)

	eng := engine.New(cfg, pl, pr, tr, rs, v, rc, bus, logger)
	eng.SetTelemetry(telemetry.NewProvider("webagent"))

	return &Agent{engine: eng, bus: bus, profiler: pr, tracker: tr, pool: pool, cfg: cfg}, nil
}

// resolveBackend picks a RedisStore when cfg.RedisURL is set, otherwise
// the local-file store.Backend (SPEC_FULL.md §3).
func resolveBackend(cfg *config.Config) (store.Backend, error) {
	if cfg.RedisURL == "" {
		return store.FileBackend{}, nil
	}
	rs, err := store.NewRedisStore(cfg.RedisURL, "webagent")
	if err != nil {
		return nil, fmt.Errorf("webagent: connecting to redis store: %w", err)
	}
	return rs, nil
}

// Run executes goal against page end-to-end (spec.md §4.8).
func (a *Agent) Run(ctx context.Context, page driver.Page, goal string) (*model.AdaptiveResult, error) {
	return a.engine.Run(ctx, page, goal)
}

// Events returns a live subscription to run progress, for callers that
// want to stream step-by-step events (spec.md §4.9).
func (a *Agent) Events() *eventbus.Subscription {
	return a.bus.Subscribe()
}

// Profiles returns a snapshot of every site profile detected/learned
// so far, for the `profile show` CLI command.
func (a *Agent) Profiles() model.ProfileStore {
	return a.profiler.Dump()
}

// Patterns returns a snapshot of every learned selector pattern, for
// the `pattern show` CLI command.
func (a *Agent) Patterns() model.PatternStore {
	return a.tracker.Dump()
}

// TransportStats reports the hybrid transport's request/failure
// counters (spec.md §4.1 S3 scenario).
func (a *Agent) TransportStats() transport.Stats {
	return a.pool.Stats()
}

// Close releases the transport pool's persistent connection, if any.
func (a *Agent) Close() error {
	return a.pool.Close()
}
