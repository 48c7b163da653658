// Package engine implements the Adaptive Engine (spec.md §4.8): the
// top-level scheduler that turns a goal into an AdaptiveResult by
// driving Planner, Profiler, Pattern Tracker, Resolver, Validator and
// Error Recovery against a live driver.Page, with lookahead
// speculative resolution overlapping current execution, grounded on
// gomind's pkg/orchestration/executor.go step-timeout/context wiring
// and core/async_task.go's single-consume background-result pattern.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/llmwebagent/agent/internal/config"
	"github.com/llmwebagent/agent/internal/driver"
	"github.com/llmwebagent/agent/internal/eventbus"
	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/internal/model"
	"github.com/llmwebagent/agent/internal/planner"
	"github.com/llmwebagent/agent/internal/profiler"
	"github.com/llmwebagent/agent/internal/recovery"
	"github.com/llmwebagent/agent/internal/resolver"
	"github.com/llmwebagent/agent/internal/telemetry"
	"github.com/llmwebagent/agent/internal/tracker"
	"github.com/llmwebagent/agent/internal/validator"
)

// speculativeTask holds a lookahead resolution's single-consume result
// (spec.md §4.8: "cached keyed by step id and consumed at most once").
type speculativeTask struct {
	once   sync.Once
	result resolver.Resolution
	ready  chan struct{}
	taken  int32
}

func (t *speculativeTask) set(res resolver.Resolution) {
	t.once.Do(func() {
		t.result = res
		close(t.ready)
	})
}

// consume blocks until the task is ready (or ctx is cancelled) and
// returns its result at most once; a second call reports ok=false.
func (t *speculativeTask) consume(ctx context.Context) (resolver.Resolution, bool) {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return resolver.Resolution{}, false
	}
	if !atomic.CompareAndSwapInt32(&t.taken, 0, 1) {
		return resolver.Resolution{}, false
	}
	return t.result, true
}

// Engine wires every adaptive-pipeline component together into one
// Run call.
type Engine struct {
	cfg       *config.Config
	planner   *planner.Planner
	profiler  *profiler.Profiler
	tracker   *tracker.Tracker
	resolver  *resolver.Resolver
	validator *validator.Validator
	recovery  *recovery.Recovery
	bus       *eventbus.Bus
	logger    logging.Logger
	telemetry telemetry.Telemetry
}

// New builds an Engine from its already-constructed collaborators.
// Telemetry defaults to a no-op; call SetTelemetry to wire a real
// Provider.
func New(cfg *config.Config, p *planner.Planner, pr *profiler.Profiler, tr *tracker.Tracker, rs *resolver.Resolver, v *validator.Validator, rc *recovery.Recovery, bus *eventbus.Bus, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NoOp{}
	}
	if bus == nil {
		bus = eventbus.New(0)
	}
	return &Engine{cfg: cfg, planner: p, profiler: pr, tracker: tr, resolver: rs, validator: v, recovery: rc, bus: bus, logger: logger, telemetry: telemetry.NoOp{}}
}

// SetTelemetry replaces the Engine's Telemetry provider (nil restores
// the no-op default).
func (e *Engine) SetTelemetry(t telemetry.Telemetry) {
	if t == nil {
		t = telemetry.NoOp{}
	}
	e.telemetry = t
}

// Run executes goal against page end to end (spec.md §4.8 steps 1-5).
func (e *Engine) Run(ctx context.Context, page driver.Page, goal string) (*model.AdaptiveResult, error) {
	runID := uuid.NewString()
	runCtx := model.NewRunContext(runID)
	start := time.Now()

	ctx, span := e.telemetry.StartSpan(ctx, "engine.Run")
	span.SetAttribute("run_id", runID)
	defer span.End()

	e.bus.Publish(model.EventRunStarted, map[string]interface{}{"run_id": runID, "goal": goal})

	profile, err := e.profiler.GetProfile(ctx, page)
	if err != nil {
		e.logger.Warn("engine: profile detection failed, proceeding without one", map[string]interface{}{"error": err.Error()})
		profile = nil
	}

	snapshot, err := planner.ExtractSnapshot(ctx, page)
	if err != nil {
		e.logger.Warn("engine: snapshot extraction failed", map[string]interface{}{"error": err.Error()})
	}

	plan, err := e.planner.Plan(ctx, goal, snapshot)
	if err != nil {
		planErr := fmt.Errorf("engine: planning failed: %w", model.ErrPlanEmpty)
		span.RecordError(planErr)
		return nil, planErr
	}
	if len(plan.Steps) == 0 {
		planErr := fmt.Errorf("engine: %w", model.ErrPlanEmpty)
		span.RecordError(planErr)
		return nil, planErr
	}

	domain := profiler.DomainOf(page.URL())
	runCtx.SetCurrentPage(page.URL(), "")

	speculative := make(map[string]*speculativeTask, len(plan.Steps))
	var specMu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()

	speculateFor := func(i int) {
		if i < 0 || i >= len(plan.Steps) {
			return
		}
		step := plan.Steps[i]
		specMu.Lock()
		if _, exists := speculative[step.ID]; exists {
			specMu.Unlock()
			return
		}
		task := &speculativeTask{ready: make(chan struct{})}
		speculative[step.ID] = task
		specMu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.resolver.Resolve(ctx, page, step.Locators, profile, domain, step.Target, e.tracker)
			if ctx.Err() != nil {
				return
			}
			task.set(res)
		}()
	}

	for i := 0; i < e.cfg.Lookahead && i < len(plan.Steps); i++ {
		speculateFor(i)
	}

	var results []model.StepResult
	var firstErr error
	status := model.RunSucceeded

	for i, step := range plan.Steps {
		if ctx.Err() != nil {
			status = model.RunCancelled
			break
		}

		specMu.Lock()
		task := speculative[step.ID]
		specMu.Unlock()

		stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
		sr := e.executeStep(stepCtx, page, runCtx, profile, domain, step, task)
		cancel()

		results = append(results, sr)
		e.bus.Publish(model.EventStep, map[string]interface{}{"step_id": step.ID, "success": sr.Success, "action": string(step.Action)})

		if !sr.Success {
			if firstErr == nil {
				firstErr = fmt.Errorf("step %s: %s", step.ID, sr.ErrorMessage)
			}
			if !step.Optional {
				status = model.RunFailed
				break
			}
		}

		speculateFor(i + e.cfg.Lookahead)
	}

	result := &model.AdaptiveResult{
		Status:      status,
		Framework:   frameworkOf(profile),
		Duration:    time.Since(start),
		StepResults: results,
		Extracted:   runCtx.Clipboard(),
		FirstError:  firstErr,
	}
	e.bus.Publish(model.EventRunCompleted, map[string]interface{}{"run_id": runID, "status": string(status), "steps": len(results)})
	span.SetAttribute("status", string(status))
	span.SetAttribute("steps", len(results))
	e.telemetry.RecordMetric("webagent_runs_total", 1, map[string]string{"status": string(status)})
	return result, nil
}

// executeStep resolves (or consumes a speculative resolution for) the
// step's target element, pre-validates, performs the action, then
// post-validates — retrying through Error Recovery's graduated ladder
// on failure (spec.md §4.8 step 4).
func (e *Engine) executeStep(ctx context.Context, page driver.Page, runCtx *model.RunContext, profile *model.SiteProfile, domain string, step model.PlannedStep, task *speculativeTask) model.StepResult {
	stepStart := time.Now()
	rctx := &recovery.Context{StepID: step.ID, Timeout: e.cfg.LocatorTimeout}

	ctx, span := e.telemetry.StartSpan(ctx, "engine.executeStep")
	span.SetAttribute("step_id", step.ID)
	span.SetAttribute("action", string(step.Action))
	defer span.End()

	for {
		sr, retry := e.attemptStep(ctx, page, runCtx, profile, domain, step, task, rctx)
		if !retry {
			sr.Duration = time.Since(stepStart)
			span.SetAttribute("success", sr.Success)
			if !sr.Success {
				span.RecordError(fmt.Errorf("%s: %s", sr.ErrorKind, sr.ErrorMessage))
			}
			e.telemetry.RecordMetric("webagent_step_total", 1, map[string]string{"action": string(step.Action), "success": fmt.Sprintf("%t", sr.Success)})
			return sr
		}
		task = nil // a retry always re-resolves; a stale speculative result cannot be reused
	}
}

func (e *Engine) attemptStep(ctx context.Context, page driver.Page, runCtx *model.RunContext, profile *model.SiteProfile, domain string, step model.PlannedStep, task *speculativeTask, rctx *recovery.Context) (model.StepResult, bool) {
	if step.Action == model.ActionNavigate {
		return e.executeNavigate(ctx, page, runCtx, step), false
	}

	res, ok := resolution(ctx, e, page, profile, domain, step, task, rctx)
	if !ok || !res.Success {
		rerr := fmt.Errorf("could not find element matching %q: %w", step.Target, model.ErrLocatorUnresolvable)
		return e.recoverOrFail(ctx, page, runCtx, rctx, step, rerr, model.StepResult{
			StepID:                step.ID,
			Success:               false,
			ErrorKind:             string(recovery.KindElementNotFound),
			ErrorMessage:          rerr.Error(),
			AttemptedAlternatives: res.AlternativesTried,
		})
	}
	rctx.Selector = res.SelectorText

	forceClick := rctx.ForceClick
	rctx.ForceClick = false

	pre := e.validator.PreValidate(ctx, page, res.Element)
	if !pre.Success && !forceClick {
		return e.recoverOrFail(ctx, page, runCtx, rctx, step, validator.ErrOf(pre), model.StepResult{
			StepID: step.ID, Success: false, Strategy: res.UsedStrategy, SelectorUsed: res.SelectorText,
			ErrorKind: string(recovery.KindElementNotVisible), ErrorMessage: pre.Message,
		})
	}

	var urlBefore, hashBefore string
	if step.Action == model.ActionClick {
		urlBefore = page.URL()
		hashBefore, _ = validator.DOMHash(ctx, page)
	}

	if err := e.perform(ctx, page, res.Element, step, rctx); err != nil {
		return e.recoverOrFail(ctx, page, runCtx, rctx, step, err, model.StepResult{
			StepID: step.ID, Success: false, Strategy: res.UsedStrategy, SelectorUsed: res.SelectorText,
			ErrorKind: string(recovery.Classify(err)), ErrorMessage: err.Error(),
		})
	}

	post := e.postValidate(ctx, page, res.Element, step, rctx, urlBefore, hashBefore)
	if !post.Success {
		return e.recoverOrFail(ctx, page, runCtx, rctx, step, validator.ErrOf(post), model.StepResult{
			StepID: step.ID, Success: false, Strategy: res.UsedStrategy, SelectorUsed: res.SelectorText,
			ErrorKind: "validation_failed", ErrorMessage: post.Message,
		})
	}

	e.tracker.RecordSuccess(domain, step.Target, res.UsedStrategy, res.SelectorText)
	e.profiler.RecordOutcome(domain, res.UsedStrategy, true)
	runCtx.RecordAction(model.ActionHistoryEntry{StepID: step.ID, Action: step.Action, Success: true, Strategy: res.UsedStrategy, Timestamp: time.Now()})
	runCtx.SetCurrentPage(page.URL(), "")

	if step.Action == model.ActionExtract {
		text, _ := res.Element.TextContent(ctx)
		runCtx.SetClipboard(step.Value, text)
	}

	return model.StepResult{StepID: step.ID, Success: true, Strategy: res.UsedStrategy, SelectorUsed: res.SelectorText, AttemptedAlternatives: res.AlternativesTried}, false
}

// resolution consumes the speculative result if one is ready and still
// valid for this attempt, otherwise resolves synchronously using
// rctx.Timeout — which Error Recovery's timeout ladder may have
// extended beyond the Resolver's configured default (spec.md §4.7).
func resolution(ctx context.Context, e *Engine, page driver.Page, profile *model.SiteProfile, domain string, step model.PlannedStep, task *speculativeTask, rctx *recovery.Context) (resolver.Resolution, bool) {
	if task != nil {
		if res, ok := task.consume(ctx); ok {
			return res, true
		}
	}
	return e.resolver.ResolveWithTimeout(ctx, page, step.Locators, profile, domain, step.Target, e.tracker, rctx.Timeout), true
}

// recoverOrFail hands a failure to Error Recovery; if the ladder says
// retry, it signals the caller to loop, otherwise it finalizes sr.
func (e *Engine) recoverOrFail(ctx context.Context, page driver.Page, runCtx *model.RunContext, rctx *recovery.Context, step model.PlannedStep, cause error, sr model.StepResult) (model.StepResult, bool) {
	res := e.recovery.Recover(ctx, page, cause, rctx)
	if res.NewTimeout > 0 {
		rctx.Timeout = res.NewTimeout
	}
	e.tracker.RecordFailure(profiler.DomainOf(page.URL()), step.Target, sr.Strategy)
	runCtx.RecordAction(model.ActionHistoryEntry{StepID: step.ID, Action: step.Action, Success: false, Strategy: sr.Strategy, Timestamp: time.Now()})
	if !res.ShouldRetry {
		return sr, false
	}
	return sr, true
}

func (e *Engine) executeNavigate(ctx context.Context, page driver.Page, runCtx *model.RunContext, step model.PlannedStep) model.StepResult {
	if err := page.Goto(ctx, step.Value); err != nil {
		return model.StepResult{StepID: step.ID, Success: false, ErrorKind: string(recovery.Classify(err)), ErrorMessage: err.Error()}
	}
	waitPolicy := model.WaitLoad
	if step.WaitAfter != nil && step.WaitAfter.Kind != "" {
		waitPolicy = model.WaitPolicy(step.WaitAfter.Kind)
	}
	_ = page.WaitForLoadState(ctx, driver.LoadState(waitPolicy), e.cfg.StepTimeout)

	post := e.validator.PostValidateNavigate(page, step.Value)
	runCtx.SetCurrentPage(page.URL(), "")
	if !post.Success {
		return model.StepResult{StepID: step.ID, Success: false, ErrorKind: "validation_failed", ErrorMessage: post.Message}
	}
	return model.StepResult{StepID: step.ID, Success: true}
}

// perform dispatches a resolved element's action (spec.md §4.8 step
// 4(c)). The TypeSlowly flag set by Error Recovery is consumed here, at
// most once per attempt; ForceClick is consumed in attemptStep, where it
// lets the action proceed past a failed pre-validation.
func (e *Engine) perform(ctx context.Context, page driver.Page, el driver.Element, step model.PlannedStep, rctx *recovery.Context) error {
	switch step.Action {
	case model.ActionClick:
		return el.Click(ctx)
	case model.ActionFill:
		if rctx.TypeSlowly {
			rctx.TypeSlowly = false
			return typeSlowly(ctx, el, step.Value)
		}
		return el.Fill(ctx, step.Value)
	case model.ActionType:
		return el.Type(ctx, step.Value)
	case model.ActionSelect:
		return el.SelectOption(ctx, step.Value)
	case model.ActionHover:
		return el.Hover(ctx)
	case model.ActionScroll:
		return el.ScrollIntoView(ctx)
	case model.ActionWait:
		return el.WaitFor(ctx, driver.StateVisible, e.cfg.LocatorTimeout)
	case model.ActionPressKey:
		return page.Keyboard().Press(ctx, step.Value)
	case model.ActionExtract:
		return nil
	default:
		return fmt.Errorf("engine: unsupported action %q", step.Action)
	}
}

// typeSlowly types one rune at a time, the Error Recovery fallback for
// inputs that silently drop bulk-fill events.
func typeSlowly(ctx context.Context, el driver.Element, value string) error {
	if err := el.Fill(ctx, ""); err != nil {
		return err
	}
	for _, r := range value {
		if err := el.Type(ctx, string(r)); err != nil {
			return err
		}
	}
	return nil
}

// postValidate branches on action kind per spec.md §4.6. urlBefore and
// domHashBefore must be captured before perform() runs the action.
func (e *Engine) postValidate(ctx context.Context, page driver.Page, el driver.Element, step model.PlannedStep, rctx *recovery.Context, urlBefore, domHashBefore string) validator.Result {
	switch step.Action {
	case model.ActionFill, model.ActionType:
		return e.validator.PostValidateFill(ctx, page, el, rctx.Selector, step.Value)
	case model.ActionSelect:
		return e.validator.PostValidateSelect(ctx, el, step.Value)
	case model.ActionClick:
		return e.validator.PostValidateClick(ctx, page, el, urlBefore, domHashBefore)
	default:
		return validator.Result{Success: true, Message: "no post-validation for this action"}
	}
}

func frameworkOf(profile *model.SiteProfile) string {
	if profile == nil {
		return model.FrameworkVanilla
	}
	return profile.Framework
}
