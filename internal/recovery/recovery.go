// Package recovery implements Error Recovery (spec.md §4.7): instant,
// logical recovery actions selected by error classification, with a
// graduated per-(step, error kind) attempt ladder that never calls
// the LLM, grounded on the original implementation's
// engine/error_recovery.py.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/llmwebagent/agent/internal/driver"
	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/internal/model"
)

// Kind classifies a failed action into a recovery family.
type Kind string

const (
	KindElementNotFound     Kind = "element_not_found"
	KindElementNotVisible   Kind = "element_not_visible"
	KindElementNotClickable Kind = "element_not_clickable"
	KindElementDetached     Kind = "element_detached"
	KindTimeout             Kind = "timeout"
	KindNavigationFailed    Kind = "navigation_failed"
	KindFillFailed          Kind = "fill_failed"
	KindNetworkError        Kind = "network_error"
	KindUnknown             Kind = "unknown"
)

// classificationPatterns maps substrings found in a lower-cased error
// message to the Kind they indicate, checked in table order so the
// first matching kind wins (spec.md §4.7).
var classificationPatterns = []struct {
	kind     Kind
	patterns []string
}{
	{KindElementNotFound, []string{"could not find", "no element matching", "element not found", "locator resolved to", "waiting for selector"}},
	{KindElementNotVisible, []string{"not visible", "hidden", "display: none", "visibility: hidden", "zero-size"}},
	{KindElementNotClickable, []string{"not clickable", "intercepted", "covered by", "pointer-events: none"}},
	{KindElementDetached, []string{"detached", "removed from document", "stale element"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindNavigationFailed, []string{"navigation failed", "net::", "err_", "connection refused"}},
	{KindFillFailed, []string{"fill failed", "cannot type", "readonly", "disabled"}},
	{KindNetworkError, []string{"network error", "fetch failed", "connection reset"}},
}

// Classify maps err to one of the recovery Kinds by substring match.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, c := range classificationPatterns {
		for _, p := range c.patterns {
			if strings.Contains(msg, p) {
				return c.kind
			}
		}
	}
	return KindUnknown
}

// overlaySelectors is the fixed list of common dismiss targets tried in
// order before falling back to the Escape key (spec.md §4.7).
var overlaySelectors = []string{
	`button:has-text("Accept")`,
	`button:has-text("Accept All")`,
	`button:has-text("Got it")`,
	`[aria-label="Close"]`,
	`[aria-label="Dismiss"]`,
	`.modal-close`,
	`.close-button`,
	`[data-dismiss="modal"]`,
	`button.close`,
	`.popup-close`,
	`.overlay-close`,
}

// Context carries the per-attempt state a recovery strategy needs.
type Context struct {
	StepID      string
	Selector    string
	Timeout     time.Duration
	ForceClick  bool
	ReResolve   bool
	TypeSlowly  bool
}

// Result is the outcome of one recovery attempt.
type Result struct {
	Success     bool
	ActionTaken string
	ShouldRetry bool
	NewTimeout  time.Duration
	Message     string
}

// Recovery selects and runs graduated recovery strategies, capping
// attempts per (step, kind) at MaxAttempts (spec.md §4.7 /
// config.MaxRecoveryAttempts).
type Recovery struct {
	mu           sync.Mutex
	attempts     map[string]int
	MaxAttempts  int
	logger       logging.Logger
}

// New builds a Recovery with the given per-(step,kind) attempt cap.
func New(maxAttempts int, logger logging.Logger) *Recovery {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Recovery{attempts: make(map[string]int), MaxAttempts: maxAttempts, logger: logger}
}

func (r *Recovery) nextAttempt(stepID string, kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stepID + ":" + string(kind)
	r.attempts[key]++
	return r.attempts[key]
}

// ResetAttempts clears counters for one step, or every step if stepID
// is empty.
func (r *Recovery) ResetAttempts(stepID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stepID == "" {
		r.attempts = make(map[string]int)
		return
	}
	prefix := stepID + ":"
	for k := range r.attempts {
		if strings.HasPrefix(k, prefix) {
			delete(r.attempts, k)
		}
	}
}

// Recover classifies err and dispatches to the matching graduated
// strategy, escalating by attempt number within the cap.
func (r *Recovery) Recover(ctx context.Context, page driver.Page, err error, rctx *Context) Result {
	kind := Classify(err)
	attempt := r.nextAttempt(rctx.StepID, kind)

	if attempt > r.MaxAttempts {
		return Result{
			Success:     false,
			ActionTaken: "max_attempts_exceeded",
			ShouldRetry: false,
			Message:     fmt.Sprintf("max recovery attempts (%d) exceeded for %s", r.MaxAttempts, kind),
		}
	}

	r.logger.Info("recovery attempt", map[string]interface{}{"step_id": rctx.StepID, "kind": string(kind), "attempt": attempt, "max": r.MaxAttempts})

	switch kind {
	case KindElementNotFound:
		return r.recoverElementNotFound(ctx, page, attempt)
	case KindElementNotVisible:
		return r.recoverElementNotVisible(ctx, page, rctx, attempt)
	case KindElementNotClickable:
		return r.recoverElementNotClickable(ctx, page, rctx, attempt)
	case KindElementDetached:
		return r.recoverElementDetached(rctx, attempt)
	case KindTimeout:
		return r.recoverTimeout(ctx, page, rctx, attempt)
	case KindNavigationFailed:
		return r.recoverNavigationFailed(ctx, page, attempt)
	case KindFillFailed:
		return r.recoverFillFailed(ctx, page, rctx, attempt)
	default:
		return r.recoverGeneric(attempt)
	}
}

func (r *Recovery) recoverElementNotFound(ctx context.Context, page driver.Page, attempt int) Result {
	switch attempt {
	case 1:
		sleep(ctx, 500*time.Millisecond)
		return Result{Success: true, ActionTaken: "wait_short", ShouldRetry: true, Message: "waited 500ms for element to appear"}
	case 2:
		page.Evaluate(ctx, "window.scrollBy(0, 300)", nil)
		sleep(ctx, 300*time.Millisecond)
		return Result{Success: true, ActionTaken: "scroll_down", ShouldRetry: true, Message: "scrolled down to expose element"}
	default:
		if r.dismissOverlays(ctx, page) {
			return Result{Success: true, ActionTaken: "dismiss_overlays", ShouldRetry: true, Message: "dismissed overlay/modal"}
		}
		return Result{Success: false, ActionTaken: "none", ShouldRetry: false, Message: "no more recovery options"}
	}
}

func (r *Recovery) recoverElementNotVisible(ctx context.Context, page driver.Page, rctx *Context, attempt int) Result {
	if attempt == 1 && rctx.Selector != "" {
		script := fmt.Sprintf("document.querySelector(%q)?.scrollIntoView({behavior: 'instant', block: 'center'})", rctx.Selector)
		if _, err := page.Evaluate(ctx, script, nil); err == nil {
			sleep(ctx, 200*time.Millisecond)
			return Result{Success: true, ActionTaken: "scroll_into_view", ShouldRetry: true, Message: "scrolled element into view"}
		}
	}
	if attempt == 2 {
		dismissed := r.dismissOverlays(ctx, page)
		action, msg := "none", "no overlay found"
		if dismissed {
			action, msg = "dismiss_overlays", "dismissed overlay"
		}
		return Result{Success: dismissed, ActionTaken: action, ShouldRetry: dismissed, Message: msg}
	}
	return Result{Success: false, ActionTaken: "none", ShouldRetry: false}
}

func (r *Recovery) recoverElementNotClickable(ctx context.Context, page driver.Page, rctx *Context, attempt int) Result {
	switch attempt {
	case 1:
		sleep(ctx, 300*time.Millisecond)
		return Result{Success: true, ActionTaken: "wait_animation", ShouldRetry: true, Message: "waited for animation"}
	case 2:
		if r.dismissOverlays(ctx, page) {
			return Result{Success: true, ActionTaken: "dismiss_overlays", ShouldRetry: true}
		}
	}
	rctx.ForceClick = true
	return Result{Success: true, ActionTaken: "enable_force_click", ShouldRetry: true, Message: "enabled force click option"}
}

func (r *Recovery) recoverElementDetached(rctx *Context, attempt int) Result {
	rctx.ReResolve = true
	time.Sleep(200 * time.Millisecond)
	return Result{Success: true, ActionTaken: "re_resolve_selector", ShouldRetry: true, Message: "flagged for selector re-resolution"}
}

func (r *Recovery) recoverTimeout(ctx context.Context, page driver.Page, rctx *Context, attempt int) Result {
	switch attempt {
	case 1:
		current := rctx.Timeout
		if current <= 0 {
			current = 5 * time.Second
		}
		newTimeout := current * 2
		if newTimeout > 30*time.Second {
			newTimeout = 30 * time.Second
		}
		return Result{Success: true, ActionTaken: "extend_timeout", ShouldRetry: true, NewTimeout: newTimeout, Message: fmt.Sprintf("extended timeout to %s", newTimeout)}
	case 2:
		if err := page.WaitForLoadState(ctx, driver.LoadStateNetworkIdle, 5*time.Second); err == nil {
			return Result{Success: true, ActionTaken: "wait_network_idle", ShouldRetry: true, Message: "waited for network idle"}
		}
	}
	return Result{Success: false, ActionTaken: "none", ShouldRetry: false, Message: "timeout recovery exhausted"}
}

func (r *Recovery) recoverNavigationFailed(ctx context.Context, page driver.Page, attempt int) Result {
	switch attempt {
	case 1:
		sleep(ctx, time.Second)
		return Result{Success: true, ActionTaken: "wait_and_retry", ShouldRetry: true, Message: "waiting 1s before retry"}
	case 2:
		if err := page.GoBack(ctx); err == nil {
			sleep(ctx, 500*time.Millisecond)
			return Result{Success: true, ActionTaken: "go_back", ShouldRetry: true, Message: "navigated back, will retry"}
		}
	}
	return Result{Success: false, ActionTaken: "none", ShouldRetry: false}
}

func (r *Recovery) recoverFillFailed(ctx context.Context, page driver.Page, rctx *Context, attempt int) Result {
	switch attempt {
	case 1:
		if rctx.Selector != "" {
			if el, err := page.QuerySelector(ctx, rctx.Selector); err == nil && el != nil {
				if err := el.Fill(ctx, ""); err == nil {
					sleep(ctx, 100*time.Millisecond)
					return Result{Success: true, ActionTaken: "clear_field", ShouldRetry: true, Message: "cleared field before retry"}
				}
			}
		}
	case 2:
		if rctx.Selector != "" {
			if el, err := page.QuerySelector(ctx, rctx.Selector); err == nil && el != nil {
				if err := el.Click(ctx); err == nil {
					sleep(ctx, 100*time.Millisecond)
					return Result{Success: true, ActionTaken: "click_to_focus", ShouldRetry: true, Message: "clicked to focus before retry"}
				}
			}
		}
	}
	rctx.TypeSlowly = true
	return Result{Success: true, ActionTaken: "enable_slow_type", ShouldRetry: true, Message: "enabled character-by-character typing"}
}

func (r *Recovery) recoverGeneric(attempt int) Result {
	wait := time.Duration(attempt) * 500 * time.Millisecond
	time.Sleep(wait)
	return Result{
		Success:     true,
		ActionTaken: fmt.Sprintf("wait_%s", wait),
		ShouldRetry: attempt < r.MaxAttempts,
		Message:     fmt.Sprintf("generic recovery: waited %s", wait),
	}
}

// dismissOverlays tries each overlay selector in turn, clicking the
// first visible match, then falls back to pressing Escape.
func (r *Recovery) dismissOverlays(ctx context.Context, page driver.Page) bool {
	for _, selector := range overlaySelectors {
		el, err := page.QuerySelector(ctx, selector)
		if err != nil || el == nil {
			continue
		}
		visible, _ := el.IsVisible(ctx)
		if !visible {
			continue
		}
		if err := el.Click(ctx); err != nil {
			continue
		}
		sleep(ctx, 300*time.Millisecond)
		r.logger.Info("dismissed overlay", map[string]interface{}{"selector": selector})
		return true
	}

	if err := page.Keyboard().Press(ctx, "Escape"); err != nil {
		return false
	}
	sleep(ctx, 200*time.Millisecond)
	return true
}

// sleep blocks for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// ErrOf converts a non-retryable Result into model.ErrRecoveryExhausted.
func ErrOf(res Result) error {
	if res.ShouldRetry {
		return nil
	}
	return fmt.Errorf("%s: %w", res.Message, model.ErrRecoveryExhausted)
}
