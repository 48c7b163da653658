// Package validator implements the Step Validator (spec.md §4.6):
// pre-action readiness checks and post-action multi-signal effect
// verification, grounded on the original implementation's
// engine/step_validator.py method-vote design.
package validator

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/llmwebagent/agent/internal/driver"
	"github.com/llmwebagent/agent/internal/model"
)

// settleWindow is the post-click observation window (spec.md §4.6).
const settleWindow = 100 * time.Millisecond

// MethodResult names one validation signal and whether it passed.
type MethodResult struct {
	Method string
	Passed bool
}

// Result carries the outcome plus enough diagnostic detail for Error
// Recovery to reason over which signals failed.
type Result struct {
	Success bool
	Message string
	Methods []MethodResult
}

func (r *Result) passedCount() int {
	n := 0
	for _, m := range r.Methods {
		if m.Passed {
			n++
		}
	}
	return n
}

// Validator runs pre- and post-action checks.
type Validator struct {
	// Strict requires every pre-validation check to pass; otherwise
	// exists+visible suffices (spec.md §4.6).
	Strict bool
}

// New builds a Validator. strict mirrors the original's default of true.
func New(strict bool) *Validator {
	return &Validator{Strict: strict}
}

// PreValidate confirms the element exists, is visible, is enabled, and
// that probing document.elementFromPoint at its bounding-box centre
// succeeds. The element found at that point is not compared with el, so
// an overlay covering el is not detected.
func (v *Validator) PreValidate(ctx context.Context, page driver.Page, el driver.Element) Result {
	var methods []MethodResult

	visible, _ := el.IsVisible(ctx)
	methods = append(methods, MethodResult{"visible", visible})

	enabled, _ := el.IsEnabled(ctx)
	methods = append(methods, MethodResult{"enabled", enabled})

	accessible := v.probeOverlay(ctx, page, el)
	methods = append(methods, MethodResult{"accessible", accessible})

	var success bool
	if v.Strict {
		success = true
		for _, m := range methods {
			success = success && m.Passed
		}
	} else {
		success = visible // exists is implicit: el is non-nil here
	}

	msg := "element ready"
	if !success {
		msg = "not ready, retry"
	}
	return Result{Success: success, Message: msg, Methods: methods}
}

func (v *Validator) probeOverlay(ctx context.Context, page driver.Page, el driver.Element) bool {
	box, err := el.BoundingBox(ctx)
	if err != nil || box == nil {
		return false
	}
	centerX := box.X + box.Width/2
	centerY := box.Y + box.Height/2
	_, err = page.Evaluate(ctx, fmt.Sprintf("document.elementFromPoint(%f, %f)", centerX, centerY), nil)
	return err == nil
}

// PostValidateFill reads the value back three ways and requires at
// least two to match; an empty read against a non-empty expectation
// is an immediate failure (spec.md §4.6).
func (v *Validator) PostValidateFill(ctx context.Context, page driver.Page, el driver.Element, selector, expected string) Result {
	var methods []MethodResult

	liveValue, _ := el.Evaluate(ctx, "el => el.value", nil)
	viaAPI, _ := liveValue.(string)
	methods = append(methods, MethodResult{"input_value", viaAPI == expected})

	domValue, _ := page.Evaluate(ctx, fmt.Sprintf("document.querySelector(%q)?.value || ''", selector), nil)
	domStr, _ := domValue.(string)
	methods = append(methods, MethodResult{"dom_value", domStr == expected})

	attrValue, _ := el.GetAttribute(ctx, "value")
	methods = append(methods, MethodResult{"value_attribute", attrValue == expected})

	if expected != "" && viaAPI == "" && domStr == "" && attrValue == "" {
		return Result{Success: false, Message: "empty read-back for non-empty expected value", Methods: methods}
	}

	res := Result{Methods: methods}
	res.Success = res.passedCount() >= 2
	if res.Success {
		res.Message = "fill confirmed"
	} else {
		res.Message = "fill not confirmed by at least two methods"
	}
	return res
}

// domHash derives a cheap structural fingerprint: counts of
// anchors/buttons/inputs plus a hash of the first 1000 body-text
// characters (spec.md §4.6).
func domHash(page driver.Page, ctx context.Context) (string, error) {
	raw, err := page.Evaluate(ctx, `(() => {
		const count = (s) => document.querySelectorAll(s).length;
		const text = (document.body ? document.body.innerText : '').slice(0, 1000);
		return count('a') + ':' + count('button') + ':' + count('input') + ':' + text;
	})()`, nil)
	if err != nil {
		return "", err
	}
	s, _ := raw.(string)
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

// PostValidateClick requires at least one of {URL changed, DOM hash
// changed, element state changed, element removed} within a settle
// window (spec.md §4.6).
func (v *Validator) PostValidateClick(ctx context.Context, page driver.Page, el driver.Element, urlBefore, domHashBefore string) Result {
	time.Sleep(settleWindow)

	var methods []MethodResult

	urlChanged := page.URL() != urlBefore
	methods = append(methods, MethodResult{"url_changed", urlChanged})

	hashAfter, err := domHash(page, ctx)
	hashChanged := err == nil && hashAfter != domHashBefore
	methods = append(methods, MethodResult{"dom_hash_changed", hashChanged})

	stateChanged := v.elementStateChanged(ctx, el)
	methods = append(methods, MethodResult{"state_changed", stateChanged})

	removed := v.elementRemoved(ctx, el)
	methods = append(methods, MethodResult{"element_removed", removed})

	res := Result{Methods: methods}
	res.Success = res.passedCount() >= 1
	if res.Success {
		res.Message = "click effect confirmed"
	} else {
		res.Message = "no observable effect after click"
	}
	return res
}

func (v *Validator) elementStateChanged(ctx context.Context, el driver.Element) bool {
	enabled, err := el.IsEnabled(ctx)
	if err != nil {
		return false
	}
	if !enabled {
		return true
	}
	class, _ := el.GetAttribute(ctx, "class")
	return strings.Contains(class, "active") || strings.Contains(class, "selected")
}

func (v *Validator) elementRemoved(ctx context.Context, el driver.Element) bool {
	visible, err := el.IsVisible(ctx)
	if err != nil {
		return true
	}
	return !visible
}

// PostValidateNavigate checks the current URL against expected by
// exact match, then substring containment after stripping "www." and
// trailing slash, then domain match (spec.md §4.6).
func (v *Validator) PostValidateNavigate(page driver.Page, expected string) Result {
	actual := page.URL()
	normalize := func(u string) string {
		u = strings.TrimPrefix(u, "https://")
		u = strings.TrimPrefix(u, "http://")
		u = strings.TrimPrefix(u, "www.")
		return strings.TrimSuffix(u, "/")
	}
	normActual, normExpected := normalize(actual), normalize(expected)

	exact := normActual == normExpected
	contains := strings.Contains(normActual, normExpected) || strings.Contains(normExpected, normActual)
	domainMatch := strings.SplitN(normActual, "/", 2)[0] == strings.SplitN(normExpected, "/", 2)[0]

	methods := []MethodResult{
		{"exact_url_match", exact},
		{"substring_match", contains},
		{"domain_match", domainMatch},
	}
	success := exact || contains || domainMatch
	msg := "navigation confirmed"
	if !success {
		msg = "navigated url does not match expected"
	}
	return Result{Success: success, Message: msg, Methods: methods}
}

// PostValidateSelect checks the selected value or its visible text
// against expected (spec.md §4.6).
func (v *Validator) PostValidateSelect(ctx context.Context, el driver.Element, expected string) Result {
	value, _ := el.GetAttribute(ctx, "value")
	text, _ := el.TextContent(ctx)

	valueMatch := value == expected
	textMatch := strings.Contains(strings.ToLower(text), strings.ToLower(expected))

	methods := []MethodResult{
		{"value_match", valueMatch},
		{"text_match", textMatch},
	}
	success := valueMatch || textMatch
	msg := "select confirmed"
	if !success {
		msg = "selected option does not match expected"
	}
	return Result{Success: success, Message: msg, Methods: methods}
}

// DOMHash exposes domHash for callers that need a before/after snapshot
// (the Adaptive Engine captures one prior to dispatching a click).
func DOMHash(ctx context.Context, page driver.Page) (string, error) {
	return domHash(page, ctx)
}

// ErrOf converts a failed Result into the model.ErrValidationFailed
// sentinel, wrapped with the message for callers that need an error
// rather than a Result.
func ErrOf(r Result) error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%s: %w", r.Message, model.ErrValidationFailed)
}
