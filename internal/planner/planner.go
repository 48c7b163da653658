// Package planner implements the Planner (spec.md §4.4): a single LLM
// call that turns a goal plus page snapshot into an ExecutionPlan,
// with tolerant JSON parsing and a rule-based fallback tokenizer when
// the LLM response cannot be parsed at all, grounded on the original
// implementation's engine/task_planner.py.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/llmwebagent/agent/internal/driver"
	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/internal/model"
	"github.com/llmwebagent/agent/internal/transport"
)

// maxSnapshotElements bounds the page snapshot sent to the LLM
// (spec.md §4.4: "up to 50 visible interactive elements").
const maxSnapshotElements = 50

// ElementSummary is one entry of the compact page snapshot.
type ElementSummary struct {
	Tag         string `json:"tag"`
	Text        string `json:"text,omitempty"`
	ID          string `json:"id,omitempty"`
	TestID      string `json:"testid,omitempty"`
	Role        string `json:"role,omitempty"`
	AriaLabel   string `json:"aria_label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Snapshot is the compact page summary submitted alongside the goal.
type Snapshot struct {
	Elements        []ElementSummary
	TestIDDensity   bool
	AriaLabelDensity bool
}

// Planner produces an ExecutionPlan from a goal and live page.
type Planner struct {
	transport transport.Transport
	model     string
	logger    logging.Logger
}

// New builds a Planner against the given transport.
func New(tr transport.Transport, model string, logger logging.Logger) *Planner {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Planner{transport: tr, model: model, logger: logger}
}

// ExtractSnapshot extracts up to 50 visible interactive elements from
// page (spec.md §4.4 step 1). It is exported so the Engine can build
// one snapshot and share it across planning and diagnostics.
func ExtractSnapshot(ctx context.Context, page driver.Page) (Snapshot, error) {
	raw, err := page.Evaluate(ctx, snapshotScript, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("planner: extracting snapshot: %w", model.ErrDriverError)
	}
	return decodeSnapshot(raw), nil
}

const snapshotScript = `(() => {
  const interactive = Array.from(document.querySelectorAll('a,button,input,select,textarea,[role],[onclick]'))
    .filter(el => el.offsetParent !== null)
    .slice(0, 50);
  return interactive.map(el => ({
    tag: el.tagName.toLowerCase(),
    text: (el.innerText || el.value || '').slice(0, 80),
    id: el.id || '',
    testid: el.getAttribute('data-testid') || '',
    role: el.getAttribute('role') || '',
    aria_label: el.getAttribute('aria-label') || '',
    placeholder: el.getAttribute('placeholder') || '',
    type: el.getAttribute('type') || '',
    name: el.getAttribute('name') || '',
  }));
})()`

func decodeSnapshot(raw interface{}) Snapshot {
	items, _ := raw.([]interface{})
	var snap Snapshot
	for i, item := range items {
		if i >= maxSnapshotElements {
			break
		}
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		str := func(k string) string { s, _ := m[k].(string); return s }
		el := ElementSummary{
			Tag: str("tag"), Text: str("text"), ID: str("id"), TestID: str("testid"),
			Role: str("role"), AriaLabel: str("aria_label"), Placeholder: str("placeholder"),
			Type: str("type"), Name: str("name"),
		}
		if el.TestID != "" {
			snap.TestIDDensity = true
		}
		if el.AriaLabel != "" {
			snap.AriaLabelDensity = true
		}
		snap.Elements = append(snap.Elements, el)
	}
	return snap
}

// Plan calls the LLM once with a fixed prompt schema and parses its
// response into an ExecutionPlan, falling back to rule-based
// tokenization on any parse failure (spec.md §4.4).
func (p *Planner) Plan(ctx context.Context, goal string, snapshot Snapshot) (model.ExecutionPlan, error) {
	prompt := buildPrompt(goal, snapshot)

	resp, err := p.transport.Complete(ctx, transport.Request{
		Model:        p.model,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Temperature:  0.2,
		MaxTokens:    2048,
	})
	if err != nil {
		p.logger.Warn("planner: llm call failed, using rule-based fallback", map[string]interface{}{"error": err.Error()})
		return fallbackPlan(goal), nil
	}

	plan, err := parsePlan(resp.Content)
	if err != nil {
		p.logger.Warn("planner: failed to parse llm response, using rule-based fallback", map[string]interface{}{"error": err.Error()})
		return fallbackPlan(goal), nil
	}
	if len(plan.Steps) == 0 {
		return fallbackPlan(goal), nil
	}
	return plan, nil
}

// StreamingPlan is the streaming variant of Plan (spec.md §4.4's
// optional feature): it consumes tr.Stream's incremental chunks and
// emits one model.PlannedStep on the returned channel each time a
// balanced step object inside the response's top-level "steps" array
// closes, so a caller can start acting on step 0 before the LLM has
// finished generating step 1. Grounded on the SSE-callback shape of
// travel-chat-agent's sse_handler.go (emit one event per completed
// unit of streamed output), adapted from a callback interface to a
// channel pair since there is no HTTP response writer here.
func (p *Planner) StreamingPlan(ctx context.Context, goal string, snapshot Snapshot) (<-chan model.PlannedStep, <-chan error) {
	steps := make(chan model.PlannedStep)
	errs := make(chan error, 1)

	chunks, err := p.transport.Stream(ctx, transport.Request{
		Model:        p.model,
		SystemPrompt: systemPrompt,
		Prompt:       buildPrompt(goal, snapshot),
		Temperature:  0.2,
		MaxTokens:    2048,
	})
	if err != nil {
		go func() {
			errs <- fmt.Errorf("planner: streaming plan: %w", err)
			close(errs)
			close(steps)
		}()
		return steps, errs
	}

	go func() {
		defer close(steps)
		defer close(errs)

		var scanner objectScanner
		index := 0
		for chunk := range chunks {
			for _, r := range chunk.Delta {
				raw, ok := scanner.feed(r)
				if !ok {
					continue
				}
				var ws wireStep
				if err := json.Unmarshal([]byte(raw), &ws); err != nil {
					p.logger.Warn("planner: streaming plan: skipping unparseable step object", map[string]interface{}{"error": err.Error()})
					continue
				}
				step, err := buildStep(index, ws)
				if err != nil {
					p.logger.Warn("planner: streaming plan: skipping invalid step", map[string]interface{}{"error": err.Error()})
					continue
				}
				index++
				select {
				case steps <- step:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return steps, errs
}

// objectScanner accumulates runes fed one at a time and reports the raw
// JSON text of a top-level "steps" array element (depth 2 inside the
// response's root object) each time that element's closing brace is
// seen, ignoring braces that occur inside string literals.
type objectScanner struct {
	depth     int
	inString  bool
	escape    bool
	capturing bool
	buf       strings.Builder
}

func (s *objectScanner) feed(r rune) (string, bool) {
	if s.inString {
		if s.capturing {
			s.buf.WriteRune(r)
		}
		switch {
		case s.escape:
			s.escape = false
		case r == '\\':
			s.escape = true
		case r == '"':
			s.inString = false
		}
		return "", false
	}

	switch r {
	case '"':
		s.inString = true
		if s.capturing {
			s.buf.WriteRune(r)
		}
	case '{':
		s.depth++
		if s.depth == 2 {
			s.capturing = true
			s.buf.Reset()
		}
		if s.capturing {
			s.buf.WriteRune(r)
		}
	case '}':
		if s.capturing {
			s.buf.WriteRune(r)
		}
		s.depth--
		if s.depth == 1 && s.capturing {
			s.capturing = false
			return s.buf.String(), true
		}
	default:
		if s.capturing {
			s.buf.WriteRune(r)
		}
	}
	return "", false
}

const systemPrompt = `You are a web automation planner. Given a goal and a page snapshot, ` +
	`output ONLY a JSON object: {"steps":[{"action":"navigate|click|fill|type|select|hover|scroll|wait|press-key|extract",` +
	`"target":"...","value":"...","locators":[{"strategy":"testid|role|label|placeholder|text|aria|css|xpath","value":"...",` +
	`"accessible_name":"...","exact_match":false}],"wait_after":{"kind":"...","selector":"...","millis":0},"optional":false}]}`

func buildPrompt(goal string, snapshot Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nVisible elements (%d):\n", goal, len(snapshot.Elements))
	for _, el := range snapshot.Elements {
		fmt.Fprintf(&b, "- <%s> testid=%q role=%q label=%q placeholder=%q text=%q\n", el.Tag, el.TestID, el.Role, el.AriaLabel, el.Placeholder, el.Text)
	}
	return b.String()
}

type wireStep struct {
	Action    string       `json:"action"`
	Target    string       `json:"target"`
	Value     string       `json:"value"`
	Locators  []wireLocator `json:"locators"`
	WaitAfter *wireWait    `json:"wait_after"`
	Optional  bool         `json:"optional"`
}

type wireLocator struct {
	Strategy       string `json:"strategy"`
	Value          string `json:"value"`
	AccessibleName string `json:"accessible_name"`
	ExactMatch     bool   `json:"exact_match"`
}

type wireWait struct {
	Kind     string `json:"kind"`
	Selector string `json:"selector"`
	Millis   int    `json:"millis"`
}

type wirePlan struct {
	Steps         []wireStep `json:"steps"`
	FrameworkHint string     `json:"framework_hint"`
}

// stripFence tolerates a single wrapping markdown code fence (spec.md
// §4.4 step 3), grounded on task_planner.py's _parse_response.
func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx != -1 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(content, "```"); idx != -1 {
		rest := content[idx+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return content
}

// trailingCommaPattern tolerates a trailing comma before a closing
// brace/bracket, a common small-model JSON malformation.
var trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)

func parsePlan(content string) (model.ExecutionPlan, error) {
	cleaned := stripFence(content)
	cleaned = trailingCommaPattern.ReplaceAllString(cleaned, "$1")

	var wp wirePlan
	if err := json.Unmarshal([]byte(cleaned), &wp); err != nil {
		return model.ExecutionPlan{}, fmt.Errorf("planner: %w: %v", model.ErrPlanEmpty, err)
	}

	steps := make([]model.PlannedStep, 0, len(wp.Steps))
	for i, ws := range wp.Steps {
		step, err := buildStep(i, ws)
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}

	return model.ExecutionPlan{Steps: steps, FrameworkHint: wp.FrameworkHint}, nil
}

// domainLikePattern extracts a bare-domain substring from free text
// (task_planner.py's _build_step navigate-normalization regex).
var domainLikePattern = regexp.MustCompile(`\w+(?:\.\w+)+`)

func buildStep(index int, ws wireStep) (model.PlannedStep, error) {
	action := model.Action(strings.ToLower(ws.Action))
	if !action.Valid() {
		action = model.ActionClick
	}

	target := ws.Target
	value := ws.Value

	if action == model.ActionNavigate {
		switch {
		case strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://"):
			target = value
		case strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://"):
			value = target
		default:
			if m := domainLikePattern.FindString(strings.ToLower(target)); m != "" {
				target = "https://" + m
				value = target
			} else {
				return model.PlannedStep{}, fmt.Errorf("planner: step %d: navigate target %q is not a URL", index, target)
			}
		}
	}

	locators := make([]model.Locator, 0, len(ws.Locators))
	for _, wl := range ws.Locators {
		strategy := model.LocatorStrategy(strings.ToLower(wl.Strategy))
		locators = append(locators, model.Locator{
			Strategy:       strategy,
			Value:          wl.Value,
			AccessibleName: wl.AccessibleName,
			ExactMatch:     wl.ExactMatch,
		})
	}

	step := model.PlannedStep{
		ID:       fmt.Sprintf("step_%d", index),
		Action:   action,
		Target:   target,
		Value:    value,
		Locators: locators,
		Optional: ws.Optional,
	}
	if ws.WaitAfter != nil {
		step.WaitAfter = &model.WaitDirective{Kind: ws.WaitAfter.Kind, Selector: ws.WaitAfter.Selector, Millis: ws.WaitAfter.Millis}
	}
	if err := step.Validate(); err != nil {
		step.SynthesizeTextLocator()
		if err := step.Validate(); err != nil {
			return model.PlannedStep{}, fmt.Errorf("planner: step %d invalid: %w", index, err)
		}
	}
	return step, nil
}

// fallbackPlan implements the rule-based tokenizer of spec.md §4.4
// step 5 (numbered-list / newline-split / comma-split / single-step),
// grounded on task_planner.py's _parse_fallback_steps.
func fallbackPlan(goal string) model.ExecutionPlan {
	if parts := splitNumberedList(goal); len(parts) > 1 {
		return model.ExecutionPlan{Steps: stepsFromParts(parts)}
	}
	lines := splitNonEmpty(goal, "\n")
	if len(lines) > 1 {
		return model.ExecutionPlan{Steps: stepsFromParts(lines)}
	}
	parts := splitNonEmpty(goal, ",")
	if len(parts) > 1 {
		return model.ExecutionPlan{Steps: stepsFromParts(parts)}
	}
	return model.ExecutionPlan{Steps: []model.PlannedStep{parseSingleStep(0, goal)}}
}

var numberedListPattern = regexp.MustCompile(`(?m)^\s*\d+[.)]\s*(.+)$`)

func splitNumberedList(goal string) []string {
	matches := numberedListPattern.FindAllStringSubmatch(goal, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func stepsFromParts(parts []string) []model.PlannedStep {
	steps := make([]model.PlannedStep, 0, len(parts))
	for i, part := range parts {
		steps = append(steps, parseSingleStep(i, part))
	}
	return steps
}

var (
	navPattern  = regexp.MustCompile(`^(?:go\s+to|navigate\s+to|open)\s+(.+)$`)
	fillPattern = regexp.MustCompile(`^(?:enter|fill|type|input)\s+(?:(?:the\s+)?(?:value\s+)?)?["']?(.+?)["']?\s+(?:in|into|to)\s+(?:the\s+)?(.+)$`)
	clickPattern = regexp.MustCompile(`^click\s+(?:on\s+)?(?:the\s+)?(.+)$`)
)

// parseSingleStep parses one free-text instruction into a best-effort
// PlannedStep, grounded on task_planner.py's _parse_single_step.
func parseSingleStep(index int, text string) model.PlannedStep {
	lower := strings.ToLower(strings.TrimSpace(text))
	id := fmt.Sprintf("step_%d", index)

	if m := navPattern.FindStringSubmatch(lower); m != nil {
		url := strings.TrimSpace(m[1])
		if !strings.HasPrefix(url, "http") {
			url = "https://" + url
		}
		return model.PlannedStep{ID: id, Action: model.ActionNavigate, Target: url, Value: url}
	}

	if m := fillPattern.FindStringSubmatch(lower); m != nil {
		value, target := strings.Trim(m[1], `"'`), strings.TrimSpace(m[2])
		return model.PlannedStep{
			ID: id, Action: model.ActionFill, Target: target, Value: value,
			Locators: []model.Locator{
				{Strategy: model.StrategyLabel, Value: target},
				{Strategy: model.StrategyPlaceholder, Value: target},
				{Strategy: model.StrategyText, Value: target},
			},
		}
	}

	if m := clickPattern.FindStringSubmatch(lower); m != nil {
		target := strings.TrimSpace(m[1])
		return model.PlannedStep{
			ID: id, Action: model.ActionClick, Target: target,
			Locators: []model.Locator{
				{Strategy: model.StrategyRole, Value: "button", AccessibleName: target},
				{Strategy: model.StrategyText, Value: target},
			},
		}
	}

	if strings.HasPrefix(lower, "wait") {
		return model.PlannedStep{ID: id, Action: model.ActionWait, Target: text, Value: "2"}
	}

	if strings.Contains(lower, "scroll") {
		direction := "down"
		if strings.Contains(lower, "up") {
			direction = "up"
		}
		return model.PlannedStep{ID: id, Action: model.ActionScroll, Target: direction}
	}

	truncated := text
	if len(truncated) > 50 {
		truncated = truncated[:50]
	}
	return model.PlannedStep{
		ID: id, Action: model.ActionClick, Target: truncated,
		Locators: []model.Locator{{Strategy: model.StrategyText, Value: truncated}},
	}
}
