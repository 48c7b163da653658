// Package fake provides an in-memory driver.Page implementation for
// testing the engine without a real browser, grounded on the same
// "drive everything through one small interface" shape the teacher
// uses for its AI provider/registry abstractions.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/llmwebagent/agent/internal/driver"
)

// Node is one element in the fake DOM tree.
type Node struct {
	TestID      string
	Role        string
	Name        string // accessible name, used by GetByRole
	Label       string
	Placeholder string
	Text        string
	Tag         string
	Attrs       map[string]string

	Visible bool
	Enabled bool
	Value   string // current input value

	Box driver.BoundingBox

	// FillNoOps simulates a driver whose fill silently does nothing.
	FillNoOps bool

	// FailFillCount makes Fill return a transient "timed out" error this
	// many times before it starts succeeding, for exercising Error
	// Recovery's timeout ladder across real retries.
	FailFillCount int

	// ClickNavigatesTo, if set, updates the owning Page's URL when this
	// node is clicked, simulating an SPA route change so click
	// post-validation observes a real effect.
	ClickNavigatesTo string
}

// Page is an in-memory fake.Page. Tests construct a Page, seed it with
// Nodes, and optionally inject errors per selector/operation.
type Page struct {
	mu sync.Mutex

	url   string
	title string

	// RawHTML backs the document.documentElement.outerHTML evaluate
	// call the Site Profiler's cold-start fingerprint fallback issues.
	RawHTML string

	nodes []*Node

	// Errs maps an operation key (e.g. "goto", "click:submit", where
	// "submit" is the node's TestID, or else its id attribute) to an
	// error to return instead of succeeding, for exercising recovery.
	Errs map[string]error

	ClickCount map[string]int
}

// NewPage builds an empty fake page at url.
func NewPage(url, title string) *Page {
	return &Page{url: url, title: title, Errs: map[string]error{}, ClickCount: map[string]int{}}
}

// AddNode registers a node for locator matching.
func (p *Page) AddNode(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = append(p.nodes, n)
}

func (p *Page) URL() string { return p.url }

func (p *Page) Title(ctx context.Context) (string, error) { return p.title, nil }

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := p.errFor("goto"); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *Page) Reload(ctx context.Context) error     { return p.errFor("reload") }
func (p *Page) GoBack(ctx context.Context) error      { return p.errFor("goBack") }
func (p *Page) GoForward(ctx context.Context) error   { return p.errFor("goForward") }

func (p *Page) errFor(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Errs[key]
}

func (p *Page) find(match func(*Node) bool) *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.nodes {
		if match(n) {
			return n
		}
	}
	return nil
}

func (p *Page) findAll(match func(*Node) bool) []*Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Node
	for _, n := range p.nodes {
		if match(n) {
			out = append(out, n)
		}
	}
	return out
}

func (p *Page) QuerySelector(ctx context.Context, selector string) (driver.Element, error) {
	if err := p.errFor("query:" + selector); err != nil {
		return nil, err
	}
	n := p.find(func(n *Node) bool { return matchesCSS(n, selector) })
	if n == nil {
		return nil, fmt.Errorf("fake: no element matches selector %q", selector)
	}
	return &element{page: p, node: n}, nil
}

func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]driver.Element, error) {
	nodes := p.findAll(func(n *Node) bool { return matchesCSS(n, selector) })
	out := make([]driver.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{page: p, node: n})
	}
	return out, nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, state driver.VisibilityState, timeout time.Duration) (driver.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		n := p.find(func(n *Node) bool { return matchesCSS(n, selector) })
		if n != nil {
			if state == driver.StateVisible && !n.Visible {
				// keep waiting
			} else {
				return &element{page: p, node: n}, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("fake: timed out waiting for selector %q", selector)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (p *Page) WaitForLoadState(ctx context.Context, state driver.LoadState, timeout time.Duration) error {
	return p.errFor("waitForLoadState")
}

func (p *Page) Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error) {
	if err := p.errFor("evaluate"); err != nil {
		return nil, err
	}
	if strings.Contains(script, "outerHTML") {
		p.mu.Lock()
		html := p.RawHTML
		p.mu.Unlock()
		if html != "" {
			return html, nil
		}
	}
	return nil, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) { return []byte("fake-screenshot"), nil }

func (p *Page) Keyboard() driver.Keyboard { return fakeKeyboard{} }

type fakeKeyboard struct{}

func (fakeKeyboard) Press(ctx context.Context, key string) error { return nil }

func (p *Page) GetByTestID(ctx context.Context, id string) (driver.Element, error) {
	n := p.find(func(n *Node) bool { return n.TestID == id })
	if n == nil {
		return nil, fmt.Errorf("fake: no element with test id %q", id)
	}
	return &element{page: p, node: n}, nil
}

func (p *Page) GetByRole(ctx context.Context, role, name string) (driver.Element, error) {
	n := p.find(func(n *Node) bool { return n.Role == role && (name == "" || n.Name == name) })
	if n == nil {
		return nil, fmt.Errorf("fake: no element with role %q name %q", role, name)
	}
	return &element{page: p, node: n}, nil
}

func (p *Page) GetByLabel(ctx context.Context, label string) (driver.Element, error) {
	n := p.find(func(n *Node) bool { return n.Label == label })
	if n == nil {
		return nil, fmt.Errorf("fake: no element with label %q", label)
	}
	return &element{page: p, node: n}, nil
}

func (p *Page) GetByPlaceholder(ctx context.Context, placeholder string) (driver.Element, error) {
	n := p.find(func(n *Node) bool { return n.Placeholder == placeholder })
	if n == nil {
		return nil, fmt.Errorf("fake: no element with placeholder %q", placeholder)
	}
	return &element{page: p, node: n}, nil
}

func (p *Page) GetByText(ctx context.Context, text string, exact bool) (driver.Element, error) {
	n := p.find(func(n *Node) bool {
		if exact {
			return n.Text == text
		}
		return strings.Contains(strings.ToLower(n.Text), strings.ToLower(text))
	})
	if n == nil {
		return nil, fmt.Errorf("fake: no element with text %q", text)
	}
	return &element{page: p, node: n}, nil
}

func (p *Page) Locator(ctx context.Context, selector string) (driver.Element, error) {
	return p.QuerySelector(ctx, selector)
}

// matchesCSS supports a tiny subset of CSS used by tests: "#id",
// ".class" (via Attrs["class"]), and "tag".
func matchesCSS(n *Node, selector string) bool {
	switch {
	case strings.HasPrefix(selector, "#"):
		return n.Attrs["id"] == strings.TrimPrefix(selector, "#")
	case strings.HasPrefix(selector, "."):
		class := strings.TrimPrefix(selector, ".")
		return strings.Contains(" "+n.Attrs["class"]+" ", " "+class+" ")
	default:
		return n.Tag == selector
	}
}

type element struct {
	page *Page
	node *Node
}

func (e *element) key(op string) string {
	id := e.node.TestID
	if id == "" {
		id = e.node.Attrs["id"]
	}
	return op + ":" + id
}

func (e *element) Click(ctx context.Context) error {
	if err := e.page.errFor(e.key("click")); err != nil {
		return err
	}
	e.page.mu.Lock()
	e.page.ClickCount[e.key("click")]++
	if e.node.ClickNavigatesTo != "" {
		e.page.url = e.node.ClickNavigatesTo
	}
	e.page.mu.Unlock()
	return nil
}

func (e *element) Fill(ctx context.Context, value string) error {
	if err := e.page.errFor(e.key("fill")); err != nil {
		return err
	}
	if e.node.FailFillCount > 0 {
		e.node.FailFillCount--
		return fmt.Errorf("fill timed out waiting for input to settle")
	}
	if e.node.FillNoOps {
		return nil
	}
	e.node.Value = value
	return nil
}

func (e *element) Type(ctx context.Context, value string) error {
	if err := e.page.errFor(e.key("type")); err != nil {
		return err
	}
	if e.node.FillNoOps {
		return nil
	}
	e.node.Value += value
	return nil
}

func (e *element) SelectOption(ctx context.Context, value string) error {
	if err := e.page.errFor(e.key("select")); err != nil {
		return err
	}
	e.node.Value = value
	return nil
}

func (e *element) Hover(ctx context.Context) error          { return nil }
func (e *element) ScrollIntoView(ctx context.Context) error { return nil }

func (e *element) WaitFor(ctx context.Context, state driver.VisibilityState, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if state == driver.StateVisible && e.node.Visible {
			return nil
		}
		if state == driver.StateHidden && !e.node.Visible {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fake: element did not reach state %q", state)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (e *element) TextContent(ctx context.Context) (string, error) { return e.node.Text, nil }
func (e *element) InnerHTML(ctx context.Context) (string, error)   { return e.node.Text, nil }

func (e *element) GetAttribute(ctx context.Context, name string) (string, error) {
	if name == "value" {
		return e.node.Value, nil
	}
	return e.node.Attrs[name], nil
}

func (e *element) IsVisible(ctx context.Context) (bool, error) { return e.node.Visible, nil }
func (e *element) IsEnabled(ctx context.Context) (bool, error) { return e.node.Enabled, nil }

func (e *element) BoundingBox(ctx context.Context) (*driver.BoundingBox, error) {
	box := e.node.Box
	return &box, nil
}

func (e *element) Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error) {
	return e.node.Value, nil
}
