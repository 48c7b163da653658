// Package driver defines the browser abstraction (spec.md §6): the
// core never talks to a real browser directly, only through this
// interface, so the engine can be driven by a real automation driver
// in production and an in-memory fake (internal/driver/fake) in tests.
package driver

import (
	"context"
	"time"
)

// LoadState names a page readiness milestone passed to WaitForLoadState.
type LoadState string

const (
	LoadStateLoad          LoadState = "load"
	LoadStateDOMContent    LoadState = "dom-content-loaded"
	LoadStateNetworkIdle   LoadState = "network-idle"
)

// VisibilityState names the target condition for WaitForSelector.
type VisibilityState string

const (
	StateVisible VisibilityState = "visible"
	StateHidden  VisibilityState = "hidden"
	StateAttached VisibilityState = "attached"
	StateDetached VisibilityState = "detached"
)

// BoundingBox is an element's viewport-relative rectangle.
type BoundingBox struct {
	X, Y, Width, Height float64
}

// Keyboard sends key events to the page's currently focused element.
type Keyboard interface {
	Press(ctx context.Context, key string) error
}

// Page is the browser-tab abstraction every engine component drives
// through. Every method suspends (spec.md §6) and must respect ctx
// cancellation.
type Page interface {
	URL() string
	Title(ctx context.Context) (string, error)

	Goto(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error

	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	WaitForSelector(ctx context.Context, selector string, state VisibilityState, timeout time.Duration) (Element, error)
	WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error

	Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Keyboard() Keyboard

	// Accessibility-first locator primitives (spec.md §6).
	GetByTestID(ctx context.Context, id string) (Element, error)
	GetByRole(ctx context.Context, role, name string) (Element, error)
	GetByLabel(ctx context.Context, label string) (Element, error)
	GetByPlaceholder(ctx context.Context, placeholder string) (Element, error)
	GetByText(ctx context.Context, text string, exact bool) (Element, error)
	Locator(ctx context.Context, selector string) (Element, error)
}

// Element is a bound handle to a single DOM node.
type Element interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Type(ctx context.Context, value string) error
	SelectOption(ctx context.Context, value string) error
	Hover(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	WaitFor(ctx context.Context, state VisibilityState, timeout time.Duration) error

	TextContent(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)
	GetAttribute(ctx context.Context, name string) (string, error)

	IsVisible(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	BoundingBox(ctx context.Context) (*BoundingBox, error)
	Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error)
}
