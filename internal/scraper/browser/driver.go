// Package browser provides utilities for browser automation with Rod.
//
// Scrapers talk to the browser through the Page and Element interfaces so the
// same flows run against a real Chromium (RodPage) and against the in-memory
// fake in browsertest.
package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/ysmood/gson"
)

// Finder is anything elements can be searched from: a page or an element.
type Finder interface {
	// Elements returns every element currently matching the CSS selector,
	// without waiting. No match is an empty slice, not an error.
	Elements(ctx context.Context, selector string) ([]Element, error)
}

type Page interface {
	Finder

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// Eval runs a JS function expression with args and returns its JSON value.
	Eval(ctx context.Context, js string, args ...any) (gson.JSON, error)

	// WaitStable waits until the DOM stops changing for d.
	WaitStable(ctx context.Context, d time.Duration) error

	MouseMove(ctx context.Context, x, y float64, steps int) error
	MouseClick(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Viewport() (width, height int)
}

type Element interface {
	Finder

	Visible(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Focus(ctx context.Context) error
	Clear(ctx context.Context) error
	Press(ctx context.Context, key input.Key) error
	// InsertText types text into the focused element without key events.
	InsertText(ctx context.Context, text string) error
	ScrollIntoView(ctx context.Context) error

	// Eval runs a JS function expression with `this` bound to the element.
	Eval(ctx context.Context, js string, args ...any) (gson.JSON, error)
}

// Outcome is the result of a best-effort operation. Best-effort operations
// report an Outcome instead of an error so that ignoring a failure is an
// explicit choice of the caller.
type Outcome int

const (
	Succeeded Outcome = iota
	NotFound
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case NotFound:
		return "not_found"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Sleeper pauses the calling flow. It returns early with the context error
// when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep returns immediately. Tests and replay runs use it.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
