package browser

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	// ScriptClickJS invokes the element's own click().
	ScriptClickJS = `() => { this.click(); return true; }`

	// DispatchClickJS fires a synthetic click and, when the element belongs
	// to a form, a synthetic submit.
	DispatchClickJS = `() => {
	this.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true, view: window}));
	const form = this.form || this.closest('form');
	if (form) {
		form.dispatchEvent(new Event('submit', {bubbles: true, cancelable: true}));
	}
	return true;
}`
)

// Clickable is one way of activating an element.
type Clickable interface {
	Name() string
	Activate(ctx context.Context, el Element) error
}

type uiClick struct{}

func (uiClick) Name() string { return "ui" }

func (uiClick) Activate(ctx context.Context, el Element) error {
	_ = el.ScrollIntoView(ctx)
	return el.Click(ctx)
}

type scriptClick struct{}

func (scriptClick) Name() string { return "script" }

func (scriptClick) Activate(ctx context.Context, el Element) error {
	_, err := el.Eval(ctx, ScriptClickJS)
	return err
}

type dispatchClick struct{}

func (dispatchClick) Name() string { return "dispatch" }

func (dispatchClick) Activate(ctx context.Context, el Element) error {
	_, err := el.Eval(ctx, DispatchClickJS)
	return err
}

var (
	// ClickUI is a real pointer click, which overlays and timing races can
	// intercept.
	ClickUI Clickable = uiClick{}
	// ClickScript calls element.click() from the page.
	ClickScript Clickable = scriptClick{}
	// ClickDispatch dispatches synthetic click and submit events.
	ClickDispatch Clickable = dispatchClick{}
)

// EscalatingClicks is the full ladder: UI, then script, then dispatch.
func EscalatingClicks() []Clickable {
	return []Clickable{ClickUI, ClickScript, ClickDispatch}
}

// Click runs the ladder in order and stops at the first strategy that does
// not fail. Each strategy gets the action timeout; one that runs out of time
// counts as failed. It returns the strategy that worked, or every failure
// joined.
func (in *Interactor) Click(ctx context.Context, el Element, ladder ...Clickable) (Clickable, error) {
	if len(ladder) == 0 {
		ladder = []Clickable{ClickUI, ClickScript}
	}

	var errs []error
	for _, c := range ladder {
		actx, cancel := in.bounded(ctx)
		err := c.Activate(actx, el)
		cancel()
		if err == nil {
			in.log.Debug("click: activated", zap.String("strategy", c.Name()))
			return c, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		in.log.Debug("click: strategy failed", zap.String("strategy", c.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s click: %w", c.Name(), err))
	}
	return nil, errors.Join(errs...)
}
