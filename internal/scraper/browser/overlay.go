package browser

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OverlayRules describes the modals and sidebars of one portal.
type OverlayRules struct {
	// CloseButtons are clicked in bulk by a script, when rendered.
	CloseButtons string
	// Targeted selectors are tried one by one with real clicks.
	Targeted []string
	// GenericClose buttons are clicked when inside one of Containers.
	GenericClose string
	Containers   string
}

const bulkCloseJS = `(sel) => {
	let n = 0;
	document.querySelectorAll(sel).forEach((b) => {
		if (b.offsetParent === null) return;
		try { b.click(); n++; } catch (e) {}
	});
	return n;
}`

const containedCloseJS = `(sel, containers) => {
	let n = 0;
	document.querySelectorAll(sel).forEach((b) => {
		if (b.offsetParent === null || !b.closest(containers)) return;
		try { b.click(); n++; } catch (e) {}
	});
	return n;
}`

// DismissOverlays closes whatever modal, promo or sidebar is covering the
// page: a scripted bulk click first, then each targeted selector, then any
// close button inside a dialog-like container. It reports Succeeded when at
// least one overlay was closed and NotFound otherwise. Failures are logged.
func (in *Interactor) DismissOverlays(ctx context.Context, page Page, rules OverlayRules) Outcome {
	closed := 0

	if rules.CloseButtons != "" {
		actx, cancel := in.bounded(ctx)
		res, err := page.Eval(actx, bulkCloseJS, rules.CloseButtons)
		cancel()
		if err != nil {
			in.log.Debug("overlay: bulk close failed", zap.Error(err))
		} else {
			closed += res.Int()
		}
	}

	for _, sel := range rules.Targeted {
		if ctx.Err() != nil {
			break
		}
		actx, cancel := in.bounded(ctx)
		els, err := CSS(sel).Locate(actx, page)
		cancel()
		if err != nil {
			continue
		}
		for _, el := range els {
			if _, err := in.Click(ctx, el, ClickUI, ClickScript); err != nil {
				in.log.Debug("overlay: close failed", zap.String("selector", sel), zap.Error(err))
				continue
			}
			closed++
			_ = in.sleep(ctx, 300*time.Millisecond)
		}
	}

	if rules.GenericClose != "" && rules.Containers != "" {
		actx, cancel := in.bounded(ctx)
		res, err := page.Eval(actx, containedCloseJS, rules.GenericClose, rules.Containers)
		cancel()
		if err != nil {
			in.log.Debug("overlay: generic close failed", zap.Error(err))
		} else {
			closed += res.Int()
		}
	}

	if closed == 0 {
		return NotFound
	}
	in.log.Debug("overlay: dismissed", zap.Int("count", closed))
	return Succeeded
}
