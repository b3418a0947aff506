package browser

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const scrollByJS = `(dy) => { window.scrollBy(0, dy); return window.scrollY; }`

// Human emits pointer, scroll and keyboard activity with human-like jitter.
// Everything it does is best effort: failures are logged, never returned.
// A Human is not safe for concurrent use.
type Human struct {
	settings
}

func NewHuman(opts ...Option) *Human {
	return &Human{settings: newSettings(opts)}
}

// Idle moves the mouse around and scrolls a bit.
func (h *Human) Idle(ctx context.Context, page Page) {
	h.MoveMouse(ctx, page)
	h.Scroll(ctx, page)
}

// MoveMouse performs 3-6 linear moves to random points of the viewport and
// occasionally clicks where it lands.
func (h *Human) MoveMouse(ctx context.Context, page Page) Outcome {
	w, ht := page.Viewport()
	if w <= 200 || ht <= 200 {
		return Skipped
	}

	moves := 3 + h.rng.Intn(4)
	for i := 0; i < moves; i++ {
		x := 100 + h.rng.Float64()*float64(w-200)
		y := 100 + h.rng.Float64()*float64(ht-200)
		steps := 5 + h.rng.Intn(6)

		if err := page.MouseMove(ctx, x, y, steps); err != nil {
			h.log.Debug("human: mouse move failed", zap.Error(err))
			return Skipped
		}

		if h.rng.Float64() < h.idleClickRate {
			if err := page.MouseClick(ctx); err != nil {
				h.log.Debug("human: idle click failed", zap.Error(err))
			}
		}

		if err := h.Pause(ctx, 100*time.Millisecond, 300*time.Millisecond); err != nil {
			return Skipped
		}
	}
	return Succeeded
}

// Scroll scrolls the window down by 100-300px and back.
func (h *Human) Scroll(ctx context.Context, page Page) Outcome {
	dy := 100 + h.rng.Intn(201)

	if _, err := page.Eval(ctx, scrollByJS, dy); err != nil {
		h.log.Debug("human: scroll failed", zap.Error(err))
		return Skipped
	}
	if err := h.Pause(ctx, 300*time.Millisecond, 700*time.Millisecond); err != nil {
		return Skipped
	}
	if _, err := page.Eval(ctx, scrollByJS, -dy); err != nil {
		h.log.Debug("human: scroll back failed", zap.Error(err))
		return Skipped
	}
	return Succeeded
}

// Pause sleeps for a uniform duration in [lo, hi].
func (h *Human) Pause(ctx context.Context, lo, hi time.Duration) error {
	return h.sleep(ctx, h.between(lo, hi))
}

func (h *Human) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(h.rng.Int63n(int64(hi-lo)+1))
}
