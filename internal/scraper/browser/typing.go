package browser

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/go-rod/rod/lib/input"
	"go.uber.org/zap"
)

const typoAlphabet = "qwertyuiopasdfghjklzxcvbnm"

// Type focuses el, clears it and types text one key event per character.
// Delays grow after separators and digit/letter switches; a small share of
// keystrokes are preceded by a corrected typo or a hesitation pause.
// The typed text is never logged.
func (h *Human) Type(ctx context.Context, el Element, text string) Outcome {
	if err := h.typeInto(ctx, el, text); err != nil {
		h.log.Warn("human: typing failed", zap.Int("length", len([]rune(text))), zap.Error(err))
		return Skipped
	}
	return Succeeded
}

func (h *Human) typeInto(ctx context.Context, el Element, text string) error {
	cctx, cancel := context.WithTimeout(ctx, h.action)
	err := el.Click(cctx)
	cancel()
	if err != nil {
		if ferr := el.Focus(ctx); ferr != nil {
			return fmt.Errorf("focus field: %w", ferr)
		}
	}
	if err := h.Pause(ctx, 300*time.Millisecond, 500*time.Millisecond); err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("clear field: %w", err)
	}
	if err := h.Pause(ctx, 100*time.Millisecond, 300*time.Millisecond); err != nil {
		return err
	}

	if h.fastTyping {
		return TypeFast(ctx, el, text)
	}

	var prev rune
	for _, r := range text {
		if h.rng.Float64() < h.typoRate {
			if err := h.typo(ctx, el); err != nil {
				return err
			}
		}

		if err := pressRune(ctx, el, r); err != nil {
			return fmt.Errorf("press key: %w", err)
		}
		if err := h.sleep(ctx, keystrokeDelay(h.rng, prev, r)); err != nil {
			return err
		}

		if h.rng.Float64() < h.pauseRate {
			if err := h.Pause(ctx, 300*time.Millisecond, 800*time.Millisecond); err != nil {
				return err
			}
		}
		prev = r
	}
	return nil
}

// typo types a wrong letter, notices it, and erases it.
func (h *Human) typo(ctx context.Context, el Element) error {
	wrong := rune(typoAlphabet[h.rng.Intn(len(typoAlphabet))])
	if err := el.Press(ctx, input.Key(wrong)); err != nil {
		return fmt.Errorf("press key: %w", err)
	}
	if err := h.Pause(ctx, 400*time.Millisecond, 500*time.Millisecond); err != nil {
		return err
	}
	if err := el.Press(ctx, input.Backspace); err != nil {
		return fmt.Errorf("press backspace: %w", err)
	}
	return h.Pause(ctx, 200*time.Millisecond, 400*time.Millisecond)
}

// keystrokeDelay is the wait after typing cur, given the previous rune.
func keystrokeDelay(rng *rand.Rand, prev, cur rune) time.Duration {
	base := float64(200 + rng.Intn(351))

	switch {
	case strings.ContainsRune(". -", prev) && prev != 0:
		base *= 1.5
	case prev != 0 && isAlnum(prev) && isAlnum(cur) && unicode.IsDigit(prev) != unicode.IsDigit(cur):
		base *= 1.3
	}
	if prev == cur {
		base *= 0.8
	}

	base *= 0.8 + rng.Float64()*0.5
	return time.Duration(base) * time.Millisecond
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// TypeFast types text quickly without delays.
// Useful for tests and replay mode where speed matters more than human simulation.
// Still triggers proper keyboard events (keydown/keyup) for each character.
func TypeFast(ctx context.Context, el Element, text string) error {
	for _, r := range text {
		if err := pressRune(ctx, el, r); err != nil {
			return err
		}
	}
	return nil
}

// pressRune sends r as a key press, or inserts it as text when the keyboard
// layout has no key for it (ñ, á and the like).
func pressRune(ctx context.Context, el Element, r rune) error {
	if !HasKey(input.Key(r)) {
		return el.InsertText(ctx, string(r))
	}
	return el.Press(ctx, input.Key(r))
}

// HasKey reports whether rod's US keyboard layout defines key. Pressing an
// undefined key panics inside rod.
func HasKey(key input.Key) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	key.Info()
	return true
}
