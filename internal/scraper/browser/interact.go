package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by mandatory waits when no strategy matched.
var ErrNotFound = errors.New("no locator strategy matched")

// Interactor holds the page-interaction primitives shared by scrapers.
type Interactor struct {
	settings
}

func NewInteractor(opts ...Option) *Interactor {
	return &Interactor{settings: newSettings(opts)}
}

// Settle pauses for the configured settle period.
func (in *Interactor) Settle(ctx context.Context) error {
	return in.sleep(ctx, in.settle)
}

// bounded limits one DOM action to the configured action timeout.
func (in *Interactor) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, in.action)
}

// Sleep pauses for d using the configured Sleeper.
func (in *Interactor) Sleep(ctx context.Context, d time.Duration) error {
	return in.sleep(ctx, d)
}

// WaitForAny polls chain until one strategy yields a visible element or
// timeout elapses. When nothing matched it returns (nil, nil), or ErrNotFound
// when mandatory is set. Cancellation of ctx is always returned.
func (in *Interactor) WaitForAny(ctx context.Context, root Finder, chain Chain, timeout time.Duration, mandatory bool) (Element, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := int(timeout / in.poll)
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if el, s := chain.First(wctx, root); el != nil {
			in.log.Debug("wait: matched", zap.Stringer("strategy", s))
			return el, nil
		}
		if err := in.sleep(wctx, in.poll); err != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mandatory {
		return nil, fmt.Errorf("%w: %s within %s", ErrNotFound, chain, timeout)
	}
	in.log.Debug("wait: nothing matched", zap.Stringer("chain", chain), zap.Duration("timeout", timeout))
	return nil, nil
}
