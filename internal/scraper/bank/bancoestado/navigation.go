package bancoestado

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
)

// recovery is one way of getting back to the dashboard.
type recovery struct {
	name string
	run  func(ctx context.Context, page browser.Page) error
}

func (s *Scraper) recoveries() []recovery {
	return []recovery{
		{"home_menu", s.clickHomeAndReload},
		{"navigate", s.navigateDashboard},
		{"reload", s.reload},
	}
}

// ensureDashboard makes sure the page shows the account carousel. When it
// does not, it tries one recovery per attempt and verifies each by waiting
// for the carousel.
func (s *Scraper) ensureDashboard(ctx context.Context, page browser.Page) error {
	if s.onDashboard(ctx, page) {
		return nil
	}

	strategies := s.recoveries()
	var errs []error
	for attempt := 0; attempt < s.limits.DashboardRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		r := strategies[attempt%len(strategies)]
		if err := r.run(ctx, page); err != nil {
			s.log.Debug("dashboard: recovery failed", zap.String("strategy", r.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}

		el, err := s.in.WaitForAny(ctx, page, browser.CSSChain(SelectorCarousel), s.timeouts.Selector, false)
		if err != nil {
			return err
		}
		if el != nil {
			s.log.Debug("dashboard: recovered", zap.String("strategy", r.name), zap.Int("attempt", attempt+1))
			if err := s.in.Settle(ctx); err != nil {
				s.log.Debug("dashboard: settle interrupted", zap.Error(err))
			}
			return nil
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", bank.ErrDashboardUnreachable, s.limits.DashboardRetries, errors.Join(errs...))
}

func (s *Scraper) onDashboard(ctx context.Context, page browser.Page) bool {
	el, _ := browser.CSSChain(SelectorCarousel).First(ctx, page)
	return el != nil
}

func (s *Scraper) clickHomeAndReload(ctx context.Context, page browser.Page) error {
	home, _ := homeChain.First(ctx, page)
	if home == nil {
		return errors.New("home menu entry not visible")
	}
	if _, err := s.in.Click(ctx, home, browser.ClickUI, browser.ClickScript); err != nil {
		return err
	}
	return s.reload(ctx, page)
}

func (s *Scraper) navigateDashboard(ctx context.Context, page browser.Page) error {
	nctx, cancel := context.WithTimeout(ctx, s.timeouts.Navigation)
	defer cancel()
	if err := page.Navigate(nctx, s.homeURL); err != nil {
		return err
	}
	return page.WaitStable(nctx, stableWindow)
}

func (s *Scraper) reload(ctx context.Context, page browser.Page) error {
	nctx, cancel := context.WithTimeout(ctx, s.timeouts.Navigation)
	defer cancel()
	if err := page.Reload(nctx); err != nil {
		return err
	}
	return page.WaitStable(nctx, stableWindow)
}
