package bancoestado

import (
	"context"

	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
)

// ExtractAccounts walks the product carousel and returns every account card
// once, in the order first seen. When no structured card is found it falls
// back to scanning card-like blocks of the whole page.
func (s *Scraper) ExtractAccounts(ctx context.Context, session *bank.Session) ([]bank.Account, error) {
	page, err := s.sessionPage(session)
	if err != nil {
		return nil, s.fail("ExtractAccounts", err, "")
	}

	s.in.DismissOverlays(ctx, page, Overlays)

	if el, err := s.in.WaitForAny(ctx, page, carouselChain, s.timeouts.Selector, false); err != nil {
		return nil, s.fail("ExtractAccounts", err, "")
	} else if el == nil {
		s.log.Warn("accounts: carousel not found, scanning cards anyway")
	}

	if outcome := s.in.RevealBalances(ctx, page, Balances); outcome != browser.Succeeded {
		s.log.Warn("accounts: balances may be masked, precision degraded", zap.Stringer("outcome", outcome))
	}

	set := bank.NewAccountSet()
	s.walkCarousel(ctx, page, func(slide int, cards []browser.Element) bool {
		added := 0
		for _, card := range cards {
			html, err := card.HTML(ctx)
			if err != nil {
				s.log.Debug("accounts: read card failed", zap.Error(err))
				continue
			}
			acc, ok := ParseCard(html)
			if !ok {
				continue
			}
			if set.Add(acc) {
				added++
				s.log.Info("accounts: found",
					zap.Int("n", set.Len()),
					zap.String("label", acc.Label),
					zap.String("number", bank.MaskIdentity(acc.Number)))
			}
		}
		// A slide that shows nothing new means the carousel wrapped around.
		return added > 0 || slide == 0
	})

	if set.Len() == 0 {
		s.log.Warn("accounts: no structured cards, trying fallback scan")
		if html, err := page.HTML(ctx); err == nil {
			for _, acc := range ParseFallbackAccounts(html) {
				set.Add(acc)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, s.fail("ExtractAccounts", err, "")
	}
	if set.Len() == 0 {
		s.artifacts.Capture(ctx, page, "accounts_none")
		return nil, s.fail("ExtractAccounts", bank.ErrNoAccountsFound, "no cards after structured and fallback extraction")
	}

	s.log.Info("accounts: extracted", zap.Int("count", set.Len()))
	return set.Accounts(), nil
}

// walkCarousel calls visit with the visible cards of each slide, advancing
// with the carousel's next control until visit returns false, the control
// is gone or the slide limit is reached.
func (s *Scraper) walkCarousel(ctx context.Context, page browser.Page, visit func(slide int, cards []browser.Element) bool) {
	for slide := 0; slide < s.limits.CarouselSlides; slide++ {
		if ctx.Err() != nil {
			return
		}

		cards, strategy := cardChain.All(ctx, page)
		if len(cards) == 0 {
			s.log.Debug("carousel: no cards visible", zap.Int("slide", slide))
			return
		}
		s.log.Debug("carousel: slide", zap.Int("slide", slide), zap.Int("cards", len(cards)), zap.Stringer("selector", strategy))

		if !visit(slide, cards) {
			return
		}

		next, _ := carouselNextChain.First(ctx, page)
		if next == nil {
			return
		}
		if _, err := s.in.Click(ctx, next, browser.ClickUI, browser.ClickScript); err != nil {
			s.log.Debug("carousel: advance failed", zap.Error(err))
			return
		}
		if err := s.in.Settle(ctx); err != nil {
			return
		}
	}
}

// rewindCarousel steps back with the carousel's previous control until it is
// gone or disabled, leaving the first slide in view.
func (s *Scraper) rewindCarousel(ctx context.Context, page browser.Page) {
	for i := 0; i < s.limits.CarouselSlides; i++ {
		prev, _ := carouselPrevChain.First(ctx, page)
		if prev == nil {
			return
		}
		if _, err := s.in.Click(ctx, prev, browser.ClickUI, browser.ClickScript); err != nil {
			s.log.Debug("carousel: rewind failed", zap.Error(err))
			return
		}
		if err := s.in.Settle(ctx); err != nil {
			return
		}
	}
}
