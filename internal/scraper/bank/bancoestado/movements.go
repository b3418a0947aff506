package bancoestado

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
)

const scrollFeedJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return -1;
	el.scrollTo(0, el.scrollHeight);
	return el.scrollHeight;
}`

// ExtractRecentMovements reads the dashboard feed, scrolling its container
// until a scroll brings neither new rows nor a taller container. A missing
// feed yields an empty list.
func (s *Scraper) ExtractRecentMovements(ctx context.Context, session *bank.Session) ([]bank.Movement, error) {
	page, err := s.sessionPage(session)
	if err != nil {
		return nil, s.fail("ExtractRecentMovements", err, "")
	}

	feed, err := s.in.WaitForAny(ctx, page, feedChain, s.timeouts.Selector, false)
	if err != nil {
		return nil, s.fail("ExtractRecentMovements", err, "")
	}
	if feed == nil {
		s.log.Warn("feed: recent movements section not found")
		return []bank.Movement{}, nil
	}

	set := bank.NewMovementSet()
	scan := func() int {
		html, err := page.HTML(ctx)
		if err != nil {
			s.log.Debug("feed: read page failed", zap.Error(err))
			return 0
		}
		return set.AddAll(ParseFeed(html))
	}

	scan()
	lastHeight := -1
	for i := 0; i < s.limits.FeedScrolls; i++ {
		res, err := page.Eval(ctx, scrollFeedJS, SelectorFeedScrollArea)
		if err != nil {
			s.log.Debug("feed: scroll failed", zap.Error(err))
			break
		}
		if err := s.in.Settle(ctx); err != nil {
			break
		}

		height := res.Int()
		added := scan()
		if added == 0 && height == lastHeight {
			break
		}
		lastHeight = height
	}

	if err := ctx.Err(); err != nil {
		return set.Movements(), s.fail("ExtractRecentMovements", err, "")
	}

	s.log.Info("feed: extracted", zap.Int("count", set.Len()))
	return set.Movements(), nil
}

// ExtractAccountMovements opens the ledger of account from the dashboard,
// reads every page up to the page limit and goes back to the dashboard.
// On failure the movements read so far are returned with the error.
func (s *Scraper) ExtractAccountMovements(ctx context.Context, session *bank.Session, account bank.Account) ([]bank.Movement, error) {
	page, err := s.sessionPage(session)
	if err != nil {
		return nil, s.fail("ExtractAccountMovements", err, account.Key())
	}

	log := s.log.With(zap.String("account", account.Label), zap.String("number", bank.MaskIdentity(account.Number)))
	set := bank.NewMovementSet()

	readErr := s.readLedger(ctx, page, account, set, log)
	if readErr != nil {
		log.Warn("ledger: extraction failed", zap.Int("partial", set.Len()), zap.Error(readErr))
		s.artifacts.Capture(context.WithoutCancel(ctx), page, "ledger_"+account.Key())
	}

	// Leave the dashboard ready for the next account.
	if err := s.ensureDashboard(ctx, page); err != nil {
		log.Warn("ledger: could not return to dashboard", zap.Error(err))
		readErr = errors.Join(readErr, err)
	}

	movements := set.Movements()
	if readErr != nil {
		return movements, s.fail("ExtractAccountMovements", readErr, account.Key())
	}
	log.Info("ledger: extracted", zap.Int("count", len(movements)))
	return movements, nil
}

func (s *Scraper) readLedger(ctx context.Context, page browser.Page, account bank.Account, set *bank.MovementSet, log *zap.Logger) error {
	if err := s.ensureDashboard(ctx, page); err != nil {
		return err
	}
	s.in.DismissOverlays(ctx, page, Overlays)

	card, err := s.findCard(ctx, page, account)
	if err != nil {
		return err
	}

	button, _ := movementsButtonChain.First(ctx, card)
	if button == nil {
		return fmt.Errorf("%w: no movements button on card", bank.ErrLedgerNotFound)
	}
	if _, err := s.in.Click(ctx, button, browser.ClickUI, browser.ClickScript); err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if err := s.in.Settle(ctx); err != nil {
		return err
	}
	s.in.DismissOverlays(ctx, page, Overlays)

	table, err := s.in.WaitForAny(ctx, page, ledgerTableChain, s.timeouts.Selector, true)
	if err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			return fmt.Errorf("%w: %w", bank.ErrLedgerNotFound, err)
		}
		return err
	}

	for n := 1; n <= s.limits.LedgerPages; n++ {
		html, err := table.HTML(ctx)
		if err != nil {
			return fmt.Errorf("read ledger page %d: %w", n, err)
		}
		rows, err := ParseLedger(html, account.Key())
		if err != nil {
			return fmt.Errorf("parse ledger page %d: %w", n, err)
		}
		added := set.AddAll(rows)
		log.Debug("ledger: page", zap.Int("page", n), zap.Int("rows", len(rows)), zap.Int("new", added))

		if set.Len() == 0 {
			log.Info("ledger: no movements")
			return nil
		}

		next := s.nextPageButton(ctx, page)
		if next == nil {
			return nil
		}
		if _, err := s.in.Click(ctx, next, browser.ClickUI, browser.ClickScript); err != nil {
			return fmt.Errorf("next ledger page %d: %w", n+1, err)
		}
		if err := s.in.Settle(ctx); err != nil {
			return err
		}

		table, err = s.in.WaitForAny(ctx, page, ledgerTableChain, s.timeouts.Selector, true)
		if err != nil {
			return fmt.Errorf("ledger page %d: %w", n+1, err)
		}
	}

	log.Info("ledger: page limit reached", zap.Int("limit", s.limits.LedgerPages))
	return nil
}

// nextPageButton finds the ledger's enabled next-page control. Generic
// "Siguiente" buttons only count inside the ledger container, so the
// carousel is never advanced by mistake.
func (s *Scraper) nextPageButton(ctx context.Context, page browser.Page) browser.Element {
	if box, _ := ledgerContainerChain.First(ctx, page); box != nil {
		next, _ := ledgerNextChain.First(ctx, box)
		return next
	}
	next, _ := nextPageChain.First(ctx, page)
	return next
}

// findCard locates the account's card among the carousel slides, matching
// by number first and by label when the number is unknown or not shown.
// The carousel is rewound first; when the card is still missing the
// dashboard is reloaded, which resets the carousel, and searched once more.
func (s *Scraper) findCard(ctx context.Context, page browser.Page, account bank.Account) (browser.Element, error) {
	s.rewindCarousel(ctx, page)
	found := s.scanForCard(ctx, page, account)

	if found == nil && ctx.Err() == nil {
		s.log.Debug("carousel: card not found, reloading dashboard", zap.String("number", bank.MaskIdentity(account.Number)))
		if err := s.navigateDashboard(ctx, page); err != nil {
			s.log.Debug("carousel: reload failed", zap.Error(err))
		} else if el, err := s.in.WaitForAny(ctx, page, carouselChain, s.timeouts.Selector, false); err == nil && el != nil {
			found = s.scanForCard(ctx, page, account)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, bank.ErrAccountNotVisible
	}
	return found, nil
}

func (s *Scraper) scanForCard(ctx context.Context, page browser.Page, account bank.Account) browser.Element {
	var found browser.Element

	s.walkCarousel(ctx, page, func(_ int, cards []browser.Element) bool {
		var byLabel browser.Element
		for _, card := range cards {
			html, err := card.HTML(ctx)
			if err != nil {
				continue
			}
			info, ok := ParseCard(html)
			if !ok {
				continue
			}
			if account.Number != "" && info.Number == account.Number {
				found = card
				return false
			}
			if byLabel == nil && info.Label == account.Label && (account.Number == "" || info.Number == "") {
				byLabel = card
			}
		}
		if byLabel != nil {
			found = byLabel
			return false
		}
		return true
	})
	return found
}
