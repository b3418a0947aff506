package browser

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// RevealRules describes how a portal hides and shows monetary values.
type RevealRules struct {
	// Candidates are the clickable controls that may toggle masking.
	Candidates string
	// Keywords, lower case, that a toggle's text, aria-label, id or class
	// must contain.
	Keywords []string
	// Amounts selects the balance-like text checked for masking.
	Amounts string
}

var currencyAmountRe = regexp.MustCompile(`\$\s?\d[\d.,]*`)

const checkedJS = `() => !!this.checked`

// RevealBalances unmasks balances. When they are already visible nothing is
// clicked. Otherwise it toggles every matching control, waits for the page
// to settle and checks again, at most twice. It reports Succeeded when the
// balances read as unmasked, NotFound when no toggle exists, and Skipped when
// toggles were clicked but the balances still look masked.
func (in *Interactor) RevealBalances(ctx context.Context, page Page, rules RevealRules) Outcome {
	toggledAny := false

	for attempt := 0; attempt < 2; attempt++ {
		if in.balancesUnmasked(ctx, page, rules) {
			return Succeeded
		}
		if ctx.Err() != nil {
			return Skipped
		}

		if n := in.toggleMasks(ctx, page, rules); n > 0 {
			toggledAny = true
		}
		if err := in.Settle(ctx); err != nil {
			return Skipped
		}
	}

	if in.balancesUnmasked(ctx, page, rules) {
		return Succeeded
	}
	if !toggledAny {
		in.log.Debug("reveal: no balance toggle found")
		return NotFound
	}
	in.log.Debug("reveal: balances still masked after toggling")
	return Skipped
}

func (in *Interactor) balancesUnmasked(ctx context.Context, page Page, rules RevealRules) bool {
	actx, cancel := in.bounded(ctx)
	defer cancel()

	html, err := page.HTML(actx)
	if err != nil {
		in.log.Debug("reveal: read page failed", zap.Error(err))
		return false
	}
	return BalancesUnmasked(html, rules.Amounts)
}

func (in *Interactor) toggleMasks(ctx context.Context, page Page, rules RevealRules) int {
	lctx, cancel := in.bounded(ctx)
	els, err := CSS(rules.Candidates).Locate(lctx, page)
	cancel()
	if err != nil {
		in.log.Debug("reveal: locate toggles failed", zap.Error(err))
		return 0
	}

	toggled := 0
	for _, el := range els {
		if !in.isMaskToggle(ctx, el, rules.Keywords) {
			continue
		}

		if _, err := in.Click(ctx, el, ClickUI, ClickScript); err != nil {
			in.log.Debug("reveal: toggle click failed", zap.Error(err))
			continue
		}
		toggled++
	}
	return toggled
}

// isMaskToggle reports whether el is a control to click: its text or
// attributes carry a keyword and, for a checkbox, it is currently checked.
func (in *Interactor) isMaskToggle(ctx context.Context, el Element, keywords []string) bool {
	actx, cancel := in.bounded(ctx)
	defer cancel()

	if !matchesKeywords(actx, el, keywords) {
		return false
	}
	if typ, _, _ := el.Attribute(actx, "type"); strings.EqualFold(typ, "checkbox") {
		res, err := el.Eval(actx, checkedJS)
		return err == nil && res.Bool()
	}
	return true
}

func matchesKeywords(ctx context.Context, el Element, keywords []string) bool {
	var haystack strings.Builder
	if txt, err := el.Text(ctx); err == nil {
		haystack.WriteString(txt)
	}
	for _, attr := range []string{"aria-label", "id", "class", "title"} {
		if v, ok, _ := el.Attribute(ctx, attr); ok {
			haystack.WriteByte(' ')
			haystack.WriteString(v)
		}
	}

	h := strings.ToLower(haystack.String())
	for _, kw := range keywords {
		if strings.Contains(h, kw) {
			return true
		}
	}
	return false
}

// BalancesUnmasked reports whether the elements matched by selector show at
// least one currency amount and no masking asterisks.
func BalancesUnmasked(html, selector string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	hasAmount := false
	masked := false
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		txt := s.Text()
		if strings.Contains(txt, "*") {
			masked = true
		}
		if currencyAmountRe.MatchString(txt) {
			hasAmount = true
		}
	})

	return hasAmount && !masked
}
