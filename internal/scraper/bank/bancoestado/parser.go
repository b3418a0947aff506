package bancoestado

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
)

var (
	dateRe          = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	exactDateRe     = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	accountNumberRe = regexp.MustCompile(`\d{8,}`)
	wordNumberRe    = regexp.MustCompile(`\b\d{8,}\b`)
	currencyRe      = regexp.MustCompile(`\$\s?[\d.,]+`)
	productNameRe   = regexp.MustCompile(`>(CuentaRUT|AHORRO PREMIUM|Plazo Vivienda[^<]+)<`)
)

// --- PUBLIC API ---

// ParseCard reads one carousel card. It reports false when the card carries
// neither a name, a number nor a balance.
func ParseCard(html string) (bank.Account, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return bank.Account{}, false
	}
	card := doc.Selection

	name := cardName(card, html)
	number := cardNumber(card)
	balanceText := cardBalance(card)

	if name == bank.DefaultAccountLabel && number == "" && balanceText == "" {
		return bank.Account{}, false
	}

	return newAccount(number, name, balanceText), true
}

// ParseFallbackAccounts is the degraded path used when no structured card
// was found: every card-like block whose flattened text carries a currency
// amount, an 8+ digit number or a title becomes a minimal account.
func ParseFallbackAccounts(html string) []bank.Account {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var accounts []bank.Account
	doc.Find(SelectorFallbackCards).Each(func(_ int, s *goquery.Selection) {
		text := collapse(s.Text())
		balance := currencyRe.FindString(text)
		number := wordNumberRe.FindString(text)

		name := ""
		if title := s.Find(SelectorFallbackTitles).First(); title.Length() > 0 {
			name = collapse(title.Text())
		} else {
			s.Find("div, span").EachWithBreak(func(_ int, t *goquery.Selection) bool {
				txt := collapse(t.Text())
				if n := len([]rune(txt)); n > 3 && n < 50 {
					name = txt
					return false
				}
				return true
			})
		}
		if name == "" {
			name = bank.DefaultAccountLabel
		}

		if name == bank.DefaultAccountLabel && balance == "" && number == "" {
			return
		}
		accounts = append(accounts, newAccount(number, name, balance))
	})

	return accounts
}

// ParseFeed reads the dashboard's recent movements list. Items missing a
// date, description or amount are skipped.
func ParseFeed(html string) []bank.Movement {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var movements []bank.Movement
	doc.Find(SelectorFeedItem).Each(func(_ int, item *goquery.Selection) {
		date := collapse(item.Find(SelectorFeedDate).First().Text())
		desc := collapse(item.Find(SelectorFeedGlosa).First().Text())
		amountText := collapse(item.Find(SelectorFeedAmount).Last().Text())
		if date == "" || desc == "" || amountText == "" {
			return
		}

		credit := item.Find(SelectorFeedCredit).Length() > 0
		movements = append(movements, bank.NewMovement(date, desc, SignedAmount(amountText, credit), ""))
	})

	return movements
}

// ParseLedger reads the visible page of an account ledger. html is the
// ledger table (or grid) element. Rows whose date, description or amount
// cannot be found are skipped.
func ParseLedger(html, accountRef string) ([]bank.Movement, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrParsingFailed, err)
	}

	var rows *goquery.Selection
	for _, sel := range ledgerRowSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			rows = found
			break
		}
	}
	if rows == nil {
		return []bank.Movement{}, nil
	}

	movements := make([]bank.Movement, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		r, ok := parseLedgerRow(row)
		if !ok {
			r, ok = scanLedgerCells(row)
		}
		if !ok {
			return
		}
		movements = append(movements, bank.NewMovement(r.date, r.description, SignedAmount(r.amount, r.credit), accountRef))
	})

	return movements, nil
}

// DetectRejection looks for a known login failure phrase in the rendered
// text of the page. Scripts and styles are ignored.
func DetectRejection(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	doc.Find("script, style, noscript").Remove()

	text := strings.ToLower(collapse(doc.Text()))
	for _, phrase := range rejectionPhrases {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// NormalizeRUT strips formatting from a RUT: "12.345.678-K" becomes
// "12345678k".
func NormalizeRUT(id string) string {
	return strings.ToLower(strings.NewReplacer(".", "", "-", "", " ", "").Replace(strings.TrimSpace(id)))
}

// SignedAmount applies the sign policy to an amount text: an explicit '-'
// makes it a charge and an explicit '+' a deposit; otherwise credit decides,
// and unmarked amounts are charges.
func SignedAmount(text string, credit bool) decimal.Decimal {
	abs := bank.ParseBalance(strings.NewReplacer("-", "", "−", "", "+", "").Replace(text)).Abs()

	switch {
	case strings.ContainsAny(text, "-−"):
		return abs.Neg()
	case strings.Contains(text, "+"):
		return abs
	case credit:
		return abs
	default:
		return abs.Neg()
	}
}

// --- CARDS ---

func newAccount(number, label, balanceText string) bank.Account {
	return bank.Account{
		Number:    number,
		Label:     label,
		Balance:   bank.ParseBalance(balanceText),
		Currency:  bank.DefaultCurrency,
		Status:    bank.AccountStatusActive,
		Movements: []bank.Movement{},
	}
}

func cardName(card *goquery.Selection, html string) string {
	for _, sel := range cardNameSelectors {
		if txt := collapse(card.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	if m := productNameRe.FindStringSubmatch(html); m != nil {
		return collapse(m[1])
	}
	return bank.DefaultAccountLabel
}

func cardNumber(card *goquery.Selection) string {
	if p := card.Find(SelectorCardTitleArea + " p").First(); p.Length() > 0 {
		return collapse(p.Text())
	}
	if p := card.Find(SelectorCardNumberAlt).First(); p.Length() > 0 {
		return collapse(p.Text())
	}

	number := ""
	card.Find(SelectorCardAriaLabeled).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		number = accountNumberRe.FindString(s.AttrOr("aria-label", ""))
		return number == ""
	})
	if number != "" {
		return number
	}
	return accountNumberRe.FindString(card.Text())
}

func cardBalance(card *goquery.Selection) string {
	for _, sel := range cardBalanceSelectors {
		found := ""
		card.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			txt := collapse(s.Text())
			if strings.Contains(txt, "$") {
				found = txt
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}

	// Degraded: any element text showing an unmasked amount.
	found := ""
	card.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := s.Text()
		if strings.Contains(txt, "*") {
			return true
		}
		found = currencyRe.FindString(txt)
		return found == ""
	})
	return found
}

// --- LEDGER ROWS ---

type ledgerRow struct {
	date        string
	description string
	amount      string
	credit      bool
}

func parseLedgerRow(row *goquery.Selection) (ledgerRow, bool) {
	var r ledgerRow

	for _, sel := range ledgerDateSelectors {
		txt := collapse(row.Find(sel).First().Text())
		if m := dateRe.FindString(txt); m != "" {
			r.date = m
			break
		}
	}
	if r.date == "" {
		html, _ := goquery.OuterHtml(row)
		r.date = dateRe.FindString(html)
	}

	r.description = firstText(row, ledgerDescriptionSelectors)

	for _, sel := range ledgerAmountSelectors {
		if amt := row.Find(sel).First(); amt.Length() > 0 {
			if txt := collapse(amt.Text()); txt != "" {
				r.amount = txt
				r.credit = isCredit(row, amt.Closest("td, div.contentText"))
				break
			}
		}
	}

	return r, r.date != "" && r.description != "" && r.amount != ""
}

// scanLedgerCells classifies the cells of a row by content: a bare date, a
// currency amount, and the first other cell long enough to be a description.
func scanLedgerCells(row *goquery.Selection) (ledgerRow, bool) {
	var r ledgerRow
	var amountCell *goquery.Selection

	row.Find("td").Each(func(_ int, cell *goquery.Selection) {
		txt := collapse(cell.Text())
		switch {
		case txt == "":
		case r.date == "" && exactDateRe.MatchString(txt):
			r.date = txt
		case amountCell == nil && strings.Contains(txt, "$") && strings.ContainsAny(txt, "0123456789"):
			r.amount = txt
			amountCell = cell
		case r.description == "" && len([]rune(txt)) > 5 && !dateRe.MatchString(txt) && !strings.Contains(txt, "$"):
			r.description = txt
		}
	})

	if amountCell != nil {
		r.credit = isCredit(row, amountCell)
	}
	return r, r.date != "" && r.description != "" && r.amount != ""
}

func isCredit(row, cell *goquery.Selection) bool {
	if row.HasClass(creditRowClass) {
		return true
	}
	if cell == nil || cell.Length() == 0 {
		cell = row
	}
	return cell.Is(creditMarkers) || cell.Find(creditMarkers).Length() > 0
}

// --- LOW LEVEL UTILITIES ---

func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if txt := collapse(s.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
