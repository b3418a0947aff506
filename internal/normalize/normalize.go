// Package normalize turns scraped movements into the records the backend
// stores: cleaned descriptions, a transaction tag, a category, an optional
// reference and ISO dates. Everything here is pure.
package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
)

const (
	Income  = "income"
	Expense = "expense"
)

// Movement is the normalized record of one bank movement.
type Movement struct {
	Date           string          `json:"date"`
	Description    string          `json:"description"`
	RawDescription string          `json:"raw_description"`
	Amount         decimal.Decimal `json:"amount"`
	Type           TxType          `json:"type"`
	MovementType   string          `json:"movement_type"`
	Category       string          `json:"category"`
	Reference      string          `json:"reference,omitempty"`
	AccountRef     string          `json:"account_ref"`
	Status         string          `json:"status"`
}

type Normalizer struct {
	rules      []TypeRule
	categories *Categorizer
}

type Option func(*Normalizer)

// WithTypeRules replaces DefaultTypeRules.
func WithTypeRules(rules []TypeRule) Option {
	return func(n *Normalizer) { n.rules = rules }
}

// New returns a Normalizer using categories for lookups. A nil categorizer
// assigns DefaultCategory to everything.
func New(categories *Categorizer, opts ...Option) *Normalizer {
	n := &Normalizer{rules: DefaultTypeRules, categories: categories}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Movement(m bank.Movement) Movement {
	cleaned := CleanDescription(m.Description)
	return Movement{
		Date:           NormalizeDate(m.Date),
		Description:    cleaned,
		RawDescription: collapse(m.Description),
		Amount:         m.Amount,
		// The boilerplate stripped by cleaning is what the rules look for.
		Type:         Classify(n.rules, m.Description),
		MovementType: Direction(m.Amount),
		Category:     n.categories.Categorize(cleaned),
		Reference:    ExtractReference(m.Description),
		AccountRef:   m.AccountRef,
		Status:       m.Status,
	}
}

// Movements normalizes ms in order. The result is never nil.
func (n *Normalizer) Movements(ms []bank.Movement) []Movement {
	out := make([]Movement, 0, len(ms))
	for _, m := range ms {
		out = append(out, n.Movement(m))
	}
	return out
}

// Direction is Expense for negative amounts and Income otherwise.
func Direction(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return Expense
	}
	return Income
}

var dateLayouts = []string{"2/1/2006", "2-1-2006", "2006-01-02"}

// NormalizeDate converts portal dates to YYYY-MM-DD. Unparseable values are
// returned trimmed but otherwise untouched.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return s
}
