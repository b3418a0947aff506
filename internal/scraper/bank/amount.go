package bank

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseBalance parses Latin-American formatted money ("$1.234.567",
// "$1.234,50", "-$45,50"). Dots are thousands separators and a comma marks
// the decimals. Text that cannot be parsed yields zero.
func ParseBalance(s string) decimal.Decimal {
	var b strings.Builder
	negative := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		case r == '-' || r == '−':
			negative = true
		}
	}

	clean := b.String()
	if clean == "" || strings.Count(clean, ".") > 1 {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}
