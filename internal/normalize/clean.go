package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// boilerplatePrefixes are the transactional phrases the portal puts in front
// of the counterparty. Longer phrases first.
var boilerplatePrefixes = []string{
	"TRANSFERENCIA A TERCEROS",
	"TRANSFERENCIA DE TERCEROS",
	"TRANSFERENCIA A",
	"TRANSFERENCIA DE",
	"TRANSFERENCIA",
	"COMPRA NACIONAL",
	"COMPRA INTERNACIONAL",
	"COMPRA WEB",
	"COMPRA",
	"PAGO EN LINEA",
	"PAGO",
	"FACTU CL",
	"FACTURACION",
	"CARGO",
	"ABONO",
	"TEF DE",
	"TEF A",
	"TEF",
}

// entitySuffixes are trailing legal-entity markers.
var entitySuffixes = []string{
	"S.A.",
	"S.A",
	"SPA",
	"LTDA.",
	"LTDA",
	"LIMITADA",
	"EIRL",
}

// CleanDescription collapses whitespace and strips boilerplate prefixes and
// legal-entity suffixes until none is left. A description made only of
// boilerplate is kept as is. Applying it to its own output is a no-op.
func CleanDescription(s string) string {
	s = collapse(s)
	for {
		next := stripSuffix(stripPrefix(s))
		if next == s {
			return s
		}
		s = next
	}
}

func stripPrefix(s string) string {
	for _, p := range boilerplatePrefixes {
		if len(s) > len(p)+1 && s[len(p)] == ' ' && strings.EqualFold(s[:len(p)], p) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}

func stripSuffix(s string) string {
	for _, suf := range entitySuffixes {
		cut := len(s) - len(suf)
		if cut > 1 && s[cut-1] == ' ' && strings.EqualFold(s[cut:], suf) {
			return strings.TrimSpace(s[:cut])
		}
	}
	return s
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// plain uppercases s, removes accents and collapses whitespace.
func plain(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(collapse(out))
}

// fold is plain without any space, the form keyword lookups compare in.
func fold(s string) string {
	return strings.ReplaceAll(plain(s), " ", "")
}
