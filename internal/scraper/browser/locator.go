package browser

import (
	"context"
	"fmt"
	"strings"
)

// Strategy is one way of finding an element. Locate returns the visible
// matches in document order; an empty result means the strategy did not
// apply.
type Strategy interface {
	Locate(ctx context.Context, root Finder) ([]Element, error)
	String() string
}

type cssStrategy struct {
	selector string
}

// CSS matches visible elements by selector.
func CSS(selector string) Strategy {
	return cssStrategy{selector: selector}
}

func (s cssStrategy) Locate(ctx context.Context, root Finder) ([]Element, error) {
	els, err := root.Elements(ctx, s.selector)
	if err != nil {
		return nil, err
	}
	return visibleOnly(ctx, els), nil
}

func (s cssStrategy) String() string { return s.selector }

type textStrategy struct {
	selector string
	text     string
	exact    bool
}

// Text matches visible elements whose text contains text, ignoring case.
func Text(selector, text string) Strategy {
	return textStrategy{selector: selector, text: text}
}

// ExactText matches visible elements whose trimmed text equals text,
// ignoring case.
func ExactText(selector, text string) Strategy {
	return textStrategy{selector: selector, text: text, exact: true}
}

func (s textStrategy) Locate(ctx context.Context, root Finder) ([]Element, error) {
	els, err := root.Elements(ctx, s.selector)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(strings.TrimSpace(s.text))
	var out []Element
	for _, el := range visibleOnly(ctx, els) {
		txt, err := el.Text(ctx)
		if err != nil {
			continue
		}
		got := strings.ToLower(strings.Join(strings.Fields(txt), " "))
		if (s.exact && got == want) || (!s.exact && strings.Contains(got, want)) {
			out = append(out, el)
		}
	}
	return out, nil
}

func (s textStrategy) String() string {
	if s.exact {
		return fmt.Sprintf("%s[text=%q]", s.selector, s.text)
	}
	return fmt.Sprintf("%s[text*=%q]", s.selector, s.text)
}

func visibleOnly(ctx context.Context, els []Element) []Element {
	out := els[:0:0]
	for _, el := range els {
		if ok, err := el.Visible(ctx); err == nil && ok {
			out = append(out, el)
		}
	}
	return out
}

// Chain is an ordered list of strategies; earlier strategies win.
// Driver errors inside a strategy count as "no match" so that one broken
// selector never hides the ones after it.
type Chain []Strategy

// CSSChain builds a chain of CSS strategies.
func CSSChain(selectors ...string) Chain {
	c := make(Chain, 0, len(selectors))
	for _, sel := range selectors {
		c = append(c, CSS(sel))
	}
	return c
}

// First returns the first visible match of the first strategy that yields
// one, or nil.
func (c Chain) First(ctx context.Context, root Finder) (Element, Strategy) {
	for _, s := range c {
		els, err := s.Locate(ctx, root)
		if err != nil || len(els) == 0 {
			continue
		}
		return els[0], s
	}
	return nil, nil
}

// All returns every visible match of the first strategy that yields any.
func (c Chain) All(ctx context.Context, root Finder) ([]Element, Strategy) {
	for _, s := range c {
		els, err := s.Locate(ctx, root)
		if err != nil || len(els) == 0 {
			continue
		}
		return els, s
	}
	return nil, nil
}

// Then returns a new chain with more strategies appended.
func (c Chain) Then(more ...Strategy) Chain {
	out := make(Chain, 0, len(c)+len(more))
	out = append(out, c...)
	return append(out, more...)
}

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = s.String()
	}
	return strings.Join(parts, " | ")
}
