// Package browsertest provides an in-memory browser.Page backed by goquery.
//
// The fake renders nothing and runs no JavaScript. Tests script the portal by
// swapping HTML states, routing URLs to documents and registering handlers
// for clicks and Eval calls.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod/lib/input"
	"github.com/ysmood/gson"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
)

// ClickFunc reacts to a click on an element matching a selector.
type ClickFunc func(p *Page, el *Element) error

// EvalFunc answers an Eval whose script contains a fragment. el is nil for
// page-level scripts.
type EvalFunc func(p *Page, el *Element, args []any) (any, error)

type clickHandler struct {
	selector string
	fn       ClickFunc
}

type evalHandler struct {
	fragment string
	fn       EvalFunc
}

// Page is a fake browser.Page. All methods are safe for concurrent use.
type Page struct {
	mu sync.Mutex

	doc    *goquery.Document
	url    string
	routes map[string]string
	navErr map[string]error

	clicks []clickHandler
	evals  []evalHandler

	onReload func(p *Page) error

	navigations []string
	clicked     []string
	scripts     []string
	reloads     int
	mouseMoves  int
}

var _ browser.Page = (*Page)(nil)

// New returns a page showing html at about:blank.
func New(html string) *Page {
	p := &Page{
		url:    "about:blank",
		routes: make(map[string]string),
		navErr: make(map[string]error),
	}
	p.doc = mustParse(html)
	return p
}

func mustParse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("browsertest: parse HTML: %v", err))
	}
	return doc
}

// SetHTML replaces the current document.
func (p *Page) SetHTML(html string) {
	doc := mustParse(html)
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
}

// SetURL changes the current URL without loading anything.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// Route makes Navigate(url) load html.
func (p *Page) Route(url, html string) {
	p.mu.Lock()
	p.routes[url] = html
	p.mu.Unlock()
}

// FailNavigation makes Navigate(url) return err.
func (p *Page) FailNavigation(url string, err error) {
	p.mu.Lock()
	p.navErr[url] = err
	p.mu.Unlock()
}

// OnClick registers fn for clicks on elements matching selector, replacing
// any handler registered for the same selector. Handlers run in registration
// order; the first error stops the chain and is returned by Click.
func (p *Page) OnClick(selector string, fn ClickFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, h := range p.clicks {
		if h.selector == selector {
			p.clicks[i].fn = fn
			return
		}
	}
	p.clicks = append(p.clicks, clickHandler{selector: selector, fn: fn})
}

// OnEval registers fn for scripts containing fragment. The most recently
// registered matching handler wins.
func (p *Page) OnEval(fragment string, fn EvalFunc) {
	p.mu.Lock()
	p.evals = append(p.evals, evalHandler{fragment: fragment, fn: fn})
	p.mu.Unlock()
}

// OnReload registers fn to run on Reload.
func (p *Page) OnReload(fn func(p *Page) error) {
	p.mu.Lock()
	p.onReload = fn
	p.mu.Unlock()
}

// Navigations lists every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Clicked lists a short description of every element clicked through Click.
func (p *Page) Clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicked...)
}

// Scripts lists every script passed to Eval, page or element level.
func (p *Page) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

func (p *Page) MouseMoves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mouseMoves
}

// Find returns the first element matching selector, visible or not.
func (p *Page) Find(selector string) *Element {
	p.mu.Lock()
	sel := p.doc.Find(selector)
	p.mu.Unlock()
	if sel.Length() == 0 {
		return nil
	}
	return &Element{page: p, sel: sel.First()}
}

// --- browser.Page ---

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	if err, ok := p.navErr[url]; ok {
		p.mu.Unlock()
		return err
	}
	html, routed := p.routes[url]
	p.url = url
	p.mu.Unlock()

	if routed {
		p.SetHTML(html)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.reloads++
	fn := p.onReload
	p.mu.Unlock()

	if fn != nil {
		return fn(p)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, ctx.Err()
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return goquery.OuterHtml(p.doc.Selection)
}

func (p *Page) Elements(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	sel := p.doc.Find(selector)
	p.mu.Unlock()
	return p.wrap(sel), nil
}

func (p *Page) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	return p.eval(ctx, nil, js, args)
}

func (p *Page) WaitStable(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (p *Page) MouseMove(ctx context.Context, _, _ float64, _ int) error {
	p.mu.Lock()
	p.mouseMoves++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *Page) MouseClick(ctx context.Context) error {
	return ctx.Err()
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), ctx.Err()
}

func (p *Page) Viewport() (int, int) {
	return 1920, 1080
}

func (p *Page) wrap(sel *goquery.Selection) []browser.Element {
	out := make([]browser.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{page: p, sel: s})
	})
	return out
}

func (p *Page) eval(ctx context.Context, el *Element, js string, args []any) (gson.JSON, error) {
	if err := ctx.Err(); err != nil {
		return gson.JSON{}, err
	}

	p.mu.Lock()
	p.scripts = append(p.scripts, js)
	var fn EvalFunc
	for i := len(p.evals) - 1; i >= 0; i-- {
		if strings.Contains(js, p.evals[i].fragment) {
			fn = p.evals[i].fn
			break
		}
	}
	p.mu.Unlock()

	if fn == nil {
		return gson.New(nil), nil
	}
	v, err := fn(p, el, args)
	if err != nil {
		return gson.JSON{}, err
	}
	return gson.New(v), nil
}

func (p *Page) click(el *Element) error {
	p.mu.Lock()
	p.clicked = append(p.clicked, el.describe())
	var handlers []clickHandler
	for _, h := range p.clicks {
		if el.sel.Is(h.selector) {
			handlers = append(handlers, h)
		}
	}
	p.mu.Unlock()

	for _, h := range handlers {
		if err := h.fn(p, el); err != nil {
			return err
		}
	}
	return nil
}

// ErrDetached is returned when interacting with nothing.
var ErrDetached = errors.New("browsertest: element is not attached")

// Element is a fake browser.Element wrapping one goquery node.
type Element struct {
	page *Page
	sel  *goquery.Selection
}

var _ browser.Element = (*Element)(nil)

// Selection exposes the underlying node to handlers.
func (e *Element) Selection() *goquery.Selection { return e.sel }

// Page returns the page the element belongs to.
func (e *Element) Page() *Page { return e.page }

// Value is the text typed into the element so far.
func (e *Element) Value() string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.sel.AttrOr("value", "")
}

func (e *Element) describe() string {
	node := goquery.NodeName(e.sel)
	if id, ok := e.sel.Attr("id"); ok {
		return node + "#" + id
	}
	if label, ok := e.sel.Attr("aria-label"); ok {
		return fmt.Sprintf("%s[aria-label=%q]", node, label)
	}
	if cls, ok := e.sel.Attr("class"); ok {
		return node + "." + strings.Join(strings.Fields(cls), ".")
	}
	return fmt.Sprintf("%s(%s)", node, strings.Join(strings.Fields(e.sel.Text()), " "))
}

func (e *Element) Elements(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.page.mu.Lock()
	sel := e.sel.Find(selector)
	e.page.mu.Unlock()
	return e.page.wrap(sel), nil
}

// Visible is false when the node or an ancestor carries the hidden
// attribute or an inline display:none.
func (e *Element) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()

	if e.sel.Length() == 0 {
		return false, ErrDetached
	}
	hidden := false
	e.sel.AddSelection(e.sel.Parents()).Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("hidden"); ok {
			hidden = true
		}
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") {
			hidden = true
		}
	})
	return !hidden, nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.page.click(e)
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

func (e *Element) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return goquery.OuterHtml(e.sel)
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *Element) Focus(ctx context.Context) error {
	return ctx.Err()
}

func (e *Element) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	e.sel.SetAttr("value", "")
	e.page.mu.Unlock()
	return nil
}

// Press appends printable keys to the value attribute; Backspace removes the
// last rune. Like a real keyboard it rejects keys outside the US layout.
func (e *Element) Press(ctx context.Context, key input.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !browser.HasKey(key) {
		return fmt.Errorf("browsertest: key %q is not on the keyboard", rune(key))
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()

	value := []rune(e.sel.AttrOr("value", ""))
	if key == input.Backspace {
		if len(value) > 0 {
			value = value[:len(value)-1]
		}
	} else {
		value = append(value, rune(key))
	}
	e.sel.SetAttr("value", string(value))
	return nil
}

// InsertText appends text to the value attribute.
func (e *Element) InsertText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.sel.SetAttr("value", e.sel.AttrOr("value", "")+text)
	return nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	return ctx.Err()
}

func (e *Element) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	return e.page.eval(ctx, e, js, args)
}
