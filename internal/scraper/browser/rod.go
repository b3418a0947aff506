package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
)

// LaunchConfig controls how Launch starts Chromium.
type LaunchConfig struct {
	Headless   bool
	Bin        string // empty lets rod download or locate a browser
	SlowMotion time.Duration
	// Hijacker, when set, serves every request of the page (HAR replay).
	Hijacker func(*rod.Hijack)
}

// Browser owns one Chromium process and its single stealth page.
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	router   *rod.HijackRouter
	page     *RodPage
	log      *zap.Logger
}

// Launch starts Chromium with automation flags disabled, opens a stealth page
// and applies the fingerprint to it.
func Launch(ctx context.Context, cfg LaunchConfig, fp Fingerprint, log *zap.Logger) (*Browser, error) {
	if log == nil {
		log = zap.L()
	}

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("exclude-switches", "enable-automation").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("lang", fp.Locale).
		Set("window-size", fmt.Sprintf("%d,%d", fp.Width, fp.Height))
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if cfg.SlowMotion > 0 {
		b = b.SlowMotion(cfg.SlowMotion)
	}
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open stealth page: %w", err)
	}

	if err := applyFingerprint(page, fp); err != nil {
		_ = b.Close()
		l.Kill()
		return nil, err
	}

	out := &Browser{
		launcher: l,
		browser:  b,
		page:     &RodPage{page: page, width: fp.Width, height: fp.Height},
		log:      log,
	}

	if cfg.Hijacker != nil {
		router := page.HijackRequests()
		if err := router.Add("*", "", cfg.Hijacker); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("register hijacker: %w", err)
		}
		go router.Run()
		out.router = router
	}

	log.Debug("browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.String("user_agent", fp.UserAgent),
		zap.Int("width", fp.Width),
		zap.Int("height", fp.Height))

	return out, nil
}

func applyFingerprint(page *rod.Page, fp Fingerprint) error {
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: fp.AcceptLanguage(),
		Platform:       "Win32",
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.Width,
		Height:            fp.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: fp.Timezone}).Call(page); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: fp.Locale}).Call(page); err != nil {
		return fmt.Errorf("set locale: %w", err)
	}

	return nil
}

// Page returns the browser's only page.
func (b *Browser) Page() *RodPage {
	return b.page
}

// Close stops the hijack router, closes Chromium and removes its profile.
// Safe to call more than once.
func (b *Browser) Close() error {
	if b == nil || b.browser == nil {
		return nil
	}
	if b.router != nil {
		if err := b.router.Stop(); err != nil {
			b.log.Debug("stop hijack router", zap.Error(err))
		}
	}
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	b.browser = nil
	return err
}

// RodPage adapts *rod.Page to Page.
type RodPage struct {
	page          *rod.Page
	width, height int
}

// NewRodPage wraps an existing rod page, e.g. one opened by a developer tool.
func NewRodPage(page *rod.Page, width, height int) *RodPage {
	return &RodPage{page: page, width: width, height: height}
}

// Rod exposes the underlying page for rod-specific tooling.
func (p *RodPage) Rod() *rod.Page { return p.page }

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *RodPage) Reload(ctx context.Context) error {
	pg := p.page.Context(ctx)
	if err := pg.Reload(); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *RodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *RodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *RodPage) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (p *RodPage) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

func (p *RodPage) WaitStable(ctx context.Context, d time.Duration) error {
	return waitFramesStable(p.page.Context(ctx), d, 0)
}

func (p *RodPage) MouseMove(ctx context.Context, x, y float64, steps int) error {
	return p.page.Context(ctx).Mouse.MoveLinear(proto.NewPoint(x, y), steps)
}

func (p *RodPage) MouseClick(ctx context.Context) error {
	return p.page.Context(ctx).Mouse.Click(proto.InputMouseButtonLeft, 1)
}

func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, nil)
}

func (p *RodPage) Viewport() (int, int) {
	return p.width, p.height
}

// RodElement adapts *rod.Element to Element.
type RodElement struct {
	el *rod.Element
}

func wrapElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &RodElement{el: el})
	}
	return out
}

func (e *RodElement) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (e *RodElement) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *RodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *RodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *RodElement) HTML(ctx context.Context) (string, error) {
	return e.el.Context(ctx).HTML()
}

func (e *RodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *RodElement) Focus(ctx context.Context) error {
	return e.el.Context(ctx).Focus()
}

func (e *RodElement) Clear(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Type(input.Backspace)
}

func (e *RodElement) Press(ctx context.Context, key input.Key) error {
	return e.el.Context(ctx).Type(key)
}

func (e *RodElement) InsertText(ctx context.Context, text string) error {
	return e.el.Page().Context(ctx).InsertText(text)
}

func (e *RodElement) ScrollIntoView(ctx context.Context) error {
	return e.el.Context(ctx).ScrollIntoView()
}

func (e *RodElement) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	res, err := e.el.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}
