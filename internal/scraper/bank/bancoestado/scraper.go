// Package bancoestado defines the scraper and parsing logic to process the
// BancoEstado personas portal.
package bancoestado

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
)

// Timeouts are layered: selector waits are short, navigations longer.
type Timeouts struct {
	Selector   time.Duration
	Navigation time.Duration
	// PostSubmit is the settle period before the login outcome is inspected.
	PostSubmit time.Duration
}

// Limits bound every loop that depends on the portal's answers.
type Limits struct {
	LedgerPages      int
	DashboardRetries int
	FeedScrolls      int
	CarouselSlides   int
}

// stableWindow is how long the DOM must stay unchanged after a navigation.
const stableWindow = time.Second

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Selector:   10 * time.Second,
		Navigation: 30 * time.Second,
		PostSubmit: 6 * time.Second,
	}
}

func DefaultLimits() Limits {
	return Limits{
		LedgerPages:      10,
		DashboardRetries: 3,
		FeedScrolls:      20,
		CarouselSlides:   10,
	}
}

type Option func(*options)

type options struct {
	log         *zap.Logger
	launch      browser.LaunchConfig
	page        browser.Page
	rng         *rand.Rand
	browserOpts []browser.Option
	timeouts    Timeouts
	limits      Limits
	rootURL     string
	homeURL     string
	artifacts   string
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithHijacker routes every browser request through h, e.g. a HAR replayer.
func WithHijacker(h func(*rod.Hijack)) Option {
	return func(o *options) { o.launch.Hijacker = h }
}

func WithHeadless(headless bool) Option {
	return func(o *options) { o.launch.Headless = headless }
}

func WithBrowserBin(bin string) Option {
	return func(o *options) { o.launch.Bin = bin }
}

func WithSlowMotion(d time.Duration) Option {
	return func(o *options) { o.launch.SlowMotion = d }
}

// WithTimeout sets the selector wait timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeouts.Selector = d
		}
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(o *options) { o.timeouts = t }
}

func WithLimits(l Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithURLs overrides the portal root and dashboard URLs.
func WithURLs(root, home string) Option {
	return func(o *options) {
		if root != "" {
			o.rootURL = root
		}
		if home != "" {
			o.homeURL = home
		}
	}
}

// WithPage drives an existing page instead of launching Chromium. The
// scraper does not close it.
func WithPage(page browser.Page) Option {
	return func(o *options) { o.page = page }
}

// WithArtifactsDir saves a screenshot and DOM snapshot of failing steps.
func WithArtifactsDir(dir string) Option {
	return func(o *options) { o.artifacts = dir }
}

func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		if rng != nil {
			o.rng = rng
			o.browserOpts = append(o.browserOpts, browser.WithRand(rng))
		}
	}
}

func WithSleeper(s browser.Sleeper) Option {
	return func(o *options) { o.browserOpts = append(o.browserOpts, browser.WithSleeper(s)) }
}

// WithHumanRates sets the per-keystroke typo and hesitation probabilities.
func WithHumanRates(typo, pause float64) Option {
	return func(o *options) {
		o.browserOpts = append(o.browserOpts, browser.WithTypoRate(typo), browser.WithPauseRate(pause))
	}
}

func WithFastTyping(enabled bool) Option {
	return func(o *options) { o.browserOpts = append(o.browserOpts, browser.WithFastTyping(enabled)) }
}

// WithSettle sets the pause after clicks that re-render the page.
func WithSettle(d time.Duration) Option {
	return func(o *options) { o.browserOpts = append(o.browserOpts, browser.WithSettle(d)) }
}

// Scraper drives one browser session against the portal. It is not safe for
// concurrent use: the portal keeps carousel and detail-view state per tab.
type Scraper struct {
	log       *zap.Logger
	browser   *browser.Browser
	page      browser.Page
	fp        browser.Fingerprint
	human     *browser.Human
	in        *browser.Interactor
	artifacts *browser.Artifacts
	timeouts  Timeouts
	limits    Limits
	rootURL   string
	homeURL   string
}

var _ bank.BankScraper = (*Scraper)(nil)

// New launches a stealth Chromium with a fresh fingerprint, unless WithPage
// was given.
func New(opts ...Option) (*Scraper, error) {
	o := options{
		log:      zap.L(),
		launch:   browser.LaunchConfig{Headless: true},
		timeouts: DefaultTimeouts(),
		limits:   DefaultLimits(),
		rootURL:  URLRoot,
		homeURL:  URLHome,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		o.browserOpts = append([]browser.Option{browser.WithRand(o.rng)}, o.browserOpts...)
	}

	log := o.log.With(zap.String("bank", string(bank.BankEstado)))
	bopts := append([]browser.Option{
		browser.WithLogger(log),
		browser.WithActionTimeout(o.timeouts.Selector),
	}, o.browserOpts...)

	s := &Scraper{
		log:       log,
		page:      o.page,
		fp:        browser.NewFingerprint(o.rng),
		human:     browser.NewHuman(bopts...),
		in:        browser.NewInteractor(bopts...),
		artifacts: browser.NewArtifacts(o.artifacts, log),
		timeouts:  o.timeouts,
		limits:    o.limits,
		rootURL:   o.rootURL,
		homeURL:   o.homeURL,
	}

	if s.page == nil {
		b, err := browser.Launch(context.Background(), o.launch, s.fp, log)
		if err != nil {
			return nil, &bank.ScraperError{BankCode: bank.BankEstado, Operation: "Launch", Cause: err}
		}
		s.browser = b
		s.page = b.Page()
	}

	return s, nil
}

// Close releases the browser. It is a no-op for injected pages.
func (s *Scraper) Close() error {
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}

func (s *Scraper) sessionPage(session *bank.Session) (browser.Page, error) {
	if !session.Authenticated() || session.Page == nil {
		return nil, errors.New("session is not authenticated")
	}
	return session.Page, nil
}

func (s *Scraper) fail(op string, cause error, details string) error {
	return &bank.ScraperError{BankCode: bank.BankEstado, Operation: op, Cause: cause, Details: details}
}
