package browser

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Option configures a Human or an Interactor.
type Option func(*settings)

type settings struct {
	log   *zap.Logger
	sleep Sleeper
	rng   *rand.Rand

	typoRate      float64
	pauseRate     float64
	idleClickRate float64
	fastTyping    bool

	poll   time.Duration
	settle time.Duration
	action time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		log:           zap.L(),
		sleep:         Sleep,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		typoRate:      0.005,
		pauseRate:     0.015,
		idleClickRate: 0.1,
		poll:          250 * time.Millisecond,
		settle:        time.Second,
		action:        10 * time.Second,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func WithLogger(log *zap.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

func WithSleeper(sleep Sleeper) Option {
	return func(s *settings) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithRand makes every random draw reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(s *settings) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithTypoRate sets the probability of typing a wrong character (then
// correcting it) per keystroke.
func WithTypoRate(p float64) Option {
	return func(s *settings) { s.typoRate = p }
}

// WithPauseRate sets the probability of a hesitation pause per keystroke.
func WithPauseRate(p float64) Option {
	return func(s *settings) { s.pauseRate = p }
}

// WithIdleClickRate sets the probability of a stray click during idle mouse
// movement.
func WithIdleClickRate(p float64) Option {
	return func(s *settings) { s.idleClickRate = p }
}

// WithFastTyping types without delays, typos or pauses. Meant for replay runs.
func WithFastTyping(enabled bool) Option {
	return func(s *settings) { s.fastTyping = enabled }
}

// WithPollInterval sets how often WaitForAny re-evaluates its chain.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithSettle sets the pause after a click that is expected to re-render.
func WithSettle(d time.Duration) Option {
	return func(s *settings) { s.settle = d }
}

// WithActionTimeout bounds every single DOM action an Interactor performs,
// so a click that waits for an element to become interactable gives up and
// lets the next strategy run.
func WithActionTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.action = d
		}
	}
}
