package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Site     string         `yaml:"site" mapstructure:"site"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Browser  BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Portal   PortalConfig   `yaml:"portal" mapstructure:"portal"`
	Timeouts TimeoutsConfig `yaml:"timeouts" mapstructure:"timeouts"`
	Limits   LimitsConfig   `yaml:"limits" mapstructure:"limits"`
	Human    HumanConfig    `yaml:"human" mapstructure:"human"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Queue    QueueConfig    `yaml:"queue" mapstructure:"queue"`
	Backend  BackendConfig  `yaml:"backend" mapstructure:"backend"`
	Debug    DebugConfig    `yaml:"debug" mapstructure:"debug"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BrowserConfig configures the Chromium launch.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless" mapstructure:"headless"`
	Bin          string `yaml:"bin" mapstructure:"bin"`
	SlowMotionMS int    `yaml:"slow_motion_ms" mapstructure:"slow_motion_ms"`
}

// PortalConfig holds the bank portal entry points.
type PortalConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	HomeURL string `yaml:"home_url" mapstructure:"home_url"`
}

type TimeoutsConfig struct {
	SelectorSecs   int `yaml:"selector_secs" mapstructure:"selector_secs"`
	NavigationSecs int `yaml:"navigation_secs" mapstructure:"navigation_secs"`
	PostSubmitSecs int `yaml:"post_submit_secs" mapstructure:"post_submit_secs"`
	SettleSecs     int `yaml:"settle_secs" mapstructure:"settle_secs"`
}

type LimitsConfig struct {
	LedgerPages      int `yaml:"ledger_pages" mapstructure:"ledger_pages"`
	DashboardRetries int `yaml:"dashboard_retries" mapstructure:"dashboard_retries"`
	FeedScrolls      int `yaml:"feed_scrolls" mapstructure:"feed_scrolls"`
	CarouselSlides   int `yaml:"carousel_slides" mapstructure:"carousel_slides"`
}

// HumanConfig tunes the typing simulation.
type HumanConfig struct {
	TypoRate   float64 `yaml:"typo_rate" mapstructure:"typo_rate"`
	PauseRate  float64 `yaml:"pause_rate" mapstructure:"pause_rate"`
	FastTyping bool    `yaml:"fast_typing" mapstructure:"fast_typing"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// QueueConfig names the Redis keys shared with the backend.
type QueueConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	TaskKeyPrefix string `yaml:"task_key_prefix" mapstructure:"task_key_prefix"`
	ControlKey    string `yaml:"control_key" mapstructure:"control_key"`
	PollSecs      int    `yaml:"poll_secs" mapstructure:"poll_secs"`
}

// BackendConfig configures the category source and the movement sink.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Token          string `yaml:"token" mapstructure:"token"`
	CategoriesPath string `yaml:"categories_path" mapstructure:"categories_path"`
	MovementsPath  string `yaml:"movements_path" mapstructure:"movements_path"`
	FallbackDir    string `yaml:"fallback_dir" mapstructure:"fallback_dir"`
}

type DebugConfig struct {
	ArtifactsDir string `yaml:"artifacts_dir" mapstructure:"artifacts_dir"`
}

func (t TimeoutsConfig) Selector() time.Duration   { return secs(t.SelectorSecs) }
func (t TimeoutsConfig) Navigation() time.Duration { return secs(t.NavigationSecs) }
func (t TimeoutsConfig) PostSubmit() time.Duration { return secs(t.PostSubmitSecs) }
func (t TimeoutsConfig) Settle() time.Duration     { return secs(t.SettleSecs) }
func (q QueueConfig) Poll() time.Duration          { return secs(q.PollSecs) }

func (b BrowserConfig) SlowMotion() time.Duration {
	return time.Duration(b.SlowMotionMS) * time.Millisecond
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("site", "banco_estado")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.slow_motion_ms", 0)
	v.SetDefault("portal.base_url", "https://www.bancoestado.cl/")
	v.SetDefault("portal.home_url", "https://www.bancoestado.cl/personas/home")
	v.SetDefault("timeouts.selector_secs", 10)
	v.SetDefault("timeouts.navigation_secs", 30)
	v.SetDefault("timeouts.post_submit_secs", 6)
	v.SetDefault("timeouts.settle_secs", 1)
	v.SetDefault("limits.ledger_pages", 10)
	v.SetDefault("limits.dashboard_retries", 3)
	v.SetDefault("limits.feed_scrolls", 20)
	v.SetDefault("limits.carousel_slides", 10)
	v.SetDefault("human.typo_rate", 0.005)
	v.SetDefault("human.pause_rate", 0.015)
	v.SetDefault("human.fast_typing", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.key", "scraper:queue")
	v.SetDefault("queue.task_key_prefix", "scraper:tasks:")
	v.SetDefault("queue.control_key", "scraper:control")
	v.SetDefault("queue.poll_secs", 1)
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.categories_path", "/api/categories/user")
	v.SetDefault("backend.movements_path", "/api/scraper/movements")
	v.SetDefault("backend.fallback_dir", "results")
	v.SetDefault("debug.artifacts_dir", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts.
func (c *Config) Validate(command string) error {
	var errs []string
	if c.Timeouts.SelectorSecs <= 0 {
		errs = append(errs, "timeouts.selector_secs must be positive")
	}
	if c.Timeouts.NavigationSecs <= 0 {
		errs = append(errs, "timeouts.navigation_secs must be positive")
	}
	if c.Limits.LedgerPages <= 0 {
		errs = append(errs, "limits.ledger_pages must be positive")
	}
	if c.Limits.DashboardRetries <= 0 {
		errs = append(errs, "limits.dashboard_retries must be positive")
	}

	if command == "worker" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required")
		}
		if c.Queue.Key == "" {
			errs = append(errs, "queue.key is required")
		}
		if c.Queue.PollSecs <= 0 {
			errs = append(errs, "queue.poll_secs must be positive")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
