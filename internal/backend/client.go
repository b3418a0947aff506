// Package backend talks to the application backend: it fetches the keyword
// category table and delivers normalized movements. When delivery fails the
// batch is written to a local JSON file so no extraction is lost.
package backend

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/normalize"
)

const (
	DefaultCategoriesPath = "/api/categories/user"
	DefaultMovementsPath  = "/api/scraper/movements"
	defaultTimeout        = 30 * time.Second
	userAgent             = "bancoestado-scraper/1.0"
)

// AccountMovements is one account and its normalized ledger.
type AccountMovements struct {
	Number    string               `json:"number"`
	Label     string               `json:"label"`
	Balance   decimal.Decimal      `json:"balance"`
	Currency  string               `json:"currency"`
	Movements []normalize.Movement `json:"movements"`
}

// MovementBatch is the payload delivered once per task.
type MovementBatch struct {
	TaskID          string               `json:"task_id,omitempty"`
	UserID          int                  `json:"user_id,omitempty"`
	Bank            string               `json:"bank"`
	ExtractedAt     time.Time            `json:"extracted_at"`
	Accounts        []AccountMovements   `json:"accounts"`
	RecentMovements []normalize.Movement `json:"recent_movements"`
}

type Config struct {
	BaseURL        string
	Token          string
	CategoriesPath string
	MovementsPath  string
	FallbackDir    string
	Timeout        time.Duration
}

// Client implements the category source and the movement sink.
type Client struct {
	http *resty.Client
	cfg  Config
	log  *zap.Logger
	now  func() time.Time
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.CategoriesPath == "" {
		cfg.CategoriesPath = DefaultCategoriesPath
	}
	if cfg.MovementsPath == "" {
		cfg.MovementsPath = DefaultMovementsPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		http: resty.New().SetBaseURL(cfg.BaseURL),
		cfg:  cfg,
		log:  zap.L(),
		now:  time.Now,
	}
	c.configure()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) configure() {
	c.http.SetTimeout(c.cfg.Timeout)
	c.http.SetHeader("user-agent", userAgent)
	c.http.SetHeader("accept", "application/json")
	if c.cfg.Token != "" {
		c.http.SetAuthToken(c.cfg.Token)
	}
}

// Enabled reports whether a backend URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.BaseURL != ""
}

type categoryDTO struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// Categories fetches the keyword table. An unconfigured client returns an
// empty table.
func (c *Client) Categories(ctx context.Context) ([]normalize.Category, error) {
	if !c.Enabled() {
		return nil, nil
	}

	var dtos []categoryDTO
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&dtos).
		Get(c.cfg.CategoriesPath)
	if err != nil {
		return nil, eris.Wrap(err, "backend: fetch categories")
	}
	if res.IsError() {
		return nil, eris.Errorf("backend: fetch categories: status %d", res.StatusCode())
	}

	out := make([]normalize.Category, 0, len(dtos))
	for _, d := range dtos {
		name := d.Category
		if name == "" {
			name = d.Name
		}
		out = append(out, normalize.Category{Name: name, Keywords: d.Keywords})
	}
	c.log.Debug("backend: categories fetched", zap.Int("count", len(out)))
	return out, nil
}

// SendMovements posts the batch. On any failure, including an unconfigured
// client, the batch is saved under the fallback directory and the returned
// error names the file.
func (c *Client) SendMovements(ctx context.Context, batch MovementBatch) error {
	sendErr := c.post(ctx, batch)
	if sendErr == nil {
		c.log.Info("backend: movements delivered",
			zap.String("task_id", batch.TaskID),
			zap.Int("accounts", len(batch.Accounts)),
		)
		return nil
	}

	path, err := SaveJSON(c.cfg.FallbackDir, batch, c.now(), batch.TaskID)
	if err != nil {
		return eris.Wrapf(sendErr, "backend: fallback write failed (%v)", err)
	}
	c.log.Warn("backend: movements saved locally", zap.String("path", path), zap.Error(sendErr))
	return eris.Wrapf(sendErr, "backend: movements saved to %s", path)
}

func (c *Client) post(ctx context.Context, batch MovementBatch) error {
	if !c.Enabled() {
		return eris.New("backend: no base url configured")
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(batch).
		Post(c.cfg.MovementsPath)
	if err != nil {
		return eris.Wrap(err, "backend: post movements")
	}
	if res.IsError() {
		return eris.Errorf("backend: post movements: status %d", res.StatusCode())
	}
	return nil
}
