package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/backend"
	"github.com/grez-lucas/bancoestado-scraper/internal/config"
	"github.com/grez-lucas/bancoestado-scraper/internal/pipeline"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank/bancoestado"
	"github.com/grez-lucas/bancoestado-scraper/internal/task"
)

func scraperOptions(c *config.Config, log *zap.Logger) []bancoestado.Option {
	return []bancoestado.Option{
		bancoestado.WithLogger(log),
		bancoestado.WithHeadless(c.Browser.Headless),
		bancoestado.WithBrowserBin(c.Browser.Bin),
		bancoestado.WithSlowMotion(c.Browser.SlowMotion()),
		bancoestado.WithURLs(c.Portal.BaseURL, c.Portal.HomeURL),
		bancoestado.WithTimeouts(bancoestado.Timeouts{
			Selector:   c.Timeouts.Selector(),
			Navigation: c.Timeouts.Navigation(),
			PostSubmit: c.Timeouts.PostSubmit(),
		}),
		bancoestado.WithLimits(bancoestado.Limits{
			LedgerPages:      c.Limits.LedgerPages,
			DashboardRetries: c.Limits.DashboardRetries,
			FeedScrolls:      c.Limits.FeedScrolls,
			CarouselSlides:   c.Limits.CarouselSlides,
		}),
		bancoestado.WithSettle(c.Timeouts.Settle()),
		bancoestado.WithHumanRates(c.Human.TypoRate, c.Human.PauseRate),
		bancoestado.WithFastTyping(c.Human.FastTyping),
		bancoestado.WithArtifactsDir(c.Debug.ArtifactsDir),
	}
}

func newBackend(c *config.Config, log *zap.Logger) *backend.Client {
	return backend.New(backend.Config{
		BaseURL:        c.Backend.BaseURL,
		Token:          c.Backend.Token,
		CategoriesPath: c.Backend.CategoriesPath,
		MovementsPath:  c.Backend.MovementsPath,
		FallbackDir:    c.Backend.FallbackDir,
	}, backend.WithLogger(log))
}

// newPipeline wires one browser per task. The movement sink is skipped when
// deliver is false.
func newPipeline(c *config.Config, status task.StatusSink, deliver bool, log *zap.Logger) *pipeline.Pipeline {
	opts := scraperOptions(c, log)
	factory := func(context.Context) (bank.BankScraper, error) {
		return bancoestado.New(opts...)
	}

	be := newBackend(c, log)
	popts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithCategories(be),
	}
	if deliver {
		popts = append(popts, pipeline.WithMovementSink(be))
	}
	return pipeline.New(factory, status, popts...)
}
