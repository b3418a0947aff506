// Package pipeline runs one scraping task end to end: it owns the scraper for
// the duration of the task, reports progress milestones, assembles the
// extraction result and hands the normalized movements to the backend.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/backend"
	"github.com/grez-lucas/bancoestado-scraper/internal/normalize"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
	"github.com/grez-lucas/bancoestado-scraper/internal/task"
)

// Progress milestones.
const (
	ProgressBrowser    = 10
	ProgressLogin      = 20
	ProgressAccounts   = 40
	ProgressRecent     = 60
	ProgressLedgers    = 70
	ProgressProcessing = 80
	ProgressDone       = 100
)

const (
	msgIncomplete = "Credenciales incompletas"
	msgBrowser    = "Iniciando navegador"
	msgLogin      = "Iniciando sesión"
	msgAccounts   = "Obteniendo saldos"
	msgRecent     = "Obteniendo movimientos generales"
	msgLedgers    = "Obteniendo movimientos por cuenta"
	msgProcessing = "Procesando resultados"
	msgDone       = "Scraping completado"
	msgCancelled  = "Tarea cancelada por el usuario"
)

// ScraperFactory opens a scraper with its own browser for one task.
type ScraperFactory func(ctx context.Context) (bank.BankScraper, error)

// CategorySource serves the keyword category table.
type CategorySource interface {
	Categories(ctx context.Context) ([]normalize.Category, error)
}

// MovementSink receives the normalized movements of a finished task.
type MovementSink interface {
	SendMovements(ctx context.Context, batch backend.MovementBatch) error
}

type Pipeline struct {
	newScraper ScraperFactory
	status     task.StatusSink
	categories CategorySource
	sink       MovementSink
	rules      []normalize.TypeRule
	log        *zap.Logger
	now        func() time.Time
}

var _ task.Runner = (*Pipeline)(nil)

type Option func(*Pipeline)

func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

func WithCategories(src CategorySource) Option {
	return func(p *Pipeline) { p.categories = src }
}

func WithMovementSink(sink MovementSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithTypeRules replaces normalize.DefaultTypeRules.
func WithTypeRules(rules []normalize.TypeRule) Option {
	return func(p *Pipeline) { p.rules = rules }
}

func New(factory ScraperFactory, status task.StatusSink, opts ...Option) *Pipeline {
	p := &Pipeline{
		newScraper: factory,
		status:     status,
		log:        zap.L(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.status == nil {
		p.status = task.LogSink{Log: p.log}
	}
	return p
}

// Outcome is what a finished run produced.
type Outcome struct {
	Result bank.ExtractionResult
	Batch  backend.MovementBatch
}

// Run implements task.Runner.
func (p *Pipeline) Run(ctx context.Context, t task.Task) error {
	_, err := p.Execute(ctx, t)
	return err
}

// Execute runs t and reports every status change for it. The returned
// error is nil only when the task completed.
func (p *Pipeline) Execute(ctx context.Context, t task.Task) (out Outcome, err error) {
	log := p.log.With(zap.String("task_id", t.ID))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: panic: %v", r)
			log.Error("pipeline: run panicked", zap.Any("panic", r), zap.Stack("stack"))
			p.failed(ctx, t.ID, err.Error())
		}
	}()

	creds, err := t.Credentials()
	if err != nil {
		p.failed(ctx, t.ID, msgIncomplete)
		return out, err
	}
	log.Info("pipeline: starting", zap.Object("credentials", creds))

	p.progress(ctx, t.ID, ProgressBrowser, msgBrowser)
	scr, err := p.newScraper(ctx)
	if err != nil {
		p.failed(ctx, t.ID, err.Error())
		return out, fmt.Errorf("open scraper: %w", err)
	}
	defer func() {
		if cerr := scr.Close(); cerr != nil {
			log.Warn("pipeline: closing browser failed", zap.Error(cerr))
		}
	}()

	if err := p.checkpoint(ctx, t.ID); err != nil {
		return out, err
	}
	p.progress(ctx, t.ID, ProgressLogin, msgLogin)
	session, err := scr.Login(ctx, creds)
	if err != nil {
		if cerr := p.checkpoint(ctx, t.ID); cerr != nil {
			return out, cerr
		}
		p.failed(ctx, t.ID, loginStatus(err))
		return out, err
	}

	if err := p.checkpoint(ctx, t.ID); err != nil {
		return out, err
	}
	p.progress(ctx, t.ID, ProgressAccounts, msgAccounts)
	accounts, err := scr.ExtractAccounts(ctx, session)
	if err != nil {
		if cerr := p.checkpoint(ctx, t.ID); cerr != nil {
			return out, cerr
		}
		p.failed(ctx, t.ID, err.Error())
		return out, err
	}
	log.Info("pipeline: accounts extracted", zap.Int("count", len(accounts)))

	if err := p.checkpoint(ctx, t.ID); err != nil {
		return out, err
	}
	p.progress(ctx, t.ID, ProgressRecent, msgRecent)
	recent, err := scr.ExtractRecentMovements(ctx, session)
	if err != nil {
		log.Warn("pipeline: recent movements unavailable", zap.Error(err))
	}
	if recent == nil {
		recent = []bank.Movement{}
	}

	if err := p.checkpoint(ctx, t.ID); err != nil {
		return out, err
	}
	p.progress(ctx, t.ID, ProgressLedgers, msgLedgers)
	for i := range accounts {
		if err := p.checkpoint(ctx, t.ID); err != nil {
			return out, err
		}
		movs, err := scr.ExtractAccountMovements(ctx, session, accounts[i])
		if err != nil {
			log.Warn("pipeline: account movements incomplete",
				zap.String("account", accounts[i].Label),
				zap.String("number", bank.MaskIdentity(accounts[i].Number)),
				zap.Int("kept", len(movs)),
				zap.Error(err),
			)
		}
		if movs == nil {
			movs = []bank.Movement{}
		}
		accounts[i].Movements = movs
	}

	if err := p.checkpoint(ctx, t.ID); err != nil {
		return out, err
	}
	p.progress(ctx, t.ID, ProgressProcessing, msgProcessing)

	out.Result = p.assemble(accounts, recent)
	out.Batch = p.shape(ctx, t, out.Result)
	if p.sink != nil {
		if err := p.sink.SendMovements(ctx, out.Batch); err != nil {
			log.Warn("pipeline: movement delivery failed", zap.Error(err))
		}
	}

	p.report(ctx, t.ID, task.Update{
		Status:   task.StatusCompleted,
		Message:  msgDone,
		Progress: ProgressDone,
		Result:   out.Result,
	})
	log.Info("pipeline: completed",
		zap.Int("accounts", out.Result.TotalAccounts),
		zap.Int("movements", out.Result.TotalMovements),
	)
	return out, nil
}

func (p *Pipeline) assemble(accounts []bank.Account, recent []bank.Movement) bank.ExtractionResult {
	if accounts == nil {
		accounts = []bank.Account{}
	}
	total := len(recent)
	for _, a := range accounts {
		total += len(a.Movements)
	}
	return bank.ExtractionResult{
		Success:         true,
		ExtractedAt:     p.now(),
		Accounts:        accounts,
		RecentMovements: recent,
		TotalAccounts:   len(accounts),
		TotalMovements:  total,
		Metadata: bank.ResultMetadata{
			Bank:      bank.SiteBancoEstado,
			QueryType: bank.MetadataQueryRecentMovs,
		},
	}
}

// shape normalizes the result for the backend. A category table that cannot
// be fetched leaves every movement in normalize.DefaultCategory.
func (p *Pipeline) shape(ctx context.Context, t task.Task, res bank.ExtractionResult) backend.MovementBatch {
	var table []normalize.Category
	if p.categories != nil {
		cats, err := p.categories.Categories(ctx)
		if err != nil {
			p.log.Warn("pipeline: categories unavailable", zap.String("task_id", t.ID), zap.Error(err))
		}
		table = cats
	}

	var opts []normalize.Option
	if p.rules != nil {
		opts = append(opts, normalize.WithTypeRules(p.rules))
	}
	n := normalize.New(normalize.NewCategorizer(table), opts...)

	batch := backend.MovementBatch{
		TaskID:          t.ID,
		UserID:          t.UserID,
		Bank:            bank.SiteBancoEstado,
		ExtractedAt:     res.ExtractedAt,
		Accounts:        make([]backend.AccountMovements, 0, len(res.Accounts)),
		RecentMovements: n.Movements(res.RecentMovements),
	}
	for _, a := range res.Accounts {
		batch.Accounts = append(batch.Accounts, backend.AccountMovements{
			Number:    a.Number,
			Label:     a.Label,
			Balance:   a.Balance,
			Currency:  a.Currency,
			Movements: n.Movements(a.Movements),
		})
	}
	return batch
}

// checkpoint reports the task as cancelled once ctx is done.
func (p *Pipeline) checkpoint(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		p.log.Info("pipeline: cancelled", zap.String("task_id", id))
		p.report(ctx, id, task.Update{Status: task.StatusCancelled, Message: msgCancelled})
		return err
	}
	return nil
}

func (p *Pipeline) progress(ctx context.Context, id string, pct int, msg string) {
	p.report(ctx, id, task.Update{Status: task.StatusProcessing, Message: msg, Progress: pct})
}

func (p *Pipeline) failed(ctx context.Context, id, reason string) {
	p.report(ctx, id, task.Update{
		Status:  task.StatusFailed,
		Message: reason,
		Error:   reason,
		Result: bank.ExtractionResult{
			Success:         false,
			ExtractedAt:     p.now(),
			Accounts:        []bank.Account{},
			RecentMovements: []bank.Movement{},
			Error:           reason,
			Metadata: bank.ResultMetadata{
				Bank:      bank.SiteBancoEstado,
				QueryType: bank.MetadataQueryRecentMovs,
			},
		},
	})
}

// report writes u even after ctx is cancelled so the final state is never
// lost.
func (p *Pipeline) report(ctx context.Context, id string, u task.Update) {
	if err := p.status.UpdateStatus(context.WithoutCancel(ctx), id, u); err != nil {
		p.log.Warn("pipeline: status update failed",
			zap.String("task_id", id),
			zap.String("status", string(u.Status)),
			zap.Error(err),
		)
	}
}

// loginStatus renders a login failure as "<reason>[: <detail>]".
func loginStatus(err error) string {
	var le *bank.LoginError
	if errors.As(err, &le) {
		return le.Status()
	}
	return err.Error()
}
