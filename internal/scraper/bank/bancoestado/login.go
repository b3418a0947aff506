package bancoestado

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
)

// loginState is a node of the login state machine.
type loginState string

const (
	stateStart              loginState = "start"
	stateNavigatedHome      loginState = "navigated_home"
	stateOverlayClear       loginState = "overlay_clear"
	statePortalOpened       loginState = "banking_portal_opened"
	stateCredentialsEntered loginState = "credentials_entered"
	stateSubmitAttempted    loginState = "submit_attempted"
	statePostSubmitCheck    loginState = "post_submit_check"
	stateAuthenticated      loginState = "authenticated"
	stateFailed             loginState = "failed"
)

const removeReadonlyJS = `() => { this.removeAttribute('readonly'); return true; }`

// loginRun is the state of one login attempt.
type loginRun struct {
	creds   bank.Credentials
	session *bank.Session
	page    browser.Page
	trace   []loginState
}

type loginStep func(ctx context.Context, run *loginRun) (loginState, error)

// Login drives the portal from its public landing page to the dashboard.
// Every failure is terminal and reported as a *bank.LoginError wrapped in a
// *bank.ScraperError; the state machine itself never retries.
func (s *Scraper) Login(ctx context.Context, creds bank.Credentials) (*bank.Session, error) {
	if !creds.Complete() {
		return nil, s.fail("Login", bank.ErrIncompleteCredentials, "")
	}

	run := &loginRun{
		creds:   creds,
		session: bank.NewSession(bank.BankEstado, s.page, s.fp),
		page:    s.page,
	}
	run.session.State = bank.StateAuthenticating

	log := s.log.With(zap.String("session_id", run.session.ID), zap.Object("credentials", creds))
	log.Info("login: starting")

	steps := map[loginState]loginStep{
		stateStart:              s.navigateHome,
		stateNavigatedHome:      s.clearOverlays,
		stateOverlayClear:       s.openBankingPortal,
		statePortalOpened:       s.enterCredentials,
		stateCredentialsEntered: s.submit,
		stateSubmitAttempted:    s.checkRejection,
		statePostSubmitCheck:    s.confirmDashboard,
	}

	state := stateStart
	for state != stateAuthenticated {
		run.trace = append(run.trace, state)

		if err := ctx.Err(); err != nil {
			return nil, s.loginFailed(ctx, run, log, &bank.LoginError{Reason: bank.ReasonNavigation, Cause: err})
		}

		next, err := steps[state](ctx, run)
		if err != nil {
			return nil, s.loginFailed(ctx, run, log, err)
		}
		log.Debug("login: transition", zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}
	run.trace = append(run.trace, stateAuthenticated)

	if url, err := run.page.URL(ctx); err == nil {
		run.session.LastURL = url
	}
	run.session.State = bank.StateAuthenticated
	log.Info("login: authenticated", zap.Strings("trace", traceNames(run.trace)), zap.String("url", run.session.LastURL))

	return run.session, nil
}

func (s *Scraper) loginFailed(ctx context.Context, run *loginRun, log *zap.Logger, err error) error {
	run.session.State = bank.StateFailed
	run.trace = append(run.trace, stateFailed)

	reason := "unknown"
	var le *bank.LoginError
	if errors.As(err, &le) {
		reason = string(le.Reason)
	}
	log.Warn("login: failed", zap.Strings("trace", traceNames(run.trace)), zap.Error(err))
	s.artifacts.Capture(context.WithoutCancel(ctx), run.page, "login_"+reason)

	return s.fail("Login", err, "")
}

// start -> navigated_home
func (s *Scraper) navigateHome(ctx context.Context, run *loginRun) (loginState, error) {
	nctx, cancel := context.WithTimeout(ctx, s.timeouts.Navigation)
	defer cancel()

	if err := run.page.Navigate(nctx, s.rootURL); err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonNavigation, Cause: err}
	}
	if err := run.page.WaitStable(nctx, stableWindow); err != nil {
		s.log.Debug("login: landing page did not settle", zap.Error(err))
	}
	return stateNavigatedHome, nil
}

// navigated_home -> overlay_clear. Best effort, never fails.
func (s *Scraper) clearOverlays(ctx context.Context, run *loginRun) (loginState, error) {
	s.human.Idle(ctx, run.page)
	if outcome := s.in.DismissOverlays(ctx, run.page, Overlays); outcome != browser.Succeeded {
		s.log.Debug("login: no overlays dismissed", zap.Stringer("outcome", outcome))
	}
	return stateOverlayClear, nil
}

// overlay_clear -> banking_portal_opened
func (s *Scraper) openBankingPortal(ctx context.Context, run *loginRun) (loginState, error) {
	s.human.MoveMouse(ctx, run.page)

	entry, err := s.in.WaitForAny(ctx, run.page, entryPointChain, s.timeouts.Selector, true)
	if err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonEntryPointNotFound, Cause: err}
	}
	if _, err := s.in.Click(ctx, entry, browser.ClickUI, browser.ClickScript); err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonEntryPointNotFound, Detail: "click", Cause: err}
	}
	if err := s.in.Settle(ctx); err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonNavigation, Cause: err}
	}
	return statePortalOpened, nil
}

// banking_portal_opened -> credentials_entered
func (s *Scraper) enterCredentials(ctx context.Context, run *loginRun) (loginState, error) {
	s.human.Scroll(ctx, run.page)

	fields := []struct {
		name  string
		chain browser.Chain
		value string
	}{
		{"rut", rutInputChain, NormalizeRUT(run.creds.ID)},
		{"password", passwordInputChain, run.creds.Secret},
	}

	for _, f := range fields {
		el, err := s.in.WaitForAny(ctx, run.page, f.chain, s.timeouts.Selector, true)
		if err != nil {
			return stateFailed, &bank.LoginError{Reason: bank.ReasonCredentialEntry, Detail: f.name + " field not found", Cause: err}
		}
		if _, err := el.Eval(ctx, removeReadonlyJS); err != nil {
			s.log.Debug("login: could not clear readonly", zap.String("field", f.name), zap.Error(err))
		}
		if outcome := s.human.Type(ctx, el, f.value); outcome != browser.Succeeded {
			return stateFailed, &bank.LoginError{Reason: bank.ReasonCredentialEntry, Detail: f.name + " not typed"}
		}
		if err := s.human.Pause(ctx, 500*time.Millisecond, 950*time.Millisecond); err != nil {
			return stateFailed, &bank.LoginError{Reason: bank.ReasonCredentialEntry, Cause: err}
		}
	}

	s.human.Idle(ctx, run.page)
	return stateCredentialsEntered, nil
}

// credentials_entered -> submit_attempted
func (s *Scraper) submit(ctx context.Context, run *loginRun) (loginState, error) {
	button, err := s.in.WaitForAny(ctx, run.page, submitChain, s.timeouts.Selector, true)
	if err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonSubmitUnreachable, Detail: "submit control not found", Cause: err}
	}

	s.human.MoveMouse(ctx, run.page)

	used, err := s.in.Click(ctx, button, browser.EscalatingClicks()...)
	if err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonSubmitUnreachable, Cause: err}
	}
	s.log.Debug("login: submitted", zap.String("click", used.Name()))
	return stateSubmitAttempted, nil
}

// submit_attempted -> post_submit_check
func (s *Scraper) checkRejection(ctx context.Context, run *loginRun) (loginState, error) {
	if err := s.in.Sleep(ctx, s.timeouts.PostSubmit); err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonAmbiguous, Cause: err}
	}

	html, err := run.page.HTML(ctx)
	if err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonAmbiguous, Detail: "page unreadable", Cause: err}
	}
	if phrase, rejected := DetectRejection(html); rejected {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonRejected, Detail: phrase}
	}
	return statePostSubmitCheck, nil
}

// post_submit_check -> authenticated
func (s *Scraper) confirmDashboard(ctx context.Context, run *loginRun) (loginState, error) {
	el, err := s.in.WaitForAny(ctx, run.page, dashboardChain, s.timeouts.Selector, false)
	if err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonAmbiguous, Cause: err}
	}
	if el != nil {
		return stateAuthenticated, nil
	}

	url, err := run.page.URL(ctx)
	if err != nil {
		return stateFailed, &bank.LoginError{Reason: bank.ReasonAmbiguous, Cause: err}
	}
	lower := strings.ToLower(url)
	for _, fragment := range successURLFragments {
		if strings.Contains(lower, fragment) {
			s.log.Debug("login: dashboard confirmed by URL", zap.String("url", url))
			return stateAuthenticated, nil
		}
	}
	return stateFailed, &bank.LoginError{Reason: bank.ReasonAmbiguous, Detail: fmt.Sprintf("unexpected URL %s", url)}
}

func traceNames(trace []loginState) []string {
	out := make([]string, len(trace))
	for i, st := range trace {
		out[i] = string(st)
	}
	return out
}
