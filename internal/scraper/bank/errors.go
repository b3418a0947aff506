package bank

import (
	"errors"
	"fmt"
)

var (
	ErrLoginFailed           = errors.New("login failed")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrIncompleteCredentials = errors.New("incomplete credentials")

	ErrNoAccountsFound      = errors.New("no accounts found")
	ErrDashboardUnreachable = errors.New("dashboard unreachable")
	ErrAccountNotVisible    = errors.New("account card not visible")
	ErrLedgerNotFound       = errors.New("movements ledger not found")

	ErrParsingFailed = errors.New("failed to parse bank response")
	ErrTimeout       = errors.New("operation timed out")
)

// ScraperError provides detailed error context
type ScraperError struct {
	BankCode  BankCode
	Operation string
	Cause     error
	Details   string
}

func (e *ScraperError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s failed: %v", e.BankCode, e.Operation, e.Cause)
	}
	return fmt.Sprintf("[%s] %s failed: %v - %s", e.BankCode, e.Operation, e.Cause, e.Details)
}

func (e *ScraperError) Unwrap() error {
	return e.Cause
}

// LoginReason names the state where the login state machine stopped.
type LoginReason string

const (
	ReasonNavigation         LoginReason = "navigation"
	ReasonEntryPointNotFound LoginReason = "entry_point_not_found"
	ReasonCredentialEntry    LoginReason = "credential_entry"
	ReasonSubmitUnreachable  LoginReason = "submit_unreachable"
	ReasonRejected           LoginReason = "rejected"
	ReasonAmbiguous          LoginReason = "ambiguous_post_login_state"
)

// LoginError is the terminal failure of a login attempt.
type LoginError struct {
	Reason LoginReason
	// Detail carries the matched rejection phrase for ReasonRejected.
	Detail string
	Cause  error
}

// Status renders the failure the way it is reported to the task sink, e.g.
// "rejected: clave incorrecta".
func (e *LoginError) Status() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *LoginError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("login failed (%s): %v", e.Status(), e.Cause)
	}
	return fmt.Sprintf("login failed (%s)", e.Status())
}

func (e *LoginError) Unwrap() []error {
	errs := []error{ErrLoginFailed}
	if e.Reason == ReasonRejected {
		errs = append(errs, ErrInvalidCredentials)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
