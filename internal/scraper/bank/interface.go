// Package bank defines the common structs and logic used throughout bank
// implementations.
package bank

import "context"

type BankScraper interface {
	// Login drives the portal from its landing page to an authenticated
	// dashboard.
	Login(ctx context.Context, creds Credentials) (*Session, error)

	// ExtractAccounts reads every account card reachable from the dashboard.
	ExtractAccounts(ctx context.Context, session *Session) ([]Account, error)

	// ExtractRecentMovements reads the dashboard's recent movements feed.
	ExtractRecentMovements(ctx context.Context, session *Session) ([]Movement, error)

	// ExtractAccountMovements opens the ledger of one account and reads it.
	// A partial list may be returned together with an error.
	ExtractAccountMovements(ctx context.Context, session *Session, account Account) ([]Movement, error)

	// Close releases the browser regardless of the session state.
	Close() error
}

type BankCode string

const (
	BankEstado BankCode = "BANCO_ESTADO"
)

// SiteBancoEstado is the identifier tasks use to address this scraper.
const SiteBancoEstado = "banco_estado"
