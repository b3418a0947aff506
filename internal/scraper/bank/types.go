package bank

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
)

const (
	DefaultCurrency = "CLP"

	AccountStatusActive     = "active"
	MovementStatusSettled   = "settled"
	DefaultAccountLabel     = "Cuenta sin nombre"
	FallbackAccountLabel    = "Cuenta"
	MetadataQueryRecentMovs = "recent_movements"
)

// Credentials is the login identity of one task. It never renders the secret
// and only a masked identity, so it is safe to pass to loggers.
type Credentials struct {
	ID     string
	Secret string
}

// Complete reports whether both halves of the credentials are present.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.ID) != "" && c.Secret != ""
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{id: %s}", MaskIdentity(c.ID))
}

func (c Credentials) GoString() string {
	return c.String()
}

func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", MaskIdentity(c.ID))
	enc.AddBool("has_secret", c.Secret != "")
	return nil
}

// MaskIdentity keeps the last three characters of an identity.
func MaskIdentity(id string) string {
	r := []rune(strings.TrimSpace(id))
	if len(r) <= 3 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-3) + string(r[len(r)-3:])
}

type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateAuthenticating  SessionState = "authenticating"
	StateAuthenticated   SessionState = "authenticated"
	StateFailed          SessionState = "failed"
)

// Session wraps the one browser page a task run owns.
type Session struct {
	ID          string
	BankCode    BankCode
	State       SessionState
	LastURL     string
	Fingerprint browser.Fingerprint
	StartedAt   time.Time

	Page browser.Page
}

func NewSession(code BankCode, page browser.Page, fp browser.Fingerprint) *Session {
	return &Session{
		ID:          uuid.NewString(),
		BankCode:    code,
		State:       StateUnauthenticated,
		Fingerprint: fp,
		StartedAt:   time.Now(),
		Page:        page,
	}
}

func (s *Session) Authenticated() bool {
	return s != nil && s.State == StateAuthenticated
}

type Account struct {
	Number    string          `json:"number"`
	Label     string          `json:"label"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Holder    string          `json:"holder"`
	Status    string          `json:"status"`
	Movements []Movement      `json:"movements"`
}

// Key is the account identity: its number, or its label when the number is
// unknown.
func (a Account) Key() string {
	if n := strings.TrimSpace(a.Number); n != "" {
		return n
	}
	return strings.TrimSpace(a.Label)
}

type MovementType string

const (
	MovementCredit MovementType = "credit"
	MovementDebit  MovementType = "debit"
)

type Movement struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // negative for charges
	Type        MovementType    `json:"type"`
	AccountRef  string          `json:"account_ref"`
	Status      string          `json:"status"`
}

// MovementKey identifies a movement within one extraction pass.
type MovementKey struct {
	Date        string
	Description string
	Amount      string
}

func (m Movement) Key() MovementKey {
	return MovementKey{
		Date:        strings.TrimSpace(m.Date),
		Description: strings.TrimSpace(m.Description),
		Amount:      m.Amount.String(),
	}
}

// NewMovement builds a settled movement whose type follows the amount sign.
func NewMovement(date, description string, amount decimal.Decimal, accountRef string) Movement {
	typ := MovementCredit
	if amount.IsNegative() {
		typ = MovementDebit
	}
	return Movement{
		Date:        date,
		Description: description,
		Amount:      amount,
		Type:        typ,
		AccountRef:  accountRef,
		Status:      MovementStatusSettled,
	}
}

type ResultMetadata struct {
	Bank      string `json:"bank"`
	QueryType string `json:"query_type"`
}

type ExtractionResult struct {
	Success         bool           `json:"success"`
	ExtractedAt     time.Time      `json:"extracted_at"`
	Accounts        []Account      `json:"accounts"`
	RecentMovements []Movement     `json:"recent_movements"`
	Error           string         `json:"error,omitempty"`
	TotalAccounts   int            `json:"total_accounts"`
	TotalMovements  int            `json:"total_movements"`
	Metadata        ResultMetadata `json:"metadata"`
}
