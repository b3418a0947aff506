// Package task models the scraping tasks handed over by the backend and the
// status updates reported back while a task runs.
package task

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further update follows s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is one queued extraction request. Data carries the credentials and is
// never logged.
type Task struct {
	ID     string         `json:"id"`
	UserID int            `json:"user_id,omitempty"`
	Type   string         `json:"type,omitempty"`
	Site   string         `json:"site,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Decode parses a queued task. A task without id is rejected.
func Decode(raw []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return Task{}, eris.Wrap(err, "task: decode")
	}
	if strings.TrimSpace(t.ID) == "" {
		return Task{}, eris.New("task: missing id")
	}
	return t, nil
}

// ForSite reports whether the task addresses site. Tasks without a site are
// for everyone.
func (t Task) ForSite(site string) bool {
	return t.Site == "" || strings.EqualFold(t.Site, site)
}

// identityKeys are tried in order; "rut" is the legacy name.
var identityKeys = []string{"rut_or_username", "rut"}

// Credentials reads the login identity and password from Data.
func (t Task) Credentials() (bank.Credentials, error) {
	var creds bank.Credentials
	for _, k := range identityKeys {
		if v := stringField(t.Data, k); v != "" {
			creds.ID = v
			break
		}
	}
	creds.Secret = stringField(t.Data, "password")

	if !creds.Complete() {
		return bank.Credentials{}, bank.ErrIncompleteCredentials
	}
	return creds, nil
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// Update is one status report for a task.
type Update struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
	// Result is set on the final update of a completed task.
	Result any `json:"result,omitempty"`
}

// Control is an out-of-band instruction, e.g. {"action":"cancel","id":"..."}.
type Control struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}

const ActionCancel = "cancel"
