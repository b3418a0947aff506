package testutil

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
)

const redacted = "[REDACTED]"

// sensitiveKey matches query, form, JSON and header names whose values are
// secrets. The portal mixes English and Spanish field names.
var sensitiveKey = regexp.MustCompile(`(?i)pass|clave|contrase|secret|token|sess|auth|jwt|bearer|api_?key|credential|cookie|csrf|xsrf|^rut|rut$|^dv$|^otp$|^pin$`)

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-csrf-token":        true,
	"x-xsrf-token":        true,
}

var (
	inlineToken = regexp.MustCompile(`(?i)(token|csrf|session)["'\s:=]+[A-Za-z0-9_\-.]{20,}["']?`)
	jsonString  = regexp.MustCompile(`"([^"]+)"\s*:\s*"[^"]*"`)
	jsonScalar  = regexp.MustCompile(`"([^"]+)"\s*:\s*(-?\d[\d.]*|true|false)`)
)

// TextRule rewrites one kind of personal data found in page text.
type TextRule struct {
	Name    string
	Pattern *regexp.Regexp
	Replace func(string) string
}

// TextRules cover what the BancoEstado portal prints about its customer.
var TextRules = []TextRule{
	{
		Name:    "rut",
		Pattern: regexp.MustCompile(`\b\d{1,2}\.?\d{3}\.?\d{3}-[\dkK]\b`),
		Replace: func(string) string { return "11.111.111-1" },
	},
	{
		Name:    "account number",
		Pattern: regexp.MustCompile(`(?i)(N[°º]|cuenta\s?rut|ahorro|corriente|vista)\s*:?\s*\d[\d-]{5,14}\d`),
		Replace: maskTrailingNumber,
	},
	{
		Name:    "greeting",
		Pattern: regexp.MustCompile(`\b(?i:hola|bienvenid[oa]),?\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)?`),
		Replace: func(m string) string {
			return strings.Fields(m)[0] + " NOMBRE APELLIDO"
		},
	},
	{
		Name:    "email",
		Pattern: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		Replace: func(string) string { return "cliente@example.com" },
	},
	{
		Name:    "inline token",
		Pattern: inlineToken,
		Replace: func(m string) string {
			return inlineToken.FindStringSubmatch(m)[1] + `="` + redacted + `"`
		},
	},
	{
		Name:    "cookie write",
		Pattern: regexp.MustCompile(`(?i)document\.cookie\s*=\s*["'][^"']+["']`),
		Replace: func(string) string { return `document.cookie="` + redacted + `"` },
	},
}

// maskTrailingNumber keeps the label of "N° 12345678" and masks the number.
func maskTrailingNumber(m string) string {
	i := len(m)
	for i > 0 && (m[i-1] >= '0' && m[i-1] <= '9' || m[i-1] == '-') {
		i--
	}
	return m[:i] + bank.MaskIdentity(m[i:])
}

// RedactText applies TextRules to s and reports how often each rule fired.
func RedactText(s string) (string, map[string]int) {
	counts := make(map[string]int)
	for _, rule := range TextRules {
		n := len(rule.Pattern.FindAllStringIndex(s, -1))
		if n == 0 {
			continue
		}
		counts[rule.Name] += n
		s = rule.Pattern.ReplaceAllStringFunc(s, rule.Replace)
	}
	return s, counts
}

// SanitizeHAR returns a copy of a with credentials, session material and
// customer data removed. Response bodies go through RedactText as well.
func SanitizeHAR(a *Archive) *Archive {
	out := &Archive{Entries: make([]Entry, len(a.Entries))}
	for i, e := range a.Entries {
		out.Entries[i] = Entry{
			Request: Request{
				Method:  e.Request.Method,
				URL:     sanitizeURL(e.Request.URL),
				Headers: sanitizeHeaders(e.Request.Headers),
				Body:    sanitizeBody(e.Request.Body),
			},
			Response: Response{
				Status:  e.Response.Status,
				Headers: sanitizeHeaders(e.Response.Headers),
				Content: sanitizeContent(e.Response.Content),
			},
		}
	}
	return out
}

func sanitizeContent(c Content) Content {
	if c.Encoding == "base64" || !isText(c.MimeType) {
		return c
	}
	text := c.Text
	if strings.Contains(strings.ToLower(c.MimeType), "json") {
		text = sanitizeJSON(text)
	}
	c.Text, _ = RedactText(text)
	c.Size = len(c.Text)
	return c
}

func isText(mime string) bool {
	mime = strings.ToLower(mime)
	return strings.HasPrefix(mime, "text/") || strings.Contains(mime, "json") ||
		strings.Contains(mime, "javascript") || strings.Contains(mime, "xml")
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	for k := range q {
		if sensitiveKey.MatchString(k) {
			q.Set(k, redacted)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func sanitizeHeaders(hs []Header) []Header {
	out := make([]Header, len(hs))
	for i, h := range hs {
		out[i] = h
		if sensitiveHeaders[strings.ToLower(h.Name)] || sensitiveKey.MatchString(h.Name) {
			out[i].Value = redacted
		}
	}
	return out
}

func sanitizeBody(body string) string {
	trimmed := strings.TrimSpace(body)
	switch {
	case trimmed == "":
		return body
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return sanitizeJSON(body)
	case strings.Contains(body, "=") && !strings.HasPrefix(trimmed, "<"):
		return sanitizeForm(body)
	}
	return body
}

func sanitizeForm(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return body
	}
	for k := range values {
		if sensitiveKey.MatchString(k) {
			values.Set(k, redacted)
		}
	}
	return values.Encode()
}

func sanitizeJSON(body string) string {
	redact := func(re *regexp.Regexp) func(string) string {
		return func(m string) string {
			key := re.FindStringSubmatch(m)[1]
			if !sensitiveKey.MatchString(key) {
				return m
			}
			return `"` + key + `":"` + redacted + `"`
		}
	}
	body = jsonString.ReplaceAllStringFunc(body, redact(jsonString))
	return jsonScalar.ReplaceAllStringFunc(body, redact(jsonScalar))
}
