package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactText(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		rules map[string]int
	}{
		{
			name:  "rut and greeting",
			in:    "Hola Juan Pérez, tu RUT es 12.345.678-9",
			want:  "Hola NOMBRE APELLIDO, tu RUT es 11.111.111-1",
			rules: map[string]int{"rut": 1, "greeting": 1},
		},
		{
			name:  "account numbers keep their label",
			in:    "CuentaRUT N° 12345678 | Cuenta de Ahorro 1234567890",
			want:  "CuentaRUT N° *****678 | Cuenta de Ahorro *******890",
			rules: map[string]int{"account number": 2},
		},
		{
			name:  "inline token",
			in:    `var csrfToken = "abcdefghijklmnopqrstuvwxyz123";`,
			want:  `var csrfToken="[REDACTED]";`,
			rules: map[string]int{"inline token": 1},
		},
		{
			name:  "email",
			in:    "Aviso enviado a juan.perez@gmail.com",
			want:  "Aviso enviado a cliente@example.com",
			rules: map[string]int{"email": 1},
		},
		{
			name:  "amounts and dates untouched",
			in:    "14/03/2026 Compra JUMBO $15.990",
			want:  "14/03/2026 Compra JUMBO $15.990",
			rules: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, counts := RedactText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rules, counts)
		})
	}
}

func TestSanitizeHAR(t *testing.T) {
	in := &Archive{Entries: []Entry{
		{
			Request: Request{
				Method: "POST",
				URL:    "https://www.bancoestado.cl/api/login?token=abc&page=2",
				Headers: []Header{
					{Name: "Cookie", Value: "JSESSIONID=s3cr3t"},
					{Name: "User-Agent", Value: "Mozilla/5.0"},
				},
				Body: "rut=12345678&dv=9&pass=s3cr3t-clave&accion=login",
			},
			Response: Response{
				Status:  200,
				Headers: []Header{{Name: "Set-Cookie", Value: "JSESSIONID=s3cr3t; Path=/"}},
				Content: Content{
					MimeType: "application/json",
					Text:     `{"saldo":1000,"sessionToken":"xyz","authLevel":2}`,
				},
			},
		},
		{
			Request: Request{Method: "GET", URL: "https://www.bancoestado.cl/personas/home"},
			Response: Response{
				Status:  200,
				Content: Content{MimeType: "text/html", Text: "<p>Hola Juan Pérez</p>"},
			},
		},
		{
			Request: Request{Method: "GET", URL: "https://www.bancoestado.cl/logo.png"},
			Response: Response{
				Status:  200,
				Content: Content{MimeType: "image/png", Text: "aGVsbG8=", Encoding: "base64"},
			},
		},
	}}

	out := SanitizeHAR(in)
	require.Len(t, out.Entries, 3)

	login := out.Entries[0]
	assert.Contains(t, login.Request.URL, "page=2")
	assert.NotContains(t, login.Request.URL, "abc")
	assert.Equal(t, redacted, login.Request.Headers[0].Value)
	assert.Equal(t, "Mozilla/5.0", login.Request.Headers[1].Value)
	assert.Contains(t, login.Request.Body, "accion=login")
	assert.NotContains(t, login.Request.Body, "s3cr3t")
	assert.NotContains(t, login.Request.Body, "12345678")
	assert.Equal(t, redacted, login.Response.Headers[0].Value)
	assert.Equal(t, `{"saldo":1000,"sessionToken":"[REDACTED]","authLevel":"[REDACTED]"}`, login.Response.Content.Text)

	assert.Equal(t, "<p>Hola NOMBRE APELLIDO</p>", out.Entries[1].Response.Content.Text)
	assert.Equal(t, in.Entries[2].Response.Content, out.Entries[2].Response.Content)

	assert.True(t, strings.HasPrefix(in.Entries[0].Request.Body, "rut=12345678"), "input is not modified")
	assert.Equal(t, "JSESSIONID=s3cr3t", in.Entries[0].Request.Headers[0].Value)
}
