package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
)

func TestDecode(t *testing.T) {
	tk, err := Decode([]byte(`{"id":"t-1","user_id":7,"type":"scraping","site":"banco_estado","data":{"rut_or_username":"12.345.678-9","password":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, "t-1", tk.ID)
	assert.Equal(t, 7, tk.UserID)
	assert.Equal(t, bank.SiteBancoEstado, tk.Site)

	_, err = Decode([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestTask_ForSite(t *testing.T) {
	assert.True(t, Task{ID: "a"}.ForSite(bank.SiteBancoEstado))
	assert.True(t, Task{ID: "a", Site: "BANCO_ESTADO"}.ForSite(bank.SiteBancoEstado))
	assert.False(t, Task{ID: "a", Site: "banco_chile"}.ForSite(bank.SiteBancoEstado))
}

func TestTask_Credentials(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		wantID  string
		wantErr bool
	}{
		{
			name:   "current field name",
			data:   map[string]any{"rut_or_username": "12.345.678-9", "password": "clave"},
			wantID: "12.345.678-9",
		},
		{
			name:   "legacy rut",
			data:   map[string]any{"rut": " 11111111-1 ", "password": "clave"},
			wantID: "11111111-1",
		},
		{
			name:   "current name wins",
			data:   map[string]any{"rut_or_username": "new", "rut": "old", "password": "clave"},
			wantID: "new",
		},
		{
			name:   "numeric identity",
			data:   map[string]any{"rut": float64(12345678), "password": "clave"},
			wantID: "12345678",
		},
		{name: "missing password", data: map[string]any{"rut": "1-9"}, wantErr: true},
		{name: "missing identity", data: map[string]any{"password": "clave"}, wantErr: true},
		{name: "no data", data: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := Task{ID: "t", Data: tt.data}.Credentials()
			if tt.wantErr {
				assert.ErrorIs(t, err, bank.ErrIncompleteCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, creds.ID)
			assert.Equal(t, "clave", creds.Secret)
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
