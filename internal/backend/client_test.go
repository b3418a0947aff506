package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/grez-lucas/bancoestado-scraper/internal/normalize"
)

var stamp = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c := New(cfg, WithLogger(zaptest.NewLogger(t)))
	c.now = func() time.Time { return stamp }
	return c
}

func sampleBatch() MovementBatch {
	return MovementBatch{
		TaskID:      "t-1",
		Bank:        "banco_estado",
		ExtractedAt: stamp,
		Accounts: []AccountMovements{{
			Number:   "12345678",
			Label:    "CuentaRUT",
			Balance:  decimal.RequireFromString("1234567"),
			Currency: "CLP",
			Movements: []normalize.Movement{{
				Date:         "2026-03-01",
				Description:  "JUMBO",
				Amount:       decimal.RequireFromString("-15990"),
				Type:         normalize.TxPurchase,
				MovementType: normalize.Expense,
				Category:     "Food",
				AccountRef:   "CuentaRUT 12345678",
				Status:       "settled",
			}},
		}},
		RecentMovements: []normalize.Movement{},
	}
}

func TestClient_Categories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, DefaultCategoriesPath, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"category":"Food","keywords":["SUPERMARKET","JUMBO"]},
			{"name":"Transport","keywords":["UBER"]}
		]`)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{BaseURL: srv.URL, Token: "tok"})
	cats, err := c.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []normalize.Category{
		{Name: "Food", Keywords: []string{"SUPERMARKET", "JUMBO"}},
		{Name: "Transport", Keywords: []string{"UBER"}},
	}, cats)
}

func TestClient_CategoriesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, Config{BaseURL: srv.URL}).Categories(context.Background())
	assert.ErrorContains(t, err, "status 500")

	cats, err := newTestClient(t, Config{}).Categories(context.Background())
	require.NoError(t, err, "unconfigured client serves an empty table")
	assert.Empty(t, cats)
}

func TestClient_SendMovements(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ingest", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, Config{BaseURL: srv.URL, MovementsPath: "/ingest", FallbackDir: dir})
	require.NoError(t, c.SendMovements(context.Background(), sampleBatch()))

	assert.Equal(t, "t-1", got["task_id"])
	accounts := got["accounts"].([]any)
	require.Len(t, accounts, 1)
	mv := accounts[0].(map[string]any)["movements"].([]any)[0].(map[string]any)
	assert.Equal(t, "-15990", mv["amount"])
	assert.Equal(t, "expense", mv["movement_type"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no fallback file on success")
}

func TestClient_SendMovementsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "server error", cfg: Config{BaseURL: srv.URL}},
		{name: "not configured", cfg: Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.cfg.FallbackDir = dir

			err := newTestClient(t, tt.cfg).SendMovements(context.Background(), sampleBatch())
			require.Error(t, err)

			path := filepath.Join(dir, "banco_estado_20260314_150926_t-1.json")
			assert.ErrorContains(t, err, path)

			data, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			var saved MovementBatch
			require.NoError(t, json.Unmarshal(data, &saved))
			assert.Equal(t, "t-1", saved.TaskID)
			assert.True(t, saved.Accounts[0].Balance.Equal(decimal.RequireFromString("1234567")))
		})
	}
}

func TestSaveJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path, err := SaveJSON(dir, map[string]int{"a": 1}, stamp, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "banco_estado_20260314_150926.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(data))
}

func TestSaveJSON_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()

	first, err := SaveJSON(dir, map[string]int{"n": 1}, stamp, "task/1")
	require.NoError(t, err)
	second, err := SaveJSON(dir, map[string]int{"n": 2}, stamp, "task/1")
	require.NoError(t, err)
	other, err := SaveJSON(dir, map[string]int{"n": 3}, stamp, "task-2")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "banco_estado_20260314_150926_task1.json"), first)
	assert.Equal(t, filepath.Join(dir, "banco_estado_20260314_150926_task1_1.json"), second)
	assert.Equal(t, filepath.Join(dir, "banco_estado_20260314_150926_task-2.json"), other)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"n": 1`)
}
