// Package testutil loads the HTML fixtures stored next to each bank package.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fixturePath resolves bank/<bankDir>/testdata/fixtures/<name>.html relative
// to this file, so tests work from any working directory.
func fixturePath(bankDir, name string) string {
	_, filename, _, _ := runtime.Caller(0)
	baseDir := filepath.Dir(filepath.Dir(filename)) // up to bank/

	return filepath.Join(baseDir, bankDir, "testdata", "fixtures", name+".html")
}

// LoadFixture reads testdata/fixtures/<name>.html of the bank package in
// bankDir and fails the test when it is missing.
func LoadFixture(t *testing.T, bankDir, name string) string {
	t.Helper()

	data, err := os.ReadFile(fixturePath(bankDir, name))
	if err != nil {
		t.Fatalf("Failed to load fixture %s/%s: %v", bankDir, name, err)
	}

	return string(data)
}
