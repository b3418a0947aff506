// sanitize-patterns redacts customer data left in captured HTML fixtures:
// RUTs, names in greetings, account numbers, e-mails and inline tokens.
//
// Usage:
//
//	go run ./scripts/sanitize-patterns [-dir=...] [-dry-run]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/testutil"
)

func main() {
	dir := flag.String("dir", filepath.Join("internal", "scraper", "bank", "bancoestado", "testdata", "fixtures"), "Fixture directory")
	dryRun := flag.Bool("dry-run", false, "Show what would change without writing")
	flag.Parse()

	files, err := filepath.Glob(filepath.Join(*dir, "*.html"))
	if err != nil || len(files) == 0 {
		fmt.Printf("No HTML files found in %s\n", *dir)
		os.Exit(1)
	}

	failed := false
	for _, f := range files {
		if err := sanitizeFile(f, *dryRun); err != nil {
			fmt.Printf("%s: %v\n", filepath.Base(f), err)
			failed = true
		}
	}
	if *dryRun {
		fmt.Println("\nDry run: run without -dry-run to apply changes")
	}
	if failed {
		os.Exit(1)
	}
}

func sanitizeFile(path string, dryRun bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	sanitized, counts := testutil.RedactText(string(content))
	if len(counts) == 0 {
		fmt.Printf("%s: clean\n", filepath.Base(path))
		return nil
	}

	rules := make([]string, 0, len(counts))
	for r := range counts {
		rules = append(rules, r)
	}
	sort.Strings(rules)

	fmt.Printf("%s:\n", filepath.Base(path))
	for _, r := range rules {
		fmt.Printf("  - %s: %d\n", r, counts[r])
	}

	if dryRun {
		return nil
	}
	return os.WriteFile(path, []byte(sanitized), 0o644)
}
