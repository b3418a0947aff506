// capture-fixtures opens a visible browser on the BancoEstado portal and saves
// a flattened DOM snapshot and a screenshot of each page you walk through.
//
// Usage:
//
//	go run ./scripts/capture-fixtures
//	go run ./scripts/capture-fixtures -output=/tmp/fixtures -redact=false
//
// Snapshots inline iframes and shadow roots, so the saved HTML parses with
// goquery exactly like the pages the scraper sees.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank/bancoestado"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/testutil"
)

type step struct {
	Name         string
	Instructions string
}

// steps follow the fixtures under bank/bancoestado/testdata/fixtures.
var steps = []step{
	{"landing", "Wait for the public home page (don't open Banca en Línea yet)"},
	{"login", "Click 'Banca en Línea' and wait for the RUT and Clave inputs"},
	{"login_rejected", "Submit an INVALID clave and wait for the error"},
	{"dashboard", "Log in with VALID credentials and wait for the product carousel"},
	{"ledger", "Open 'Movimientos' on an account with more than one page"},
	{"ledger_last_page", "Page forward until 'Siguiente' is disabled"},
}

func main() {
	outputDir := flag.String("output", filepath.Join("internal", "scraper", "bank", "bancoestado", "testdata", "fixtures"), "Output directory")
	bin := flag.String("bin", "", "Chromium binary (empty lets rod locate one)")
	redact := flag.Bool("redact", true, "Redact RUTs, names and account numbers before writing")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatal("create output dir", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fp := browser.NewFingerprint(rand.New(rand.NewSource(time.Now().UnixNano())))
	b, err := browser.Launch(ctx, browser.LaunchConfig{Bin: *bin}, fp, log)
	if err != nil {
		log.Fatal("launch browser", zap.Error(err))
	}
	defer func() { _ = b.Close() }()

	page := b.Page()
	if err := page.Navigate(ctx, bancoestado.URLRoot); err != nil {
		log.Warn("open portal", zap.Error(err))
	}

	fmt.Println("================================================================")
	fmt.Println("  BANCOESTADO FIXTURE CAPTURE")
	fmt.Printf("  Output: %s\n", *outputDir)
	fmt.Println("  ENTER captures, 'skip' skips a page, 'quit' exits")
	fmt.Println("================================================================")

	reader := bufio.NewReader(os.Stdin)
	for _, s := range steps {
		fmt.Println("----------------------------------------------------------------")
		fmt.Printf("%s.html\n  -> %s\n  Press ENTER when ready: ", s.Name, s.Instructions)

		input, _ := reader.ReadString('\n')
		switch strings.TrimSpace(strings.ToLower(input)) {
		case "quit":
			return
		case "skip":
			continue
		}

		if err := capture(ctx, page, *outputDir, s.Name, *redact); err != nil {
			log.Error("capture failed", zap.String("page", s.Name), zap.Error(err))
		}
	}

	fmt.Println("================================================================")
	fmt.Println("  Capture complete. Review the files before committing:")
	fmt.Println("    go run ./scripts/sanitize-patterns -dry-run")
	fmt.Println("================================================================")
}

func capture(ctx context.Context, page *browser.RodPage, dir, name string, redact bool) error {
	if err := page.WaitStable(ctx, time.Second); err != nil {
		return fmt.Errorf("wait for page: %w", err)
	}

	if png, err := page.Screenshot(ctx); err != nil {
		fmt.Printf("  screenshot failed: %v\n", err)
	} else if err := os.WriteFile(filepath.Join(dir, name+".png"), png, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}

	snap, err := browser.CaptureDOM(ctx, page)
	if err != nil {
		return err
	}

	html := snap.HTML
	if redact {
		var counts map[string]int
		html, counts = testutil.RedactText(html)
		for rule, n := range counts {
			fmt.Printf("  redacted %d x %s\n", n, rule)
		}
	}

	path := filepath.Join(dir, name+".html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}

	url, _ := page.URL(ctx)
	fmt.Printf("  saved %s (frames=%d, shadow roots=%d)\n  url: %s\n", path, snap.Frames, snap.ShadowRoots, url)
	return nil
}
