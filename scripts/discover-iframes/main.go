// discover-iframes walks the frame tree of the live BancoEstado portal and
// reports which frame each scraper locator chain resolves in, and which
// strategy of the chain matched.
//
// Usage:
//
//	go run ./scripts/discover-iframes
//
// A visible browser opens on the portal. Navigate to each page when
// prompted and press ENTER to print the report for it.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank/bancoestado"
	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"
)

const maxDepth = 4

var pages = []struct {
	Name         string
	Instructions string
}{
	{"Landing", "Wait for the public home page"},
	{"Login", "Click 'Banca en Línea' (don't log in yet)"},
	{"Dashboard", "Log in and wait for the product carousel"},
	{"Ledger", "Open 'Movimientos' on any account"},
}

func main() {
	bin := flag.String("bin", "", "Chromium binary (empty lets rod locate one)")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

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

	probes := bancoestado.Probes()
	reader := bufio.NewReader(os.Stdin)

	for _, pg := range pages {
		fmt.Println("----------------------------------------------------------------")
		fmt.Printf("PAGE: %s\n  -> %s\n  Press ENTER when ready (or 'skip'/'quit'): ", pg.Name, pg.Instructions)

		input, _ := reader.ReadString('\n')
		switch strings.TrimSpace(strings.ToLower(input)) {
		case "quit":
			return
		case "skip":
			continue
		}

		if err := page.WaitStable(ctx, 500*time.Millisecond); err != nil {
			log.Warn("page did not settle", zap.Error(err))
		}
		url, _ := page.URL(ctx)
		fmt.Printf("\n  URL: %s\n\n", url)

		inspect(ctx, page.Rod(), fp, "main", 1, probes)
		fmt.Println()
	}
}

// inspect reports the probes that resolve in frame, then recurses into its
// iframes.
func inspect(ctx context.Context, frame *rod.Page, fp browser.Fingerprint, path string, depth int, probes []bancoestado.Probe) {
	indent := strings.Repeat("  ", depth)
	root := browser.NewRodPage(frame, fp.Width, fp.Height)

	found := 0
	for _, p := range probes {
		el, strategy := p.Chain.First(ctx, root)
		if el == nil {
			continue
		}
		fmt.Printf("%sFOUND  %-24s via %s\n", indent, p.Name, strategy)
		found++
	}
	if found == 0 {
		fmt.Printf("%s(no probes matched)\n", indent)
	}

	if depth >= maxDepth {
		return
	}

	iframes, err := frame.Elements("iframe")
	if err != nil {
		return
	}
	for i, iframe := range iframes {
		label := fmt.Sprintf("iframe[%d]", i)
		if id, _ := iframe.Attribute("id"); id != nil && *id != "" {
			label = "iframe#" + *id
		} else if name, _ := iframe.Attribute("name"); name != nil && *name != "" {
			label = fmt.Sprintf("iframe[name=%s]", *name)
		}
		src := ""
		if s, _ := iframe.Attribute("src"); s != nil {
			src = *s
		}
		visible, _ := iframe.Visible()
		child := path + " > " + label

		fmt.Printf("\n%sIFRAME %s  visible=%v  src=%s\n", indent, child, visible, truncate(src, 80))

		f, err := iframe.Frame()
		if err != nil {
			fmt.Printf("%s  (cannot enter frame: %v)\n", indent, err)
			continue
		}
		inspect(ctx, f, fp, child, depth+1, probes)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
