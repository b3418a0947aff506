// sanitize-har removes credentials, session material and customer data from
// a HAR recording before it is committed, and drops third-party traffic the
// replayer never serves.
//
// Usage:
//
//	go run ./scripts/sanitize-har -scenario=login-success
//	go run ./scripts/sanitize-har -input=recording.har -output=sanitized.har.json
//	go run ./scripts/sanitize-har -scenario=login-success -dry-run
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/testutil"
)

const portalHost = "bancoestado.cl"

func main() {
	scenario := flag.String("scenario", "", "Recording under bank/bancoestado/testdata/recordings (e.g. login-success)")
	inputPath := flag.String("input", "", "Input HAR file path")
	outputPath := flag.String("output", "", "Output HAR file path (defaults to input)")
	keepAll := flag.Bool("keep-third-party", false, "Keep requests to hosts other than "+portalHost)
	dryRun := flag.Bool("dry-run", false, "Report redactions without writing")
	flag.Parse()

	var in string
	switch {
	case *scenario != "":
		in = filepath.Join("internal", "scraper", "bank", "bancoestado", "testdata", "recordings", *scenario+".har.json")
	case *inputPath != "":
		in = *inputPath
	default:
		flag.Usage()
		os.Exit(1)
	}
	out := in
	if *outputPath != "" {
		out = *outputPath
	}

	har, err := testutil.LoadHAR(in)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d entries from %s\n", len(har.Entries), in)

	if !*keepAll {
		before := len(har.Entries)
		har = har.Filter(portalHost)
		fmt.Printf("Dropped %d third-party entries\n", before-len(har.Entries))
	}

	sanitized := testutil.SanitizeHAR(har)
	changed := report(har, sanitized)
	fmt.Printf("Redacted values in %d entries\n", changed)

	if *dryRun {
		fmt.Println("[DRY RUN] nothing written")
		return
	}
	if err := testutil.SaveHAR(out, sanitized); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sanitized recording saved to %s\n", out)
}

// report prints what changed per entry and returns how many entries changed.
func report(orig, san *testutil.Archive) int {
	changed := 0
	for i := range orig.Entries {
		o, s := orig.Entries[i], san.Entries[i]

		var parts []string
		if o.Request.URL != s.Request.URL {
			parts = append(parts, "query")
		}
		parts = append(parts, headerDiff("request header", o.Request.Headers, s.Request.Headers)...)
		if o.Request.Body != s.Request.Body {
			parts = append(parts, "request body")
		}
		parts = append(parts, headerDiff("response header", o.Response.Headers, s.Response.Headers)...)
		if o.Response.Content.Text != s.Response.Content.Text {
			parts = append(parts, "response body")
		}

		if len(parts) == 0 {
			continue
		}
		changed++
		fmt.Printf("  %3d %s %s\n      %s\n", i+1, o.Request.Method, truncate(o.Request.URL, 80), strings.Join(parts, ", "))
	}
	return changed
}

func headerDiff(kind string, orig, san []testutil.Header) []string {
	var out []string
	for j := range orig {
		if orig[j].Value != san[j].Value {
			out = append(out, fmt.Sprintf("%s %q", kind, orig[j].Name))
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
