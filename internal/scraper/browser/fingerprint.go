package browser

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	DefaultLocale   = "es-CL"
	DefaultTimezone = "America/Santiago"

	chromeMajorMin = 110
	chromeMajorMax = 122

	userAgentTemplate = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.%d.0 Safari/537.36"
)

// Fingerprint is the evasion profile of one session.
type Fingerprint struct {
	UserAgent string
	Width     int
	Height    int
	Locale    string
	Timezone  string
}

// NewFingerprint draws a desktop Chrome profile: a Chrome 110-122 user agent
// and a full-HD viewport whose height varies like a window with toolbars.
func NewFingerprint(rng *rand.Rand) Fingerprint {
	major := chromeMajorMin + rng.Intn(chromeMajorMax-chromeMajorMin+1)
	build := rng.Intn(10000)

	return Fingerprint{
		UserAgent: fmt.Sprintf(userAgentTemplate, major, build),
		Width:     1920,
		Height:    1080 - rng.Intn(4)*8,
		Locale:    DefaultLocale,
		Timezone:  DefaultTimezone,
	}
}

// AcceptLanguage renders the Accept-Language header for the locale.
func (f Fingerprint) AcceptLanguage() string {
	lang, _, _ := strings.Cut(f.Locale, "-")
	if lang == "" || lang == f.Locale {
		return f.Locale
	}
	return fmt.Sprintf("%s,%s;q=0.9", f.Locale, lang)
}
