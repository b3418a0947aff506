package browser

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeystrokeDelay_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		d := keystrokeDelay(rng, 'a', 'b')
		assert.GreaterOrEqual(t, d, 160*time.Millisecond)
		assert.LessOrEqual(t, d, 715*time.Millisecond)
	}
}

func TestKeystrokeDelay_SlowerAfterSeparatorsAndSwitches(t *testing.T) {
	avg := func(prev, cur rune) time.Duration {
		rng := rand.New(rand.NewSource(42))
		var total time.Duration
		for i := 0; i < 2000; i++ {
			total += keystrokeDelay(rng, prev, cur)
		}
		return total / 2000
	}

	plain := avg('a', 'b')
	assert.Greater(t, avg('.', 'b'), plain, "after punctuation")
	assert.Greater(t, avg('-', 'k'), plain, "after dash")
	assert.Greater(t, avg('1', 'b'), plain, "digit to letter")
	assert.Greater(t, avg('b', '1'), plain, "letter to digit")
	assert.Less(t, avg('a', 'a'), plain, "repeated key")
}

func TestFingerprint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		fp := NewFingerprint(rng)
		assert.Regexp(t, `^Mozilla/5\.0 \(Windows NT 10\.0; Win64; x64\) AppleWebKit/537\.36 \(KHTML, like Gecko\) Chrome/(11\d|12[0-2])\.0\.\d{1,4}\.0 Safari/537\.36$`, fp.UserAgent)
		assert.Equal(t, 1920, fp.Width)
		assert.InDelta(t, 1068, fp.Height, 12)
		assert.Equal(t, "es-CL", fp.Locale)
		assert.Equal(t, "America/Santiago", fp.Timezone)
	}
	assert.Equal(t, "es-CL,es;q=0.9", Fingerprint{Locale: "es-CL"}.AcceptLanguage())
}

func TestBalancesUnmasked(t *testing.T) {
	const sel = `[class*="saldo"], [class*="monto"]`

	tests := []struct {
		name string
		html string
		want bool
	}{
		{"visible amounts", `<div class="saldo-box"><h4>$1.234.567</h4></div><p class="monto">$ 5.000</p>`, true},
		{"masked", `<div class="saldo-box"><h4>$ *****</h4></div>`, false},
		{"one masked one visible", `<div class="saldo">$1.000</div><div class="saldo">$****</div>`, false},
		{"no amounts", `<div class="saldo">Saldo disponible</div>`, false},
		{"no balance elements", `<p>$1.000</p>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BalancesUnmasked(tt.html, sel))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "skipped", Skipped.String())
}
