package bancoestado

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser/browsertest"
)

func TestProbes_MatchFixtures(t *testing.T) {
	probes := make(map[string]Probe)
	for _, p := range Probes() {
		probes[p.Name] = p
	}

	tests := []struct {
		fixture string
		probes  []string
	}{
		{"login", []string{"RUT input", "Password input", "Login submit"}},
		{"dashboard", []string{"Dashboard marker", "Product carousel", "Account card"}},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			page := browsertest.New(fixture(t, tt.fixture))
			for _, name := range tt.probes {
				p, ok := probes[name]
				if !assert.True(t, ok, "unknown probe %q", name) {
					continue
				}
				el, _ := p.Chain.First(context.Background(), page)
				assert.NotNil(t, el, "probe %q found nothing", name)
			}
		})
	}
}
