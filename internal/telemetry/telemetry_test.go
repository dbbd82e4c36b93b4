package telemetry

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poster-studio/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	for name, cfg := range map[string]config.Config{
		"flag off":    {EnableTracing: false, OTLPEndpoint: "localhost:4318"},
		"no endpoint": {EnableTracing: true},
	} {
		t.Run(name, func(t *testing.T) {
			shutdown, err := Setup(t.Context(), cfg, zerolog.Nop())
			require.NoError(t, err)
			assert.NoError(t, shutdown(t.Context()))
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		host     string
		insecure bool
	}{
		{"localhost:4318", "localhost:4318", true},
		{"http://collector:4318/", "collector:4318", true},
		{"https://otel.example.com", "otel.example.com", false},
		{"  ", "", true},
	}
	for _, tc := range cases {
		host, insecure := splitEndpoint(tc.raw)
		assert.Equal(t, tc.host, host, tc.raw)
		assert.Equal(t, tc.insecure, insecure, tc.raw)
	}
}
