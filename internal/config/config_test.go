package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasSaneDefaults(t *testing.T) {
	cfg := New()
	assert.NotEmpty(t, cfg.Listen.Address, "default listen address should not be empty")
	assert.Positive(t, cfg.RateLimit.DefaultRPS, "default rate limit RPS should be positive")
	assert.Positive(t, cfg.BotDetection.ChallengeDifficulty, "default challenge difficulty should be positive")
}

func TestValidateRejectsUnknownUpstreamReference(t *testing.T) {
	cfg := New()
	cfg.Routes = []RouteConfig{{PathPrefix: "/", Upstream: "nonexistent"}}
	assert.Error(t, Validate(cfg), "expected Validate to reject a route referencing an unknown upstream")
}

func TestValidateAcceptsKnownUpstreamReference(t *testing.T) {
	cfg := New()
	cfg.Upstreams = []UpstreamConfig{{Name: "origin", Servers: []ServerConfig{{Address: "127.0.0.1:8081", Weight: 1}}}}
	cfg.Routes = []RouteConfig{{PathPrefix: "/", Upstream: "origin"}}
	assert.NoError(t, Validate(cfg))
}

func TestValidateRejectsInvalidWAFMode(t *testing.T) {
	cfg := New()
	cfg.Upstreams = []UpstreamConfig{{Name: "o", Servers: []ServerConfig{{Address: "a", Weight: 1}}}}
	cfg.Routes = []RouteConfig{{PathPrefix: "/", Upstream: "o", WAFMode: "sometimes"}}
	assert.Error(t, Validate(cfg), "expected Validate to reject an invalid waf_mode")
}

func TestValidateRejectsInvalidBotMode(t *testing.T) {
	cfg := New()
	cfg.BotDetection.Mode = "maybe"
	assert.Error(t, Validate(cfg), "expected Validate to reject an invalid bot_detection.mode")
}

func TestValidateRejectsUpstreamWithEmptyName(t *testing.T) {
	cfg := New()
	cfg.Upstreams = []UpstreamConfig{{Name: ""}}
	assert.Error(t, Validate(cfg), "expected Validate to reject an upstream with an empty name")
}

func TestParseYAMLRoundTripsBasicFields(t *testing.T) {
	doc := []byte(`
listen:
  address: "0.0.0.0:9000"
rate_limit:
  enabled: true
  default_rps: 50
  default_burst: 100
`)
	cfg, err := ParseYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen.Address)
	assert.Equal(t, 50.0, cfg.RateLimit.DefaultRPS)
}

func TestParseYAMLRejectsInvalidDocument(t *testing.T) {
	_, err := ParseYAML([]byte("not: [valid yaml"))
	assert.Error(t, err, "expected ParseYAML to reject malformed YAML")
}
