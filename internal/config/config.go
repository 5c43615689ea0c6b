// Package config loads the engine's declarative configuration document,
// following the reference service's pkg/config loading convention (YAML
// file + env overlay + .env discovery).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ListenConfig controls the demo ingress and admin listeners.
type ListenConfig struct {
	Address      string `yaml:"address" env:"L7WAF_LISTEN_ADDRESS"`
	AdminAddress string `yaml:"admin_address" env:"L7WAF_ADMIN_ADDRESS"`
}

// TLSConfig carries optional TLS material for the ingress listener. The
// concrete TLS termination runtime is an external collaborator; this
// struct only carries the material it needs.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"L7WAF_TLS_ENABLED"`
	CertFile string `yaml:"cert_file" env:"L7WAF_TLS_CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"L7WAF_TLS_KEY_FILE"`
}

// ServerConfig is one weighted upstream backend.
type ServerConfig struct {
	Address string `yaml:"address"`
	Weight  int    `yaml:"weight"`
}

// HealthCheckConfig configures active upstream health probing.
type HealthCheckConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Path            string `yaml:"path"`
}

// UpstreamConfig is one named upstream pool.
type UpstreamConfig struct {
	Name        string             `yaml:"name"`
	Servers     []ServerConfig     `yaml:"servers"`
	HealthCheck *HealthCheckConfig `yaml:"health_check,omitempty"`
}

// RouteRateLimitConfig is a per-route override of the default rate limit.
type RouteRateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Algorithm         string  `yaml:"algorithm"` // "token_bucket" | "sliding_window"
	KeyMode           string  `yaml:"key_mode"`  // "ip" | "ip_route"
}

// RouteConfig is one routing rule.
type RouteConfig struct {
	Host        string                `yaml:"host,omitempty"`
	PathPrefix  string                `yaml:"path_prefix"`
	Upstream    string                `yaml:"upstream"`
	WAFMode     string                `yaml:"waf_mode"` // "block" | "detect" | "off"
	RateLimit   *RouteRateLimitConfig `yaml:"rate_limit,omitempty"`
}

// WAFConfig configures the WAF bridge.
type WAFConfig struct {
	RuleGlobs        []string `yaml:"rule_globs"`
	InlineRules      string   `yaml:"inline_rules"`
	RequestBodyLimit int64    `yaml:"request_body_limit" env:"L7WAF_REQUEST_BODY_LIMIT"`
	AuditLogPath     string   `yaml:"audit_log_path" env:"L7WAF_AUDIT_LOG_PATH"`
}

// RateLimitConfig configures default rate-limit behavior.
type RateLimitConfig struct {
	Enabled    bool    `yaml:"enabled" env:"L7WAF_RATELIMIT_ENABLED"`
	DefaultRPS float64 `yaml:"default_rps" env:"L7WAF_RATELIMIT_DEFAULT_RPS"`
	Burst      int     `yaml:"default_burst" env:"L7WAF_RATELIMIT_DEFAULT_BURST"`
	Algorithm  string  `yaml:"algorithm" env:"L7WAF_RATELIMIT_ALGORITHM"`
}

// IPReputationConfig configures the CIDR trie engine.
type IPReputationConfig struct {
	BlocklistPath string `yaml:"blocklist_path" env:"L7WAF_IPREP_BLOCKLIST_PATH"`
	AllowlistPath string `yaml:"allowlist_path" env:"L7WAF_IPREP_ALLOWLIST_PATH"`
}

// BotDetectionConfig configures the bot detector and challenge issuer.
type BotDetectionConfig struct {
	Enabled             bool     `yaml:"enabled" env:"L7WAF_BOT_ENABLED"`
	Mode                string   `yaml:"mode" env:"L7WAF_BOT_MODE"` // "block" | "challenge" | "detect"
	ScoreThreshold      float64  `yaml:"score_threshold" env:"L7WAF_BOT_SCORE_THRESHOLD"`
	KnownBots           []string `yaml:"known_bots_allowlist"`
	ChallengeDifficulty int      `yaml:"challenge_difficulty" env:"L7WAF_BOT_CHALLENGE_DIFFICULTY"`
	ChallengeTTLSecs    int      `yaml:"challenge_ttl_secs" env:"L7WAF_BOT_CHALLENGE_TTL_SECS"`
	ChallengeSecret     string   `yaml:"challenge_secret" env:"L7WAF_BOT_CHALLENGE_SECRET"`
}

// LoggingConfig controls the ambient logger (mirrors pkg/logger.LoggingConfig
// in the reference).
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Config is the top-level configuration document.
type Config struct {
	Listen       ListenConfig       `yaml:"listen"`
	TLS          TLSConfig          `yaml:"tls"`
	Upstreams    []UpstreamConfig   `yaml:"upstreams"`
	Routes       []RouteConfig      `yaml:"routes"`
	WAF          WAFConfig          `yaml:"waf"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	IPReputation IPReputationConfig `yaml:"ip_reputation"`
	BotDetection BotDetectionConfig `yaml:"bot_detection"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// New returns a Config populated with conservative defaults.
func New() *Config {
	return &Config{
		Listen: ListenConfig{
			Address:      "0.0.0.0:8080",
			AdminAddress: "127.0.0.1:9090",
		},
		WAF: WAFConfig{
			RequestBodyLimit: 2 << 20, // 2MiB
			AuditLogPath:     "",
		},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			DefaultRPS: 100,
			Burst:      200,
			Algorithm:  "token_bucket",
		},
		BotDetection: BotDetectionConfig{
			Mode:                "detect",
			ScoreThreshold:      0.7,
			ChallengeDifficulty: 18,
			ChallengeTTLSecs:    300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from CONFIG_FILE (or configs/config.yaml) and
// overlays environment variables, matching the reference's pkg/config.Load.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else if err := loadFromFile("configs/config.yaml", cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from a specific YAML file, applying no env
// overlay. Used by the reload manager's file/signal-triggered reload to
// validate a candidate document before committing it.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseYAML parses a configuration document from raw YAML bytes, as used
// by the admin API's PUT /api/config handler.
func ParseYAML(data []byte) (*Config, error) {
	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate rejects structurally invalid configuration so a bad reload
// candidate is refused and the running configuration is kept.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	upstreams := make(map[string]bool, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		if u.Name == "" {
			return fmt.Errorf("upstream with empty name")
		}
		upstreams[u.Name] = true
	}
	for _, r := range cfg.Routes {
		if r.Upstream != "" && !upstreams[r.Upstream] {
			return fmt.Errorf("route %q references unknown upstream %q", r.PathPrefix, r.Upstream)
		}
		switch r.WAFMode {
		case "", "block", "detect", "off":
		default:
			return fmt.Errorf("route %q has invalid waf_mode %q", r.PathPrefix, r.WAFMode)
		}
	}
	switch cfg.BotDetection.Mode {
	case "", "block", "challenge", "detect":
	default:
		return fmt.Errorf("invalid bot_detection.mode %q", cfg.BotDetection.Mode)
	}
	return nil
}
