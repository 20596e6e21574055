package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poolchem/poolchem/pkg/advisory"
	"github.com/poolchem/poolchem/pkg/dosing"
	"github.com/poolchem/poolchem/pkg/strip"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 8080
	DefaultShutdownTimeout = 10 * time.Second
	DefaultPingInterval    = 30 * time.Second
)

// Config is the top-level configuration parsed from config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Dosing   DosingConfig   `yaml:"dosing"`
	Advisory AdvisoryConfig `yaml:"advisory"`
	Strip    StripConfig    `yaml:"strip"`
	Bot      BotConfig      `yaml:"bot"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket endpoint and /metrics
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// PingInterval is how often WebSocket clients are pinged.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// DosingConfig holds the product catalog and request defaults.
type DosingConfig struct {
	// Products is the calcium hypochlorite catalog. Replaces the built-in
	// catalog entirely when present.
	Products []dosing.Product `yaml:"products"`

	// Defaults fill request fields a caller leaves empty.
	Defaults dosing.Defaults `yaml:"defaults"`
}

// AdvisoryConfig holds the ideal ranges and threshold rules.
type AdvisoryConfig struct {
	Ranges []advisory.Range `yaml:"ranges"`
	Rules  []advisory.Rule  `yaml:"rules"`
}

// StripConfig configures the placeholder strip reader.
type StripConfig struct {
	// Seed makes placeholder readings reproducible. Zero means random.
	Seed uint64 `yaml:"seed"`

	// MaxUploadBytes bounds accepted image uploads (default 10 MiB).
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// BotConfig enables the Telegram front-end.
type BotConfig struct {
	// TokenEnv is the name of the environment variable holding the bot token.
	// The bot is disabled when empty or when the variable is unset.
	TokenEnv string `yaml:"token_env"`

	// Debug turns on the Telegram client's request logging.
	Debug bool `yaml:"debug"`
}

// Token returns the bot token resolved from the environment.
func (b BotConfig) Token() string {
	if b.TokenEnv == "" {
		return ""
	}
	return os.Getenv(b.TokenEnv)
}

// Enabled reports whether a bot token is available.
func (b BotConfig) Enabled() bool { return b.Token() != "" }

// Calculator builds a dosing calculator from the catalog and defaults.
func (c *Config) Calculator() (*dosing.Calculator, error) {
	return dosing.NewCalculator(c.Dosing.Products, c.Dosing.Defaults)
}

// Load reads and parses the config file at path.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is also the
// configuration used when the server starts without a config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        DefaultHTTPPort,
			ShutdownTimeout: DefaultShutdownTimeout,
			PingInterval:    DefaultPingInterval,
		},
		Dosing: DosingConfig{
			Products: dosing.DefaultProducts(),
			Defaults: dosing.DefaultDefaults(),
		},
		Advisory: AdvisoryConfig{
			Ranges: advisory.DefaultRanges(),
			Rules:  advisory.DefaultRules(),
		},
		Strip: StripConfig{
			MaxUploadBytes: strip.DefaultMaxBytes,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if cfg.Server.PingInterval <= 0 {
		return fmt.Errorf("server.ping_interval must be positive")
	}
	if _, err := cfg.Calculator(); err != nil {
		return err
	}
	for i, rg := range cfg.Advisory.Ranges {
		if err := rg.Validate(); err != nil {
			return fmt.Errorf("advisory.ranges[%d]: %w", i, err)
		}
	}
	seen := make(map[string]bool, len(cfg.Advisory.Rules))
	for i, rule := range cfg.Advisory.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("advisory.rules[%d]: %w", i, err)
		}
		if seen[rule.Name] {
			return fmt.Errorf("advisory.rules[%d]: duplicate name %q", i, rule.Name)
		}
		seen[rule.Name] = true
	}
	if cfg.Strip.MaxUploadBytes <= 0 {
		return fmt.Errorf("strip.max_upload_bytes must be positive")
	}
	return nil
}
