package stakingd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for stakingd.
type Config struct {
	ListenAddress string                     `yaml:"listen"`
	Environment   string                     `yaml:"environment"`
	NodeConfig    string                     `yaml:"node_config"`
	Storage       StorageConfig              `yaml:"storage"`
	AuditDB       string                     `yaml:"audit_db"`
	Auth          AuthConfig                 `yaml:"auth"`
	RateLimits    map[string]RateLimitConfig `yaml:"rate_limits"`
	CORS          CORSConfig                 `yaml:"cors"`
	Cache         CacheConfig                `yaml:"cache"`
	Events        EventsConfig               `yaml:"events"`
	Telemetry     TelemetryConfig            `yaml:"telemetry"`
	Logging       LoggingConfig              `yaml:"logging"`
	Timeouts      TimeoutConfig              `yaml:"timeouts"`
}

// StorageConfig selects the state backend. Backend is leveldb, bolt or memory; an
// empty DataDir falls back to the node configuration's data directory.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
}

// AuthConfig configures JWT verification for mutating routes.
type AuthConfig struct {
	Enabled        bool     `yaml:"enabled"`
	HMACSecret     string   `yaml:"hmac_secret"`
	HMACSecretFile string   `yaml:"hmac_secret_file"`
	HMACSecretEnv  string   `yaml:"hmac_secret_env"`
	Issuer         string   `yaml:"issuer"`
	Audience       string   `yaml:"audience"`
	ClockSkew      Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds one route group.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// CORSConfig lists allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CacheConfig sizes the estimate cache.
type CacheConfig struct {
	Size int      `yaml:"size"`
	TTL  Duration `yaml:"ttl"`
}

// EventsConfig sizes the websocket backlog and per-subscriber buffers.
type EventsConfig struct {
	Backlog int `yaml:"backlog"`
	Buffer  int `yaml:"buffer"`
}

// TelemetryConfig configures OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Headers     string  `yaml:"headers"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Requests   bool   `yaml:"requests"`
}

// TimeoutConfig bounds the HTTP server.
type TimeoutConfig struct {
	Read     Duration `yaml:"read"`
	Write    Duration `yaml:"write"`
	Idle     Duration `yaml:"idle"`
	Shutdown Duration `yaml:"shutdown"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.NodeConfig == "" {
		cfg.NodeConfig = "services/stakingd/node.toml"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "leveldb"
	}
	if cfg.AuditDB == "" {
		cfg.AuditDB = "stakingd-audit.db"
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = 1024
	}
	if cfg.Cache.TTL.Duration == 0 {
		cfg.Cache.TTL.Duration = 5 * time.Second
	}
	if cfg.Events.Backlog <= 0 {
		cfg.Events.Backlog = 512
	}
	if cfg.Events.Buffer <= 0 {
		cfg.Events.Buffer = 64
	}
	if cfg.Timeouts.Read.Duration == 0 {
		cfg.Timeouts.Read.Duration = 15 * time.Second
	}
	if cfg.Timeouts.Write.Duration == 0 {
		cfg.Timeouts.Write.Duration = 30 * time.Second
	}
	if cfg.Timeouts.Idle.Duration == 0 {
		cfg.Timeouts.Idle.Duration = 60 * time.Second
	}
	if cfg.Timeouts.Shutdown.Duration == 0 {
		cfg.Timeouts.Shutdown.Duration = 10 * time.Second
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimitConfig{}
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Storage.Backend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("storage.backend must be leveldb, bolt or memory, got %q", cfg.Storage.Backend)
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth.hmac_secret must be configured when auth is enabled")
	}
	for group, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limits.%s.requests_per_minute must be positive", group)
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

func (a *AuthConfig) normalise() error {
	secret := strings.TrimSpace(a.HMACSecret)
	switch {
	case secret != "":
	case strings.TrimSpace(a.HMACSecretEnv) != "":
		secret = strings.TrimSpace(os.Getenv(strings.TrimSpace(a.HMACSecretEnv)))
		if secret == "" && a.Enabled {
			return fmt.Errorf("hmac_secret_env %s is empty", a.HMACSecretEnv)
		}
	case strings.TrimSpace(a.HMACSecretFile) != "":
		contents, err := os.ReadFile(strings.TrimSpace(a.HMACSecretFile))
		if err != nil {
			return fmt.Errorf("read hmac_secret_file: %w", err)
		}
		secret = strings.TrimSpace(string(contents))
	}
	a.HMACSecret = secret
	return nil
}
