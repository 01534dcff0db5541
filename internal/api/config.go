package api

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds server configuration.
type Config struct {
	Port              int        `toml:"port"`
	DataDir           string     `toml:"data_dir"`            // content store root for re-encoded images
	RateLimitRequests int        `toml:"rate_limit_requests"` // Requests per minute (0 = disabled)
	RateLimitBurst    int        `toml:"rate_limit_burst"`
	Auth              AuthConfig `toml:"auth"`
	TLS               TLSConfig  `toml:"tls"`
	AllowedOrigins    []string   `toml:"allowed_origins"` // CORS allowed origins (empty = allow all)
	LogLevel          string     `toml:"log_level"`
	LogFormat         string     `toml:"log_format"`
	JobWorkers        int        `toml:"job_workers"`   // 0 = one per CPU
	JobRetention      Duration   `toml:"job_retention"` // how long finished jobs stay listed
	SlowRequest       Duration   `toml:"slow_request"`  // 0 = no slow request warnings
	RegexCacheSize    int        `toml:"regex_cache_size"`
	WebSocket         WSConfig   `toml:"websocket"`
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   `toml:"enabled"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// WSConfig holds the progress socket limits.
type WSConfig struct {
	RequireAuth    bool  `toml:"require_auth"`
	MaxMessageRate int   `toml:"max_message_rate"`
	MaxMessageSize int64 `toml:"max_message_size"`
}

// Duration is a time.Duration that decodes from TOML strings like "2s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns the configuration used when no file or flag
// overrides a value.
func DefaultConfig() Config {
	return Config{
		Port:              8080,
		DataDir:           "./data",
		RateLimitRequests: 0,
		RateLimitBurst:    10,
		LogLevel:          "info",
		LogFormat:         "json",
		JobRetention:      Duration{DefaultJobRetention},
		SlowRequest:       Duration{2 * time.Second},
		RegexCacheSize:    256,
		WebSocket: WSConfig{
			MaxMessageRate: 10,
			MaxMessageSize: 4096,
		},
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Keys absent from the
// file keep their defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("parse config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// Validate checks the parts of the configuration Start depends on.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RateLimitRequests < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if err := ValidateAuthConfig(c.Auth); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}
	return nil
}

// ServerConfig is the active server configuration.
var ServerConfig = DefaultConfig()
