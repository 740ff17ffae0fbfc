package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort   = 50051
	DefaultHTTPPort   = 8080
	DefaultReportTTL  = 30 * time.Minute
	DefaultMaxReports = 64
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the report receiver listens on.
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port of the REST API and /metrics.
	HTTPPort int `yaml:"http_port"`

	// Auth configures how gRPC and REST clients authenticate.
	Auth AuthConfig `yaml:"auth"`

	// Reports controls in-memory report retention.
	Reports ReportConfig `yaml:"reports"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	// "mtls" is accepted but requires TLS listener setup.
	Mode string `yaml:"mode"`

	// KeyEnv names the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) carrying the key.
	// Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// ReportConfig controls how long received reports are kept.
type ReportConfig struct {
	// TTL is how long a report stays in the store after it was received.
	TTL time.Duration `yaml:"ttl"`

	// MaxPerMetric caps the reports held for one metric; the oldest go first.
	MaxPerMetric int `yaml:"max_per_metric"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Reports: ReportConfig{
				TTL:          DefaultReportTTL,
				MaxPerMetric: DefaultMaxReports,
			},
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Server.GRPCPort <= 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", cfg.Server.GRPCPort)
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "mtls", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|mtls|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Reports.TTL <= 0 {
		return fmt.Errorf("server.reports.ttl must be positive")
	}
	if cfg.Server.Reports.MaxPerMetric <= 0 {
		return fmt.Errorf("server.reports.max_per_metric must be positive")
	}
	return nil
}
