package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultShipInterval  = 15 * time.Second
	DefaultDumpInterval  = 5 * time.Minute
	DefaultBufferSize    = 1000
	DefaultBucketSize    = time.Minute
	DefaultMaxDimensions = 800
	DefaultPullCooldown  = time.Second
	DefaultHTTPListen    = ":9464"
	DefaultSourceTimeout = 10 * time.Second
	DefaultPullInterval  = 10 * time.Second
	DefaultMaxBuffered   = 1 << 20
	DefaultMaxClockSkew  = 5 * time.Minute
)

// Metric kinds.
const (
	KindPush = "push"
	KindPull = "pull"
)

// Config is the top-level agent configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of the report server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ShipInterval controls how often buffered reports are sent to the server.
	ShipInterval time.Duration `yaml:"ship_interval"`

	// DumpInterval controls how often every metric producer is dumped into a
	// report. Past buckets are held in memory until the next dump.
	DumpInterval time.Duration `yaml:"dump_interval"`

	// BufferSize is the maximum number of reports held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// HTTPListen is the address of the push ingestion and /metrics endpoint.
	HTTPListen string `yaml:"http_listen"`

	// PullCooldown is how long a pull result is reused by other producers
	// that pull the same source.
	PullCooldown time.Duration `yaml:"pull_cooldown"`

	// PullInterval is the period of condition evaluation, scheduled pulls
	// and bucket flushes.
	PullInterval time.Duration `yaml:"pull_interval"`

	// MaxBufferedBytes triggers an early dump of every metric when the
	// estimated size of the buffered buckets exceeds it.
	MaxBufferedBytes int `yaml:"max_buffered_bytes"`

	// MaxClockSkew bounds how far past the agent clock a pushed timestamp
	// may be. Later events are rejected at ingestion and dropped by producers.
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`

	// Sources is the list of pull endpoints (Prometheus text exposition).
	Sources []Source `yaml:"sources"`

	// Conditions gate accumulation of the metrics that reference them.
	Conditions []Condition `yaml:"conditions"`

	// Metrics is the list of value metrics to aggregate.
	Metrics []Metric `yaml:"metrics"`

	// ServerAuth configures how the agent authenticates to the report server.
	// Supports the same modes as source auth: mtls | apikey | none.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// Source describes one pull endpoint.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Endpoint is the full URL of the exposition endpoint.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds a single pull, including retries.
	Timeout time.Duration `yaml:"timeout"`

	// Retries is the number of extra attempts after a failed pull.
	Retries int `yaml:"retries"`

	// Auth configures how the agent authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// Condition is a boolean predicate evaluated over a pulled metric family.
type Condition struct {
	ID string `yaml:"id"`

	// Source and Family select the series the predicate is evaluated on.
	Source string `yaml:"source"`
	Family string `yaml:"family"`

	// Expr is "value <op> <threshold>", e.g. "value > 0".
	Expr string `yaml:"expr"`

	// Dimensions makes the condition sliced: each distinct combination of
	// these labels has its own truth value. Empty means one overall value.
	Dimensions []string `yaml:"dimensions"`
}

// Metric is one value metric definition.
type Metric struct {
	ID string `yaml:"id"`

	// Kind is push | pull.
	Kind string `yaml:"kind"`

	// Source and Family select the pulled series (pull metrics).
	Source string `yaml:"source"`
	Family string `yaml:"family"`

	// Event and ValueField select the pushed events and the field carrying
	// the value. Required for push metrics. A pull metric may set them too:
	// each event then carries a reading of the family for one slice,
	// delivered between scrapes of the source.
	Event      string `yaml:"event"`
	ValueField string `yaml:"value_field"`

	// Dimensions are the label (pull) or field (push) names that form the
	// slice key.
	Dimensions []string `yaml:"dimensions"`

	// Condition is the ID of the condition gating this metric, if any.
	Condition string `yaml:"condition"`

	// BucketSize is the fixed window duration.
	BucketSize time.Duration `yaml:"bucket_size"`

	// MaxDimensions is the hard cardinality limit.
	MaxDimensions int `yaml:"max_dimensions"`

	// Aggregation is sum | min | max | avg. Defaults to sum.
	Aggregation string `yaml:"aggregation"`
}

// AuthConfig specifies the authentication mode for a source or the server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields: used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields: used when Mode == "apikey".
	// Header is the HTTP header (or gRPC metadata key) to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token variable name (Mode == "bearer").
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields: used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// EffectiveHeader returns the configured header name, or "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// SourceByID returns the source with the given ID.
func (a *AgentConfig) SourceByID(id string) (Source, bool) {
	for _, s := range a.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// ConditionByID returns the condition with the given ID.
func (a *AgentConfig) ConditionByID(id string) (Condition, bool) {
	for _, c := range a.Conditions {
		if c.ID == id {
			return c, true
		}
	}
	return Condition{}, false
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyMetricDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ShipInterval: DefaultShipInterval,
			DumpInterval: DefaultDumpInterval,
			BufferSize:   DefaultBufferSize,
			HTTPListen:   DefaultHTTPListen,
			PullCooldown: DefaultPullCooldown,
			PullInterval: DefaultPullInterval,

			MaxBufferedBytes: DefaultMaxBuffered,
			MaxClockSkew:     DefaultMaxClockSkew,
		},
	}
}

// applyMetricDefaults fills per-entry defaults that yaml cannot express on
// slice elements.
func applyMetricDefaults(cfg *Config) {
	for i := range cfg.Agent.Metrics {
		m := &cfg.Agent.Metrics[i]
		if m.BucketSize == 0 {
			m.BucketSize = DefaultBucketSize
		}
		if m.MaxDimensions == 0 {
			m.MaxDimensions = DefaultMaxDimensions
		}
		if m.Aggregation == "" {
			m.Aggregation = "sum"
		}
	}
	for i := range cfg.Agent.Sources {
		if cfg.Agent.Sources[i].Timeout == 0 {
			cfg.Agent.Sources[i].Timeout = DefaultSourceTimeout
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := &cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.ShipInterval <= 0 {
		return fmt.Errorf("agent.ship_interval must be positive")
	}
	if a.DumpInterval <= 0 {
		return fmt.Errorf("agent.dump_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.PullInterval <= 0 {
		return fmt.Errorf("agent.pull_interval must be positive")
	}
	if a.MaxBufferedBytes <= 0 {
		return fmt.Errorf("agent.max_buffered_bytes must be positive")
	}
	if a.MaxClockSkew <= 0 {
		return fmt.Errorf("agent.max_clock_skew must be positive")
	}
	if err := validateAuthMode("agent.server_auth", a.ServerAuth.Mode); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen["source/"+src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen["source/"+src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		if src.Retries < 0 {
			return fmt.Errorf("sources[%d] %q: retries must not be negative", i, src.ID)
		}
		if err := validateAuthMode(fmt.Sprintf("sources[%d] %q", i, src.ID), src.Auth.Mode); err != nil {
			return err
		}
	}

	for i, c := range a.Conditions {
		if c.ID == "" {
			return fmt.Errorf("conditions[%d]: id is required", i)
		}
		if seen["condition/"+c.ID] {
			return fmt.Errorf("conditions[%d]: duplicate id %q", i, c.ID)
		}
		seen["condition/"+c.ID] = true
		if !seen["source/"+c.Source] {
			return fmt.Errorf("conditions[%d] %q: unknown source %q", i, c.ID, c.Source)
		}
		if c.Family == "" {
			return fmt.Errorf("conditions[%d] %q: family is required", i, c.ID)
		}
		if f := strings.Fields(c.Expr); len(f) != 3 || f[0] != "value" {
			return fmt.Errorf("conditions[%d] %q: expr %q must look like \"value > 0\"", i, c.ID, c.Expr)
		}
	}

	for i, m := range a.Metrics {
		if m.ID == "" {
			return fmt.Errorf("metrics[%d]: id is required", i)
		}
		if seen["metric/"+m.ID] {
			return fmt.Errorf("metrics[%d]: duplicate id %q", i, m.ID)
		}
		seen["metric/"+m.ID] = true
		switch m.Kind {
		case KindPull:
			if !seen["source/"+m.Source] {
				return fmt.Errorf("metrics[%d] %q: unknown source %q", i, m.ID, m.Source)
			}
			if m.Family == "" {
				return fmt.Errorf("metrics[%d] %q: family is required for pull metrics", i, m.ID)
			}
			if m.Event != "" && m.ValueField == "" {
				return fmt.Errorf("metrics[%d] %q: value_field is required with event", i, m.ID)
			}
		case KindPush:
			if m.Event == "" || m.ValueField == "" {
				return fmt.Errorf("metrics[%d] %q: event and value_field are required for push metrics", i, m.ID)
			}
		default:
			return fmt.Errorf("metrics[%d] %q: unknown kind %q", i, m.ID, m.Kind)
		}
		if m.Condition != "" && !seen["condition/"+m.Condition] {
			return fmt.Errorf("metrics[%d] %q: unknown condition %q", i, m.ID, m.Condition)
		}
		if m.BucketSize <= 0 {
			return fmt.Errorf("metrics[%d] %q: bucket_size must be positive", i, m.ID)
		}
		if m.MaxDimensions < 0 {
			return fmt.Errorf("metrics[%d] %q: max_dimensions must not be negative", i, m.ID)
		}
		switch m.Aggregation {
		case "sum", "min", "max", "avg":
		default:
			return fmt.Errorf("metrics[%d] %q: unknown aggregation %q", i, m.ID, m.Aggregation)
		}
	}
	return nil
}

func validateAuthMode(where, mode string) error {
	switch mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
		return nil
	default:
		return fmt.Errorf("%s: unknown auth mode %q", where, mode)
	}
}
