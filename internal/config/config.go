// Package config loads and validates cordon configuration from YAML files
// and CORDON_* environment variables. Operating and integration modes are
// resolved once at activation time and are immutable for the remainder of
// the process lifetime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode controls whether decisions affect call behavior on a surface.
type Mode string

const (
	ModeOff     Mode = "off"     // no mediation, native calls untouched
	ModeMonitor Mode = "monitor" // decisions computed and logged, never enforced
	ModeEnforce Mode = "enforce" // decisions enforced
)

// Integration selects how decisions are obtained.
type Integration string

const (
	IntegrationAPI     Integration = "api"     // direct call to the inspection service
	IntegrationGateway Integration = "gateway" // destination substituted with an inspecting gateway
)

// SurfaceConfig is the per-surface (llm, mcp) mediation configuration.
type SurfaceConfig struct {
	Mode        Mode            `yaml:"mode"`
	Integration Integration     `yaml:"integration"`
	FailOpen    bool            `yaml:"fail_open"`
	Providers   map[string]bool `yaml:"providers,omitempty"`
}

// Enabled reports whether a provider participates in mediation on this
// surface. Providers absent from the map default to enabled.
func (s SurfaceConfig) Enabled(provider string) bool {
	if s.Providers == nil {
		return true
	}
	enabled, ok := s.Providers[provider]
	return !ok || enabled
}

// InspectConfig configures the API-mode inspection service client.
type InspectConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RetryConfig bounds gateway-mode retries. Backoff grows exponentially:
// delay n = Backoff * Multiplier^(n-1), capped at MaxDelay.
type RetryConfig struct {
	Total       int           `yaml:"total"`
	Backoff     time.Duration `yaml:"backoff"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	StatusCodes []int         `yaml:"status_codes"`
}

// Retryable reports whether a gateway status code should be retried.
func (r RetryConfig) Retryable(status int) bool {
	for _, c := range r.StatusCodes {
		if c == status {
			return true
		}
	}
	return false
}

// GatewayConfig configures gateway-mode endpoint substitution.
type GatewayConfig struct {
	// Endpoints maps a provider name to its inspecting gateway base URL.
	Endpoints map[string]string `yaml:"endpoints,omitempty"`
	APIKey    string            `yaml:"api_key"`
	Retry     RetryConfig       `yaml:"retry"`
}

// AuditConfig configures decision audit sinks.
type AuditConfig struct {
	LogPath string `yaml:"log_path"` // JSONL hash-chained log, empty disables
	DBPath  string `yaml:"db_path"`  // SQLite decision store, empty disables
}

// Config is the full cordon configuration.
type Config struct {
	LLM     SurfaceConfig `yaml:"llm"`
	MCP     SurfaceConfig `yaml:"mcp"`
	Inspect InspectConfig `yaml:"inspect"`
	Gateway GatewayConfig `yaml:"gateway"`
	Audit   AuditConfig   `yaml:"audit"`

	// Streaming reconnect budget for long-lived MCP transports.
	MaxReconnects  int           `yaml:"max_reconnects"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// Default returns the built-in configuration: mediation off on both
// surfaces, fail-open, API integration, standard retry policy.
func Default() *Config {
	return &Config{
		LLM: SurfaceConfig{Mode: ModeOff, Integration: IntegrationAPI, FailOpen: true},
		MCP: SurfaceConfig{Mode: ModeOff, Integration: IntegrationAPI, FailOpen: true},
		Inspect: InspectConfig{
			Timeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			Retry: RetryConfig{
				Total:       3,
				Backoff:     500 * time.Millisecond,
				Multiplier:  2.0,
				MaxDelay:    30 * time.Second,
				StatusCodes: []int{429, 500, 502, 503, 504},
			},
		},
		MaxReconnects:  5,
		ReconnectDelay: time.Second,
	}
}

// Load reads configuration from a YAML file, applies environment overrides,
// and validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays CORDON_* environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("CORDON_LLM_MODE"); v != "" {
		c.LLM.Mode = Mode(strings.ToLower(v))
	}
	if v := os.Getenv("CORDON_MCP_MODE"); v != "" {
		c.MCP.Mode = Mode(strings.ToLower(v))
	}
	if v := os.Getenv("CORDON_LLM_INTEGRATION"); v != "" {
		c.LLM.Integration = Integration(strings.ToLower(v))
	}
	if v := os.Getenv("CORDON_MCP_INTEGRATION"); v != "" {
		c.MCP.Integration = Integration(strings.ToLower(v))
	}
	if v, ok := boolEnv("CORDON_LLM_FAIL_OPEN"); ok {
		c.LLM.FailOpen = v
	}
	if v, ok := boolEnv("CORDON_MCP_FAIL_OPEN"); ok {
		c.MCP.FailOpen = v
	}
	if v := os.Getenv("CORDON_INSPECT_ENDPOINT"); v != "" {
		c.Inspect.Endpoint = v
	}
	if v := os.Getenv("CORDON_INSPECT_API_KEY"); v != "" {
		c.Inspect.APIKey = v
	}
	if v := os.Getenv("CORDON_GATEWAY_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("CORDON_AUDIT_LOG"); v != "" {
		c.Audit.LogPath = v
	}
}

func boolEnv(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate checks enum fields and retry bounds.
func (c *Config) Validate() error {
	for name, sc := range map[string]SurfaceConfig{"llm": c.LLM, "mcp": c.MCP} {
		switch sc.Mode {
		case ModeOff, ModeMonitor, ModeEnforce:
		default:
			return fmt.Errorf("config: %s.mode %q: must be off, monitor, or enforce", name, sc.Mode)
		}
		switch sc.Integration {
		case IntegrationAPI, IntegrationGateway:
		default:
			return fmt.Errorf("config: %s.integration %q: must be api or gateway", name, sc.Integration)
		}
	}
	if c.Gateway.Retry.Total < 1 {
		return fmt.Errorf("config: gateway.retry.total must be at least 1, got %d", c.Gateway.Retry.Total)
	}
	if c.Gateway.Retry.Multiplier < 1 {
		return fmt.Errorf("config: gateway.retry.multiplier must be at least 1, got %g", c.Gateway.Retry.Multiplier)
	}
	if c.MaxReconnects < 0 {
		return fmt.Errorf("config: max_reconnects must not be negative, got %d", c.MaxReconnects)
	}
	return nil
}

// Surface returns the configuration for the named surface ("llm" or "mcp").
func (c *Config) Surface(name string) SurfaceConfig {
	if name == "mcp" {
		return c.MCP
	}
	return c.LLM
}
