package cordon

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configFile string

	llmMode *Mode
	mcpMode *Mode

	endpoint string
	apiKey   string
	failOpen *bool

	openaiBaseURL string
	openaiAPIKey  string
	bedrockAPI    BedrockAPI

	auditLogPath string
	auditDBPath  string

	logger   *slog.Logger
	registry prometheus.Registerer
}

// WithConfigFile loads configuration from a YAML file. Environment
// variables still override file values.
func WithConfigFile(path string) Option {
	return func(c *clientConfig) { c.configFile = path }
}

// WithMode sets the operating mode for both surfaces.
func WithMode(mode Mode) Option {
	return func(c *clientConfig) { c.llmMode, c.mcpMode = &mode, &mode }
}

// WithLLMMode sets the operating mode for the LLM surface only.
func WithLLMMode(mode Mode) Option {
	return func(c *clientConfig) { c.llmMode = &mode }
}

// WithMCPMode sets the operating mode for the MCP surface only.
func WithMCPMode(mode Mode) Option {
	return func(c *clientConfig) { c.mcpMode = &mode }
}

// WithEndpoint sets the inspection service endpoint.
func WithEndpoint(url string) Option {
	return func(c *clientConfig) { c.endpoint = url }
}

// WithAPIKey sets the inspection service API key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithFailOpen sets the policy applied when the decision service is
// unreachable, on both surfaces.
func WithFailOpen(failOpen bool) Option {
	return func(c *clientConfig) { c.failOpen = &failOpen }
}

// WithOpenAI supplies the OpenAI-compatible provider endpoint and key,
// making the openai adapter installable.
func WithOpenAI(baseURL, apiKey string) Option {
	return func(c *clientConfig) { c.openaiBaseURL, c.openaiAPIKey = baseURL, apiKey }
}

// WithBedrock supplies a constructed Bedrock runtime client, making the
// bedrock adapter installable.
func WithBedrock(api BedrockAPI) Option {
	return func(c *clientConfig) { c.bedrockAPI = api }
}

// WithAuditLog enables the hash-chained JSONL decision log at path.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditLogPath = path }
}

// WithAuditStore enables the SQLite decision store at path.
func WithAuditStore(path string) Option {
	return func(c *clientConfig) { c.auditDBPath = path }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithMetricsRegistry registers pipeline metrics on the given registry.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(c *clientConfig) { c.registry = reg }
}
