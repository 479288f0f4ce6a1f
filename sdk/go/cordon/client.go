package cordon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cordonlabs/cordon/internal/adapters/bedrock"
	"github.com/cordonlabs/cordon/internal/adapters/mcptool"
	"github.com/cordonlabs/cordon/internal/adapters/openaichat"
	"github.com/cordonlabs/cordon/internal/audit"
	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/inspect"
	"github.com/cordonlabs/cordon/internal/install"
	"github.com/cordonlabs/cordon/internal/mediate"
	"github.com/cordonlabs/cordon/internal/metrics"
	"github.com/cordonlabs/cordon/internal/stream"
)

// Client holds the mediation pipeline and the installation registry.
// Modes are resolved at New and immutable afterwards; Activate is
// idempotent and safe to call from multiple initialization paths.
type Client struct {
	cfg    *config.Config
	opts   clientConfig
	logger *slog.Logger

	inspector *inspect.Client
	llm       *mediate.Mediator
	mcp       *mediate.Mediator
	registry  *install.Registry

	auditLog *audit.Log
	store    *audit.Store
	metrics  *metrics.Metrics

	chat        *openaichat.Client
	bedrockWrap *bedrock.Wrapper
}

// New creates a Client with the given options. Configuration precedence:
// built-in defaults, then the config file, then CORDON_* environment
// variables, then explicit options.
func New(opts ...Option) (*Client, error) {
	var oc clientConfig
	for _, o := range opts {
		o(&oc)
	}

	cfg, err := config.Load(oc.configFile)
	if err != nil {
		return nil, fmt.Errorf("cordon: %w", err)
	}
	applyOptions(cfg, &oc)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cordon: %w", err)
	}

	logger := oc.logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:      cfg,
		opts:     oc,
		logger:   logger,
		registry: install.NewRegistry(logger),
	}

	if cfg.Audit.LogPath != "" {
		c.auditLog, err = audit.Open(cfg.Audit.LogPath)
		if err != nil {
			return nil, fmt.Errorf("cordon: %w", err)
		}
	}
	if cfg.Audit.DBPath != "" {
		c.store, err = audit.OpenStore(cfg.Audit.DBPath)
		if err != nil {
			return nil, fmt.Errorf("cordon: %w", err)
		}
	}

	mx := metrics.Nop()
	if oc.registry != nil {
		mx = metrics.New(oc.registry)
	}
	c.metrics = mx

	c.inspector = inspect.New(cfg.Inspect, logger)
	mopts := []mediate.Option{mediate.WithMetrics(mx)}
	if c.auditLog != nil {
		mopts = append(mopts, mediate.WithAuditLog(c.auditLog))
	}
	if c.store != nil {
		mopts = append(mopts, mediate.WithAuditStore(c.store))
	}
	c.llm = mediate.New(cfg.LLM, c.inspector, logger, mopts...)
	c.mcp = mediate.New(cfg.MCP, c.inspector, logger, mopts...)

	return c, nil
}

// applyOptions overlays explicit options onto the loaded config.
func applyOptions(cfg *config.Config, oc *clientConfig) {
	if oc.llmMode != nil {
		cfg.LLM.Mode = *oc.llmMode
	}
	if oc.mcpMode != nil {
		cfg.MCP.Mode = *oc.mcpMode
	}
	if oc.endpoint != "" {
		cfg.Inspect.Endpoint = oc.endpoint
	}
	if oc.apiKey != "" {
		cfg.Inspect.APIKey = oc.apiKey
	}
	if oc.failOpen != nil {
		cfg.LLM.FailOpen = *oc.failOpen
		cfg.MCP.FailOpen = *oc.failOpen
	}
	if oc.auditLogPath != "" {
		cfg.Audit.LogPath = oc.auditLogPath
	}
	if oc.auditDBPath != "" {
		cfg.Audit.DBPath = oc.auditDBPath
	}
}

// Activate installs every constructible adapter exactly once and returns
// the per-adapter statuses. Adapters whose provider dependency was not
// supplied are skipped, not failed; one adapter's failure never prevents
// the others from installing. Calling Activate again returns the statuses
// recorded by the first call.
func (c *Client) Activate(ctx context.Context) []InstallStatus {
	return c.registry.Activate(ctx,
		install.AdapterFunc{Name: openaichat.Provider, Fn: c.installOpenAI},
		install.AdapterFunc{Name: bedrock.Provider, Fn: c.installBedrock},
		install.AdapterFunc{Name: mcptool.Provider, Fn: func(ctx context.Context) error { return nil }},
	)
}

func (c *Client) installOpenAI(ctx context.Context) error {
	gatewayURL := c.cfg.Gateway.Endpoints[openaichat.Provider]
	if c.opts.openaiBaseURL == "" && gatewayURL == "" {
		return install.ErrUnavailable
	}
	chat, err := openaichat.New(openaichat.Config{
		BaseURL:       c.opts.openaiBaseURL,
		APIKey:        c.opts.openaiAPIKey,
		GatewayURL:    gatewayURL,
		GatewayAPIKey: c.cfg.Gateway.APIKey,
		Retry:         c.cfg.Gateway.Retry,
		Logger:        c.logger,
	}, c.llm)
	if err != nil {
		return err
	}
	c.chat = chat
	return nil
}

func (c *Client) installBedrock(ctx context.Context) error {
	if c.opts.bedrockAPI == nil {
		return install.ErrUnavailable
	}
	c.bedrockWrap = bedrock.Wrap(c.opts.bedrockAPI, c.llm)
	return nil
}

// OpenAIChat returns the mediated chat completions client.
func (c *Client) OpenAIChat() (*ChatClient, error) {
	if c.chat == nil {
		return nil, fmt.Errorf("cordon: openai adapter not installed (missing endpoint, or Activate not called)")
	}
	return c.chat, nil
}

// Bedrock returns the mediated Bedrock runtime client.
func (c *Client) Bedrock() (*BedrockClient, error) {
	if c.bedrockWrap == nil {
		return nil, fmt.Errorf("cordon: bedrock adapter not installed (missing client, or Activate not called)")
	}
	return c.bedrockWrap, nil
}

// WrapMCPSession wraps a connected MCP session with mediation. Sessions
// can be wrapped at any time after Activate.
func (c *Client) WrapMCPSession(caller MCPToolCaller) *MCPSession {
	return mcptool.WrapSession(caller, c.mcp)
}

// NotificationSession builds a reconnecting session over an MCP server's
// notification stream, using the configured reconnect budget.
func (c *Client) NotificationSession(endpoint string, handle func(event string)) *stream.Session {
	sess := mcptool.NotificationSession(nil, endpoint, handle,
		c.cfg.MaxReconnects, c.cfg.ReconnectDelay, c.logger)
	sess.OnEvent(func(outcome string) {
		c.metrics.Reconnects.WithLabelValues(outcome).Inc()
	})
	return sess
}

// Statuses returns the adapter statuses recorded by Activate.
func (c *Client) Statuses() []InstallStatus {
	return c.registry.Statuses()
}

// Modes returns the resolved operating modes (llm, mcp).
func (c *Client) Modes() (Mode, Mode) {
	return c.cfg.LLM.Mode, c.cfg.MCP.Mode
}

// Ping checks decision service reachability for diagnostics.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.inspector.Ping(pingCtx)
}

// Close releases the audit sinks.
func (c *Client) Close() error {
	var firstErr error
	if c.auditLog != nil {
		if err := c.auditLog.Close(); err != nil {
			firstErr = err
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
