// Package openaichat wraps an OpenAI-compatible chat completions endpoint
// so that every request and response passes through policy mediation. The
// wrapped client is constructed explicitly; agent code swaps its client
// construction for New and keeps the same call shapes.
package openaichat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/envelope"
	"github.com/cordonlabs/cordon/internal/inspect"
	"github.com/cordonlabs/cordon/internal/mediate"
)

// Provider is the name this adapter registers under.
const Provider = "openai"

const completionsPath = "/v1/chat/completions"

// maxResponseBody bounds how much of a provider response is read.
const maxResponseBody = 10 << 20

// ChatRequest is the chat completions request surface the adapter accepts.
type ChatRequest struct {
	Model       string             `json:"model"`
	Messages    []envelope.Message `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int              `json:"index"`
	Message      envelope.Message `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// ChatResponse is a non-streaming chat completions response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Config holds the adapter's construction parameters.
type Config struct {
	BaseURL string // provider endpoint, e.g. "https://api.openai.com"
	APIKey  string

	// Gateway settings, used when the surface runs in gateway mode: the
	// request goes to the gateway instead of BaseURL and the decision is
	// derived from the gateway's HTTP status.
	GatewayURL    string
	GatewayAPIKey string
	Retry         config.RetryConfig

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a mediated chat completions client.
type Client struct {
	cfg      Config
	http     *http.Client
	mediator *mediate.Mediator
	caller   *inspect.Caller
	logger   *slog.Logger
}

// New builds a mediated client. The mediator carries the surface's mode,
// integration and fail policy.
func New(cfg Config, m *mediate.Mediator) (*Client, error) {
	if cfg.BaseURL == "" && m.Integration() == config.IntegrationAPI {
		return nil, fmt.Errorf("openaichat: base URL required")
	}
	if cfg.GatewayURL == "" && m.Integration() == config.IntegrationGateway {
		return nil, fmt.Errorf("openaichat: gateway URL required in gateway mode")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	c := &Client{
		cfg:      cfg,
		http:     httpClient,
		mediator: m,
		caller:   inspect.NewCaller(cfg.Retry, cfg.Logger),
		logger:   cfg.Logger,
	}
	c.caller.OnRetry(m.Metrics().GatewayRetries.Inc)
	return c, nil
}

// CreateChatCompletion runs one non-streaming chat call through mediation.
// A blocked request never reaches the provider; a blocked response never
// reaches the caller.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	env := envelope.NewChatRequest(req.Model, req.Messages)
	env.SetMeta("provider", Provider)

	if !c.mediator.Enabled(Provider) {
		baseURL, apiKey := c.bypassEndpoint()
		return c.call(ctx, baseURL, apiKey, req)
	}
	if c.mediator.Integration() == config.IntegrationGateway {
		return c.createViaGateway(ctx, env, req)
	}

	reqEnv, err := c.mediator.Mediate(ctx, env)
	if err != nil {
		return nil, err
	}
	req.Messages = reqEnv.Messages

	resp, err := c.call(ctx, c.cfg.BaseURL, c.cfg.APIKey, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return resp, nil
	}

	respEnv, err := c.mediator.Mediate(ctx, env.ChatResponse(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}
	resp.Choices[0].Message.Content = respEnv.Content()
	return resp, nil
}

// bypassEndpoint returns the destination for unmediated calls: the
// provider when one is configured, otherwise the gateway, which forwards
// them. A gateway-only client has no other route to the provider.
func (c *Client) bypassEndpoint() (baseURL, apiKey string) {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL, c.cfg.APIKey
	}
	return c.cfg.GatewayURL, c.cfg.GatewayAPIKey
}

// createViaGateway sends the call to the decision gateway, which inspects
// and forwards it. A 2xx answer carries the provider's response; any other
// status is the gateway's block decision.
func (c *Client) createViaGateway(ctx context.Context, env *envelope.Envelope, req ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openaichat: marshal request: %w", err)
	}

	resp, err := c.caller.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.GatewayURL+completionsPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.cfg.GatewayAPIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.cfg.GatewayAPIKey)
		}
		return c.http.Do(httpReq)
	})
	if err != nil {
		// Gateway unreachable after retries: the fail policy decides.
		decision := envelope.ForUnreachable(c.mediator.FailOpen())
		if _, merr := c.mediator.MediateWith(ctx, env, mediate.Fixed(decision)); merr != nil {
			return nil, merr
		}
		return nil, fmt.Errorf("openaichat: gateway unreachable and fail-open, no response available: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("openaichat: read gateway response: %w", err)
	}

	decision := inspect.DecisionFromStatus(resp.StatusCode, body)
	if _, err := c.mediator.MediateWith(ctx, env, mediate.Fixed(decision)); err != nil {
		return nil, err
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("openaichat: decode gateway response: %w", err)
	}
	return &out, nil
}

// call performs the raw provider request.
func (c *Client) call(ctx context.Context, baseURL, apiKey string, req ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openaichat: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openaichat: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openaichat: provider call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("openaichat: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openaichat: provider returned %d: %s", resp.StatusCode, truncateBody(body))
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("openaichat: decode response: %w", err)
	}
	return &out, nil
}

func truncateBody(b []byte) string {
	const max = 256
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
