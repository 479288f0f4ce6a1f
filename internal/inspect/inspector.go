// Package inspect obtains a Decision for an Envelope, either by calling
// the inspection service directly (API mode) or by interpreting an inline
// inspecting gateway's response (Gateway mode). Transport failures never
// escape this package: they are resolved into a synthesized decision via
// the surface's fail-open policy.
package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/envelope"
)

const (
	chatInspectPath = "/api/v1/inspect/chat"
	mcpInspectPath  = "/api/v1/inspect/mcp"

	// maxDecisionBody bounds the inspection response read.
	maxDecisionBody = 1 << 20 // 1MB
)

// Client calls the remote inspection service in API mode.
type Client struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an inspection client from config. The timeout applies per
// decision round trip, independent of the caller's overall deadline.
func New(cfg config.InspectConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// inspectRequest is the wire shape sent to the inspection service.
type inspectRequest struct {
	OperationID string             `json:"operation_id"`
	Direction   string             `json:"direction"`
	Surface     string             `json:"surface"`
	Model       string             `json:"model,omitempty"`
	Messages    []envelope.Message `json:"messages,omitempty"`
	ToolName    string             `json:"tool_name,omitempty"`
	ToolArgs    map[string]any     `json:"tool_args,omitempty"`
	ToolResult  any                `json:"tool_result,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// inspectResponse is the wire shape returned by the inspection service.
type inspectResponse struct {
	Verdict          string   `json:"verdict"`
	Classifications  []string `json:"classifications"`
	SanitizedPayload any      `json:"sanitized_payload,omitempty"`
}

// Inspect submits an envelope to the inspection service and returns the
// decision. Unreachability, timeout, and malformed responses all collapse
// into the fail-open/fail-closed synthesized decision; no transport error
// is ever returned to the enforcement layer.
func (c *Client) Inspect(ctx context.Context, env *envelope.Envelope, failOpen bool) envelope.Decision {
	if c.endpoint == "" {
		c.logger.Warn("inspect: no endpoint configured, applying fail policy",
			"surface", string(env.Surface), "fail_open", failOpen)
		return envelope.ForUnreachable(failOpen)
	}

	body, err := json.Marshal(inspectRequest{
		OperationID: env.OperationID,
		Direction:   string(env.Direction),
		Surface:     string(env.Surface),
		Model:       env.Model,
		Messages:    env.Messages,
		ToolName:    env.ToolName,
		ToolArgs:    env.ToolArgs,
		ToolResult:  env.ToolResult,
		Metadata:    env.Metadata,
	})
	if err != nil {
		c.logger.Warn("inspect: marshal envelope failed", "error", err)
		return envelope.ForUnreachable(failOpen)
	}

	// Per-call timeout independent of the caller's deadline.
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint+c.pathFor(env.Surface), bytes.NewReader(body))
	if err != nil {
		return envelope.ForUnreachable(failOpen)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("inspect: service unreachable", "error", err, "fail_open", failOpen)
		return envelope.ForUnreachable(failOpen)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("inspect: service returned error status",
			"status", resp.StatusCode, "fail_open", failOpen)
		return envelope.ForUnreachable(failOpen)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxDecisionBody))
	if err != nil {
		return envelope.ForUnreachable(failOpen)
	}

	var ir inspectResponse
	if err := json.Unmarshal(respBody, &ir); err != nil {
		// Malformed decision responses are treated as unreachable.
		c.logger.Warn("inspect: malformed decision response", "error", err)
		return envelope.ForUnreachable(failOpen)
	}

	return decisionFromResponse(ir, failOpen, c.logger)
}

func (c *Client) pathFor(surface envelope.Surface) string {
	switch surface {
	case envelope.SurfaceMCPTool, envelope.SurfaceMCPResult:
		return mcpInspectPath
	default:
		return chatInspectPath
	}
}

func decisionFromResponse(ir inspectResponse, failOpen bool, logger *slog.Logger) envelope.Decision {
	switch strings.ToLower(ir.Verdict) {
	case "allow":
		return envelope.Decision{Verdict: envelope.VerdictAllow, Classifications: ir.Classifications}
	case "block":
		return envelope.Decision{Verdict: envelope.VerdictBlock, Classifications: ir.Classifications}
	case "sanitize":
		d := envelope.Decision{Verdict: envelope.VerdictSanitize, Classifications: ir.Classifications}
		switch p := ir.SanitizedPayload.(type) {
		case string:
			d.SanitizedContent = p
		default:
			d.SanitizedResult = p
		}
		return d
	default:
		logger.Warn("inspect: unknown verdict, treating as unreachable", "verdict", ir.Verdict)
		return envelope.ForUnreachable(failOpen)
	}
}

// Ping checks inspection service reachability for diagnostics.
func (c *Client) Ping(ctx context.Context) error {
	if c.endpoint == "" {
		return fmt.Errorf("inspect: no endpoint configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.endpoint+"/healthz", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inspect: service unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("inspect: service unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}
