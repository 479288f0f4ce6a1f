// Package mcptool wraps an MCP client session so that tool calls and
// their results pass through policy mediation. Agent code connects its
// MCP client as usual and wraps the session with WrapSession.
package mcptool

import (
	"context"
	"reflect"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cordonlabs/cordon/internal/envelope"
	"github.com/cordonlabs/cordon/internal/mediate"
)

// Provider is the name this adapter registers under.
const Provider = "mcp"

// ToolCaller is the slice of an MCP client session the wrapper uses.
// *mcp.ClientSession implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

// Session is a mediated MCP session: every tool invocation and every tool
// result passes through the decision pipeline.
type Session struct {
	caller   ToolCaller
	mediator *mediate.Mediator
}

// WrapSession builds a mediated session over a connected MCP session.
func WrapSession(caller ToolCaller, m *mediate.Mediator) *Session {
	return &Session{caller: caller, mediator: m}
}

// CallTool mediates the request half, invokes the tool, then mediates the
// result half. A blocked request never reaches the tool server; a blocked
// result never reaches the agent.
func (s *Session) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	if !s.mediator.Enabled(Provider) {
		return s.caller.CallTool(ctx, params)
	}

	env := envelope.NewToolRequest(params.Name, argumentsMap(params.Arguments))
	env.SetMeta("provider", Provider)

	reqEnv, err := s.mediator.Mediate(ctx, env)
	if err != nil {
		return nil, err
	}
	params = substituteParams(params, reqEnv)

	result, err := s.caller.CallTool(ctx, params)
	if err != nil {
		return nil, err
	}

	respEnv, err := s.mediator.Mediate(ctx, env.ToolResponse(resultText(result)))
	if err != nil {
		return nil, err
	}
	return substituteResult(result, respEnv), nil
}

// argumentsMap normalizes the params' arguments for inspection. Non-map
// argument shapes are wrapped under a single key.
func argumentsMap(args any) map[string]any {
	switch v := args.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		return map[string]any{"arguments": v}
	}
}

// substituteParams applies sanitized arguments back onto a copy of the
// call params. Argument values can hold nested maps and slices, so the
// unchanged check is a deep comparison.
func substituteParams(params *mcp.CallToolParams, env *envelope.Envelope) *mcp.CallToolParams {
	if env.ToolArgs == nil {
		return params
	}
	if orig, ok := params.Arguments.(map[string]any); ok && reflect.DeepEqual(orig, env.ToolArgs) {
		return params
	}
	p := *params
	p.Arguments = env.ToolArgs
	return &p
}

// substituteResult applies a sanitized result back onto a copy of the
// tool result. The sanitized payload replaces the entire content list.
func substituteResult(result *mcp.CallToolResult, env *envelope.Envelope) *mcp.CallToolResult {
	text := resultText(result)
	replacement, ok := env.ToolResult.(string)
	if !ok || replacement == text {
		return result
	}
	r := *result
	r.Content = []mcp.Content{&mcp.TextContent{Text: replacement}}
	return &r
}

// resultText flattens a tool result's text content for inspection.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
