package cordon

import (
	"github.com/cordonlabs/cordon/internal/adapters/bedrock"
	"github.com/cordonlabs/cordon/internal/adapters/mcptool"
	"github.com/cordonlabs/cordon/internal/adapters/openaichat"
	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/enforce"
	"github.com/cordonlabs/cordon/internal/envelope"
	"github.com/cordonlabs/cordon/internal/install"
)

// Operating modes.
const (
	ModeOff     = config.ModeOff
	ModeMonitor = config.ModeMonitor
	ModeEnforce = config.ModeEnforce
)

// Integration modes.
const (
	IntegrationAPI     = config.IntegrationAPI
	IntegrationGateway = config.IntegrationGateway
)

// Mode controls whether decisions affect call behavior on a surface.
type Mode = config.Mode

// Integration selects how decisions are obtained.
type Integration = config.Integration

// Message is one role-tagged entry in a chat payload.
type Message = envelope.Message

// ChatClient is a mediated OpenAI-compatible chat completions client.
type ChatClient = openaichat.Client

// ChatRequest is the chat completions request shape.
type ChatRequest = openaichat.ChatRequest

// ChatResponse is the chat completions response shape.
type ChatResponse = openaichat.ChatResponse

// ChatStream is a mediated streaming completion.
type ChatStream = openaichat.ChatStream

// BedrockClient is a mediated Amazon Bedrock runtime client.
type BedrockClient = bedrock.Wrapper

// BedrockAPI is the Bedrock runtime surface the wrapper mediates.
type BedrockAPI = bedrock.ConverseAPI

// MCPSession is a mediated MCP client session.
type MCPSession = mcptool.Session

// MCPToolCaller is the MCP session surface the wrapper mediates.
type MCPToolCaller = mcptool.ToolCaller

// InstallStatus records one adapter's activation result.
type InstallStatus = install.Status

// SecurityError is the error surfaced when a call is blocked by policy.
type SecurityError = enforce.SecurityError

// AsSecurityError unwraps err into a *SecurityError if one is present.
func AsSecurityError(err error) (*SecurityError, bool) {
	return enforce.AsSecurityError(err)
}
