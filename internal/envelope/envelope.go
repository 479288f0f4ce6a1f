// Package envelope defines the canonical representation of an intercepted
// agent call. Transport adapters translate provider-specific call shapes
// into Envelopes; everything downstream (inspection, enforcement, audit)
// operates on Envelopes only.
package envelope

import (
	"github.com/google/uuid"
)

// Direction marks which half of a mediated call an Envelope describes.
type Direction string

const (
	Request  Direction = "request"
	Response Direction = "response"
)

// Surface identifies the call category that produced an Envelope.
type Surface string

const (
	SurfaceChat      Surface = "chat"            // LLM chat/completion call
	SurfaceChatChunk Surface = "chat_chunk"      // one streamed LLM output chunk
	SurfaceMCPTool   Surface = "mcp_tool"        // MCP tool invocation
	SurfaceMCPResult Surface = "mcp_tool_result" // MCP tool result
)

// Message is one role-tagged entry in an LLM conversation payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Envelope is the unit of mediation: a normalized request or response half
// of one intercepted call. An Envelope belongs to exactly one in-flight
// call and is never shared across concurrent calls or persisted.
type Envelope struct {
	OperationID string
	Direction   Direction
	Surface     Surface

	// LLM payload.
	Model    string
	Messages []Message
	Params   map[string]any

	// MCP payload.
	ToolName   string
	ToolArgs   map[string]any
	ToolResult any

	// Provider-specific identifiers carried through but not interpreted.
	Metadata map[string]string
}

// NewChatRequest builds a request Envelope for an LLM chat/completion call.
func NewChatRequest(model string, messages []Message) *Envelope {
	return &Envelope{
		OperationID: uuid.New().String(),
		Direction:   Request,
		Surface:     SurfaceChat,
		Model:       model,
		Messages:    messages,
		Metadata:    map[string]string{},
	}
}

// NewToolRequest builds a request Envelope for an MCP tool invocation.
func NewToolRequest(toolName string, args map[string]any) *Envelope {
	return &Envelope{
		OperationID: uuid.New().String(),
		Direction:   Request,
		Surface:     SurfaceMCPTool,
		ToolName:    toolName,
		ToolArgs:    args,
		Metadata:    map[string]string{},
	}
}

// ChatResponse builds the response Envelope correlated with a chat request.
// The assistant output is carried as a single assistant-role message.
func (e *Envelope) ChatResponse(content string) *Envelope {
	return &Envelope{
		OperationID: e.OperationID,
		Direction:   Response,
		Surface:     SurfaceChat,
		Model:       e.Model,
		Messages:    []Message{{Role: "assistant", Content: content}},
		Metadata:    copyMeta(e.Metadata),
	}
}

// ChunkResponse builds a response Envelope for one streamed output chunk.
// A streaming call produces many chunk Envelopes sharing one OperationID.
func (e *Envelope) ChunkResponse(content string) *Envelope {
	return &Envelope{
		OperationID: e.OperationID,
		Direction:   Response,
		Surface:     SurfaceChatChunk,
		Model:       e.Model,
		Messages:    []Message{{Role: "assistant", Content: content}},
		Metadata:    copyMeta(e.Metadata),
	}
}

// ToolResponse builds the response Envelope correlated with a tool request.
func (e *Envelope) ToolResponse(result any) *Envelope {
	return &Envelope{
		OperationID: e.OperationID,
		Direction:   Response,
		Surface:     SurfaceMCPResult,
		ToolName:    e.ToolName,
		ToolResult:  result,
		Metadata:    copyMeta(e.Metadata),
	}
}

// Content returns the concatenated text content of the envelope's messages.
func (e *Envelope) Content() string {
	switch len(e.Messages) {
	case 0:
		return ""
	case 1:
		return e.Messages[0].Content
	}
	var out string
	for i, m := range e.Messages {
		if i > 0 {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

// SetMeta records a provider-specific identifier on the envelope.
func (e *Envelope) SetMeta(key, value string) {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.Metadata[key] = value
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
