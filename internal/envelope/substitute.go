package envelope

// Substitute returns a copy of the envelope with its payload replaced by
// the decision's sanitized content. The original envelope is not modified;
// adapters hand the copy back to the caller in place of the raw payload.
func (e *Envelope) Substitute(d Decision) *Envelope {
	out := *e
	out.Metadata = copyMeta(e.Metadata)

	switch e.Surface {
	case SurfaceChat, SurfaceChatChunk:
		out.Messages = substituteMessages(e.Messages, d.SanitizedContent)
	case SurfaceMCPTool:
		if args, ok := d.SanitizedResult.(map[string]any); ok {
			out.ToolArgs = args
		}
	case SurfaceMCPResult:
		if d.SanitizedResult != nil {
			out.ToolResult = d.SanitizedResult
		} else if d.SanitizedContent != "" {
			out.ToolResult = d.SanitizedContent
		}
	}
	return &out
}

// substituteMessages replaces the content of the last message, which is
// the one the decision was rendered against. Earlier turns are context
// the inspection service already saw on previous calls.
func substituteMessages(msgs []Message, content string) []Message {
	if len(msgs) == 0 {
		return []Message{{Role: "user", Content: content}}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	out[len(out)-1].Content = content
	return out
}
