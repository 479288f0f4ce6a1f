package envelope

import "testing"

func TestSubstituteChatReplacesLastMessage(t *testing.T) {
	env := NewChatRequest("gpt-4o", []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "my ssn is 123-45-6789"},
	})

	out := env.Substitute(Sanitize("my ssn is [redacted]", "PII"))
	if out.Messages[1].Content != "my ssn is [redacted]" {
		t.Errorf("last message = %q", out.Messages[1].Content)
	}
	if out.Messages[0].Content != "be helpful" {
		t.Error("earlier turns must be untouched")
	}
	if env.Messages[1].Content != "my ssn is 123-45-6789" {
		t.Error("original envelope must not be mutated")
	}
}

func TestSubstituteToolArgs(t *testing.T) {
	env := NewToolRequest("query_db", map[string]any{"sql": "DROP TABLE users"})

	d := Decision{Verdict: VerdictSanitize, SanitizedResult: map[string]any{"sql": "SELECT 1"}}
	out := env.Substitute(d)
	if out.ToolArgs["sql"] != "SELECT 1" {
		t.Errorf("args = %v", out.ToolArgs)
	}
	if env.ToolArgs["sql"] != "DROP TABLE users" {
		t.Error("original args must not be mutated")
	}
}

func TestSubstituteToolResult(t *testing.T) {
	req := NewToolRequest("read_file", nil)
	resp := req.ToolResponse("api_key=sk-secret")

	out := resp.Substitute(Sanitize("api_key=[redacted]"))
	if out.ToolResult != "api_key=[redacted]" {
		t.Errorf("result = %v", out.ToolResult)
	}

	d := Decision{Verdict: VerdictSanitize, SanitizedResult: map[string]any{"ok": true}}
	structured := resp.Substitute(d)
	if m, ok := structured.ToolResult.(map[string]any); !ok || m["ok"] != true {
		t.Errorf("structured result = %v", structured.ToolResult)
	}
}
