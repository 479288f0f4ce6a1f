package envelope

import "testing"

func TestChatRequestCorrelation(t *testing.T) {
	req := NewChatRequest("gpt-4o", []Message{{Role: "user", Content: "hello"}})
	if req.OperationID == "" {
		t.Fatal("expected operation id to be assigned")
	}
	if req.Direction != Request || req.Surface != SurfaceChat {
		t.Errorf("unexpected direction/surface: %s/%s", req.Direction, req.Surface)
	}

	resp := req.ChatResponse("hi there")
	if resp.OperationID != req.OperationID {
		t.Error("response envelope must share the request operation id")
	}
	if resp.Direction != Response {
		t.Errorf("expected response direction, got %s", resp.Direction)
	}
	if resp.Content() != "hi there" {
		t.Errorf("unexpected content: %q", resp.Content())
	}
}

func TestChunkResponsesShareOperationID(t *testing.T) {
	req := NewChatRequest("claude-3", []Message{{Role: "user", Content: "x"}})
	a := req.ChunkResponse("chunk a")
	b := req.ChunkResponse("chunk b")
	if a.OperationID != req.OperationID || b.OperationID != req.OperationID {
		t.Error("chunk envelopes must share the request operation id")
	}
	if a.Surface != SurfaceChatChunk {
		t.Errorf("expected chat_chunk surface, got %s", a.Surface)
	}
}

func TestToolRequestAndResponse(t *testing.T) {
	req := NewToolRequest("ask_question", map[string]any{
		"repoName": "python/cpython",
		"question": "What is the GIL?",
	})
	if req.Surface != SurfaceMCPTool {
		t.Errorf("unexpected surface: %s", req.Surface)
	}

	resp := req.ToolResponse("the global interpreter lock")
	if resp.Surface != SurfaceMCPResult {
		t.Errorf("unexpected surface: %s", resp.Surface)
	}
	if resp.ToolName != "ask_question" {
		t.Errorf("tool name not carried: %q", resp.ToolName)
	}
	if resp.OperationID != req.OperationID {
		t.Error("tool response must share the request operation id")
	}
}

func TestContentConcatenation(t *testing.T) {
	e := &Envelope{Messages: []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hello"},
	}}
	want := "be helpful\nhello"
	if got := e.Content(); got != want {
		t.Errorf("Content() = %q, want %q", got, want)
	}
}

func TestResponseMetadataIsCopied(t *testing.T) {
	req := NewChatRequest("m", nil)
	req.SetMeta("provider", "openai")
	resp := req.ChatResponse("ok")
	resp.Metadata["provider"] = "other"
	if req.Metadata["provider"] != "openai" {
		t.Error("mutating response metadata must not affect the request envelope")
	}
}
