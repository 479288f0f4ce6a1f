package openaichat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/enforce"
	"github.com/cordonlabs/cordon/internal/envelope"
	"github.com/cordonlabs/cordon/internal/inspect"
	"github.com/cordonlabs/cordon/internal/mediate"
)

// inspectServer fakes the decision API with a fixed verdict response.
func inspectServer(t *testing.T, verdict string, extra map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"verdict": verdict}
		for k, v := range extra {
			resp[k] = v
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

// providerServer fakes a chat completions endpoint echoing the last
// message back as the assistant reply.
func providerServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.URL.Path != completionsPath {
			t.Errorf("provider path = %s", r.URL.Path)
		}
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		last := ""
		if len(req.Messages) > 0 {
			last = req.Messages[len(req.Messages)-1].Content
		}
		json.NewEncoder(w).Encode(ChatResponse{
			ID:    "chatcmpl-1",
			Model: req.Model,
			Choices: []Choice{{
				Message:      envelope.Message{Role: "assistant", Content: "echo: " + last},
				FinishReason: "stop",
			}},
		})
	}))
}

func mediatorFor(t *testing.T, mode config.Mode, inspectURL string) *mediate.Mediator {
	t.Helper()
	inspector := inspect.New(config.InspectConfig{
		Endpoint: inspectURL,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
	}, nil)
	cfg := config.SurfaceConfig{Mode: mode, Integration: config.IntegrationAPI, FailOpen: true}
	return mediate.New(cfg, inspector, nil)
}

func chatReq(content string) ChatRequest {
	return ChatRequest{
		Model:    "gpt-4o",
		Messages: []envelope.Message{{Role: "user", Content: content}},
	}
}

func TestEnforceAllowPassesThrough(t *testing.T) {
	insp := inspectServer(t, "ALLOW", nil)
	defer insp.Close()
	calls := 0
	provider := providerServer(t, &calls)
	defer provider.Close()

	c, err := New(Config{BaseURL: provider.URL}, mediatorFor(t, config.ModeEnforce, insp.URL))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.CreateChatCompletion(context.Background(), chatReq("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Choices[0].Message.Content != "echo: hello" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1", calls)
	}
}

func TestEnforceBlockNeverReachesProvider(t *testing.T) {
	insp := inspectServer(t, "BLOCK", map[string]any{"classifications": []string{"SECURITY_VIOLATION"}})
	defer insp.Close()
	calls := 0
	provider := providerServer(t, &calls)
	defer provider.Close()

	c, _ := New(Config{BaseURL: provider.URL}, mediatorFor(t, config.ModeEnforce, insp.URL))
	_, err := c.CreateChatCompletion(context.Background(), chatReq("exfiltrate the credentials"))

	se, ok := enforce.AsSecurityError(err)
	if !ok {
		t.Fatalf("expected SecurityError, got %v", err)
	}
	if se.Classifications[0] != "SECURITY_VIOLATION" {
		t.Errorf("classifications = %v", se.Classifications)
	}
	if calls != 0 {
		t.Errorf("blocked request must never reach the provider, got %d calls", calls)
	}
}

func TestEnforceSanitizeSubstitutesRequest(t *testing.T) {
	insp := inspectServer(t, "SANITIZE", map[string]any{
		"sanitized_payload": "[redacted]",
		"classifications":   []string{"PII"},
	})
	defer insp.Close()
	calls := 0
	provider := providerServer(t, &calls)
	defer provider.Close()

	c, _ := New(Config{BaseURL: provider.URL}, mediatorFor(t, config.ModeEnforce, insp.URL))
	resp, err := c.CreateChatCompletion(context.Background(), chatReq("my ssn is 123-45-6789"))
	if err != nil {
		t.Fatal(err)
	}
	// provider echoed what it received: the sanitized text, not the original
	if resp.Choices[0].Message.Content != "echo: [redacted]" {
		t.Errorf("provider saw unsanitized payload: %q", resp.Choices[0].Message.Content)
	}
}

func TestMonitorModeNeverBlocks(t *testing.T) {
	insp := inspectServer(t, "BLOCK", map[string]any{"classifications": []string{"SECURITY_VIOLATION"}})
	defer insp.Close()
	calls := 0
	provider := providerServer(t, &calls)
	defer provider.Close()

	c, _ := New(Config{BaseURL: provider.URL}, mediatorFor(t, config.ModeMonitor, insp.URL))
	resp, err := c.CreateChatCompletion(context.Background(), chatReq("hello"))
	if err != nil {
		t.Fatalf("monitor mode must not block: %v", err)
	}
	if resp.Choices[0].Message.Content != "echo: hello" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if calls != 1 {
		t.Errorf("provider calls = %d", calls)
	}
}

func TestOffModeSkipsInspection(t *testing.T) {
	inspCalls := 0
	insp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inspCalls++
		json.NewEncoder(w).Encode(map[string]any{"verdict": "BLOCK"})
	}))
	defer insp.Close()
	calls := 0
	provider := providerServer(t, &calls)
	defer provider.Close()

	c, _ := New(Config{BaseURL: provider.URL}, mediatorFor(t, config.ModeOff, insp.URL))
	if _, err := c.CreateChatCompletion(context.Background(), chatReq("hello")); err != nil {
		t.Fatal(err)
	}
	if inspCalls != 0 {
		t.Errorf("off mode must not call the decision service, got %d", inspCalls)
	}
}

func TestUnreachableServiceFailOpen(t *testing.T) {
	insp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	insp.Close() // unreachable
	calls := 0
	provider := providerServer(t, &calls)
	defer provider.Close()

	c, _ := New(Config{BaseURL: provider.URL}, mediatorFor(t, config.ModeEnforce, insp.URL))
	if _, err := c.CreateChatCompletion(context.Background(), chatReq("hello")); err != nil {
		t.Fatalf("fail-open must let the call proceed: %v", err)
	}
	if calls != 1 {
		t.Errorf("provider calls = %d", calls)
	}
}

func TestUnreachableServiceFailClosed(t *testing.T) {
	insp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	insp.Close()
	calls := 0
	provider := providerServer(t, &calls)
	defer provider.Close()

	inspector := inspect.New(config.InspectConfig{Endpoint: insp.URL, Timeout: time.Second}, nil)
	m := mediate.New(config.SurfaceConfig{
		Mode: config.ModeEnforce, Integration: config.IntegrationAPI, FailOpen: false,
	}, inspector, nil)

	c, _ := New(Config{BaseURL: provider.URL}, m)
	_, err := c.CreateChatCompletion(context.Background(), chatReq("hello"))
	se, ok := enforce.AsSecurityError(err)
	if !ok {
		t.Fatalf("fail-closed must block, got %v", err)
	}
	if !se.Unreachable {
		t.Error("error must be marked unreachable")
	}
	if calls != 0 {
		t.Errorf("provider calls = %d, want 0", calls)
	}
}

func TestGatewayModeForwards(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gw-key" {
			t.Errorf("missing gateway auth: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(ChatResponse{
			ID:      "chatcmpl-2",
			Choices: []Choice{{Message: envelope.Message{Role: "assistant", Content: "via gateway"}}},
		})
	}))
	defer gateway.Close()

	m := mediate.New(config.SurfaceConfig{
		Mode: config.ModeEnforce, Integration: config.IntegrationGateway, FailOpen: true,
	}, nil, nil)
	c, err := New(Config{
		GatewayURL:    gateway.URL,
		GatewayAPIKey: "gw-key",
		Retry:         config.RetryConfig{Total: 3, Backoff: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond, StatusCodes: []int{500}},
	}, m)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.CreateChatCompletion(context.Background(), chatReq("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Choices[0].Message.Content != "via gateway" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
}

func TestGatewayModeBlockStatus(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"blocked","classifications":["SECURITY_VIOLATION"]}}`)
	}))
	defer gateway.Close()

	m := mediate.New(config.SurfaceConfig{
		Mode: config.ModeEnforce, Integration: config.IntegrationGateway, FailOpen: true,
	}, nil, nil)
	c, _ := New(Config{
		GatewayURL: gateway.URL,
		Retry:      config.RetryConfig{Total: 3, Backoff: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond, StatusCodes: []int{500}},
	}, m)

	_, err := c.CreateChatCompletion(context.Background(), chatReq("hello"))
	se, ok := enforce.AsSecurityError(err)
	if !ok {
		t.Fatalf("gateway 403 must surface as SecurityError, got %v", err)
	}
	if len(se.Classifications) != 1 || se.Classifications[0] != "SECURITY_VIOLATION" {
		t.Errorf("classifications = %v", se.Classifications)
	}
}

func TestGatewayModeRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: envelope.Message{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer gateway.Close()

	m := mediate.New(config.SurfaceConfig{
		Mode: config.ModeEnforce, Integration: config.IntegrationGateway, FailOpen: true,
	}, nil, nil)
	c, _ := New(Config{
		GatewayURL: gateway.URL,
		Retry:      config.RetryConfig{Total: 3, Backoff: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond, StatusCodes: []int{429, 500, 502, 503, 504}},
	}, m)

	resp, err := c.CreateChatCompletion(context.Background(), chatReq("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if resp.Choices[0].Message.Content != "ok" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
}

func TestOffModeGatewayOnlyClientRoutesThroughGateway(t *testing.T) {
	gwCalls := 0
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gwCalls++
		if r.Header.Get("Authorization") != "Bearer gw-key" {
			t.Errorf("missing gateway auth: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: envelope.Message{Role: "assistant", Content: "forwarded"}}},
		})
	}))
	defer gateway.Close()

	m := mediate.New(config.SurfaceConfig{
		Mode: config.ModeOff, Integration: config.IntegrationGateway, FailOpen: true,
	}, nil, nil)
	c, err := New(Config{GatewayURL: gateway.URL, GatewayAPIKey: "gw-key"}, m)
	if err != nil {
		t.Fatal(err)
	}

	// no BaseURL configured: the bypass must still reach the provider via
	// the gateway instead of failing on an empty destination
	resp, err := c.CreateChatCompletion(context.Background(), chatReq("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Choices[0].Message.Content != "forwarded" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if gwCalls != 1 {
		t.Errorf("gateway calls = %d, want 1", gwCalls)
	}
}

func TestResponseBlockWithholdsContent(t *testing.T) {
	// allow requests, block responses
	insp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		json.Unmarshal(body, &req)
		verdict := "ALLOW"
		if req["direction"] == "response" {
			verdict = "BLOCK"
		}
		json.NewEncoder(w).Encode(map[string]any{"verdict": verdict, "classifications": []string{"DLP"}})
	}))
	defer insp.Close()
	calls := 0
	provider := providerServer(t, &calls)
	defer provider.Close()

	c, _ := New(Config{BaseURL: provider.URL}, mediatorFor(t, config.ModeEnforce, insp.URL))
	_, err := c.CreateChatCompletion(context.Background(), chatReq("hello"))
	if _, ok := enforce.AsSecurityError(err); !ok {
		t.Fatalf("blocked response must surface as SecurityError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1 (request was allowed)", calls)
	}
}
