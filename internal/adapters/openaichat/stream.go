package openaichat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/envelope"
	"github.com/cordonlabs/cordon/internal/stream"
)

// ChatStream is a mediated streaming completion. Each delta chunk passes
// through the decision pipeline before Recv returns it; a blocked chunk
// ends the stream with a security error and nothing further is read from
// the provider.
type ChatStream struct {
	gate *stream.Gate
	body io.Closer
}

// Recv returns the next permitted content delta. io.EOF marks the normal
// end of the stream.
func (s *ChatStream) Recv(ctx context.Context) (string, error) {
	return s.gate.Next(ctx)
}

// Close releases the underlying connection. Safe to call after an error.
func (s *ChatStream) Close() error {
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

// StreamChatCompletion runs a streaming chat call through mediation. The
// request half is mediated before the provider sees it; every output chunk
// is mediated lazily as the caller pulls it.
func (c *Client) StreamChatCompletion(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	req.Stream = true

	env := envelope.NewChatRequest(req.Model, req.Messages)
	env.SetMeta("provider", Provider)

	check := passthroughChunk
	if c.mediator.Enabled(Provider) {
		// The gateway contract covers synchronous calls only: its verdict
		// arrives as an HTTP status for the whole exchange, which cannot
		// gate individual deltas mid-stream.
		if c.mediator.Integration() == config.IntegrationGateway {
			return nil, fmt.Errorf("openaichat: streaming is not supported in gateway mode")
		}
		reqEnv, err := c.mediator.Mediate(ctx, env)
		if err != nil {
			return nil, err
		}
		req.Messages = reqEnv.Messages
		check = c.mediator.ChunkFunc(env)
	}
	baseURL, apiKey := c.bypassEndpoint()

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
	httpReq.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openaichat: provider call: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		resp.Body.Close()
		return nil, fmt.Errorf("openaichat: provider returned %d: %s", resp.StatusCode, truncateBody(body))
	}

	source := sseSource(resp.Body)
	return &ChatStream{
		gate: stream.NewGate(source, check),
		body: resp.Body,
	}, nil
}

func passthroughChunk(ctx context.Context, content string) (string, error) {
	return content, nil
}

// sseSource reads an OpenAI SSE stream and yields content deltas. Events
// without a content delta (role announcements, finish markers) are skipped.
func sseSource(r io.Reader) stream.Source {
	scanner := bufio.NewScanner(r)
	return func(ctx context.Context) (string, error) {
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			dataStr := strings.TrimPrefix(line, "data: ")
			if dataStr == "[DONE]" {
				return "", io.EOF
			}

			var event map[string]any
			if err := json.Unmarshal([]byte(dataStr), &event); err != nil {
				continue
			}
			if content, ok := deltaContent(event); ok {
				return content, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("openaichat: read stream: %w", err)
		}
		return "", io.EOF
	}
}

// deltaContent extracts choices[0].delta.content from a streaming event.
func deltaContent(event map[string]any) (string, bool) {
	choices, ok := event["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := delta["content"].(string)
	if !ok || content == "" {
		return "", false
	}
	return content, true
}
