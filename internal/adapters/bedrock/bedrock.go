// Package bedrock wraps an Amazon Bedrock runtime client so that Converse
// calls pass through policy mediation. The wrapper exposes the same call
// shapes as the SDK client; agent code swaps construction for Wrap.
package bedrock

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/cordonlabs/cordon/internal/envelope"
	"github.com/cordonlabs/cordon/internal/mediate"
	"github.com/cordonlabs/cordon/internal/stream"
)

// Provider is the name this adapter registers under.
const Provider = "bedrock"

// ConverseAPI is the slice of the Bedrock runtime client the wrapper uses.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Wrapper is a mediated Bedrock runtime client.
type Wrapper struct {
	api      ConverseAPI
	mediator *mediate.Mediator
}

// Wrap builds a mediated client over an existing Bedrock runtime client.
func Wrap(api ConverseAPI, m *mediate.Mediator) *Wrapper {
	return &Wrapper{api: api, mediator: m}
}

// Converse runs one non-streaming Converse call through mediation.
func (w *Wrapper) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if !w.mediator.Enabled(Provider) {
		return w.api.Converse(ctx, params, optFns...)
	}

	env := requestEnvelope(aws.ToString(params.ModelId), params.Messages)
	reqEnv, err := w.mediator.Mediate(ctx, env)
	if err != nil {
		return nil, err
	}
	params = substituteInput(params, reqEnv)

	out, err := w.api.Converse(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}

	content := outputText(out)
	respEnv, err := w.mediator.Mediate(ctx, env.ChatResponse(content))
	if err != nil {
		return nil, err
	}
	if respEnv.Content() != content {
		out.Output = &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: respEnv.Content()}},
		}}
	}
	return out, nil
}

// ConverseStream runs a streaming Converse call through mediation and
// returns a gate over the text deltas. Each delta is inspected as the
// caller pulls it; a block terminates the stream.
func (w *Wrapper) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*stream.Gate, func() error, error) {
	env := requestEnvelope(aws.ToString(params.ModelId), params.Messages)

	check := func(ctx context.Context, content string) (string, error) { return content, nil }
	if w.mediator.Enabled(Provider) {
		reqEnv, err := w.mediator.Mediate(ctx, env)
		if err != nil {
			return nil, nil, err
		}
		p := *params
		p.Messages = substituteMessages(params.Messages, reqEnv)
		params = &p
		check = w.mediator.ChunkFunc(env)
	}

	out, err := w.api.ConverseStream(ctx, params, optFns...)
	if err != nil {
		return nil, nil, fmt.Errorf("bedrock: converse stream: %w", err)
	}

	es := out.GetStream()
	gate := stream.NewGate(EventSource(es.Events(), es.Err), check)
	return gate, es.Close, nil
}

// EventSource turns a Converse event channel into a chunk source yielding
// text deltas. Non-text events are skipped.
func EventSource(events <-chan types.ConverseStreamOutput, streamErr func() error) stream.Source {
	return func(ctx context.Context) (string, error) {
		for {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case ev, ok := <-events:
				if !ok {
					if streamErr != nil {
						if err := streamErr(); err != nil {
							return "", fmt.Errorf("bedrock: stream: %w", err)
						}
					}
					return "", io.EOF
				}
				if text, ok := deltaText(ev); ok {
					return text, nil
				}
			}
		}
	}
}

func deltaText(ev types.ConverseStreamOutput) (string, bool) {
	delta, ok := ev.(*types.ConverseStreamOutputMemberContentBlockDelta)
	if !ok {
		return "", false
	}
	text, ok := delta.Value.Delta.(*types.ContentBlockDeltaMemberText)
	if !ok {
		return "", false
	}
	return text.Value, true
}

// requestEnvelope flattens Converse messages into the canonical form.
func requestEnvelope(modelID string, msgs []types.Message) *envelope.Envelope {
	env := envelope.NewChatRequest(modelID, toEnvelopeMessages(msgs))
	env.SetMeta("provider", Provider)
	return env
}

func toEnvelopeMessages(msgs []types.Message) []envelope.Message {
	out := make([]envelope.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, envelope.Message{
			Role:    string(m.Role),
			Content: messageText(m),
		})
	}
	return out
}

func messageText(m types.Message) string {
	var parts []string
	for _, block := range m.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

// substituteInput applies a sanitized envelope back onto the Converse
// input without mutating the caller's struct.
func substituteInput(params *bedrockruntime.ConverseInput, env *envelope.Envelope) *bedrockruntime.ConverseInput {
	p := *params
	p.Messages = substituteMessages(params.Messages, env)
	return &p
}

// substituteMessages rewrites the last message's text content from the
// mediated envelope. Earlier turns were inspected on previous calls.
func substituteMessages(msgs []types.Message, env *envelope.Envelope) []types.Message {
	if len(msgs) == 0 || len(env.Messages) == 0 {
		return msgs
	}
	want := env.Messages[len(env.Messages)-1].Content
	last := msgs[len(msgs)-1]
	if messageText(last) == want {
		return msgs
	}
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	out[len(out)-1] = types.Message{
		Role:    last.Role,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: want}},
	}
	return out
}

// outputText extracts the assistant text from a Converse response.
func outputText(out *bedrockruntime.ConverseOutput) string {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	return messageText(msg.Value)
}
