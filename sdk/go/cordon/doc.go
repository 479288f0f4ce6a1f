// Package cordon mediates AI-agent traffic to LLM providers and MCP tool
// servers through a policy decision service. Agent code activates a client
// once, then constructs wrapped provider clients from it; every request
// and response passes through inspection and, in enforce mode, blocked or
// sanitized according to the decision.
//
// Usage:
//
//	cd, err := cordon.New(
//	    cordon.WithMode(cordon.ModeEnforce),
//	    cordon.WithEndpoint("https://decisions.example.com"),
//	    cordon.WithAPIKey(os.Getenv("CORDON_API_KEY")),
//	    cordon.WithOpenAI("https://api.openai.com", os.Getenv("OPENAI_API_KEY")),
//	)
//	cd.Activate(ctx)
//	chat, _ := cd.OpenAIChat()
//	resp, err := chat.CreateChatCompletion(ctx, req)
//	if se, ok := cordon.AsSecurityError(err); ok {
//	    // the call was blocked by policy
//	}
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/cordonlabs/cordon/sdk/go/cordon.
package cordon
