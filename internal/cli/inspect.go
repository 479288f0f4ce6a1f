package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/envelope"
	"github.com/cordonlabs/cordon/internal/inspect"
)

var (
	inspectSurface string
	inspectTool    string
	inspectModel   string
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectSurface, "surface", "chat", "Surface to inspect as: chat or mcp_tool")
	inspectCmd.Flags().StringVar(&inspectTool, "tool", "", "Tool name (mcp_tool surface)")
	inspectCmd.Flags().StringVar(&inspectModel, "model", "", "Model id (chat surface)")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <content>",
	Short: "Submit one payload to the decision service",
	Long:  "Builds a request envelope from the given content, submits it to the configured decision service, and prints the decision. Useful for verifying connectivity and policy behavior before wiring an agent.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Inspect.Endpoint == "" {
		return fmt.Errorf("no decision endpoint configured (set inspect.endpoint or CORDON_INSPECT_ENDPOINT)")
	}

	var env *envelope.Envelope
	switch inspectSurface {
	case "mcp_tool":
		env = envelope.NewToolRequest(inspectTool, map[string]any{"input": args[0]})
	default:
		env = envelope.NewChatRequest(inspectModel, []envelope.Message{{Role: "user", Content: args[0]}})
	}

	client := inspect.New(cfg.Inspect, nil)
	decision := client.Inspect(cmd.Context(), env, cfg.LLM.FailOpen)

	out, _ := json.MarshalIndent(map[string]any{
		"operation_id":    env.OperationID,
		"verdict":         decision.Verdict,
		"classifications": decision.Classifications,
		"unreachable":     decision.Unreachable,
	}, "", "  ")
	fmt.Println(string(out))

	if decision.Verdict == envelope.VerdictBlock {
		os.Exit(1)
	}
	return nil
}
