package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/cordonlabs/cordon/internal/audit"
	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/inspect"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "cordon binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "cordon binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		checks = append(checks, checkResult{
			label:  "configuration",
			ok:     false,
			detail: err.Error(),
		})
		printChecks(checks)
		return fmt.Errorf("doctor found issues")
	}
	checks = append(checks, checkResult{
		label:  "configuration",
		ok:     true,
		detail: fmt.Sprintf("llm=%s mcp=%s", cfg.LLM.Mode, cfg.MCP.Mode),
	})

	// 3. Decision service reachability.
	if cfg.Inspect.Endpoint == "" {
		ok := cfg.LLM.Mode == config.ModeOff && cfg.MCP.Mode == config.ModeOff
		checks = append(checks, checkResult{
			label:  "decision service",
			ok:     ok,
			detail: "no endpoint configured",
			fix:    "set inspect.endpoint or CORDON_INSPECT_ENDPOINT",
		})
	} else {
		client := inspect.New(cfg.Inspect, nil)
		if err := client.Ping(cmd.Context()); err != nil {
			checks = append(checks, checkResult{
				label:  "decision service",
				ok:     false,
				detail: err.Error(),
			})
		} else {
			checks = append(checks, checkResult{
				label:  "decision service",
				ok:     true,
				detail: cfg.Inspect.Endpoint,
			})
		}
	}

	// 4. Decision log chain.
	if cfg.Audit.LogPath != "" {
		if _, err := os.Stat(cfg.Audit.LogPath); err != nil {
			checks = append(checks, checkResult{
				label:  "decision log",
				ok:     true,
				detail: "not created yet",
			})
		} else if res := audit.Verify(cfg.Audit.LogPath); res.Valid {
			checks = append(checks, checkResult{
				label:  "decision log",
				ok:     true,
				detail: fmt.Sprintf("%d records, chain intact", res.Lines),
			})
		} else {
			checks = append(checks, checkResult{
				label:  "decision log",
				ok:     false,
				detail: fmt.Sprintf("chain broken at line %d: %s", res.ErrorLine, res.Error),
			})
		}
	}

	// 5. AWS credentials, needed only for the bedrock adapter.
	awsCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(awsCtx)
	if err == nil {
		_, err = awsCfg.Credentials.Retrieve(awsCtx)
	}
	if err == nil {
		checks = append(checks, checkResult{
			label:  "aws credentials",
			ok:     true,
			detail: fmt.Sprintf("region=%s", awsCfg.Region),
		})
	} else {
		// absence only disables the bedrock adapter
		checks = append(checks, checkResult{
			label:  "aws credentials",
			ok:     true,
			detail: "not available (bedrock adapter will be skipped)",
		})
	}

	hasFailures := printChecks(checks)
	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}

func printChecks(checks []checkResult) bool {
	hasFailures := false
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}
	return hasFailures
}
