package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cordonlabs/cordon/internal/audit"
)

var (
	auditOperation string
	auditSurface   string
	auditJSON      bool
	recentLimit    int
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditFollowCmd)
	auditCmd.AddCommand(auditRecentCmd)
	auditShowCmd.Flags().StringVar(&auditOperation, "operation", "", "Filter by operation id")
	auditShowCmd.Flags().StringVar(&auditSurface, "surface", "", "Filter by surface")
	auditShowCmd.Flags().BoolVar(&auditJSON, "json", false, "Emit JSON instead of a timeline")
	auditRecentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 20, "Number of records to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Decision log operations",
	Long:  "Commands for verifying, querying and following the hash-chained decision log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a decision log",
	Long:  "Walks the JSONL decision log and validates that every record's prev_hash\nmatches the SHA-256 of the previous record. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Show decision records as a timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditShow,
}

var auditFollowCmd = &cobra.Command{
	Use:   "follow <path>",
	Short: "Stream new decision records as they are written",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditFollow,
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent <db-path>",
	Short: "Show recent decisions from the SQLite store",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditRecent,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Printf("OK: %d records verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	result, err := audit.Query(args[0], audit.Filter{
		OperationID: auditOperation,
		Surface:     auditSurface,
	})
	if err != nil {
		return err
	}
	if auditJSON {
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(audit.FormatTimeline(result))
	return nil
}

func runAuditFollow(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := audit.Follow(ctx, args[0], func(rec audit.Record) {
		line, _ := json.Marshal(rec)
		fmt.Println(string(line))
	})
	if ctx.Err() != nil {
		return nil // interrupted, clean exit
	}
	return err
}

func runAuditRecent(cmd *cobra.Command, args []string) error {
	store, err := audit.OpenStore(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Recent(cmd.Context(), recentLimit)
	if err != nil {
		return err
	}
	fmt.Print(audit.FormatTimeline(&audit.QueryResult{Records: recs}))
	return nil
}
