package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a QueryResult as a human-readable text timeline.
func FormatTimeline(result *QueryResult) string {
	if len(result.Records) == 0 {
		return "No records found.\n"
	}

	var b strings.Builder

	first := formatDateRange(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	b.WriteString(fmt.Sprintf("Decisions: %s–%s UTC\n", first, last))
	b.WriteString(separator + "\n")

	for _, r := range result.Records {
		ts := formatTimeOnly(r.Timestamp)
		verdict := strings.ToUpper(r.Verdict)
		op := truncate(r.OperationID, 12)
		detail := strings.Join(r.Classifications, ",")

		tag := ""
		if r.Unreachable {
			tag = "  [unreachable]"
		}

		b.WriteString(fmt.Sprintf("%-10s %-10s %-9s %-12s %-8s %-24s%s\n",
			ts, r.Surface, r.Direction, op, verdict, truncate(detail, 24), tag))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a QueryResult as indented JSON.
func FormatJSON(result *QueryResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal query result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s Summary) string {
	parts := []string{}
	if s.AllowCount > 0 {
		parts = append(parts, fmt.Sprintf("%d allow", s.AllowCount))
	}
	if s.BlockCount > 0 {
		parts = append(parts, fmt.Sprintf("%d block", s.BlockCount))
	}
	if s.SanitizeCount > 0 {
		parts = append(parts, fmt.Sprintf("%d sanitize", s.SanitizeCount))
	}
	if s.UnreachableCount > 0 {
		parts = append(parts, fmt.Sprintf("%d unreachable", s.UnreachableCount))
	}
	return fmt.Sprintf("Summary: %s\n", strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
