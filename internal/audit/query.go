package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Filter holds criteria for querying the decision log.
type Filter struct {
	OperationID string
	Surface     string
	From        time.Time // zero value = no lower bound
	To          time.Time // zero value = no upper bound
}

// Summary holds verdict counts and metadata for a set of records.
type Summary struct {
	Total            int    `json:"total"`
	AllowCount       int    `json:"allow_count"`
	BlockCount       int    `json:"block_count"`
	SanitizeCount    int    `json:"sanitize_count"`
	UnreachableCount int    `json:"unreachable_count"`
	FirstTimestamp   string `json:"first_timestamp"`
	LastTimestamp    string `json:"last_timestamp"`
}

// QueryResult holds filtered records and their summary.
type QueryResult struct {
	Records []Record `json:"records"`
	Summary Summary  `json:"summary"`
}

// Query reads the decision log and returns records matching the filter.
func Query(path string, filter Filter) (*QueryResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	result := &QueryResult{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip malformed lines
		}

		if filter.OperationID != "" && rec.OperationID != filter.OperationID {
			continue
		}
		if filter.Surface != "" && rec.Surface != filter.Surface {
			continue
		}

		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(TimestampFormat, rec.Timestamp)
			if err != nil {
				continue // skip unparseable timestamps
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}

		result.Records = append(result.Records, rec)
		updateSummary(&result.Summary, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read decision log: %w", err)
	}

	return result, nil
}

func updateSummary(s *Summary, rec Record) {
	s.Total++

	switch strings.ToLower(rec.Verdict) {
	case "allow":
		s.AllowCount++
	case "block":
		s.BlockCount++
	case "sanitize":
		s.SanitizeCount++
	}

	if rec.Unreachable {
		s.UnreachableCount++
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = rec.Timestamp
	}
	s.LastTimestamp = rec.Timestamp
}
