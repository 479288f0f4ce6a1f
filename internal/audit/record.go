package audit

// Record is one line in the hash-chained JSONL decision log.
// All fields are scalars or slices (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
type Record struct {
	Timestamp       string   `json:"ts"`
	OperationID     string   `json:"operation_id"`
	Surface         string   `json:"surface"`
	Direction       string   `json:"direction"`
	Provider        string   `json:"provider,omitempty"`
	Mode            string   `json:"mode"`
	Verdict         string   `json:"verdict"`
	Classifications []string `json:"classifications,omitempty"`
	Unreachable     bool     `json:"unreachable,omitempty"`
	LatencyMS       int64    `json:"latency_ms"`
	PrevHash        string   `json:"prev_hash"`
}
