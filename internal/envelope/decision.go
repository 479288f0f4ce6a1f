package envelope

// Verdict is the outcome class of a policy evaluation.
type Verdict string

const (
	VerdictAllow    Verdict = "allow"
	VerdictBlock    Verdict = "block"
	VerdictSanitize Verdict = "sanitize"
)

// Decision is the result of policy evaluation for one Envelope.
//
// Classifications may be empty even for a block verdict: a decision
// synthesized under fail-closed policy blocks without naming a violation.
type Decision struct {
	Verdict         Verdict  `json:"verdict"`
	Classifications []string `json:"classifications,omitempty"`

	// Sanitized payload, present only for VerdictSanitize. SanitizedContent
	// replaces message text; SanitizedResult replaces an MCP tool result.
	SanitizedContent string `json:"sanitized_content,omitempty"`
	SanitizedResult  any    `json:"sanitized_result,omitempty"`

	// Unreachable marks a decision synthesized because the inspection
	// service could not be reached, rather than evaluated by policy.
	Unreachable bool `json:"-"`
}

// Allow returns an allow decision.
func Allow() Decision {
	return Decision{Verdict: VerdictAllow}
}

// Block returns a block decision with the given violation classifications.
func Block(classifications ...string) Decision {
	return Decision{Verdict: VerdictBlock, Classifications: classifications}
}

// Sanitize returns a sanitize decision carrying replacement content.
func Sanitize(content string, classifications ...string) Decision {
	return Decision{
		Verdict:          VerdictSanitize,
		Classifications:  classifications,
		SanitizedContent: content,
	}
}

// ForUnreachable synthesizes the decision to use when the inspection
// service is unreachable: allow when failOpen, block otherwise.
func ForUnreachable(failOpen bool) Decision {
	if failOpen {
		return Decision{Verdict: VerdictAllow, Unreachable: true}
	}
	return Decision{Verdict: VerdictBlock, Unreachable: true}
}

// Allows reports whether the decision permits the call to proceed.
func (d Decision) Allows() bool {
	return d.Verdict != VerdictBlock
}
