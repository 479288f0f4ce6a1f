package envelope

import "testing"

func TestDecisionConstructors(t *testing.T) {
	if !Allow().Allows() {
		t.Error("allow decision must allow")
	}

	d := Block("SECURITY_VIOLATION", "PROMPT_INJECTION")
	if d.Allows() {
		t.Error("block decision must not allow")
	}
	if len(d.Classifications) != 2 {
		t.Errorf("expected 2 classifications, got %d", len(d.Classifications))
	}

	s := Sanitize("[redacted]", "PII")
	if !s.Allows() {
		t.Error("sanitize decision must allow the call to proceed")
	}
	if s.SanitizedContent != "[redacted]" {
		t.Errorf("unexpected sanitized content: %q", s.SanitizedContent)
	}
}

func TestForUnreachable(t *testing.T) {
	open := ForUnreachable(true)
	if open.Verdict != VerdictAllow || !open.Unreachable {
		t.Errorf("fail-open must synthesize allow, got %+v", open)
	}

	closed := ForUnreachable(false)
	if closed.Verdict != VerdictBlock || !closed.Unreachable {
		t.Errorf("fail-closed must synthesize block, got %+v", closed)
	}
	if len(closed.Classifications) != 0 {
		t.Error("synthesized block carries no classifications")
	}
}
