package enforce

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cordonlabs/cordon/internal/envelope"
)

// SecurityError is the single error type surfaced to agent code when a
// call is blocked by policy. Raw inspection-service errors never reach the
// caller; an unreachable service under fail-closed policy produces a
// SecurityError with Unreachable set and no classifications.
type SecurityError struct {
	OperationID     string
	Surface         envelope.Surface
	Direction       envelope.Direction
	Classifications []string
	Unreachable     bool
}

func (e *SecurityError) Error() string {
	if e.Unreachable {
		return fmt.Sprintf("cordon: %s %s blocked: inspection service unreachable (fail-closed)",
			e.Surface, e.Direction)
	}
	if len(e.Classifications) == 0 {
		return fmt.Sprintf("cordon: %s %s blocked by security policy", e.Surface, e.Direction)
	}
	return fmt.Sprintf("cordon: %s %s blocked by security policy: %s",
		e.Surface, e.Direction, strings.Join(e.Classifications, ", "))
}

// AsSecurityError unwraps err into a *SecurityError if one is present.
func AsSecurityError(err error) (*SecurityError, bool) {
	var se *SecurityError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
