// Package enforce turns a Decision plus the surface's operating mode into
// an action on the mediated call. Each intercepted call walks a small state
// machine: pending, then exactly one of passthrough, substituted, or
// rejected.
package enforce

import (
	"context"
	"log/slog"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/envelope"
)

// State is the terminal disposition of one mediated call half.
type State string

const (
	StatePending     State = "pending"
	StatePassthrough State = "passthrough" // original payload proceeds
	StateSubstituted State = "substituted" // sanitized payload proceeds
	StateRejected    State = "rejected"    // call aborted with SecurityError
)

// Outcome is the result of enforcing a decision against an envelope.
type Outcome struct {
	State    State
	Decision envelope.Decision

	// Inspected reports whether a decision function ran at all; it is
	// false in off mode, which bypasses inspection entirely.
	Inspected bool
}

// DecisionFunc obtains a decision for an envelope. It must not return
// transport errors; unreachability is resolved inside the function via the
// fail policy.
type DecisionFunc func(ctx context.Context, env *envelope.Envelope) envelope.Decision

// Enforcer applies decisions under a fixed operating mode. The mode is
// resolved once at activation and never changes.
type Enforcer struct {
	mode   config.Mode
	logger *slog.Logger
}

// New creates an Enforcer for the given mode.
func New(mode config.Mode, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{mode: mode, logger: logger}
}

// Mode returns the operating mode the enforcer was built with.
func (e *Enforcer) Mode() config.Mode { return e.mode }

// Evaluate runs the per-call state machine. In off mode the decision
// function is never invoked. In monitor mode the decision is computed and
// logged but the call always passes through unmodified. In enforce mode
// the verdict determines the terminal state.
//
// A rejected response-side envelope only withholds the result from the
// caller: if the downstream call already executed (a tool already ran),
// its external side effects cannot be undone here.
func (e *Enforcer) Evaluate(ctx context.Context, env *envelope.Envelope, decide DecisionFunc) Outcome {
	if e.mode == config.ModeOff {
		return Outcome{State: StatePassthrough}
	}

	d := decide(ctx, env)

	if e.mode == config.ModeMonitor {
		e.logger.Info("cordon decision (monitor)",
			"operation_id", env.OperationID,
			"surface", string(env.Surface),
			"direction", string(env.Direction),
			"verdict", string(d.Verdict),
			"classifications", d.Classifications,
			"unreachable", d.Unreachable,
		)
		return Outcome{State: StatePassthrough, Decision: d, Inspected: true}
	}

	switch d.Verdict {
	case envelope.VerdictAllow:
		return Outcome{State: StatePassthrough, Decision: d, Inspected: true}
	case envelope.VerdictSanitize:
		return Outcome{State: StateSubstituted, Decision: d, Inspected: true}
	default:
		return Outcome{State: StateRejected, Decision: d, Inspected: true}
	}
}

// Err returns the SecurityError for a rejected outcome, or nil.
func (o Outcome) Err(env *envelope.Envelope) error {
	if o.State != StateRejected {
		return nil
	}
	return &SecurityError{
		OperationID:     env.OperationID,
		Surface:         env.Surface,
		Direction:       env.Direction,
		Classifications: o.Decision.Classifications,
		Unreachable:     o.Decision.Unreachable,
	}
}
