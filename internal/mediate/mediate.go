// Package mediate runs one intercepted envelope through the full decision
// pipeline: inspection, enforcement, audit, metrics. Transport adapters
// call it once for each request half and once for each response half.
package mediate

import (
	"context"
	"log/slog"
	"time"

	"github.com/cordonlabs/cordon/internal/audit"
	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/enforce"
	"github.com/cordonlabs/cordon/internal/envelope"
	"github.com/cordonlabs/cordon/internal/metrics"
)

// Decider produces a policy decision for one envelope. The API-mode
// inspection client implements it; gateway-mode adapters use Fixed to
// inject the decision derived from the gateway's HTTP status.
type Decider interface {
	Inspect(ctx context.Context, env *envelope.Envelope, failOpen bool) envelope.Decision
}

// Fixed is a Decider returning a precomputed decision.
type Fixed envelope.Decision

func (f Fixed) Inspect(ctx context.Context, env *envelope.Envelope, failOpen bool) envelope.Decision {
	return envelope.Decision(f)
}

// Mediator owns the decision pipeline for one surface (LLM or MCP).
type Mediator struct {
	cfg      config.SurfaceConfig
	decider  Decider
	enforcer *enforce.Enforcer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	log   *audit.Log
	store *audit.Store
	now   func() time.Time
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithAuditLog attaches the JSONL decision log.
func WithAuditLog(l *audit.Log) Option { return func(m *Mediator) { m.log = l } }

// WithAuditStore attaches the SQLite decision store.
func WithAuditStore(s *audit.Store) Option { return func(m *Mediator) { m.store = s } }

// WithMetrics attaches Prometheus collectors.
func WithMetrics(mx *metrics.Metrics) Option { return func(m *Mediator) { m.metrics = mx } }

// New builds a Mediator for one surface.
func New(cfg config.SurfaceConfig, decider Decider, logger *slog.Logger, opts ...Option) *Mediator {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mediator{
		cfg:      cfg,
		decider:  decider,
		enforcer: enforce.New(cfg.Mode, logger),
		logger:   logger,
		metrics:  metrics.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the surface's operating mode.
func (m *Mediator) Mode() config.Mode { return m.cfg.Mode }

// Integration returns the surface's integration mode.
func (m *Mediator) Integration() config.Integration { return m.cfg.Integration }

// FailOpen reports the surface's policy when the decision service is
// unreachable.
func (m *Mediator) FailOpen() bool { return m.cfg.FailOpen }

// Metrics returns the pipeline collectors, for adapters that record
// transport-level events.
func (m *Mediator) Metrics() *metrics.Metrics { return m.metrics }

// Enabled reports whether mediation applies to the named provider.
func (m *Mediator) Enabled(provider string) bool {
	return m.cfg.Mode != config.ModeOff && m.cfg.Enabled(provider)
}

// Mediate runs env through the pipeline and returns the envelope the
// caller may proceed with: the original on passthrough, a substituted copy
// on sanitize, or a *enforce.SecurityError when the call is rejected.
func (m *Mediator) Mediate(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return m.MediateWith(ctx, env, m.decider)
}

// MediateWith is Mediate with an explicit decision source, used by
// gateway-mode adapters whose decision comes from the gateway response.
func (m *Mediator) MediateWith(ctx context.Context, env *envelope.Envelope, decider Decider) (*envelope.Envelope, error) {
	if m.cfg.Mode == config.ModeOff {
		return env, nil
	}

	start := m.now()
	var decision envelope.Decision
	outcome := m.enforcer.Evaluate(ctx, env, func(ctx context.Context, env *envelope.Envelope) envelope.Decision {
		decision = decider.Inspect(ctx, env, m.cfg.FailOpen)
		return decision
	})
	latency := m.now().Sub(start)

	if outcome.Inspected {
		m.metrics.InspectLatency.Observe(latency.Seconds())
		m.metrics.Decisions.WithLabelValues(string(env.Surface), string(decision.Verdict), string(m.cfg.Mode)).Inc()
	}
	m.record(ctx, env, decision, outcome, latency)

	switch outcome.State {
	case enforce.StateSubstituted:
		return env.Substitute(decision), nil
	case enforce.StateRejected:
		return nil, outcome.Err(env)
	default:
		return env, nil
	}
}

func (m *Mediator) record(ctx context.Context, env *envelope.Envelope, d envelope.Decision, out enforce.Outcome, latency time.Duration) {
	if m.log == nil && m.store == nil {
		return
	}
	rec := audit.Record{
		OperationID:     env.OperationID,
		Surface:         string(env.Surface),
		Direction:       string(env.Direction),
		Provider:        env.Metadata["provider"],
		Mode:            string(m.cfg.Mode),
		Verdict:         string(d.Verdict),
		Classifications: d.Classifications,
		Unreachable:     d.Unreachable,
		LatencyMS:       latency.Milliseconds(),
	}
	if !out.Inspected {
		rec.Verdict = "skipped"
	}
	if m.log != nil {
		if err := m.log.Append(rec); err != nil {
			m.logger.Warn("mediate: audit append failed", "error", err)
		}
	}
	if m.store != nil {
		rec.Timestamp = m.now().UTC().Format(audit.TimestampFormat)
		if err := m.store.Insert(ctx, rec); err != nil {
			m.logger.Warn("mediate: audit store insert failed", "error", err)
		}
	}
}

// ChunkFunc returns the per-chunk gate function for a streaming response
// correlated with req. Each chunk becomes its own response envelope and
// runs the same pipeline; a block terminates the stream.
func (m *Mediator) ChunkFunc(req *envelope.Envelope) func(ctx context.Context, content string) (string, error) {
	return func(ctx context.Context, content string) (string, error) {
		env := req.ChunkResponse(content)
		out, err := m.Mediate(ctx, env)
		if err != nil {
			m.metrics.BlockedChunks.Inc()
			return "", err
		}
		return out.Content(), nil
	}
}
