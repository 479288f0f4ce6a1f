// Package install performs process-wide, one-time activation of transport
// adapters. Each adapter is a capability probe: construction fails with
// ErrUnavailable when the underlying provider dependency is absent, which
// is expected and recorded silently. Any other failure is logged and
// isolated; it never prevents the remaining adapters from installing.
package install

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnavailable marks an adapter whose provider dependency is absent
// (no client supplied, provider disabled, endpoint missing). Absence is
// expected and is not an installation error.
var ErrUnavailable = errors.New("install: provider unavailable")

// Adapter is the unit of activation: one per supported provider.
type Adapter interface {
	// Provider returns the stable provider name ("openai", "bedrock", "mcp").
	Provider() string
	// Install activates interception for this provider. It is called at
	// most once per process; the registry guarantees idempotence.
	Install(ctx context.Context) error
}

// Status records one adapter's activation result for diagnostics.
type Status struct {
	Provider  string
	Installed bool
	Skipped   bool // dependency absent, not an error
	Err       error
}

// Registry holds process-scoped installation state. It is constructed once
// at startup; the recorded statuses are read-only after Activate.
type Registry struct {
	logger *slog.Logger

	mu        sync.Mutex
	activated bool
	statuses  map[string]Status
}

// NewRegistry creates an empty installation registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		statuses: make(map[string]Status),
	}
}

// Activate installs every adapter exactly once. Calling Activate again is
// a no-op that returns the statuses recorded by the first call, so double
// activation can never double-wrap an entry point or duplicate decision
// calls.
func (r *Registry) Activate(ctx context.Context, adapters ...Adapter) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activated {
		return r.snapshot()
	}
	r.activated = true

	for _, a := range adapters {
		name := a.Provider()
		if _, dup := r.statuses[name]; dup {
			// Same provider registered twice in one Activate call.
			continue
		}

		err := a.Install(ctx)
		switch {
		case err == nil:
			r.statuses[name] = Status{Provider: name, Installed: true}
		case errors.Is(err, ErrUnavailable):
			r.statuses[name] = Status{Provider: name, Skipped: true}
			r.logger.Debug("install: provider unavailable, skipping", "provider", name)
		default:
			r.statuses[name] = Status{Provider: name, Err: err}
			r.logger.Warn("install: adapter failed", "provider", name, "error", err)
		}
	}

	return r.snapshot()
}

// Activated reports whether Activate has run.
func (r *Registry) Activated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activated
}

// Installed reports whether the named provider's adapter installed.
func (r *Registry) Installed(provider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[provider].Installed
}

// Statuses returns the recorded activation results, sorted by provider.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Registry) snapshot() []Status {
	out := make([]Status, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// AdapterFunc adapts a plain function into an Adapter.
type AdapterFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (a AdapterFunc) Provider() string { return a.Name }

func (a AdapterFunc) Install(ctx context.Context) error { return a.Fn(ctx) }
