// Package hook implements the user-extensible observer system: Hook values
// bound to a TimeStep, the attach/detach protocol that deduplicates and
// tracks their dependency DAG, and the HookInvocationPlanner that turns an
// attached hook set into a total invocation order split into foreground
// and background buckets.
package hook

import (
	"github.com/trainkit/trainkit/internal/registry"
	"github.com/trainkit/trainkit/internal/timestep"
)

// Target names where a hook's parameter registry conventionally lives.
type Target int

const (
	// Local scopes a hook to a single worker's registry.
	Local Target = iota
	// Global scopes a hook to the operator's registry.
	Global
)

// InvokeFunc is the callback body of a Hook. It must be pure with respect
// to operator/worker state except via registry writes.
type InvokeFunc func(reg *registry.Registry, resolver *registry.Resolver)

// Hook is a user-supplied callback bound to a TimeStep, with a
// required-hooks set, an invocation priority, a foreground/background
// lane, and a parameter registry.
type Hook struct {
	// Name identifies the hook for logging and diagnostics.
	Name string

	// FunctionalKey is the user-defined equivalence key: two hooks with the
	// same non-empty FunctionalKey are functionally equal and deduplicated
	// at attach time. A hook with an empty FunctionalKey is only ever equal
	// to itself (pointer identity).
	FunctionalKey string

	// TimeStep governs when this hook fires.
	TimeStep *timestep.TimeStep

	// RequiredHooks lists hooks that must have run (and whose results are
	// visible) before this hook invokes. required-hook edges form a DAG;
	// cycles are rejected at attach time.
	RequiredHooks []*Hook

	// InvokePriority breaks ties among hooks with no interdependency:
	// smaller values invoke first.
	InvokePriority int

	// InvokeInBackground requests dispatch to a background bucket instead
	// of synchronous foreground invocation. A background hook required
	// (directly or transitively) by a foreground hook is promoted to
	// foreground by the planner.
	InvokeInBackground bool

	// RequiredRegistryKeys names the registry keys (resolver patterns
	// included) this hook reads. Background buckets receive a snapshot
	// covering only the union of their hooks' required keys.
	RequiredRegistryKeys []string

	// ParameterRegistry is the hook's own private registry, independent of
	// the event registry it is invoked with.
	ParameterRegistry *registry.Registry

	// DefaultTarget records whether this hook was created for local or
	// global attachment; it does not constrain where it is actually
	// attached.
	DefaultTarget Target

	// Fn is the callback body.
	Fn InvokeFunc
}

// Equals reports whether h and other are functionally equal: the same
// pointer, or sharing a non-empty FunctionalKey.
func (h *Hook) Equals(other *Hook) bool {
	if h == other {
		return true
	}
	if h == nil || other == nil {
		return false
	}
	if h.FunctionalKey == "" || other.FunctionalKey == "" {
		return false
	}
	return h.FunctionalKey == other.FunctionalKey
}

// Invoke calls the hook's callback with the given event registry and
// resolver.
func (h *Hook) Invoke(reg *registry.Registry, resolver *registry.Resolver) {
	if h.Fn != nil {
		h.Fn(reg, resolver)
	}
}
