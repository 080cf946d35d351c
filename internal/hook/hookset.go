package hook

import (
	"sync"

	"github.com/trainkit/trainkit/pkg/collections"
	appErrors "github.com/trainkit/trainkit/pkg/errors"
	"github.com/trainkit/trainkit/pkg/utils"
)

// Scope distinguishes a hook set attached per-worker from one attached to
// the operator as a whole.
type Scope int

const (
	// ScopeLocal tracks one alive flag per worker.
	ScopeLocal Scope = iota
	// ScopeGlobal tracks a single alive flag for the whole operator.
	ScopeGlobal
)

// HookSet owns the attach/detach protocol and dependency bookkeeping for a
// collection of hooks sharing one scope (all local hooks across workers, or
// all global hooks). It deduplicates functionally-equal hooks, tracks a
// dependents set per required hook, and marks hooks dead once their alive
// flags all clear.
type HookSet struct {
	mu          sync.Mutex
	scope       Scope
	workerCount int
	logger      utils.Logger

	// attached holds every attached hook (directly or pulled in as a
	// dependency) in attach order; this order feeds the planner's
	// insertion-order tie-break.
	attached []*Hook

	userAttached     map[*Hook]bool
	resolvedRequired map[*Hook][]*Hook
	dependents       map[*Hook]map[*Hook]struct{}
	aliveFlags       map[*Hook]*collections.Bitset

	plan *Plan
}

// NewLocalHookSet creates a hook set tracking one alive flag per worker.
func NewLocalHookSet(workerCount int, logger utils.Logger) *HookSet {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return newHookSet(ScopeLocal, workerCount, logger)
}

// NewGlobalHookSet creates a hook set tracking a single alive flag.
func NewGlobalHookSet(logger utils.Logger) *HookSet {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return newHookSet(ScopeGlobal, 1, logger)
}

func newHookSet(scope Scope, workerCount int, logger utils.Logger) *HookSet {
	return &HookSet{
		scope:            scope,
		workerCount:      workerCount,
		logger:           logger,
		userAttached:     make(map[*Hook]bool),
		resolvedRequired: make(map[*Hook][]*Hook),
		dependents:       make(map[*Hook]map[*Hook]struct{}),
		aliveFlags:       make(map[*Hook]*collections.Bitset),
	}
}

// Attach attaches h. It returns false without error if h or a functionally
// equal hook is already attached. required hooks are attached recursively;
// a cycle among them is reported as a dependency-violation error.
func (hs *HookSet) Attach(h *Hook) (bool, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.findEquivalentLocked(h) != nil {
		return false, nil
	}

	visiting := make(map[*Hook]bool)
	if _, err := hs.attachLocked(h, visiting); err != nil {
		return false, err
	}
	hs.userAttached[h] = true
	hs.plan = nil
	return true, nil
}

func (hs *HookSet) attachLocked(h *Hook, visiting map[*Hook]bool) (*Hook, error) {
	if existing := hs.findEquivalentLocked(h); existing != nil {
		return existing, nil
	}
	if visiting[h] {
		return nil, appErrors.Wrap(appErrors.CodeDependencyViolation,
			"required-hook cycle detected for hook "+h.Name, nil)
	}
	visiting[h] = true
	defer delete(visiting, h)

	resolved := make([]*Hook, 0, len(h.RequiredHooks))
	for _, req := range h.RequiredHooks {
		used, err := hs.attachLocked(req, visiting)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, used)
		hs.addDependentLocked(used, h)
	}

	hs.resolvedRequired[h] = resolved
	hs.attached = append(hs.attached, h)
	hs.aliveFlags[h] = collections.NewBitset(hs.workerCount)
	for i := 0; i < hs.workerCount; i++ {
		hs.aliveFlags[h].Set(i)
	}
	return h, nil
}

func (hs *HookSet) addDependentLocked(required, dependent *Hook) {
	set, ok := hs.dependents[required]
	if !ok {
		set = make(map[*Hook]struct{})
		hs.dependents[required] = set
	}
	set[dependent] = struct{}{}
}

func (hs *HookSet) removeDependentLocked(required, dependent *Hook) {
	set, ok := hs.dependents[required]
	if !ok {
		return
	}
	delete(set, dependent)
	if len(set) == 0 {
		delete(hs.dependents, required)
	}
}

func (hs *HookSet) findEquivalentLocked(h *Hook) *Hook {
	for _, existing := range hs.attached {
		if existing.Equals(h) {
			return existing
		}
	}
	return nil
}

// Detach detaches h, refusing if it still has live dependents. Required
// hooks that become orphaned (no remaining dependents and not themselves
// user-attached) are cascade-detached.
func (hs *HookSet) Detach(h *Hook) (bool, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	existing := hs.findEquivalentLocked(h)
	if existing == nil {
		return false, nil
	}
	if len(hs.dependents[existing]) > 0 {
		return false, appErrors.Wrap(appErrors.CodeDependencyViolation,
			"cannot detach hook "+existing.Name+" with live dependents", nil)
	}
	hs.detachLocked(existing)
	hs.plan = nil
	return true, nil
}

func (hs *HookSet) detachLocked(h *Hook) {
	hs.attached = removeHook(hs.attached, h)
	delete(hs.userAttached, h)
	delete(hs.aliveFlags, h)
	required := hs.resolvedRequired[h]
	delete(hs.resolvedRequired, h)
	delete(hs.dependents, h)

	for _, req := range required {
		hs.removeDependentLocked(req, h)
		if len(hs.dependents[req]) == 0 && !hs.userAttached[req] {
			hs.detachLocked(req)
		}
	}
}

func removeHook(hooks []*Hook, target *Hook) []*Hook {
	for i, h := range hooks {
		if h == target {
			return append(hooks[:i], hooks[i+1:]...)
		}
	}
	return hooks
}

// MarkDead clears the alive flag at index (a worker index for a local hook
// set, always 0 for a global one). Once every alive flag for h is clear, h
// is detached as if by Detach, cascading to orphaned required hooks. This
// marking is local to hs: a hook attached to both a local and a global
// HookSet is tracked independently in each, so marking it dead in one scope
// never detaches it from the other.
func (hs *HookSet) MarkDead(h *Hook, index int) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	flags, ok := hs.aliveFlags[h]
	if !ok {
		return
	}
	if index < 0 || index >= hs.workerCount {
		return
	}
	flags.Clear(index)
	if flags.Count() == 0 {
		hs.logger.Debug("hook %s exhausted its liveTime, collecting", h.Name)
		hs.detachLocked(h)
		hs.plan = nil
	}
}

// Attached returns the attached hooks in attach order. The returned slice
// must not be mutated.
func (hs *HookSet) Attached() []*Hook {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	out := make([]*Hook, len(hs.attached))
	copy(out, hs.attached)
	return out
}

// ResolvedRequired returns the dedup-resolved required hooks for h.
func (hs *HookSet) ResolvedRequired(h *Hook) []*Hook {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.resolvedRequired[h]
}

// Plan returns the cached invocation plan, rebuilding it if the attached
// set changed since the last call.
func (hs *HookSet) Plan() (*Plan, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.plan != nil {
		return hs.plan, nil
	}
	requiredOf := func(h *Hook) []*Hook { return hs.resolvedRequired[h] }
	plan, err := BuildPlan(hs.attached, requiredOf)
	if err != nil {
		return nil, err
	}
	hs.plan = plan
	return plan, nil
}
