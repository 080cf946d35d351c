package hook

import (
	"sort"

	appErrors "github.com/trainkit/trainkit/pkg/errors"
)

// Plan is the output of HookInvocationPlanner: a total invocation order for
// an attached hook set, plus a bucket assignment splitting it into one
// foreground lane (target 0) and N background lanes (target > 0).
type Plan struct {
	// Order lists hooks in final invocation order: a topological sort of
	// the required-hook DAG, tie-broken by InvokePriority then attach order.
	Order []*Hook

	// InvocationIndex maps each hook to its position in Order.
	InvocationIndex map[*Hook]int

	// InvocationTarget maps each hook to its bucket: 0 for foreground,
	// a positive bucket id shared by a background hook and the transitive
	// closure of its required hooks that no foreground hook also depends on.
	InvocationTarget map[*Hook]int
}

// BuildPlan computes the invocation plan for hooks (in attach order), given
// requiredOf returning each hook's dedup-resolved required hooks.
func BuildPlan(hooks []*Hook, requiredOf func(*Hook) []*Hook) (*Plan, error) {
	order, err := topologicalSort(hooks, requiredOf)
	if err != nil {
		return nil, err
	}

	invocationIndex := make(map[*Hook]int, len(order))
	for i, h := range order {
		invocationIndex[h] = i
	}

	promoted := promotedForeground(hooks, requiredOf)
	target := assignTargets(order, requiredOf, promoted)

	return &Plan{
		Order:            order,
		InvocationIndex:  invocationIndex,
		InvocationTarget: target,
	}, nil
}

// topologicalSort performs Kahn's algorithm over the required-hook DAG
// (edges point from a required hook to its dependent), breaking ties among
// ready hooks by InvokePriority ascending, then by original attach order.
func topologicalSort(hooks []*Hook, requiredOf func(*Hook) []*Hook) ([]*Hook, error) {
	insertionIndex := make(map[*Hook]int, len(hooks))
	for i, h := range hooks {
		insertionIndex[h] = i
	}

	inDegree := make(map[*Hook]int, len(hooks))
	dependentsOf := make(map[*Hook][]*Hook, len(hooks))
	for _, h := range hooks {
		inDegree[h] = 0
	}
	for _, h := range hooks {
		for _, req := range requiredOf(h) {
			inDegree[h]++
			dependentsOf[req] = append(dependentsOf[req], h)
		}
	}

	var ready []*Hook
	for _, h := range hooks {
		if inDegree[h] == 0 {
			ready = append(ready, h)
		}
	}
	sortReady := func() {
		sort.SliceStable(ready, func(i, j int) bool {
			if ready[i].InvokePriority != ready[j].InvokePriority {
				return ready[i].InvokePriority < ready[j].InvokePriority
			}
			return insertionIndex[ready[i]] < insertionIndex[ready[j]]
		})
	}
	sortReady()

	order := make([]*Hook, 0, len(hooks))
	for len(ready) > 0 {
		h := ready[0]
		ready = ready[1:]
		order = append(order, h)
		for _, dep := range dependentsOf[h] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sortReady()
	}

	if len(order) != len(hooks) {
		return nil, appErrors.Wrap(appErrors.CodeDependencyViolation,
			"required-hook cycle detected among attached hooks", nil)
	}
	return order, nil
}

// promotedForeground computes the set of hooks that must invoke
// synchronously: every hook not marked InvokeInBackground, plus every hook
// transitively required by one, even if that required hook itself requests
// background dispatch. A foreground dependent must see its requirement's
// result synchronously.
func promotedForeground(hooks []*Hook, requiredOf func(*Hook) []*Hook) map[*Hook]bool {
	promoted := make(map[*Hook]bool, len(hooks))
	var mark func(h *Hook)
	mark = func(h *Hook) {
		if promoted[h] {
			return
		}
		promoted[h] = true
		for _, req := range requiredOf(h) {
			mark(req)
		}
	}
	for _, h := range hooks {
		if !h.InvokeInBackground {
			mark(h)
		}
	}
	return promoted
}

// assignTargets walks order in reverse (dependents before their
// requirements) and assigns background bucket ids. The first background
// hook reached claims a fresh bucket and propagates it to its required
// hooks that are not already promoted to foreground; a required hook
// already claimed by an earlier (in reverse order) dependent keeps that
// bucket, so a hook's entire non-foreground dependency closure lands in a
// single bucket regardless of which of its dependents reaches it first.
func assignTargets(order []*Hook, requiredOf func(*Hook) []*Hook, promoted map[*Hook]bool) map[*Hook]int {
	target := make(map[*Hook]int, len(order))
	nextBucket := 1

	for i := len(order) - 1; i >= 0; i-- {
		h := order[i]
		if promoted[h] {
			target[h] = 0
			continue
		}

		bucket, assigned := target[h]
		if !assigned {
			bucket = nextBucket
			nextBucket++
			target[h] = bucket
		}

		for _, req := range requiredOf(h) {
			if promoted[req] {
				continue
			}
			if _, already := target[req]; !already {
				target[req] = bucket
			}
		}
	}

	return target
}
