package hook

import (
	"sort"

	"github.com/trainkit/trainkit/internal/timestep"
)

// FireScale is the time-scale event ejection shared by both the per-worker
// local hook path and the operator's global hook path. Given the attached
// hooks of hs and a caller-owned map of per-hook local TimeStep copies, it
// lazily creates missing copies, ticks every hook whose TimeStep counts
// against scale, and returns those that fired.
func (hs *HookSet) FireScale(scale timestep.Scale, localTimeSteps map[*Hook]*timestep.TimeStep) []*Hook {
	var fired []*Hook
	for _, h := range hs.Attached() {
		if h.TimeStep == nil || h.TimeStep.Scale() != scale {
			continue
		}
		local, ok := localTimeSteps[h]
		if !ok {
			local = h.TimeStep.DeepCopy()
			localTimeSteps[h] = local
		}
		if local.Tick() {
			fired = append(fired, h)
		}
	}
	return fired
}

// SortByInvocationIndex orders hooks by their position in plan, the total
// order the planner computed across dependency and priority.
func SortByInvocationIndex(hooks []*Hook, plan *Plan) {
	sort.SliceStable(hooks, func(i, j int) bool {
		return plan.InvocationIndex[hooks[i]] < plan.InvocationIndex[hooks[j]]
	})
}

// Partition splits hooks (already sorted by invocation index) into the
// foreground lane and a map of background bucket id to the hooks sharing
// that bucket, each still in invocation order.
func Partition(hooks []*Hook, plan *Plan) (foreground []*Hook, background map[int][]*Hook) {
	background = make(map[int][]*Hook)
	for _, h := range hooks {
		target := plan.InvocationTarget[h]
		if target == 0 {
			foreground = append(foreground, h)
			continue
		}
		background[target] = append(background[target], h)
	}
	return foreground, background
}

// RequiredRegistryKeys returns the union of RequiredRegistryKeys declared by
// hooks, used to build the snapshot handed to one background bucket.
func RequiredRegistryKeys(hooks []*Hook) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, h := range hooks {
		for _, k := range h.RequiredRegistryKeys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
