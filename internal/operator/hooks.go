package operator

import (
	"sync/atomic"

	"github.com/trainkit/trainkit/internal/hook"
	"github.com/trainkit/trainkit/internal/registry"
	"github.com/trainkit/trainkit/internal/timestep"
	"github.com/trainkit/trainkit/internal/worker"
)

// AttachLocalHook attaches h to every worker's local hook set.
func (o *Operator) AttachLocalHook(h *hook.Hook) bool {
	ok, err := o.localHooks.Attach(h)
	if err != nil {
		o.logger.Error("operator: attach local hook %s: %v", h.Name, err)
		return false
	}
	return ok
}

// DetachLocalHook detaches h from the local hook set.
func (o *Operator) DetachLocalHook(h *hook.Hook) bool {
	ok, err := o.localHooks.Detach(h)
	if err != nil {
		o.logger.Error("operator: detach local hook %s: %v", h.Name, err)
		return false
	}
	return ok
}

// AttachGlobalHook attaches h to the operator's global hook set.
func (o *Operator) AttachGlobalHook(h *hook.Hook) bool {
	ok, err := o.globalHooks.Attach(h)
	if err != nil {
		o.logger.Error("operator: attach global hook %s: %v", h.Name, err)
		return false
	}
	return ok
}

// DetachGlobalHook detaches h from the global hook set.
func (o *Operator) DetachGlobalHook(h *hook.Hook) bool {
	ok, err := o.globalHooks.Detach(h)
	if err != nil {
		o.logger.Error("operator: detach global hook %s: %v", h.Name, err)
		return false
	}
	return ok
}

// Command wraps a user action to inject into the training loop without
// racing the workers: it fires on both a local and a global hook, and
// onFinish is invoked once every worker (and the operator) has run it.
type Command struct {
	Name     string
	Scale    timestep.Scale
	Run      func(reg *registry.Registry, resolver *registry.Resolver)
	OnFinish func()
}

// InvokeCommand attaches a paired local+global one-shot hook that each run
// cmd.Run; a shared completion counter in a parameter registry tracks
// progress, and once completions exceeds workerCount, a one-shot hook is
// attached to call cmd.OnFinish. The strict greater-than check reproduces
// the reference implementation's off-by-one; exceeding workerCount also
// logs a warning so the discrepancy surfaces instead of being silent.
func (o *Operator) InvokeCommand(cmd Command) {
	params := registry.New()
	var completions int64

	finished := int32(0)
	checkFinish := func() {
		count := atomic.AddInt64(&completions, 1)
		if count > int64(o.workerCount) {
			o.logger.Warn("operator: command %s received %d completions for %d workers", cmd.Name, count, o.workerCount)
		}
		if count > int64(o.workerCount) && atomic.CompareAndSwapInt32(&finished, 0, 1) && cmd.OnFinish != nil {
			cmd.OnFinish()
		}
	}

	oneShot := func() *timestep.TimeStep {
		ts, err := timestep.New(cmd.Scale, 1, 1)
		if err != nil {
			panic(err)
		}
		return ts
	}

	localHook := &hook.Hook{
		Name:              cmd.Name + ".local",
		FunctionalKey:     cmd.Name + ".local",
		TimeStep:          oneShot(),
		ParameterRegistry: params,
		Fn: func(reg *registry.Registry, resolver *registry.Resolver) {
			if cmd.Run != nil {
				cmd.Run(reg, resolver)
			}
			checkFinish()
		},
	}
	globalHook := &hook.Hook{
		Name:              cmd.Name + ".global",
		FunctionalKey:     cmd.Name + ".global",
		TimeStep:          oneShot(),
		ParameterRegistry: params,
		Fn: func(reg *registry.Registry, resolver *registry.Resolver) {
			if cmd.Run != nil {
				cmd.Run(reg, resolver)
			}
			checkFinish()
		},
	}

	o.AttachLocalHook(localHook)
	o.AttachGlobalHook(globalHook)
}

// Stats is a point-in-time snapshot of the operator's orchestration state.
type Stats struct {
	ActiveWorkers          int
	WorkerCount            int
	EpochNumber            int
	HighestIterationNumber int
	State                  string
	RunningTimeMillis      int64
}

// Stats returns a snapshot of the operator's current orchestration state.
func (o *Operator) Stats() Stats {
	return Stats{
		ActiveWorkers:          o.activeWorkers(),
		WorkerCount:            o.WorkerCount(),
		EpochNumber:            o.EpochNumber(),
		HighestIterationNumber: o.HighestIterationNumber(),
		State:                  o.State().String(),
		RunningTimeMillis:      o.RunningTimeMillis(),
	}
}

// activeWorkers counts workers currently in worker.Running, mirroring the
// teacher scheduler's active-worker gauge.
func (o *Operator) activeWorkers() int {
	active := 0
	for _, w := range o.workers {
		if w.State() == worker.Running {
			active++
		}
	}
	return active
}
