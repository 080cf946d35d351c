package operator

import (
	"context"

	"github.com/trainkit/trainkit/internal/hook"
	"github.com/trainkit/trainkit/internal/registry"
	"github.com/trainkit/trainkit/internal/timestep"
	"github.com/trainkit/trainkit/internal/worker"
	"github.com/trainkit/trainkit/pkg/telemetry"
	"github.com/trainkit/trainkit/pkg/utils"
)

// PullProgress implements worker.Facade: it replaces w's local network with
// a deep copy of the global network on the first iteration of a new epoch
// (when there is more than one worker), or if w has no local network yet.
func (o *Operator) PullProgress(w *worker.Worker) {
	needsPull := w.Network() == nil || (w.LocalIterationNumber() == 0 && o.workerCount > 1)
	if !needsPull {
		return
	}
	o.networkMu.RLock()
	src := o.globalNetwork
	o.networkMu.RUnlock()
	w.SetNetwork(src.DeepCopy())
}

// PushProgress implements worker.Facade: it records w's epoch/iteration
// progress, merging replicas and firing global events as the protocol in
// §4.5 describes.
func (o *Operator) PushProgress(w *worker.Worker) {
	o.epochMu.Lock()

	if w.LocalEpochNumber() > o.epochNumber && w.LocalIterationNumber() == 1 {
		epoch := w.LocalEpochNumber()
		slot := o.pushedEpochNetworks[epoch]
		if len(slot) >= o.workerCount {
			o.epochMu.Unlock()
			o.logger.Error("operator: worker %d attempted to push beyond workerCount for epoch %d", w.Index, epoch)
			return
		}
		slot = append(slot, w.Network().DeepCopy())
		o.pushedEpochNetworks[epoch] = slot

		if len(slot) == o.workerCount {
			o.epochNumber++
			replicas := o.pushedEpochNetworks[o.epochNumber]
			delete(o.pushedEpochNetworks, o.epochNumber)
			o.epochMu.Unlock()

			o.networkMu.Lock()
			err := o.networkMerger.Merge(o.globalNetwork, replicas, o.handler)
			o.networkMu.Unlock()
			if err != nil {
				o.logger.Error("operator: epoch merge failed: %v", err)
			}

			o.fireGlobalScale(timestep.Epoch)
			o.epochMu.Lock()
		}
	}

	epoch := w.LocalEpochNumber()
	iters := o.pushedIterationNumbers[epoch]
	if iters == nil {
		iters = make([]int, o.workerCount)
		for i := range iters {
			iters[i] = -1
		}
		o.pushedIterationNumbers[epoch] = iters
	}
	iters[w.Index] = w.LocalIterationNumber()

	synced := epoch == o.epochNumber
	if synced {
		for _, it := range iters {
			if it != w.LocalIterationNumber() {
				synced = false
				break
			}
		}
	}
	if synced {
		o.highestIterationNumber = w.LocalIterationNumber()
	}
	o.epochMu.Unlock()

	if synced {
		o.fireGlobalScale(timestep.Iteration)
	}
}

// FireLocalScale implements worker.Facade: the shared time-scale event
// ejection applied to local hooks, invoked on w's own goroutine.
func (o *Operator) FireLocalScale(w *worker.Worker, scale timestep.Scale) {
	ctx, span := telemetry.StartWorkerSpan(context.Background(), scale.String())
	defer span.End()

	fired := o.localHooks.FireScale(scale, w.LocalHookTimeSteps())
	if len(fired) == 0 {
		return
	}
	plan, err := o.localHooks.Plan()
	if err != nil {
		o.logger.Error("operator: local hook plan invalid: %v", err)
		return
	}
	hook.SortByInvocationIndex(fired, plan)
	foreground, background := hook.Partition(fired, plan)

	reg := o.buildWorkerEventRegistry(w)
	resolver := registry.NewResolver(reg)

	for _, h := range foreground {
		invokeHookSafely(ctx, o.logger, h, reg, resolver)
	}
	for _, bucket := range background {
		o.dispatchBackgroundBucket(bucket, reg)
	}

	for _, h := range fired {
		if local := w.LocalHookTimeSteps()[h]; local != nil && local.Dead() {
			o.localHooks.MarkDead(h, w.Index)
		}
	}
}

// fireGlobalScale runs the shared ejection for the operator's global hooks.
func (o *Operator) fireGlobalScale(scale timestep.Scale) {
	ctx, span := telemetry.StartOperatorSpan(context.Background(), scale.String())
	defer span.End()

	fired := o.globalHooks.FireScale(scale, o.globalHookTimeSteps)
	if len(fired) == 0 {
		return
	}
	plan, err := o.globalHooks.Plan()
	if err != nil {
		o.logger.Error("operator: global hook plan invalid: %v", err)
		return
	}
	hook.SortByInvocationIndex(fired, plan)
	foreground, background := hook.Partition(fired, plan)

	reg := o.buildGlobalEventRegistry()
	resolver := registry.NewResolver(reg)

	for _, h := range foreground {
		invokeHookSafely(ctx, o.logger, h, reg, resolver)
	}
	for _, bucket := range background {
		o.dispatchBackgroundBucket(bucket, reg)
	}

	for _, h := range fired {
		if local := o.globalHookTimeSteps[h]; local != nil && local.Dead() {
			o.globalHooks.MarkDead(h, 0)
		}
	}
}

// dispatchBackgroundBucket hands a self-contained background bucket a
// registry snapshot covering only the union of its hooks' required keys
// (direct and resolver-resolved), then runs it on the background pool.
func (o *Operator) dispatchBackgroundBucket(bucket []*hook.Hook, reg *registry.Registry) {
	patterns := hook.RequiredRegistryKeys(bucket)
	resolver := registry.NewResolver(reg)

	keySet := make(map[string]struct{})
	var keys []string
	for _, p := range patterns {
		for _, k := range resolver.Resolve(p) {
			if _, dup := keySet[k]; dup {
				continue
			}
			keySet[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	snapshotValues := reg.Snapshot(keys)

	snapshot := registry.New("background-snapshot")
	for k, v := range snapshotValues {
		snapshot.Set(k, v)
	}
	snapshotResolver := registry.NewResolver(snapshot)

	o.dispatcher.Dispatch(func() {
		bgCtx := context.Background()
		for _, h := range bucket {
			invokeHookSafely(bgCtx, o.logger, h, snapshot, snapshotResolver)
		}
	})
}

// invokeHookSafely isolates a hook's failure: a panicking hook is logged
// and does not stop the remaining hooks of the same event.
func invokeHookSafely(ctx context.Context, logger utils.Logger, h *hook.Hook, reg *registry.Registry, resolver *registry.Resolver) {
	_, span := telemetry.StartHookSpan(ctx, h.Name)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hook %s panicked: %v", h.Name, r)
		}
	}()
	h.Invoke(reg, resolver)
}

func (o *Operator) buildWorkerEventRegistry(w *worker.Worker) *registry.Registry {
	reg := o.Registry.NewChild("event")
	reg.Set("network", w.Network())
	reg.Set("optimiser", w.Optimiser())
	reg.Set("iterator", w.Iterator())
	reg.Set("trainer", o.trainer)
	reg.Set("epoch", w.LocalEpochNumber())
	reg.Set("iteration", w.LocalIterationNumber())
	reg.Set("runtime_millis", o.RunningTimeMillis())
	reg.Set("shared", o.sharedRegistry)
	return reg
}

func (o *Operator) buildGlobalEventRegistry() *registry.Registry {
	reg := o.Registry.NewChild("event")
	reg.Set("network", o.Network())
	reg.Set("trainer", o.trainer)
	reg.Set("epoch", o.EpochNumber())
	reg.Set("iteration", o.HighestIterationNumber())
	reg.Set("runtime_millis", o.RunningTimeMillis())
	reg.Set("shared", o.sharedRegistry)
	return reg
}
