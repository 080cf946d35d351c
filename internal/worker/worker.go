// Package worker implements the execution unit that owns one replica of
// the network and optimiser and drives it through the training loop on its
// own goroutine.
package worker

import (
	"context"
	"sync"

	"github.com/trainkit/trainkit/internal/api"
	"github.com/trainkit/trainkit/internal/hook"
	"github.com/trainkit/trainkit/internal/registry"
	"github.com/trainkit/trainkit/internal/timestep"
	appErrors "github.com/trainkit/trainkit/pkg/errors"
	"github.com/trainkit/trainkit/pkg/telemetry"
	"github.com/trainkit/trainkit/pkg/utils"
)

// State is one of the worker's lifecycle states.
type State int

const (
	// None is the pre-start state: the worker has never run.
	None State = iota
	// Running is executing doWork in a loop.
	Running
	// Paused is idle, waiting for a resume signal.
	Paused
	// Stopped means the worker goroutine has exited; Start may run it again.
	Stopped
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case None:
		return "None"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Facade is the subset of the operator a Worker calls back into. It exists
// so this package never imports internal/operator, which in turn owns a
// slice of *Worker.
type Facade interface {
	// PullProgress may replace w's local network with a deep copy of the
	// global network, per the new-epoch/uninitialised rule.
	PullProgress(w *Worker)
	// PushProgress records w's iteration/epoch progress and may trigger an
	// epoch merge and/or global event firing.
	PushProgress(w *Worker)
	// FireLocalScale runs the shared time-scale event ejection for w's
	// local hooks, invoking foreground hooks synchronously and dispatching
	// background buckets, then marking exhausted hooks dead for w's index.
	FireLocalScale(w *Worker, scale timestep.Scale)
	// Trainer returns the shared trainer collaborator.
	Trainer() api.Trainer
	// UseSessions reports whether iterations should be bracketed by
	// handler.BeginSession/EndSession.
	UseSessions() bool
	Logger() utils.Logger
	Clock() utils.Clock
}

// Worker owns a local network/optimiser/iterator replica and the goroutine
// that drives it through the training loop.
type Worker struct {
	Index       int
	operator    Facade
	handler     api.ComputationHandler
	threadPrior int

	network   api.Network
	optimiser api.Optimiser
	iterator  api.DataIterator
	dataCh    <-chan api.DataBlock

	localEpochNumber     int
	localIterationNumber int
	localHookTimeSteps   map[*hook.Hook]*timestep.TimeStep
	EventRegistry        *registry.Registry

	mu         sync.Mutex
	cond       *sync.Cond
	state      State
	lastErr    error
	stateEpoch uint64
}

// New creates a worker at its initial, not-yet-started state.
func New(index int, operator Facade, handler api.ComputationHandler, threadPriority int, optimiser api.Optimiser, iterator api.DataIterator, parentRegistry *registry.Registry) *Worker {
	w := &Worker{
		Index:              index,
		operator:           operator,
		handler:            handler,
		threadPrior:        threadPriority,
		optimiser:          optimiser,
		iterator:           iterator,
		localHookTimeSteps: make(map[*hook.Hook]*timestep.TimeStep),
		EventRegistry:      parentRegistry.NewChild("worker"),
		state:              None,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastError returns the most recent error captured from the worker loop,
// if any; it is cleared on the next successful doWork.
func (w *Worker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// log returns the operator's logger tagged with this worker's index, so
// lifecycle warnings and training-iteration errors from concurrently running
// workers can be told apart in aggregated log output.
func (w *Worker) log() utils.Logger {
	return w.operator.Logger().WithField("worker", w.Index)
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.stateEpoch++
	w.cond.Broadcast()
	w.mu.Unlock()
}

// WaitForStateChanged blocks until the worker's state changes at least
// once more, or ctx is done.
func (w *Worker) WaitForStateChanged(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		w.mu.Lock()
		epoch := w.stateEpoch
		for w.stateEpoch == epoch {
			w.cond.Wait()
		}
		w.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Start transitions None/Stopped → Running and spawns the worker goroutine.
// It is an invalid-lifecycle-transition no-op from any other state.
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.state != None && w.state != Stopped {
		w.mu.Unlock()
		w.log().Warn("invalid transition Start from %s", w.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	w.state = Running
	w.stateEpoch++
	w.cond.Broadcast()
	w.mu.Unlock()

	go w.run()
	return nil
}

// SignalPause transitions Running → Paused.
func (w *Worker) SignalPause() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Running {
		w.log().Warn("invalid transition Pause from %s", w.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	w.state = Paused
	w.stateEpoch++
	w.cond.Broadcast()
	return nil
}

// SignalResume transitions Paused → Running.
func (w *Worker) SignalResume() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Paused {
		w.log().Warn("invalid transition Resume from %s", w.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	w.state = Running
	w.stateEpoch++
	w.cond.Broadcast()
	return nil
}

// SignalStop transitions any non-Stopped state to Stopped; the running
// goroutine observes this between iterations and exits.
func (w *Worker) SignalStop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Stopped {
		w.log().Warn("invalid transition Stop from %s", w.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	w.state = Stopped
	w.stateEpoch++
	w.cond.Broadcast()
	return nil
}

// run is the worker goroutine body: while state != Stopped, while state ==
// Running call doWork; if Paused, wait for a resume or stop signal.
func (w *Worker) run() {
	for {
		w.mu.Lock()
		for w.state == Running {
			w.mu.Unlock()
			w.doWork()
			w.mu.Lock()
		}
		state := w.state
		if state == Stopped {
			w.mu.Unlock()
			return
		}
		for w.state == Paused {
			w.cond.Wait()
		}
		w.mu.Unlock()
	}
}

// RunOnce executes exactly one doWork call on the calling goroutine,
// initialising from None/Stopped or resuming from Paused, and ends in
// Paused.
func (w *Worker) RunOnce() {
	w.mu.Lock()
	w.state = Running
	w.stateEpoch++
	w.cond.Broadcast()
	w.mu.Unlock()

	w.doWork()

	w.mu.Lock()
	w.state = Paused
	w.stateEpoch++
	w.cond.Broadcast()
	w.mu.Unlock()
}

// doWork performs exactly one training iteration, per the six-step
// protocol: epoch rollover, pullProgress, the optional session-bracketed
// training step, the Iteration local event, and pushProgress.
func (w *Worker) doWork() {
	ctx, span := telemetry.StartWorkerSpan(context.Background(), "do_work")
	defer span.End()

	block, ok := w.nextBlock()
	if !ok {
		w.operator.FireLocalScale(w, timestep.Epoch)
		w.localEpochNumber++
		w.localIterationNumber = 0
		if err := w.reyield(ctx); err != nil {
			w.mu.Lock()
			w.lastErr = err
			w.state = Paused
			w.mu.Unlock()
			w.log().Error("%v", err)
			return
		}
		block, ok = w.nextBlock()
		if !ok {
			w.mu.Lock()
			w.lastErr = appErrors.ErrWorkerInitFailure
			w.state = Paused
			w.mu.Unlock()
			w.log().Error("data iterator produced no yield")
			return
		}
	}

	w.operator.PullProgress(w)

	trainer := w.operator.Trainer()
	useSessions := w.operator.UseSessions()
	if useSessions {
		w.handler.BeginSession()
	}
	trainer.ProvideExternalInputData(w.network, block)
	if err := trainer.RunTrainingIteration(w.network, w.optimiser, w.EventRegistry, w.handler); err != nil {
		if useSessions {
			w.handler.EndSession()
		}
		w.mu.Lock()
		w.lastErr = appErrors.Wrap(appErrors.CodeBackendError, "training iteration failed", err)
		w.state = Paused
		w.mu.Unlock()
		w.log().Error("backend error: %v", err)
		return
	}
	trainer.ProvideExternalOutputData(w.network, block)
	if useSessions {
		w.handler.EndSession()
	}

	w.operator.FireLocalScale(w, timestep.Iteration)
	w.localIterationNumber++
	w.operator.PushProgress(w)

	w.mu.Lock()
	w.lastErr = nil
	w.mu.Unlock()
}

func (w *Worker) nextBlock() (api.DataBlock, bool) {
	if w.dataCh == nil {
		return nil, false
	}
	block, ok := <-w.dataCh
	return block, ok
}

func (w *Worker) reyield(ctx context.Context) error {
	ch, err := w.iterator.Yield(ctx, w.handler, nil)
	if err != nil {
		return appErrors.Wrap(appErrors.CodeWorkerInitFailure, "data iterator yield failed", err)
	}
	w.dataCh = ch
	return nil
}

// Network returns the worker's current local network replica.
func (w *Worker) Network() api.Network { return w.network }

// Optimiser returns the worker's local optimiser replica.
func (w *Worker) Optimiser() api.Optimiser { return w.optimiser }

// Iterator returns the worker's local data iterator replica.
func (w *Worker) Iterator() api.DataIterator { return w.iterator }

// SetNetwork installs net as the worker's local network replica; called by
// the operator's pullProgress.
func (w *Worker) SetNetwork(net api.Network) { w.network = net }

// LocalEpochNumber returns the worker's local epoch counter.
func (w *Worker) LocalEpochNumber() int { return w.localEpochNumber }

// LocalIterationNumber returns the worker's local iteration counter.
func (w *Worker) LocalIterationNumber() int { return w.localIterationNumber }

// LocalHookTimeSteps exposes the worker's per-hook local TimeStep copies.
func (w *Worker) LocalHookTimeSteps() map[*hook.Hook]*timestep.TimeStep {
	return w.localHookTimeSteps
}
