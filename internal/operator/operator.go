// Package operator implements the orchestrator that owns the global
// network, the worker pool, and the hook system, and drives pull/merge/push
// of per-worker replicas through the training loop.
package operator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trainkit/trainkit/internal/api"
	"github.com/trainkit/trainkit/internal/hook"
	"github.com/trainkit/trainkit/internal/merger"
	"github.com/trainkit/trainkit/internal/registry"
	"github.com/trainkit/trainkit/internal/timestep"
	"github.com/trainkit/trainkit/internal/worker"
	"github.com/trainkit/trainkit/pkg/config"
	appErrors "github.com/trainkit/trainkit/pkg/errors"
	"github.com/trainkit/trainkit/pkg/utils"
)

// State is one of the operator's lifecycle states, mirroring the worker
// state machine at the orchestration level.
type State int

// Operator lifecycle states.
const (
	None State = iota
	Running
	Paused
	Stopped
)

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

// Operator owns the global network, the worker pool, and the hook system.
type Operator struct {
	handler     api.ComputationHandler
	workerCount int
	workers     []*worker.Worker
	trainer     api.Trainer

	networkMu    sync.RWMutex
	globalNetwork api.Network
	networkMerger *merger.NetworkMerger

	localHooks  *hook.HookSet
	globalHooks *hook.HookSet

	globalHookTimeSteps map[*hook.Hook]*timestep.TimeStep

	epochMu                sync.Mutex
	epochNumber            int
	highestIterationNumber int
	pushedEpochNetworks    map[int][]api.Network
	pushedIterationNumbers map[int][]int

	useSessions bool
	dispatcher  *backgroundDispatcher

	Registry       *registry.Registry
	sharedRegistry *registry.Registry

	mu         sync.Mutex
	cond       *sync.Cond
	state      State
	stateEpoch uint64

	clockMu      sync.Mutex
	clock        utils.Clock
	runStart     time.Time
	accumulated  time.Duration
	running      bool

	logger utils.Logger
}

// Deps bundles the external collaborators an Operator is constructed with.
type Deps struct {
	Handler   api.ComputationHandler
	Trainer   api.Trainer
	Network   api.Network
	Logger    utils.Logger
	Clock     utils.Clock
}

// New creates an Operator from cfg and deps. workerCount, backgroundPoolSize
// and the merger pattern come from cfg; nil handler/trainer/network is an
// invalid-configuration error.
func New(cfg *config.Config, deps Deps) (*Operator, error) {
	if cfg.Operator.WorkerCount < 1 {
		return nil, appErrors.Wrap(appErrors.CodeInvalidConfiguration, "workerCount must be >= 1", nil)
	}
	if deps.Handler == nil || deps.Trainer == nil || deps.Network == nil {
		return nil, appErrors.Wrap(appErrors.CodeInvalidConfiguration, "handler, trainer and network must not be nil", nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	clock := deps.Clock
	if clock == nil {
		clock = utils.NewRealClock()
	}

	m := merger.New()
	if cfg.Merger.Pattern != "" {
		m.Pattern = cfg.Merger.Pattern
	}

	root := registry.New("operator")
	shared := root.NewChild("shared")

	o := &Operator{
		handler:                deps.Handler,
		workerCount:            cfg.Operator.WorkerCount,
		trainer:                deps.Trainer,
		globalNetwork:          deps.Network,
		networkMerger:          m,
		localHooks:             hook.NewLocalHookSet(cfg.Operator.WorkerCount, logger),
		globalHooks:            hook.NewGlobalHookSet(logger),
		globalHookTimeSteps:    make(map[*hook.Hook]*timestep.TimeStep),
		pushedEpochNetworks:    make(map[int][]api.Network),
		pushedIterationNumbers: make(map[int][]int),
		useSessions:            cfg.Operator.UseSessions,
		dispatcher:             newBackgroundDispatcher(cfg.Operator.BackgroundPoolSize),
		Registry:               root,
		sharedRegistry:         shared,
		clock:                  clock,
		logger:                 logger,
	}
	o.cond = sync.NewCond(&o.mu)

	for i := 0; i < o.workerCount; i++ {
		opt := deps.Trainer.Optimiser().ShallowCopy()
		iter := deps.Trainer.TrainingDataIterator().ShallowCopy()
		w := worker.New(i, o, deps.Handler, cfg.Operator.ThreadPriority, opt, iter, root)
		o.workers = append(o.workers, w)
	}

	return o, nil
}

// WorkerCount returns the number of workers.
func (o *Operator) WorkerCount() int { return o.workerCount }

// EpochNumber returns the number of epochs fully merged so far.
func (o *Operator) EpochNumber() int {
	o.epochMu.Lock()
	defer o.epochMu.Unlock()
	return o.epochNumber
}

// HighestIterationNumber returns the highest globally-synchronised
// iteration number observed.
func (o *Operator) HighestIterationNumber() int {
	o.epochMu.Lock()
	defer o.epochMu.Unlock()
	return o.highestIterationNumber
}

// Network returns the current global network.
func (o *Operator) Network() api.Network {
	o.networkMu.RLock()
	defer o.networkMu.RUnlock()
	return o.globalNetwork
}

// Trainer returns the shared trainer collaborator.
func (o *Operator) Trainer() api.Trainer { return o.trainer }

// NetworkMerger returns the configured merger.
func (o *Operator) NetworkMerger() *merger.NetworkMerger { return o.networkMerger }

// UseSessions reports whether iterations are bracketed by begin/end session
// calls.
func (o *Operator) UseSessions() bool { return o.useSessions }

// Logger returns the operator's logger, shared with its workers.
func (o *Operator) Logger() utils.Logger { return o.logger }

// Clock returns the operator's clock, shared with its workers.
func (o *Operator) Clock() utils.Clock { return o.clock }

// State returns the operator's current lifecycle state.
func (o *Operator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunningTimeMillis returns the monotonic running time in milliseconds,
// accumulated across Start/Resume .. Pause/Stop spans.
func (o *Operator) RunningTimeMillis() int64 {
	o.clockMu.Lock()
	defer o.clockMu.Unlock()
	total := o.accumulated
	if !o.running {
		return total.Milliseconds()
	}
	return total.Milliseconds() + o.clock.ElapsedMillis(o.runStart)
}

func (o *Operator) startStopwatch() {
	o.clockMu.Lock()
	defer o.clockMu.Unlock()
	if !o.running {
		o.runStart = o.clock.Now()
		o.running = true
	}
}

func (o *Operator) stopStopwatch() {
	o.clockMu.Lock()
	defer o.clockMu.Unlock()
	if o.running {
		o.accumulated += o.clock.Since(o.runStart)
		o.running = false
	}
}

func (o *Operator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.stateEpoch++
	o.cond.Broadcast()
	o.mu.Unlock()
}

// WaitForStateChanged blocks until the operator's state changes again, or
// ctx is done.
func (o *Operator) WaitForStateChanged(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		o.mu.Lock()
		epoch := o.stateEpoch
		for o.stateEpoch == epoch {
			o.cond.Wait()
		}
		o.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Start transitions None/Stopped → Running, fires the Start lifecycle
// event, starts the stopwatch, and starts every worker.
func (o *Operator) Start() error {
	o.mu.Lock()
	if o.state != None && o.state != Stopped {
		o.mu.Unlock()
		o.logger.Warn("operator: invalid transition Start from %s", o.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	o.mu.Unlock()

	o.startStopwatch()
	o.fireGlobalScale(timestep.Start)
	o.setState(Running)
	for _, w := range o.workers {
		if err := w.Start(); err != nil {
			o.logger.Warn("operator: worker %d failed to start: %v", w.Index, err)
		}
	}
	return nil
}

// StartOnce runs exactly one doWork per worker and leaves the operator (and
// every worker) in Paused.
func (o *Operator) StartOnce() error {
	o.mu.Lock()
	if o.state != None && o.state != Stopped {
		o.mu.Unlock()
		o.logger.Warn("operator: invalid transition StartOnce from %s", o.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	o.mu.Unlock()

	o.startStopwatch()
	o.fireGlobalScale(timestep.Start)

	var g errgroup.Group
	for _, w := range o.workers {
		w := w
		g.Go(func() error {
			w.RunOnce()
			return nil
		})
	}
	_ = g.Wait()

	o.fireGlobalScale(timestep.Pause)
	o.stopStopwatch()
	o.setState(Paused)
	return nil
}

// SignalPause pauses every worker and the operator.
func (o *Operator) SignalPause() error {
	o.mu.Lock()
	if o.state != Running {
		o.mu.Unlock()
		o.logger.Warn("operator: invalid transition Pause from %s", o.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	o.mu.Unlock()

	for _, w := range o.workers {
		_ = w.SignalPause()
	}
	o.fireGlobalScale(timestep.Pause)
	o.stopStopwatch()
	o.setState(Paused)
	return nil
}

// SignalResume resumes every worker and the operator.
func (o *Operator) SignalResume() error {
	o.mu.Lock()
	if o.state != Paused {
		o.mu.Unlock()
		o.logger.Warn("operator: invalid transition Resume from %s", o.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	o.mu.Unlock()

	o.startStopwatch()
	o.fireGlobalScale(timestep.Resume)
	for _, w := range o.workers {
		_ = w.SignalResume()
	}
	o.setState(Running)
	return nil
}

// SignalStop stops every worker and the operator.
func (o *Operator) SignalStop() error {
	o.mu.Lock()
	if o.state == Stopped {
		o.mu.Unlock()
		o.logger.Warn("operator: invalid transition Stop from %s", o.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	o.mu.Unlock()

	for _, w := range o.workers {
		_ = w.SignalStop()
	}
	o.fireGlobalScale(timestep.Stop)
	o.stopStopwatch()
	o.setState(Stopped)
	return nil
}

// SignalReset fires the Reset lifecycle event. It does not itself restart
// workers; callers typically follow it with Start.
func (o *Operator) SignalReset() error {
	o.mu.Lock()
	if o.state != Stopped {
		o.mu.Unlock()
		o.logger.Warn("operator: invalid transition Reset from %s", o.state)
		return appErrors.ErrInvalidLifecycleTransition
	}
	o.mu.Unlock()

	o.epochMu.Lock()
	o.epochNumber = 0
	o.highestIterationNumber = 0
	o.pushedEpochNetworks = make(map[int][]api.Network)
	o.pushedIterationNumbers = make(map[int][]int)
	o.epochMu.Unlock()

	o.fireGlobalScale(timestep.Reset)
	o.setState(None)
	return nil
}
