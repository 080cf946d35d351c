// Package timestep implements the scheduling primitive that decides how
// often a hook fires: "every interval units of scale, up to liveTime times".
package timestep

import (
	appErrors "github.com/trainkit/trainkit/pkg/errors"
)

// Scale names the training-loop event a TimeStep counts against.
type Scale int

const (
	// Iteration ticks once per completed worker iteration.
	Iteration Scale = iota
	// Epoch ticks once per completed epoch boundary.
	Epoch
	// Start ticks once when the operator transitions to Running from a
	// stopped/fresh state.
	Start
	// Pause ticks once on a pause transition.
	Pause
	// Resume ticks once on a resume transition.
	Resume
	// Stop ticks once on a stop transition.
	Stop
	// Reset ticks once on a reset transition.
	Reset
)

// String returns the scale's name.
func (s Scale) String() string {
	switch s {
	case Iteration:
		return "Iteration"
	case Epoch:
		return "Epoch"
	case Start:
		return "Start"
	case Pause:
		return "Pause"
	case Resume:
		return "Resume"
	case Stop:
		return "Stop"
	case Reset:
		return "Reset"
	default:
		return "Unknown"
	}
}

// Unbounded marks a TimeStep's liveTime as firing indefinitely.
const Unbounded = -1

// TimeStep is an immutable template "(scale, interval, liveTime)" with a
// mutable local countdown "(localInterval, localLiveTime)". Operators and
// workers keep one local copy per hook per worker (or per global scope);
// the template itself is never mutated.
type TimeStep struct {
	scale    Scale
	interval int
	liveTime int

	localInterval int
	localLiveTime int
}

// New creates a TimeStep template. interval must be >= 1; liveTime must be
// Unbounded or >= 0.
func New(scale Scale, interval, liveTime int) (*TimeStep, error) {
	if interval < 1 {
		return nil, appErrors.Wrap(appErrors.CodeInvalidConfiguration,
			"timestep interval must be at least 1", nil)
	}
	if liveTime < Unbounded {
		return nil, appErrors.Wrap(appErrors.CodeInvalidConfiguration,
			"timestep liveTime must be -1 (unbounded) or >= 0", nil)
	}
	return &TimeStep{
		scale:         scale,
		interval:      interval,
		liveTime:      liveTime,
		localInterval: interval,
		localLiveTime: liveTime,
	}, nil
}

// Every is a convenience constructor for an unbounded TimeStep firing every
// interval units of scale.
func Every(interval int, scale Scale) *TimeStep {
	ts, err := New(scale, interval, Unbounded)
	if err != nil {
		panic(err)
	}
	return ts
}

// DeepCopy returns an independent TimeStep whose local countdown is reset
// to the template's interval/liveTime. Mutating the copy never affects the
// original template.
func (t *TimeStep) DeepCopy() *TimeStep {
	return &TimeStep{
		scale:         t.scale,
		interval:      t.interval,
		liveTime:      t.liveTime,
		localInterval: t.interval,
		localLiveTime: t.liveTime,
	}
}

// Scale returns the scale this TimeStep counts against.
func (t *TimeStep) Scale() Scale { return t.scale }

// Interval returns the template fire period.
func (t *TimeStep) Interval() int { return t.interval }

// LiveTime returns the template's remaining-fires budget (Unbounded for -1).
func (t *TimeStep) LiveTime() int { return t.liveTime }

// LocalLiveTime returns the current local remaining-fires count.
func (t *TimeStep) LocalLiveTime() int { return t.localLiveTime }

// LocalInterval returns the current local countdown.
func (t *TimeStep) LocalInterval() int { return t.localInterval }

// Dead reports whether this local copy has exhausted its liveTime budget.
// An unbounded TimeStep is never dead.
func (t *TimeStep) Dead() bool {
	return t.liveTime != Unbounded && t.localLiveTime == 0
}

// Tick decrements localInterval by one. When it reaches zero this reports
// fired=true, resets localInterval to interval, and decrements
// localLiveTime (unless unbounded). A TimeStep that is already Dead never
// fires again; Tick is a no-op for it.
func (t *TimeStep) Tick() (fired bool) {
	if t.Dead() {
		return false
	}

	t.localInterval--
	if t.localInterval > 0 {
		return false
	}

	t.localInterval = t.interval
	if t.liveTime != Unbounded && t.localLiveTime > 0 {
		t.localLiveTime--
	}
	return true
}
