// Package merger reduces the per-worker network replicas pushed at an
// epoch boundary back into the operator's single global network.
package merger

import (
	"github.com/trainkit/trainkit/internal/api"
	"github.com/trainkit/trainkit/internal/registry"
	appErrors "github.com/trainkit/trainkit/pkg/errors"
)

// DefaultKeyPattern is the resolver glob pattern matched against a
// network's registry when no pattern is configured: every leaf parameter
// two levels under "layers".
const DefaultKeyPattern = "layers.*.*"

// Reducer combines the values read from N worker replicas of a single
// parameter into the value written back to the target. sources holds one
// NDArray per worker for the given key, already owned by handler.
type Reducer func(handler api.ComputationHandler, target api.NDArray, sources []api.NDArray)

// NetworkMerger reduces worker network replicas into one global network at
// each epoch boundary. The default reduction is an elementwise arithmetic
// mean over every parameter matched by Pattern; parameters the pattern does
// not match are left untouched.
type NetworkMerger struct {
	// Pattern is the resolver glob pattern selecting which registry keys
	// get merged. Defaults to DefaultKeyPattern.
	Pattern string
	// Reduce combines matched parameters across replicas. Defaults to
	// arithmetic mean.
	Reduce Reducer
}

// New creates a NetworkMerger with the default pattern and arithmetic-mean
// reduction.
func New() *NetworkMerger {
	return &NetworkMerger{
		Pattern: DefaultKeyPattern,
		Reduce:  MeanReducer,
	}
}

// MeanReducer writes the elementwise arithmetic mean of sources into
// target, via the handler's in-place accumulate/scale primitives.
func MeanReducer(handler api.ComputationHandler, target api.NDArray, sources []api.NDArray) {
	if len(sources) == 0 {
		return
	}
	handler.Fill(sources[0], target)
	for _, src := range sources[1:] {
		handler.Accumulate(target, src)
	}
	handler.Scale(target, 1.0/float64(len(sources)))
}

// Merge updates target in place so that every parameter matched by the
// merger's pattern equals Reduce(values at that key across sources).
// sources must all carry the same set of matched keys as target; a key
// present in target but missing from a source is a merger mismatch.
func (m *NetworkMerger) Merge(target api.Network, sources []api.Network, handler api.ComputationHandler) error {
	if len(sources) == 0 {
		return appErrors.Wrap(appErrors.CodeMergerMismatch, "merge called with zero source replicas", nil)
	}

	pattern := m.Pattern
	if pattern == "" {
		pattern = DefaultKeyPattern
	}
	reduce := m.Reduce
	if reduce == nil {
		reduce = MeanReducer
	}

	targetReg := target.Registry()
	resolver := registry.NewResolver(targetReg)
	keys := resolver.Resolve(pattern)

	for _, key := range keys {
		targetArray, ok := targetReg.Get(key)
		if !ok {
			continue
		}

		sourceArrays := make([]api.NDArray, 0, len(sources))
		for _, src := range sources {
			v, ok := src.Registry().Get(key)
			if !ok {
				return appErrors.Wrap(appErrors.CodeMergerMismatch,
					"source replica missing merged key "+key, nil)
			}
			sourceArrays = append(sourceArrays, v)
		}

		reduce(handler, targetArray, sourceArrays)
	}

	return nil
}
