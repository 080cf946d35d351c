// Package api declares the external interfaces the training core consumes
// but does not implement: the tensor backend, network, optimiser, data
// iterator, and trainer. Concrete implementations live outside this module;
// the core only ever holds references to these interfaces.
package api

import (
	"context"

	"github.com/trainkit/trainkit/internal/registry"
)

// NDArray is an opaque tensor handle owned by the computation backend. The
// core never inspects its contents; it only moves references around and
// asks the ComputationHandler to operate on them.
type NDArray interface{}

// ComputationHandler is the tensor backend collaborator: dense linear
// algebra, SIMD kernels, and BLAS/LAPACK bindings live behind this
// interface, entirely out of scope for this core.
type ComputationHandler interface {
	// DataType names the element type this handler produces (e.g. "float32").
	DataType() string

	// Create allocates a new NDArray of the given shape.
	Create(shape ...int) NDArray

	// Fill copies src's contents into dst.
	Fill(src, dst NDArray)
	// FillScalar broadcasts scalar into every element of dst.
	FillScalar(scalar float64, dst NDArray)

	Add(array NDArray, scalar float64, out NDArray)
	Subtract(array NDArray, scalar float64, out NDArray)
	Multiply(array NDArray, scalar float64, out NDArray)
	Divide(array NDArray, scalar float64, out NDArray)

	// Accumulate adds src into dst elementwise, in place. NetworkMerger uses
	// this to sum worker replicas before scaling down to their mean.
	Accumulate(dst, src NDArray)
	// Scale multiplies dst by scalar elementwise, in place.
	Scale(dst NDArray, scalar float64)

	// SizeBytes returns the combined storage footprint of the given arrays.
	SizeBytes(arrays ...NDArray) int64

	// IsInterchangeable reports whether arrays produced by other can be used
	// directly by this handler without conversion.
	IsInterchangeable(other ComputationHandler) bool
	// CanConvert reports whether array can be converted for use with other.
	CanConvert(array NDArray, other ComputationHandler) bool
	// Convert produces an NDArray usable by other from array.
	Convert(array NDArray, other ComputationHandler) NDArray

	// BeginSession/EndSession bracket one training iteration, hinting that
	// intermediate buffers may be pooled aggressively between the calls.
	BeginSession()
	EndSession()
}

// DataBlock is one epoch-slice of named input/target arrays yielded by a
// DataIterator.
type DataBlock map[string]NDArray

// Network is opaque to this core beyond DeepCopy and its parameter
// registry, which NetworkMerger reduces across worker replicas.
type Network interface {
	// DeepCopy returns an independent replica; mutations to the copy must
	// not affect the original.
	DeepCopy() Network
	// Registry exposes this network's parameter tensors, conventionally
	// under the "layers.*.*" key pattern.
	Registry() *registry.Registry
}

// Optimiser holds per-worker optimiser state (SGD, momentum, etc.); its
// algorithm is out of scope for this core.
type Optimiser interface {
	ShallowCopy() Optimiser
	Registry() *registry.Registry
}

// DataIterator produces the input/target blocks for one epoch as a lazy,
// finite, pull-based sequence, reset at each epoch boundary.
type DataIterator interface {
	// Yield begins a new epoch's sequence. The returned channel is closed
	// once the epoch is exhausted; ctx cancellation stops early delivery.
	Yield(ctx context.Context, handler ComputationHandler, env map[string]any) (<-chan DataBlock, error)
	ShallowCopy() DataIterator
	Registry() *registry.Registry
}

// Trainer drives one training iteration: it owns the algorithm-level glue
// between a Network, an Optimiser, and a DataIterator, none of which this
// core interprets directly.
type Trainer interface {
	TrainingDataIterator() DataIterator
	Optimiser() Optimiser
	Registry() *registry.Registry

	ProvideExternalInputData(net Network, block DataBlock)
	RunTrainingIteration(net Network, opt Optimiser, reg *registry.Registry, handler ComputationHandler) error
	ProvideExternalOutputData(net Network, block DataBlock)
}
