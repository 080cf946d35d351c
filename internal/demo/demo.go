// Package demo provides a small, self-contained linear-regression problem
// used by the trainkit CLI's run command to exercise the operator/worker
// training loop end to end without a real tensor backend.
package demo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/trainkit/trainkit/internal/api"
	"github.com/trainkit/trainkit/internal/registry"
	"github.com/trainkit/trainkit/pkg/collections"
	appErrors "github.com/trainkit/trainkit/pkg/errors"
	"github.com/trainkit/trainkit/pkg/parallel"
)

// Vector is the NDArray implementation VectorHandler operates on: a flat
// float64 slice with no backend beyond elementwise Go loops.
type Vector struct {
	Data []float64
}

func asVector(a api.NDArray) *Vector {
	v, ok := a.(*Vector)
	if !ok {
		panic(fmt.Sprintf("demo: expected *Vector, got %T", a))
	}
	return v
}

// VectorHandler is a minimal ComputationHandler over flat float64 slices; it
// stands in for a real SIMD/BLAS-backed tensor backend.
type VectorHandler struct {
	pool *collections.SlicePool[float64]
}

// NewVectorHandler creates a VectorHandler with a scratch-buffer pool.
func NewVectorHandler() *VectorHandler {
	return &VectorHandler{pool: collections.NewSlicePool[float64](64)}
}

func (h *VectorHandler) DataType() string { return "float64" }

func (h *VectorHandler) Create(shape ...int) api.NDArray {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Vector{Data: make([]float64, n)}
}

func (h *VectorHandler) Fill(src, dst api.NDArray) {
	copy(asVector(dst).Data, asVector(src).Data)
}

func (h *VectorHandler) FillScalar(scalar float64, dst api.NDArray) {
	d := asVector(dst).Data
	for i := range d {
		d[i] = scalar
	}
}

func (h *VectorHandler) Add(array api.NDArray, scalar float64, out api.NDArray) {
	a, o := asVector(array).Data, asVector(out).Data
	for i := range a {
		o[i] = a[i] + scalar
	}
}

func (h *VectorHandler) Subtract(array api.NDArray, scalar float64, out api.NDArray) {
	a, o := asVector(array).Data, asVector(out).Data
	for i := range a {
		o[i] = a[i] - scalar
	}
}

func (h *VectorHandler) Multiply(array api.NDArray, scalar float64, out api.NDArray) {
	a, o := asVector(array).Data, asVector(out).Data
	for i := range a {
		o[i] = a[i] * scalar
	}
}

func (h *VectorHandler) Divide(array api.NDArray, scalar float64, out api.NDArray) {
	a, o := asVector(array).Data, asVector(out).Data
	for i := range a {
		o[i] = a[i] / scalar
	}
}

// Accumulate adds src into dst elementwise, in place.
func (h *VectorHandler) Accumulate(dst, src api.NDArray) {
	d, s := asVector(dst).Data, asVector(src).Data
	for i := range d {
		d[i] += s[i]
	}
}

// Scale multiplies dst by scalar elementwise, in place.
func (h *VectorHandler) Scale(dst api.NDArray, scalar float64) {
	d := asVector(dst).Data
	for i := range d {
		d[i] *= scalar
	}
}

func (h *VectorHandler) SizeBytes(arrays ...api.NDArray) int64 {
	var total int64
	for _, a := range arrays {
		total += int64(len(asVector(a).Data)) * 8
	}
	return total
}

func (h *VectorHandler) IsInterchangeable(other api.ComputationHandler) bool {
	_, ok := other.(*VectorHandler)
	return ok
}

func (h *VectorHandler) CanConvert(array api.NDArray, other api.ComputationHandler) bool {
	return h.IsInterchangeable(other)
}

func (h *VectorHandler) Convert(array api.NDArray, other api.ComputationHandler) api.NDArray {
	return array
}

func (h *VectorHandler) BeginSession() {}
func (h *VectorHandler) EndSession()   {}

// LinearNetwork is a single linear layer: a weight vector and a bias scalar,
// exposed under the "layers.*.*" pattern NetworkMerger expects by default.
type LinearNetwork struct {
	reg *registry.Registry
	dim int
}

// NewLinearNetwork creates a zero-initialised linear layer of the given
// input dimensionality.
func NewLinearNetwork(dim int, handler *VectorHandler) *LinearNetwork {
	reg := registry.New("network")
	reg.Set("layers.linear.weights", handler.Create(dim))
	reg.Set("layers.linear.bias", handler.Create(1))
	return &LinearNetwork{reg: reg, dim: dim}
}

// DeepCopy returns an independent replica of the layer's parameters.
func (n *LinearNetwork) DeepCopy() api.Network {
	reg := registry.New("network")
	w, _ := n.reg.Get("layers.linear.weights")
	b, _ := n.reg.Get("layers.linear.bias")
	reg.Set("layers.linear.weights", &Vector{Data: append([]float64(nil), asVector(w).Data...)})
	reg.Set("layers.linear.bias", &Vector{Data: append([]float64(nil), asVector(b).Data...)})
	return &LinearNetwork{reg: reg, dim: n.dim}
}

// Registry exposes the layer's parameter tensors.
func (n *LinearNetwork) Registry() *registry.Registry { return n.reg }

// Dim returns the input dimensionality this layer was built for.
func (n *LinearNetwork) Dim() int { return n.dim }

// SGDOptimiser is momentum SGD over the registry keys RunTrainingIteration
// updates; velocity buffers are kept independently per ShallowCopy so
// concurrent workers never share mutable optimiser state.
type SGDOptimiser struct {
	reg      *registry.Registry
	LR       float64
	Momentum float64

	mu       sync.Mutex
	velocity map[string]*Vector
}

// NewSGDOptimiser creates an SGDOptimiser with the given learning rate and
// momentum coefficient.
func NewSGDOptimiser(lr, momentum float64) *SGDOptimiser {
	return &SGDOptimiser{
		reg:      registry.New("optimiser"),
		LR:       lr,
		Momentum: momentum,
		velocity: make(map[string]*Vector),
	}
}

// ShallowCopy returns a new optimiser with the same hyperparameters and its
// own independent velocity state.
func (o *SGDOptimiser) ShallowCopy() api.Optimiser {
	return NewSGDOptimiser(o.LR, o.Momentum)
}

// Registry exposes the optimiser's (currently empty) parameter registry.
func (o *SGDOptimiser) Registry() *registry.Registry { return o.reg }

func (o *SGDOptimiser) velocityFor(key string, n int) *Vector {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.velocity[key]
	if !ok || len(v.Data) != n {
		v = &Vector{Data: make([]float64, n)}
		o.velocity[key] = v
	}
	return v
}

// step applies one momentum-SGD update to param in place, given its gradient.
func (o *SGDOptimiser) step(key string, param, grad []float64) {
	vel := o.velocityFor(key, len(param))
	for i := range param {
		vel.Data[i] = o.Momentum*vel.Data[i] + o.LR*grad[i]
		param[i] -= vel.Data[i]
	}
}

// SyntheticIterator yields synthetic (x, y) regression blocks drawn against
// a fixed, randomly-chosen target weight vector, so every worker trains
// toward the same underlying function from different sample sequences.
type SyntheticIterator struct {
	reg            *registry.Registry
	dim            int
	blocksPerEpoch int
	targetWeights  []float64
	targetBias     float64
	rng            *rand.Rand
}

// NewSyntheticIterator creates a SyntheticIterator for a dim-dimensional
// regression problem, deterministic given seed.
func NewSyntheticIterator(dim, blocksPerEpoch int, seed int64) *SyntheticIterator {
	rng := rand.New(rand.NewSource(seed))
	target := make([]float64, dim)
	for i := range target {
		target[i] = rng.Float64()*2 - 1
	}
	return &SyntheticIterator{
		reg:            registry.New("iterator"),
		dim:            dim,
		blocksPerEpoch: blocksPerEpoch,
		targetWeights:  target,
		targetBias:     rng.Float64()*2 - 1,
		rng:            rng,
	}
}

// Yield produces blocksPerEpoch data blocks for one epoch, each holding an
// "x" input vector and a "y" target scalar generated from the fixed target
// function plus independent Gaussian input noise.
func (it *SyntheticIterator) Yield(ctx context.Context, handler api.ComputationHandler, env map[string]any) (<-chan api.DataBlock, error) {
	ch := make(chan api.DataBlock)
	go func() {
		defer close(ch)
		for i := 0; i < it.blocksPerEpoch; i++ {
			x := make([]float64, it.dim)
			y := it.targetBias
			for j := range x {
				x[j] = it.rng.NormFloat64()
				y += x[j] * it.targetWeights[j]
			}
			block := api.DataBlock{
				"x": &Vector{Data: x},
				"y": &Vector{Data: []float64{y}},
			}
			select {
			case ch <- block:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// ShallowCopy returns an independent iterator over the same target function,
// seeded from this iterator's own generator so worker replicas see distinct
// sample sequences.
func (it *SyntheticIterator) ShallowCopy() api.DataIterator {
	dup := NewSyntheticIterator(it.dim, it.blocksPerEpoch, it.rng.Int63())
	dup.targetWeights = it.targetWeights
	dup.targetBias = it.targetBias
	return dup
}

// Registry exposes the iterator's (currently empty) registry.
func (it *SyntheticIterator) Registry() *registry.Registry { return it.reg }

// LinearTrainer drives one SGD step of linear regression per training
// iteration. It is shared by every worker, so the in-flight input block for
// a given network replica is tracked in a concurrent map keyed by the
// replica's own Network pointer rather than on trainer fields.
type LinearTrainer struct {
	reg       *registry.Registry
	iterator  *SyntheticIterator
	optimiser *SGDOptimiser
	pending   sync.Map // api.Network -> api.DataBlock
}

// NewLinearTrainer creates a LinearTrainer for a dim-dimensional regression
// problem, using an SGD optimiser with the given hyperparameters.
func NewLinearTrainer(dim, blocksPerEpoch int, lr, momentum float64, seed int64) *LinearTrainer {
	return &LinearTrainer{
		reg:       registry.New("trainer"),
		iterator:  NewSyntheticIterator(dim, blocksPerEpoch, seed),
		optimiser: NewSGDOptimiser(lr, momentum),
	}
}

func (t *LinearTrainer) TrainingDataIterator() api.DataIterator { return t.iterator }
func (t *LinearTrainer) Optimiser() api.Optimiser               { return t.optimiser }
func (t *LinearTrainer) Registry() *registry.Registry           { return t.reg }

// ProvideExternalInputData stashes block so RunTrainingIteration can read it
// back for the matching network replica.
func (t *LinearTrainer) ProvideExternalInputData(net api.Network, block api.DataBlock) {
	t.pending.Store(net, block)
}

// ProvideExternalOutputData releases the stashed input block for net.
func (t *LinearTrainer) ProvideExternalOutputData(net api.Network, block api.DataBlock) {
	t.pending.Delete(net)
}

// RunTrainingIteration computes the squared-error gradient of one (x, y)
// block against net's current parameters and applies one SGD step, updating
// the weight and bias parameter groups concurrently on a worker pool.
func (t *LinearTrainer) RunTrainingIteration(net api.Network, opt api.Optimiser, reg *registry.Registry, handler api.ComputationHandler) error {
	blockAny, ok := t.pending.Load(net)
	if !ok {
		return appErrors.Wrap(appErrors.CodeBackendError, "no pending input block for network replica", nil)
	}
	block := blockAny.(api.DataBlock)

	lnet, ok := net.(*LinearNetwork)
	if !ok {
		return appErrors.Wrap(appErrors.CodeBackendError, "demo trainer requires *LinearNetwork", nil)
	}
	sgd, ok := opt.(*SGDOptimiser)
	if !ok {
		return appErrors.Wrap(appErrors.CodeBackendError, "demo trainer requires *SGDOptimiser", nil)
	}

	x := asVector(block["x"]).Data
	yTarget := asVector(block["y"]).Data[0]

	wAny, _ := lnet.Registry().Get("layers.linear.weights")
	bAny, _ := lnet.Registry().Get("layers.linear.bias")
	w := asVector(wAny).Data
	b := asVector(bAny).Data

	pred := b[0]
	for i, xi := range x {
		pred += xi * w[i]
	}
	residual := pred - yTarget

	wGrad := make([]float64, len(w))
	for i, xi := range x {
		wGrad[i] = residual * xi
	}
	bGrad := []float64{residual}

	type paramGroup struct {
		key   string
		param []float64
		grad  []float64
	}
	groups := []paramGroup{
		{key: "layers.linear.weights", param: w, grad: wGrad},
		{key: "layers.linear.bias", param: b, grad: bGrad},
	}

	pool := parallel.NewWorkerPool[paramGroup, struct{}](parallel.DefaultPoolConfig().WithWorkers(len(groups)))
	pool.ExecuteFunc(context.Background(), groups, func(ctx context.Context, g paramGroup) (struct{}, error) {
		sgd.step(g.key, g.param, g.grad)
		return struct{}{}, nil
	})

	reg.Set("loss", residual*residual)
	return nil
}
