package model

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// Triplet loss defaults.
const (
	DefaultMargin = 1.0
	distanceEps   = 1e-6
)

// TripletMarginLoss computes
//
//	mean(max(0, ‖a−p+ε‖₂ − ‖a−n+ε‖₂ + margin))
//
// over a batch of embeddings, with ε = 1e-6 added to each difference before
// the norm. Every step is a tape-recorded tensor op, so the result can be
// back-propagated into the network.
type TripletMarginLoss[B tensor.Backend] struct {
	margin  float32
	backend B
}

// NewTripletMarginLoss creates the loss with the given margin.
func NewTripletMarginLoss[B tensor.Backend](margin float32, backend B) *TripletMarginLoss[B] {
	return &TripletMarginLoss[B]{margin: margin, backend: backend}
}

// Margin returns the configured margin.
func (l *TripletMarginLoss[B]) Margin() float32 {
	return l.margin
}

// Forward returns the scalar loss as a [1, 1] tensor.
//
// anchor, positive and negative must all be [N, D] with N >= 1.
func (l *TripletMarginLoss[B]) Forward(anchor, positive, negative *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := anchor.Shape()
	errdefs.CheckRank("loss anchor", shape, 2)
	n, d := shape[0], shape[1]
	if n < 1 {
		panic(&errdefs.ShapeError{Stage: "loss anchor", Want: []int{1, d}, Got: shape})
	}
	errdefs.CheckShape("loss positive", positive.Shape(), n, d)
	errdefs.CheckShape("loss negative", negative.Shape(), n, d)

	ones := tensor.Ones[float32](tensor.Shape{d, 1}, l.backend)
	eps := tensor.Full[float32](tensor.Shape{n, d}, distanceEps, l.backend)

	dap := l.distance(anchor, positive, eps, ones)
	dan := l.distance(anchor, negative, eps, ones)

	margin := tensor.Full[float32](tensor.Shape{n, 1}, l.margin, l.backend)
	hinge := nn.ReLUFunc(dap.Sub(dan).Add(margin))

	mean := tensor.Full[float32](tensor.Shape{1, n}, 1/float32(n), l.backend)
	return mean.MatMul(hinge)
}

// distance returns ‖x−y+eps‖₂ per row as [N, 1].
func (l *TripletMarginLoss[B]) distance(x, y, eps, ones *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	diff := x.Sub(y).Add(eps)
	return diff.Mul(diff).MatMul(ones).Sqrt()
}

// String returns a string representation of the loss.
func (l *TripletMarginLoss[B]) String() string {
	return fmt.Sprintf("TripletMarginLoss(margin=%g, p=2)", l.margin)
}

// SquaredDistances returns ‖x_i−y_i‖² for each of the rows of x and y,
// which are flat row-major [N, dim] buffers.
func SquaredDistances(x, y []float32, dim int) []float32 {
	if dim <= 0 || len(x) != len(y) || len(x)%dim != 0 {
		panic(fmt.Sprintf("squared distances: incompatible buffers len(x)=%d len(y)=%d dim=%d", len(x), len(y), dim))
	}
	out := make([]float32, len(x)/dim)
	for i := range out {
		var sum float32
		for j := i * dim; j < (i+1)*dim; j++ {
			delta := x[j] - y[j]
			sum += delta * delta
		}
		out[i] = sum
	}
	return out
}

// IsCorrect reports whether a triplet with squared distances dap and dan
// satisfies dap − dan + margin ≤ 0.
func IsCorrect(dap, dan, margin float32) bool {
	return dap-dan+margin <= 0
}

// CountCorrect counts the triplets in the flat [N, dim] embedding buffers
// for which the anchor-positive squared distance is at least margin smaller
// than the anchor-negative one.
func CountCorrect(anchor, positive, negative []float32, dim int, margin float32) int {
	dap := SquaredDistances(anchor, positive, dim)
	dan := SquaredDistances(anchor, negative, dim)
	correct := 0
	for i := range dap {
		if IsCorrect(dap[i], dan[i], margin) {
			correct++
		}
	}
	return correct
}
