package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Dropout zeroes each element with probability p during training and scales
// the survivors by 1/(1-p). In evaluation mode it is the identity.
//
// The mask is an ordinary tensor multiplied into the input, so the
// operation is recorded on the tape and gradients flow through kept units.
type Dropout[B tensor.Backend] struct {
	p        float32
	training bool
	backend  B
}

// NewDropout creates a dropout layer in training mode.
func NewDropout[B tensor.Backend](p float32, backend B) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout: probability must be in [0, 1), got %g", p))
	}
	return &Dropout[B]{p: p, training: true, backend: backend}
}

// Forward applies the dropout mask.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	scale := 1 / (1 - d.p)
	mask := make([]float32, input.NumElements())
	for i := range mask {
		//nolint:gosec // Dropout masks are not security-critical.
		if rand.Float32() >= d.p {
			mask[i] = scale
		}
	}

	m, err := tensor.FromSlice(mask, input.Shape(), d.backend)
	if err != nil {
		panic(fmt.Sprintf("dropout: %v", err))
	}
	return input.Mul(m)
}

// Parameters returns nil; dropout has no trainable parameters.
func (d *Dropout[B]) Parameters() []*nn.Parameter[B] {
	return nil
}

// SetTraining switches between training (masking) and evaluation (identity).
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// String returns a string representation of the layer.
func (d *Dropout[B]) String() string {
	return fmt.Sprintf("Dropout(p=%g)", d.p)
}
