package model

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// resetLinear re-initializes a linear layer in place: Kaiming-normal weights
// and zero bias.
func resetLinear[B tensor.Backend](l *nn.Linear[B]) {
	fillKaiming(l.Weight().Tensor().Data(), l.InFeatures())
	if bias := l.Bias(); bias != nil {
		clear(bias.Tensor().Data())
	}
}

func fillKaiming(data []float32, fanIn int) {
	std := math.Sqrt(2.0 / float64(fanIn))
	for i := range data {
		//nolint:gosec // Weight initialization is not security-critical.
		data[i] = float32(rand.NormFloat64() * std)
	}
}
