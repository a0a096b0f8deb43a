package model

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// bfcLast indexes the replaced final layer of the torchvision classifier:
// Dropout, Linear, ReLU, Dropout, Linear, ReLU, Linear.
const bfcLast = 6

// BilinearAlexNet is the bilinear embedding network.
//
// Architecture (default dimensions):
//
//	Input:     [N, 3, 227, 227]
//	features:  AlexNet conv stack          -> [N, 256, 6, 6] -> [N, 9216]
//	bfc:       9216 -> 4096 -> 4096 -> 512 (dropout + ReLU between)
//	bilinear:  outer product per sample    -> [N, 262144]
//	fc:        262144 -> 512
//
// The freeze mode is fixed at construction; there is no way to change it on
// a live network.
type BilinearAlexNet[B Backend] struct {
	arch     Arch
	mode     FreezeMode
	features *sequence[B]
	bfc      *sequence[B]
	fc       *nn.Linear[B]
	dropouts []*Dropout[B]
	backend  B
}

// NewBilinearAlexNet builds the network with freshly initialized weights.
//
// The last bfc layer and fc use Kaiming-normal weights with zero bias; the
// remaining layers keep Born's Xavier initialization until a backbone or a
// checkpoint is loaded.
//
// Returns an error wrapping errdefs.ErrInvalidConfiguration for an unknown
// freeze mode or an invalid architecture.
func NewBilinearAlexNet[B Backend](mode FreezeMode, arch Arch, backend B) (*BilinearAlexNet[B], error) {
	if !mode.Valid() {
		return nil, errdefs.Invalid("unavailable freeze option %d", int(mode))
	}
	if err := arch.Validate(); err != nil {
		return nil, err
	}

	// Layer indices match torchvision's AlexNet so pretrained state dicts
	// load by name: convolutions sit at 0, 3, 6, 8 and 10.
	features := newSequence[B]("features",
		nn.NewConv2D(inputChannels, 64, conv1Kernel, conv1Kernel, conv1Stride, conv1Padding, true, backend),
		nn.NewReLU[B](),
		nn.NewMaxPool2D(poolKernel, poolStride, backend),
		nn.NewConv2D(64, 192, 5, 5, 1, 2, true, backend),
		nn.NewReLU[B](),
		nn.NewMaxPool2D(poolKernel, poolStride, backend),
		nn.NewConv2D(192, 384, 3, 3, 1, 1, true, backend),
		nn.NewReLU[B](),
		nn.NewConv2D(384, 256, 3, 3, 1, 1, true, backend),
		nn.NewReLU[B](),
		nn.NewConv2D(256, featureChannels, 3, 3, 1, 1, true, backend),
		nn.NewReLU[B](),
		nn.NewMaxPool2D(poolKernel, poolStride, backend),
	)

	drop1 := NewDropout(arch.DropoutRate, backend)
	drop2 := NewDropout(arch.DropoutRate, backend)
	last := nn.NewLinear(arch.HiddenDim, arch.EmbeddingDim, backend)
	resetLinear(last)

	bfc := newSequence[B]("bfc",
		drop1,
		nn.NewLinear(arch.FeatureDim(), arch.HiddenDim, backend),
		nn.NewReLU[B](),
		drop2,
		nn.NewLinear(arch.HiddenDim, arch.HiddenDim, backend),
		nn.NewReLU[B](),
		last,
	)

	fc := nn.NewLinear(arch.PooledDim(), arch.EmbeddingDim, backend)
	resetLinear(fc)

	return &BilinearAlexNet[B]{
		arch:     arch,
		mode:     mode,
		features: features,
		bfc:      bfc,
		fc:       fc,
		dropouts: []*Dropout[B]{drop1, drop2},
		backend:  backend,
	}, nil
}

// Forward maps images [N, 3, S, S] to embeddings [N, EmbeddingDim].
//
// Shape violations at the input, after the feature extractor, after bfc,
// after pooling and at the output panic with *errdefs.ShapeError.
func (m *BilinearAlexNet[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	errdefs.CheckRank("input", shape, 4)
	n := shape[0]
	if n < 1 {
		panic(&errdefs.ShapeError{Stage: "input", Want: []int{1, inputChannels, m.arch.ImageSize, m.arch.ImageSize}, Got: shape})
	}
	errdefs.CheckShape("input", shape, n, inputChannels, m.arch.ImageSize, m.arch.ImageSize)

	var x *tensor.Tensor[float32, B]
	m.record(m.mode.trainsFeatures(), func() {
		x = m.features.Forward(input)
	})
	fs := m.arch.FeatureSize()
	errdefs.CheckShape("features", x.Shape(), n, featureChannels, fs, fs)

	m.record(m.mode.trainsHeadBody(), func() {
		x = x.Reshape(n, m.arch.FeatureDim())
		x = m.bfc.forwardRange(x, 0, bfcLast)
	})

	d := m.arch.EmbeddingDim
	m.record(m.mode.trainsProjection(), func() {
		x = m.bfc.forwardRange(x, bfcLast, bfcLast+1)
		errdefs.CheckShape("bfc", x.Shape(), n, d)

		x = BilinearPool(x)
		errdefs.CheckShape("bilinear", x.Shape(), n, d*d)

		x = m.fc.Forward(x)
	})
	errdefs.CheckShape("embedding", x.Shape(), n, d)

	return x
}

// record runs fn with tape recording paused unless trainable is set.
func (m *BilinearAlexNet[B]) record(trainable bool, fn func()) {
	tape := m.backend.Tape()
	if trainable || !tape.IsRecording() {
		fn()
		return
	}
	tape.StopRecording()
	defer tape.StartRecording()
	fn()
}

// Parameters returns all parameters in state-dict order: features, bfc, fc.
func (m *BilinearAlexNet[B]) Parameters() []*nn.Parameter[B] {
	params := m.features.Parameters()
	params = append(params, m.bfc.Parameters()...)
	return append(params, m.fc.Parameters()...)
}

// TrainableParameters returns the parameters the freeze mode leaves open to
// updates. The result is empty for FreezeAll.
func (m *BilinearAlexNet[B]) TrainableParameters() []*nn.Parameter[B] {
	switch m.mode {
	case FreezeNone:
		return m.Parameters()
	case FreezePart:
		params := m.bfc.last().Parameters()
		return append(params, m.fc.Parameters()...)
	default:
		return []*nn.Parameter[B]{}
	}
}

// FreezeMode returns the mode fixed at construction.
func (m *BilinearAlexNet[B]) FreezeMode() FreezeMode {
	return m.mode
}

// Arch returns the network dimensions.
func (m *BilinearAlexNet[B]) Arch() Arch {
	return m.arch
}

// Train puts dropout layers into training mode.
func (m *BilinearAlexNet[B]) Train() {
	for _, d := range m.dropouts {
		d.SetTraining(true)
	}
}

// Eval puts dropout layers into evaluation mode.
func (m *BilinearAlexNet[B]) Eval() {
	for _, d := range m.dropouts {
		d.SetTraining(false)
	}
}

// namedParameters maps state-dict keys to parameters.
func (m *BilinearAlexNet[B]) namedParameters() map[string]*nn.Parameter[B] {
	named := make(map[string]*nn.Parameter[B])
	m.features.namedParameters(named)
	m.bfc.namedParameters(named)
	named["fc.weight"] = m.fc.Weight()
	named["fc.bias"] = m.fc.Bias()
	return named
}

// StateDict returns parameter tensors keyed by torchvision-style names
// ("features.0.weight", "bfc.6.bias", "fc.weight", ...).
func (m *BilinearAlexNet[B]) StateDict() map[string]*tensor.RawTensor {
	named := m.namedParameters()
	stateDict := make(map[string]*tensor.RawTensor, len(named))
	for name, p := range named {
		stateDict[name] = p.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict copies parameter values from stateDict.
//
// Every parameter must be present with a matching shape and float32 dtype,
// and no unknown keys are accepted.
func (m *BilinearAlexNet[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	named := m.namedParameters()
	for name := range stateDict {
		if _, ok := named[name]; !ok {
			return fmt.Errorf("unexpected key %q in state dict", name)
		}
	}
	for name, p := range named {
		raw, ok := stateDict[name]
		if !ok {
			return fmt.Errorf("missing %q in state dict", name)
		}
		if err := copyInto(p, raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// copyInto overwrites the parameter data with raw after validating it.
func copyInto[B tensor.Backend](p *nn.Parameter[B], raw *tensor.RawTensor) error {
	want := p.Tensor().Shape()
	if !raw.Shape().Equal(want) {
		return fmt.Errorf("shape mismatch: expected %v, got %v", want, raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("dtype mismatch: expected float32, got %v", raw.DType())
	}
	copy(p.Tensor().Data(), raw.AsFloat32())
	return nil
}

// String returns a string representation of the network.
func (m *BilinearAlexNet[B]) String() string {
	return fmt.Sprintf("BilinearAlexNet(freeze=%s\n  %s\n  %s\n  fc: %s\n)",
		m.mode, m.features, m.bfc, describe[B](m.fc))
}
