package model

import (
	"path/filepath"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bcnn/internal/errdefs"
)

type testBackend = *autodiff.Backend[*cpu.Backend]

// tinyArch keeps the conv stack intact but shrinks everything else so the
// network fits comfortably in a unit test (feature map 1x1).
func tinyArch() Arch {
	return Arch{ImageSize: 67, HiddenDim: 32, EmbeddingDim: 8, DropoutRate: 0.5}
}

func newTinyNet(t *testing.T, mode FreezeMode) (*BilinearAlexNet[testBackend], testBackend) {
	t.Helper()
	backend := autodiff.New(cpu.New())
	net, err := NewBilinearAlexNet(mode, tinyArch(), backend)
	require.NoError(t, err)
	return net, backend
}

func randomImages(backend testBackend, n, size int) *tensor.Tensor[float32, testBackend] {
	return tensor.Randn[float32](tensor.Shape{n, 3, size, size}, backend)
}

func TestArchGeometry(t *testing.T) {
	def := DefaultArch()
	assert.Equal(t, 6, def.FeatureSize())
	assert.Equal(t, 9216, def.FeatureDim())
	assert.Equal(t, 262144, def.PooledDim())
	require.NoError(t, def.Validate())

	assert.Equal(t, 1, tinyArch().FeatureSize())
	assert.Equal(t, 1, Arch{ImageSize: minImageSize, HiddenDim: 1, EmbeddingDim: 1}.FeatureSize())

	tests := []struct {
		name string
		arch Arch
	}{
		{"small image", Arch{ImageSize: 62, HiddenDim: 8, EmbeddingDim: 4}},
		{"zero hidden", Arch{ImageSize: 227, HiddenDim: 0, EmbeddingDim: 4}},
		{"zero embedding", Arch{ImageSize: 227, HiddenDim: 8, EmbeddingDim: 0}},
		{"dropout one", Arch{ImageSize: 227, HiddenDim: 8, EmbeddingDim: 4, DropoutRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.arch.Validate(), errdefs.ErrInvalidConfiguration)
		})
	}
}

func TestParseFreezeMode(t *testing.T) {
	for _, name := range []string{"none", "part", "all"} {
		mode, err := ParseFreezeMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, mode.String())
	}

	mode, err := ParseFreezeMode("PART")
	require.NoError(t, err)
	assert.Equal(t, FreezePart, mode)

	_, err = ParseFreezeMode("bogus")
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "bogus")

	var m FreezeMode
	require.NoError(t, m.UnmarshalText([]byte("all")))
	assert.Equal(t, FreezeAll, m)
	text, err := FreezeAll.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "all", string(text))

	assert.Equal(t, "FreezeMode(7)", FreezeMode(7).String())
}

func TestNewBilinearAlexNet_InvalidInputs(t *testing.T) {
	backend := autodiff.New(cpu.New())

	_, err := NewBilinearAlexNet(FreezeMode(9), tinyArch(), backend)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)

	_, err = NewBilinearAlexNet(FreezePart, Arch{ImageSize: 32, HiddenDim: 8, EmbeddingDim: 4}, backend)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
}

func TestForward_Shapes(t *testing.T) {
	for _, mode := range []FreezeMode{FreezeNone, FreezePart, FreezeAll} {
		t.Run(mode.String(), func(t *testing.T) {
			net, backend := newTinyNet(t, mode)
			net.Eval()

			for _, n := range []int{1, 3} {
				out := net.Forward(randomImages(backend, n, 67))
				assert.Equal(t, tensor.Shape{n, 8}, out.Shape())
			}
		})
	}
}

func TestForward_FullSize(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size network allocates ~1GB")
	}
	backend := autodiff.New(cpu.New())
	net, err := NewBilinearAlexNet(FreezeAll, DefaultArch(), backend)
	require.NoError(t, err)
	net.Eval()

	out := net.Forward(randomImages(backend, 1, 227))
	assert.Equal(t, tensor.Shape{1, 512}, out.Shape())
}

func TestForward_ShapeViolation(t *testing.T) {
	net, backend := newTinyNet(t, FreezeAll)

	tests := []struct {
		name  string
		input *tensor.Tensor[float32, testBackend]
	}{
		{"wrong size", randomImages(backend, 1, 70)},
		{"wrong channels", tensor.Randn[float32](tensor.Shape{1, 1, 67, 67}, backend)},
		{"wrong rank", tensor.Randn[float32](tensor.Shape{3, 67, 67}, backend)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r)
				err, ok := r.(error)
				require.True(t, ok)
				assert.ErrorIs(t, err, errdefs.ErrShapeViolation)
			}()
			net.Forward(tt.input)
		})
	}
}

func TestTrainableParameters(t *testing.T) {
	tests := []struct {
		mode FreezeMode
		want int
	}{
		// 5 convs + 3 linears in bfc + fc, each weight and bias.
		{FreezeNone, 18},
		{FreezePart, 4},
		{FreezeAll, 0},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			net, _ := newTinyNet(t, tt.mode)
			assert.Len(t, net.Parameters(), 18)
			assert.Len(t, net.TrainableParameters(), tt.want)
		})
	}

	net, _ := newTinyNet(t, FreezePart)
	named := net.namedParameters()
	trainable := net.TrainableParameters()
	assert.Same(t, named["bfc.6.weight"], trainable[0])
	assert.Same(t, named["bfc.6.bias"], trainable[1])
	assert.Same(t, named["fc.weight"], trainable[2])
	assert.Same(t, named["fc.bias"], trainable[3])
}

// TestFreeze_GradientFlow runs a backward pass and checks which parameters
// receive gradients under each trainable freeze mode.
func TestFreeze_GradientFlow(t *testing.T) {
	tests := []struct {
		mode    FreezeMode
		trained []string
		frozen  []string
	}{
		{
			mode:    FreezePart,
			trained: []string{"bfc.6.weight", "bfc.6.bias", "fc.weight", "fc.bias"},
			frozen:  []string{"features.0.weight", "features.10.bias", "bfc.1.weight", "bfc.4.bias"},
		},
		{
			mode:    FreezeNone,
			trained: []string{"features.0.weight", "features.10.bias", "bfc.1.weight", "bfc.4.bias", "bfc.6.weight", "fc.weight"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			net, backend := newTinyNet(t, tt.mode)
			net.Eval()
			criterion := NewTripletMarginLoss(DefaultMargin, backend)

			backend.Tape().StartRecording()
			defer backend.Tape().Clear()

			loss := criterion.Forward(
				net.Forward(randomImages(backend, 2, 67)),
				net.Forward(randomImages(backend, 2, 67)),
				net.Forward(randomImages(backend, 2, 67)),
			)
			outputGrad, err := tensor.NewRaw(loss.Shape(), loss.DType(), backend.Device())
			require.NoError(t, err)
			outputGrad.AsFloat32()[0] = 1
			grads := backend.Tape().Backward(outputGrad, backend)

			named := net.namedParameters()
			for _, name := range tt.trained {
				assert.Contains(t, grads, named[name].Tensor().Raw(), name)
			}
			for _, name := range tt.frozen {
				assert.NotContains(t, grads, named[name].Tensor().Raw(), name)
			}
		})
	}
}

func TestKaimingInit(t *testing.T) {
	net, _ := newTinyNet(t, FreezePart)
	named := net.namedParameters()

	for _, name := range []string{"bfc.6.bias", "fc.bias"} {
		for _, v := range named[name].Tensor().Data() {
			require.Zero(t, v, name)
		}
	}

	// fc has 64 inputs, so std = sqrt(2/64) = 0.177.
	w := named["fc.weight"].Tensor().Data()
	var sum, sq float64
	for _, v := range w {
		sum += float64(v)
		sq += float64(v) * float64(v)
	}
	mean := sum / float64(len(w))
	variance := sq/float64(len(w)) - mean*mean
	assert.InDelta(t, 2.0/64.0, variance, 0.02)
}

func TestStateDict_Names(t *testing.T) {
	net, _ := newTinyNet(t, FreezeNone)
	sd := net.StateDict()

	want := []string{
		"features.0.weight", "features.0.bias",
		"features.3.weight", "features.3.bias",
		"features.6.weight", "features.6.bias",
		"features.8.weight", "features.8.bias",
		"features.10.weight", "features.10.bias",
		"bfc.1.weight", "bfc.1.bias",
		"bfc.4.weight", "bfc.4.bias",
		"bfc.6.weight", "bfc.6.bias",
		"fc.weight", "fc.bias",
	}
	assert.Len(t, sd, len(want))
	for _, name := range want {
		assert.Contains(t, sd, name)
	}
	assert.Equal(t, tensor.Shape{64, 3, 11, 11}, sd["features.0.weight"].Shape())
	assert.Equal(t, tensor.Shape{32, 256}, sd["bfc.1.weight"].Shape())
	assert.Equal(t, tensor.Shape{8, 64}, sd["fc.weight"].Shape())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	src, backend := newTinyNet(t, FreezePart)
	path := filepath.Join(t.TempDir(), "bcnn.born")
	require.NoError(t, nn.Save[testBackend](src, path, "BilinearAlexNet", map[string]string{"freeze": "part"}))

	dst, err := NewBilinearAlexNet(FreezePart, tinyArch(), backend)
	require.NoError(t, err)
	header, err := nn.Load[testBackend](path, backend, dst)
	require.NoError(t, err)
	assert.Equal(t, "part", header.Metadata["freeze"])

	want := src.StateDict()
	for name, raw := range dst.StateDict() {
		assert.Equal(t, want[name].AsFloat32(), raw.AsFloat32(), name)
	}
}

func TestLoadStateDict_Strict(t *testing.T) {
	net, _ := newTinyNet(t, FreezePart)

	sd := net.StateDict()
	delete(sd, "fc.bias")
	assert.ErrorContains(t, net.LoadStateDict(sd), "missing")

	sd = net.StateDict()
	sd["extra.weight"] = sd["fc.bias"]
	assert.ErrorContains(t, net.LoadStateDict(sd), "unexpected")

	sd = net.StateDict()
	sd["fc.bias"] = sd["bfc.6.weight"]
	assert.ErrorContains(t, net.LoadStateDict(sd), "shape mismatch")
}

func TestString(t *testing.T) {
	net, _ := newTinyNet(t, FreezePart)
	s := net.String()
	assert.Contains(t, s, "freeze=part")
	assert.Contains(t, s, "Dropout(p=0.5)")
	assert.Contains(t, s, "Linear(in=64, out=8)")
	assert.Contains(t, s, "ReLU()")
}
