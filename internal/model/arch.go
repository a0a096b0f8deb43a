package model

import "github.com/born-ml/bcnn/internal/errdefs"

// AlexNet feature extractor geometry. Channel widths follow torchvision's
// alexnet().features.
const (
	inputChannels   = 3
	featureChannels = 256

	conv1Kernel  = 11
	conv1Stride  = 4
	conv1Padding = 2
	poolKernel   = 3
	poolStride   = 2

	// minImageSize is the smallest input for which the last pooling layer
	// still yields a 1x1 feature map.
	minImageSize = 63
)

// Arch holds the tunable dimensions of the network.
type Arch struct {
	ImageSize    int     `yaml:"image_size"`    // Input height and width (227)
	HiddenDim    int     `yaml:"hidden_dim"`    // Width of the two hidden bfc layers (4096)
	EmbeddingDim int     `yaml:"embedding_dim"` // Width of bfc output and final embedding (512)
	DropoutRate  float32 `yaml:"dropout_rate"`  // Dropout probability inside bfc (0.5)
}

// DefaultArch returns the reference architecture: 227x227 inputs, 4096-wide
// hidden layers and 512-dimensional embeddings.
func DefaultArch() Arch {
	return Arch{
		ImageSize:    227,
		HiddenDim:    4096,
		EmbeddingDim: 512,
		DropoutRate:  0.5,
	}
}

// Validate checks that the dimensions produce a well-formed network.
func (a Arch) Validate() error {
	switch {
	case a.ImageSize < minImageSize:
		return errdefs.Invalid("image size %d is below the minimum of %d", a.ImageSize, minImageSize)
	case a.HiddenDim <= 0:
		return errdefs.Invalid("hidden dim must be positive, got %d", a.HiddenDim)
	case a.EmbeddingDim <= 0:
		return errdefs.Invalid("embedding dim must be positive, got %d", a.EmbeddingDim)
	case a.DropoutRate < 0 || a.DropoutRate >= 1:
		return errdefs.Invalid("dropout rate must be in [0, 1), got %g", a.DropoutRate)
	}
	return nil
}

// FeatureSize returns the spatial size of the feature map (6 for 227 inputs).
func (a Arch) FeatureSize() int {
	s := (a.ImageSize+2*conv1Padding-conv1Kernel)/conv1Stride + 1
	for range 3 {
		s = (s-poolKernel)/poolStride + 1
	}
	return s
}

// FeatureDim returns the flattened feature length (9216 for 227 inputs).
func (a Arch) FeatureDim() int {
	f := a.FeatureSize()
	return featureChannels * f * f
}

// PooledDim returns the length of the bilinear-pooled vector (262144 by default).
func (a Arch) PooledDim() int {
	return a.EmbeddingDim * a.EmbeddingDim
}
