package model

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// layer is the subset of nn.Module every building block implements.
type layer[B tensor.Backend] interface {
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Parameters() []*nn.Parameter[B]
}

// paramSuffixes names a layer's parameters by position: Conv2D and Linear
// both return [weight, bias].
var paramSuffixes = [...]string{"weight", "bias"}

// sequence is an indexed chain of layers. Parameter names follow the
// "<prefix>.<index>.<weight|bias>" convention, so state dicts line up with
// torchvision's AlexNet.
type sequence[B tensor.Backend] struct {
	prefix string
	layers []layer[B]
}

func newSequence[B tensor.Backend](prefix string, layers ...layer[B]) *sequence[B] {
	return &sequence[B]{prefix: prefix, layers: layers}
}

// Forward runs every layer in order.
func (s *sequence[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return s.forwardRange(x, 0, len(s.layers))
}

// forwardRange runs layers[from:to].
func (s *sequence[B]) forwardRange(x *tensor.Tensor[float32, B], from, to int) *tensor.Tensor[float32, B] {
	for _, l := range s.layers[from:to] {
		x = l.Forward(x)
	}
	return x
}

// Parameters returns the parameters of all layers in order.
func (s *sequence[B]) Parameters() []*nn.Parameter[B] {
	return s.parametersRange(0, len(s.layers))
}

func (s *sequence[B]) parametersRange(from, to int) []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, l := range s.layers[from:to] {
		params = append(params, l.Parameters()...)
	}
	return params
}

// namedParameters adds "<prefix>.<i>.<suffix>" entries to dst.
func (s *sequence[B]) namedParameters(dst map[string]*nn.Parameter[B]) {
	for i, l := range s.layers {
		for j, p := range l.Parameters() {
			dst[fmt.Sprintf("%s.%d.%s", s.prefix, i, paramSuffixes[j])] = p
		}
	}
}

// last returns the final layer.
func (s *sequence[B]) last() layer[B] {
	return s.layers[len(s.layers)-1]
}

// String lists the layers one per line.
func (s *sequence[B]) String() string {
	out := s.prefix + ": Sequential(\n"
	for i, l := range s.layers {
		out += fmt.Sprintf("    (%d): %s\n", i, describe(l))
	}
	return out + "  )"
}

func describe[B tensor.Backend](l layer[B]) string {
	switch v := l.(type) {
	case *nn.Linear[B]:
		return fmt.Sprintf("Linear(in=%d, out=%d)", v.InFeatures(), v.OutFeatures())
	case fmt.Stringer:
		return v.String()
	}
	// "*nn.ReLU[...]" -> "ReLU()".
	name := fmt.Sprintf("%T", l)
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name + "()"
}
