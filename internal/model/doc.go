// Package model implements the bilinear AlexNet embedding network.
//
// The network maps a batch of RGB images [N, 3, S, S] to embeddings [N, E]:
//
//	features (AlexNet conv stack)  -> [N, 256, F, F] -> flatten [N, 256*F*F]
//	bfc (AlexNet classifier, last layer replaced) -> [N, D]
//	bilinear pooling (per-sample outer product)   -> [N, D*D]
//	fc projection                                 -> [N, E]
//
// With the default architecture S=227, F=6, D=512 and E=512.
//
// Freeze modes choose, once at construction, which parameters train:
//
//	FreezeNone  every parameter
//	FreezePart  last bfc layer and fc
//	FreezeAll   nothing (inference only)
//
// Frozen segments run with the autodiff tape paused, so they never receive
// gradients. The package also provides the triplet margin loss used for
// training and the triplet accuracy rule used for evaluation.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net, err := model.NewBilinearAlexNet(model.FreezePart, model.DefaultArch(), backend)
//	if err != nil {
//	    return err
//	}
//	emb := net.Forward(images) // [N, 512]
package model

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
)

// Backend is the compute backend the network runs on.
//
// It must record operations on a gradient tape, which in practice means an
// autodiff backend wrapping CPU or WebGPU:
//
//	backend := autodiff.New(cpu.New())
type Backend interface {
	tensor.Backend
	Tape() *autodiff.GradientTape
}
