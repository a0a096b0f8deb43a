package model

import (
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// BilinearPool maps x [N, D] to the flattened per-sample outer products
// [N, D*D], where row i holds xᵢᵀxᵢ in row-major order.
//
// The outer product is a broadcasting multiply [N, D, 1] * [N, 1, D], so it
// is recorded on the tape like any other elementwise op.
func BilinearPool[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	errdefs.CheckRank("bilinear input", shape, 2)
	n, d := shape[0], shape[1]

	col := x.Reshape(n, d, 1)
	row := x.Reshape(n, 1, d)
	return col.Mul(row).Reshape(n, d*d)
}
