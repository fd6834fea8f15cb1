package decomp

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ezoic/sparten/core/parallel"
	"github.com/ezoic/sparten/core/tensor"
	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// innerprodRowBlock is the nonzero block processed by one worker before its
// partial enters the grand reduction.
const innerprodRowBlock = 1024

// Innerprod returns the inner product of the sparse tensor x with the model
// defined by the factors of u and the weight vector lambda:
//
//	sum_k vals[k] * sum_j lambda[j] * prod_m U_m[subs[k,m],j]
//
// When lambda is nil the ktensor's own weights are used. The reduction runs
// in three levels (component tile, nonzero block, grand total) with a fixed
// combine order per parallel shape, so results are reproducible for a fixed
// configuration.
func Innerprod(x tensor.SparseTensor, u *tensor.Ktensor, lambda []float64) (float64, error) {
	const op = "decomp.Innerprod"
	if err := checkKernelArgs(op, x, u); err != nil {
		return 0, err
	}
	nd := x.Ndims()
	nc := u.Ncomponents()
	for m := 0; m < nd; m++ {
		if u.Factor(m).NRows() != x.Size(m) {
			return 0, sparterrors.NewDimensionError(op, x.Size(m), u.Factor(m).NRows(), m)
		}
	}
	if lambda == nil {
		lambda = u.Weights()
	}
	if len(lambda) != nc {
		return 0, sparterrors.NewRankError(op, nc, len(lambda), -1)
	}

	bs := facBlockSize(nc)
	d := parallel.ReduceSum(x.Nnz(), innerprodRowBlock, func(lo, hi int) float64 {
		tmp := make([]float64, bs)
		team := 0.0
		for i := lo; i < hi; i++ {
			xv := x.Value(i)
			for j0 := 0; j0 < nc; j0 += bs {
				nj := bs
				if j0+nj > nc {
					nj = nc - j0
				}
				floats.ScaleTo(tmp[:nj], xv, lambda[j0:j0+nj])
				for m := 0; m < nd; m++ {
					row := u.Factor(m).Row(x.Subscript(i, m))
					floats.Mul(tmp[:nj], row[j0:j0+nj])
				}
				team += floats.Sum(tmp[:nj])
			}
		}
		return team
	})
	return d, nil
}
