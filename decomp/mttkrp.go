// Package decomp implements the compute core of sparse canonical-polyadic
// tensor decomposition: the MTTKRP kernels over the three sparse storage
// layouts, the tensor/model inner product, and the CP-ALS driver that
// alternates them to fit a rank-R model.
//
// The kernels share one contract and differ only in how they resolve
// concurrent writes to the output factor matrix:
//
//   - COO: every nonzero scatter-adds atomically into its output row
//   - permuted COO: nonzeros are walked in sorted order per row block, so
//     only the first and last row of each block need atomics
//   - row-indexed: one worker owns each output row, no atomics at all
//
// The variant is selected once per call from the concrete tensor type; the
// inner loops are free of dynamic dispatch.
package decomp

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ezoic/sparten/core/parallel"
	"github.com/ezoic/sparten/core/tensor"
	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// facBlockSize returns the component tile width for a given number of
// components. The ladder keeps the inner loops short and fixed-size; a
// trailing partial tile uses the runtime remainder.
func facBlockSize(nc int) int {
	switch {
	case nc == 1:
		return 1
	case nc == 2:
		return 2
	case nc <= 4:
		return 4
	case nc <= 8:
		return 8
	case nc <= 16:
		return 16
	default:
		return 32
	}
}

const (
	// mttkrpGrain is the nonzero block handed to one worker by the COO kernel.
	mttkrpGrain = 1024

	// rowBlockSize is the segmented-accumulation block of the permuted kernel.
	// The first and last row of each block may collide with neighbor blocks
	// and are flushed atomically; interior rows are exclusive to the block.
	rowBlockSize = 128

	// rowGrain is the output-row block handed to one worker by the
	// row-indexed kernel.
	rowGrain = 16
)

// Mttkrp computes the matricized-tensor-times-Khatri-Rao product of x with
// the factors of u for target mode n, overwriting v:
//
//	v[i,j] = sum_k [subs[k,n]=i] * vals[k] * w[j] * prod_{m!=n} U_m[subs[k,m],j]
//
// v must be pre-allocated with shape (x.Size(n), u.Ncomponents()). The
// storage layout of x selects the kernel variant; layouts with accelerators
// are completed on first use. The three variants agree up to floating-point
// summation order.
func Mttkrp(x tensor.SparseTensor, u *tensor.Ktensor, n int, v *tensor.FacMatrix) error {
	const op = "decomp.Mttkrp"
	if err := checkKernelArgs(op, x, u); err != nil {
		return err
	}
	if n < 0 || n >= x.Ndims() {
		return sparterrors.NewIndexError(op, n, x.Ndims())
	}
	nc := u.Ncomponents()
	for m := 0; m < x.Ndims(); m++ {
		if m != n && u.Factor(m).NRows() != x.Size(m) {
			return sparterrors.NewDimensionError(op, x.Size(m), u.Factor(m).NRows(), m)
		}
	}
	if v.NRows() != x.Size(n) {
		return sparterrors.NewDimensionError(op, x.Size(n), v.NRows(), n)
	}
	if v.NCols() != nc {
		return sparterrors.NewRankError(op, nc, v.NCols(), n)
	}

	v.Fill(0)

	// Select the kernel once per call; SptensorRow embeds SptensorPerm so it
	// must be matched first.
	switch xt := x.(type) {
	case *tensor.SptensorRow:
		xt.FillComplete()
		mttkrpRow(xt, u, n, v)
	case *tensor.SptensorPerm:
		xt.FillComplete()
		mttkrpPerm(xt, u, n, v)
	default:
		mttkrpCoo(x, u, n, v)
	}
	return nil
}

// checkKernelArgs validates the shape preconditions shared by Mttkrp and
// Innerprod.
func checkKernelArgs(op string, x tensor.SparseTensor, u *tensor.Ktensor) error {
	if !u.IsConsistent() {
		return sparterrors.NewRankError(op, u.Ncomponents(), -1, -1)
	}
	if x.Ndims() != u.Ndims() {
		return sparterrors.NewDimensionError(op, x.Ndims(), u.Ndims(), 0)
	}
	return nil
}

// mttkrpCoo scatter-adds the per-nonzero Hadamard row products into v with
// atomic adds; any nonzero may target any output row.
func mttkrpCoo(x tensor.SparseTensor, u *tensor.Ktensor, n int, v *tensor.FacMatrix) {
	nd := x.Ndims()
	nc := u.Ncomponents()
	bs := facBlockSize(nc)
	lambda := u.Weights()

	parallel.For(x.Nnz(), mttkrpGrain, func(lo, hi int) {
		tmp := make([]float64, bs)
		for i := lo; i < hi; i++ {
			xv := x.Value(i)
			out := v.Row(x.Subscript(i, n))
			for j0 := 0; j0 < nc; j0 += bs {
				nj := bs
				if j0+nj > nc {
					nj = nc - j0
				}
				floats.ScaleTo(tmp[:nj], xv, lambda[j0:j0+nj])
				for m := 0; m < nd; m++ {
					if m == n {
						continue
					}
					row := u.Factor(m).Row(x.Subscript(i, m))
					floats.Mul(tmp[:nj], row[j0:j0+nj])
				}
				for jj := 0; jj < nj; jj++ {
					parallel.AddFloat64(&out[j0+jj], tmp[jj])
				}
			}
		}
	})
}

// mttkrpPerm walks the mode-n permutation so consecutive nonzeros tend to
// share a target row, accumulating each run into a local buffer and flushing
// once per row. Only the first and last row of a block can collide with a
// neighboring block and take the atomic path.
func mttkrpPerm(x *tensor.SptensorPerm, u *tensor.Ktensor, n int, v *tensor.FacMatrix) {
	nd := x.Ndims()
	nc := u.Ncomponents()
	bs := facBlockSize(nc)
	lambda := u.Weights()

	const invalidRow = -1

	parallel.For(x.Nnz(), rowBlockSize, func(lo, hi int) {
		val := make([]float64, bs)
		tmp := make([]float64, bs)
		for j0 := 0; j0 < nc; j0 += bs {
			nj := bs
			if j0+nj > nc {
				nj = nc - j0
			}

			rowPrev := invalidRow
			firstRow := invalidRow
			for jj := 0; jj < nj; jj++ {
				val[jj] = 0
			}

			flush := func(row int) {
				out := v.Row(row)
				if row == firstRow {
					for jj := 0; jj < nj; jj++ {
						parallel.AddFloat64(&out[j0+jj], val[jj])
						val[jj] = 0
					}
				} else {
					for jj := 0; jj < nj; jj++ {
						out[j0+jj] += val[jj]
						val[jj] = 0
					}
				}
			}

			for i := lo; i < hi; i++ {
				p := x.Perm(i, n)
				row := x.Subscript(p, n)
				if i == lo {
					firstRow = row
				}
				if row != rowPrev {
					if rowPrev != invalidRow {
						flush(rowPrev)
					}
					rowPrev = row
				}

				xv := x.Value(p)
				floats.ScaleTo(tmp[:nj], xv, lambda[j0:j0+nj])
				for m := 0; m < nd; m++ {
					if m == n {
						continue
					}
					frow := u.Factor(m).Row(x.Subscript(p, m))
					floats.Mul(tmp[:nj], frow[j0:j0+nj])
				}
				floats.Add(val[:nj], tmp[:nj])
			}

			// The last row may continue into the next block, so it always
			// takes the atomic path.
			if rowPrev != invalidRow {
				out := v.Row(rowPrev)
				for jj := 0; jj < nj; jj++ {
					parallel.AddFloat64(&out[j0+jj], val[jj])
					val[jj] = 0
				}
			}
		}
	})
}

// mttkrpRow parallelizes over output rows; each worker owns its rows
// exclusively, so all accumulation is plain.
func mttkrpRow(x *tensor.SptensorRow, u *tensor.Ktensor, n int, v *tensor.FacMatrix) {
	nd := x.Ndims()
	nc := u.Ncomponents()
	bs := facBlockSize(nc)
	lambda := u.Weights()

	parallel.For(x.Size(n), rowGrain, func(lo, hi int) {
		tmp := make([]float64, bs)
		for r := lo; r < hi; r++ {
			iBegin := x.PermRowBegin(r, n)
			iEnd := x.PermRowBegin(r+1, n)
			if iEnd == iBegin {
				continue
			}
			out := v.Row(r)
			for i := iBegin; i < iEnd; i++ {
				p := x.Perm(i, n)
				xv := x.Value(p)
				for j0 := 0; j0 < nc; j0 += bs {
					nj := bs
					if j0+nj > nc {
						nj = nc - j0
					}
					floats.ScaleTo(tmp[:nj], xv, lambda[j0:j0+nj])
					for m := 0; m < nd; m++ {
						if m == n {
							continue
						}
						frow := u.Factor(m).Row(x.Subscript(p, m))
						floats.Mul(tmp[:nj], frow[j0:j0+nj])
					}
					floats.Add(out[j0:j0+nj], tmp[:nj])
				}
			}
		}
	})
}
