package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"

	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// SparseTensor is the read-side contract shared by the three sparse storage
// layouts. FillComplete builds any layout-specific accelerators; it is
// idempotent and must be called before accelerator accessors are used.
type SparseTensor interface {
	Ndims() int
	Nnz() int
	Size(d int) int
	Sizes() []int
	Subscript(i, d int) int
	Value(i int) float64
	FillComplete()
	Norm() float64
}

// Sptensor is a sparse tensor in coordinate (COO) storage: each nonzero
// carries its full subscript tuple. The order of nonzeros is arbitrary and
// duplicate subscripts are permitted; duplicates sum when the tensor is used
// in kernels.
type Sptensor struct {
	sizes []int
	subs  []int // nnz x ndims, row-major
	vals  []float64
}

// NewSptensor creates a COO sparse tensor over the given mode sizes. subs
// holds one subscript tuple per nonzero; every subscript must be inside its
// mode size.
func NewSptensor(dims []int, subs [][]int, vals []float64) (*Sptensor, error) {
	const op = "tensor.NewSptensor"
	nd := len(dims)
	if nd < 1 {
		return nil, sparterrors.NewValueError(op, "at least one mode is required")
	}
	for d, sz := range dims {
		if sz < 1 {
			return nil, sparterrors.NewIndexError(op, sz, d)
		}
	}
	if len(subs) != len(vals) {
		return nil, sparterrors.NewDimensionError(op, len(vals), len(subs), 0)
	}

	flat := make([]int, len(subs)*nd)
	for i, row := range subs {
		if len(row) != nd {
			return nil, sparterrors.NewDimensionError(op, nd, len(row), 0)
		}
		for d, s := range row {
			if s < 0 || s >= dims[d] {
				return nil, sparterrors.NewIndexError(op, s, dims[d])
			}
			flat[i*nd+d] = s
		}
	}

	sizes := make([]int, nd)
	copy(sizes, dims)
	values := make([]float64, len(vals))
	copy(values, vals)
	return &Sptensor{sizes: sizes, subs: flat, vals: values}, nil
}

// newSptensorFlat adopts pre-validated flat storage. Used by the other
// layouts and by I/O paths that already validated subscripts.
func newSptensorFlat(dims []int, flatSubs []int, vals []float64) *Sptensor {
	return &Sptensor{sizes: dims, subs: flatSubs, vals: vals}
}

// Ndims returns the number of modes.
func (x *Sptensor) Ndims() int { return len(x.sizes) }

// Nnz returns the number of stored nonzeros.
func (x *Sptensor) Nnz() int { return len(x.vals) }

// Size returns the size of mode d.
func (x *Sptensor) Size(d int) int { return x.sizes[d] }

// Sizes returns a borrowed view of the mode sizes.
func (x *Sptensor) Sizes() []int { return x.sizes }

// Subscript returns the d-th subscript of nonzero i.
func (x *Sptensor) Subscript(i, d int) int { return x.subs[i*len(x.sizes)+d] }

// Value returns the value of nonzero i.
func (x *Sptensor) Value(i int) float64 { return x.vals[i] }

// Subscripts copies the subscript tuple of nonzero i into dst, which must
// have length Ndims.
func (x *Sptensor) Subscripts(i int, dst []int) {
	nd := len(x.sizes)
	copy(dst, x.subs[i*nd:(i+1)*nd])
}

// FillComplete is a no-op for COO storage.
func (x *Sptensor) FillComplete() {}

// Norm returns the Frobenius norm of the tensor.
func (x *Sptensor) Norm() float64 {
	if len(x.vals) == 0 {
		return 0
	}
	return floats.Norm(x.vals, 2)
}

// Copy returns a deep copy.
func (x *Sptensor) Copy() *Sptensor {
	sizes := make([]int, len(x.sizes))
	copy(sizes, x.sizes)
	subs := make([]int, len(x.subs))
	copy(subs, x.subs)
	vals := make([]float64, len(x.vals))
	copy(vals, x.vals)
	return &Sptensor{sizes: sizes, subs: subs, vals: vals}
}

// Times scales each nonzero value by the ktensor model evaluated at the
// nonzero's subscripts.
func (x *Sptensor) Times(k *Ktensor) error {
	if !k.IsConsistentWith(x.sizes) {
		return sparterrors.NewDimensionError("Sptensor.Times", len(x.sizes), k.Ndims(), 0)
	}
	nd := len(x.sizes)
	subs := make([]int, nd)
	for i := range x.vals {
		x.Subscripts(i, subs)
		v, err := k.Entry(subs)
		if err != nil {
			return err
		}
		x.vals[i] *= v
	}
	return nil
}

// Divide divides each nonzero value by the ktensor model evaluated at the
// nonzero's subscripts. Model values smaller in magnitude than epsilon are
// replaced by epsilon to avoid division blowup.
func (x *Sptensor) Divide(k *Ktensor, epsilon float64) error {
	if !k.IsConsistentWith(x.sizes) {
		return sparterrors.NewDimensionError("Sptensor.Divide", len(x.sizes), k.Ndims(), 0)
	}
	nd := len(x.sizes)
	subs := make([]int, nd)
	for i := range x.vals {
		x.Subscripts(i, subs)
		v, err := k.Entry(subs)
		if err != nil {
			return err
		}
		if math.Abs(v) < epsilon {
			x.vals[i] /= epsilon
		} else {
			x.vals[i] /= v
		}
	}
	return nil
}

// IsEqual reports whether two tensors have identical shape and subscripts and
// values equal within tol, comparing nonzeros in stored order.
func (x *Sptensor) IsEqual(b *Sptensor, tol float64) bool {
	if x.Ndims() != b.Ndims() || x.Nnz() != b.Nnz() {
		return false
	}
	for d := range x.sizes {
		if x.sizes[d] != b.sizes[d] {
			return false
		}
	}
	for i := range x.subs {
		if x.subs[i] != b.subs[i] {
			return false
		}
	}
	for i := range x.vals {
		if math.Abs(x.vals[i]-b.vals[i]) > tol {
			return false
		}
	}
	return true
}
