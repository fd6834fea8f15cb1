// Package tensor provides the data containers for sparse tensor
// decomposition: dense factor matrices, ktensors (CP factorizations), and
// sparse tensors in three storage layouts.
//
// The containers exclusively own their storage. Row views returned by
// FacMatrix.Row borrow the underlying array and must not outlive the matrix.
// Sparse tensor accelerators (mode permutations, row pointers) are built once
// by FillComplete and are read-only afterwards.
package tensor

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// Norm selects a column norm kind for FacMatrix.ColNorms and
// Ktensor.Normalize.
type Norm int

const (
	// NormTwo is the Euclidean column norm.
	NormTwo Norm = iota
	// NormInf is the maximum-absolute-value column norm.
	NormInf
)

// FacMatrix is a dense row-major factor matrix of shape (rows, cols), where
// rows is the mode size and cols is the number of components. It wraps
// gonum's mat.Dense so the dense linear algebra (Gramian, SPD solve) runs on
// BLAS-backed kernels, while the decomposition kernels access rows directly
// through Row.
type FacMatrix struct {
	data *mat.Dense
}

// NewFacMatrix creates a zero-initialized factor matrix with the given shape.
func NewFacMatrix(rows, cols int) (*FacMatrix, error) {
	if rows < 1 {
		return nil, sparterrors.NewValueError("tensor.NewFacMatrix", "rows must be at least 1")
	}
	if cols < 1 {
		return nil, sparterrors.NewValueError("tensor.NewFacMatrix", "cols must be at least 1")
	}
	return &FacMatrix{data: mat.NewDense(rows, cols, nil)}, nil
}

// NewFacMatrixFromData creates a factor matrix backed by a copy of data,
// which must hold rows*cols values in row-major order.
func NewFacMatrixFromData(data []float64, rows, cols int) (*FacMatrix, error) {
	if rows < 1 || cols < 1 {
		return nil, sparterrors.NewValueError("tensor.NewFacMatrixFromData", "dimensions must be positive")
	}
	if len(data) != rows*cols {
		return nil, sparterrors.NewDimensionError("tensor.NewFacMatrixFromData", rows*cols, len(data), 0)
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	return &FacMatrix{data: mat.NewDense(rows, cols, cp)}, nil
}

// NRows returns the number of rows (mode size).
func (m *FacMatrix) NRows() int {
	r, _ := m.data.Dims()
	return r
}

// NCols returns the number of columns (components).
func (m *FacMatrix) NCols() int {
	_, c := m.data.Dims()
	return c
}

// Entry returns the value at (i, j).
func (m *FacMatrix) Entry(i, j int) float64 { return m.data.At(i, j) }

// SetEntry sets the value at (i, j).
func (m *FacMatrix) SetEntry(i, j int, v float64) { m.data.Set(i, j, v) }

// Row returns a borrowed view of row i. The slice aliases the matrix storage;
// writes through it are visible to the matrix and it must not outlive it.
func (m *FacMatrix) Row(i int) []float64 { return m.data.RawRowView(i) }

// Dense returns the underlying gonum matrix. Intended for interoperation with
// gonum routines; the matrix retains ownership.
func (m *FacMatrix) Dense() *mat.Dense { return m.data }

// Fill sets every entry to v.
func (m *FacMatrix) Fill(v float64) {
	raw := m.data.RawMatrix()
	for i := range raw.Data {
		raw.Data[i] = v
	}
}

// Copy returns a deep copy.
func (m *FacMatrix) Copy() *FacMatrix {
	var d mat.Dense
	d.CloneFrom(m.data)
	return &FacMatrix{data: &d}
}

// Gramian overwrites m with u^T u. m must be square with size equal to the
// number of columns of u.
func (m *FacMatrix) Gramian(u *FacMatrix) error {
	r, c := m.data.Dims()
	if r != c {
		return sparterrors.NewDimensionError("FacMatrix.Gramian", r, c, 1)
	}
	if r != u.NCols() {
		return sparterrors.NewDimensionError("FacMatrix.Gramian", u.NCols(), r, 0)
	}
	m.data.Mul(u.data.T(), u.data)
	return nil
}

// SolveTransposeRHS overwrites m with the solution of
//
//	upsilon * X^T = m^T
//
// i.e. m <- m * upsilon^{-1}, using a Cholesky factorization of the symmetric
// positive-definite coefficient matrix upsilon. Returns a SingularError when
// the factorization fails.
func (m *FacMatrix) SolveTransposeRHS(upsilon *FacMatrix) error {
	nc := m.NCols()
	if upsilon.NRows() != nc || upsilon.NCols() != nc {
		return sparterrors.NewDimensionError("FacMatrix.SolveTransposeRHS", nc, upsilon.NRows(), 0)
	}

	// Symmetrize from the upper triangle; the Hadamard products that build
	// upsilon preserve symmetry up to roundoff.
	sym := mat.NewSymDense(nc, nil)
	for i := 0; i < nc; i++ {
		for j := i; j < nc; j++ {
			sym.SetSym(i, j, upsilon.Entry(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return sparterrors.NewSingularError("FacMatrix.SolveTransposeRHS", -1)
	}

	var xt mat.Dense
	if err := chol.SolveTo(&xt, m.data.T()); err != nil {
		return sparterrors.NewSingularError("FacMatrix.SolveTransposeRHS", -1)
	}
	m.data.CloneFrom(xt.T())
	return nil
}

// ColNorms computes the norm of each column and applies a floor: any norm
// smaller than floor is replaced by floor. The result has length NCols.
func (m *FacMatrix) ColNorms(kind Norm, floor float64) []float64 {
	rows, cols := m.data.Dims()
	norms := make([]float64, cols)
	switch kind {
	case NormInf:
		for i := 0; i < rows; i++ {
			row := m.data.RawRowView(i)
			for j, v := range row {
				if a := math.Abs(v); a > norms[j] {
					norms[j] = a
				}
			}
		}
	default:
		for i := 0; i < rows; i++ {
			row := m.data.RawRowView(i)
			for j, v := range row {
				norms[j] += v * v
			}
		}
		for j := range norms {
			norms[j] = math.Sqrt(norms[j])
		}
	}
	for j := range norms {
		if norms[j] < floor {
			norms[j] = floor
		}
	}
	return norms
}

// ColScale multiplies each column j by weights[j], or by 1/weights[j] when
// inverse is true.
func (m *FacMatrix) ColScale(weights []float64, inverse bool) error {
	rows, cols := m.data.Dims()
	if len(weights) != cols {
		return sparterrors.NewDimensionError("FacMatrix.ColScale", cols, len(weights), 1)
	}
	if inverse {
		for _, w := range weights {
			if w == 0 {
				return sparterrors.NewValueError("FacMatrix.ColScale", "cannot scale by inverse of zero weight")
			}
		}
	}
	for i := 0; i < rows; i++ {
		row := m.data.RawRowView(i)
		if inverse {
			for j := range row {
				row[j] /= weights[j]
			}
		} else {
			for j := range row {
				row[j] *= weights[j]
			}
		}
	}
	return nil
}

// Times overwrites m with the elementwise (Hadamard) product of m and other.
func (m *FacMatrix) Times(other *FacMatrix) error {
	r, c := m.data.Dims()
	or, oc := other.data.Dims()
	if r != or || c != oc {
		return sparterrors.NewDimensionError("FacMatrix.Times", r, or, 0)
	}
	for i := 0; i < r; i++ {
		floats.Mul(m.data.RawRowView(i), other.data.RawRowView(i))
	}
	return nil
}

// Oprod overwrites m with the outer product w w^T. m must be square with size
// len(w).
func (m *FacMatrix) Oprod(w []float64) error {
	r, c := m.data.Dims()
	if r != c || r != len(w) {
		return sparterrors.NewDimensionError("FacMatrix.Oprod", len(w), r, 0)
	}
	for i := 0; i < r; i++ {
		row := m.data.RawRowView(i)
		for j := range row {
			row[j] = w[i] * w[j]
		}
	}
	return nil
}

// Sum returns the sum of all entries.
func (m *FacMatrix) Sum() float64 {
	return floats.Sum(m.data.RawMatrix().Data)
}

// IsFinite reports whether every entry is finite (no NaN or Inf).
func (m *FacMatrix) IsFinite() bool {
	raw := m.data.RawMatrix()
	for _, v := range raw.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// PermuteCols reorders the columns so that new column j is old column
// perm[j]. perm must be a permutation of [0, NCols).
func (m *FacMatrix) PermuteCols(perm []int) error {
	rows, cols := m.data.Dims()
	if len(perm) != cols {
		return sparterrors.NewDimensionError("FacMatrix.PermuteCols", cols, len(perm), 1)
	}
	seen := make([]bool, cols)
	for _, p := range perm {
		if p < 0 || p >= cols || seen[p] {
			return sparterrors.NewValueError("FacMatrix.PermuteCols", "perm is not a permutation")
		}
		seen[p] = true
	}
	buf := make([]float64, cols)
	for i := 0; i < rows; i++ {
		row := m.data.RawRowView(i)
		for j, p := range perm {
			buf[j] = row[p]
		}
		copy(row, buf)
	}
	return nil
}

// sortPermStable returns a permutation ordering keys descending, breaking
// ties by original index.
func sortPermStable(keys []float64) []int {
	perm := make([]int, len(keys))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return keys[perm[a]] > keys[perm[b]]
	})
	return perm
}
