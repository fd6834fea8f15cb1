package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"

	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// Ktensor is a rank-R canonical-polyadic factorization: an ordered sequence
// of N factor matrices sharing the same number of components, plus a weight
// vector of length R. A ktensor is distributed when all weights are one and
// normalized when each factor has unit column norms.
type Ktensor struct {
	factors []*FacMatrix
	weights []float64
}

// NewKtensor creates a ktensor with nc components over the given mode sizes.
// Factors are zero-initialized and weights are set to one.
func NewKtensor(nc int, dims []int) (*Ktensor, error) {
	if nc < 1 {
		return nil, sparterrors.NewValueError("tensor.NewKtensor", "number of components must be at least 1")
	}
	if len(dims) < 1 {
		return nil, sparterrors.NewValueError("tensor.NewKtensor", "at least one mode is required")
	}
	factors := make([]*FacMatrix, len(dims))
	for d, sz := range dims {
		f, err := NewFacMatrix(sz, nc)
		if err != nil {
			return nil, err
		}
		factors[d] = f
	}
	weights := make([]float64, nc)
	for j := range weights {
		weights[j] = 1.0
	}
	return &Ktensor{factors: factors, weights: weights}, nil
}

// NewKtensorFromFactors creates a ktensor from existing factor matrices and
// weights. The factors are adopted, not copied.
func NewKtensorFromFactors(factors []*FacMatrix, weights []float64) (*Ktensor, error) {
	if len(factors) < 1 {
		return nil, sparterrors.NewValueError("tensor.NewKtensorFromFactors", "at least one factor is required")
	}
	nc := factors[0].NCols()
	for d, f := range factors {
		if f.NCols() != nc {
			return nil, sparterrors.NewRankError("tensor.NewKtensorFromFactors", nc, f.NCols(), d)
		}
	}
	if len(weights) != nc {
		return nil, sparterrors.NewRankError("tensor.NewKtensorFromFactors", nc, len(weights), -1)
	}
	w := make([]float64, nc)
	copy(w, weights)
	return &Ktensor{factors: factors, weights: w}, nil
}

// Ndims returns the number of modes.
func (k *Ktensor) Ndims() int { return len(k.factors) }

// Ncomponents returns the number of components (rank).
func (k *Ktensor) Ncomponents() int { return len(k.weights) }

// Factor returns the factor matrix for mode d.
func (k *Ktensor) Factor(d int) *FacMatrix { return k.factors[d] }

// Weights returns a borrowed view of the weight vector.
func (k *Ktensor) Weights() []float64 { return k.weights }

// SetWeights overwrites the weight vector.
func (k *Ktensor) SetWeights(w []float64) error {
	if len(w) != len(k.weights) {
		return sparterrors.NewRankError("Ktensor.SetWeights", len(k.weights), len(w), -1)
	}
	copy(k.weights, w)
	return nil
}

// IsConsistent reports whether every factor has Ncomponents columns.
func (k *Ktensor) IsConsistent() bool {
	nc := len(k.weights)
	for _, f := range k.factors {
		if f.NCols() != nc {
			return false
		}
	}
	return true
}

// IsConsistentWith reports IsConsistent and that factor row counts match the
// given mode sizes.
func (k *Ktensor) IsConsistentWith(dims []int) bool {
	if !k.IsConsistent() || len(dims) != len(k.factors) {
		return false
	}
	for d, f := range k.factors {
		if f.NRows() != dims[d] {
			return false
		}
	}
	return true
}

// Copy returns a deep copy.
func (k *Ktensor) Copy() *Ktensor {
	factors := make([]*FacMatrix, len(k.factors))
	for d, f := range k.factors {
		factors[d] = f.Copy()
	}
	weights := make([]float64, len(k.weights))
	copy(weights, k.weights)
	return &Ktensor{factors: factors, weights: weights}
}

// Distribute absorbs the weights into factor d and resets all weights to one.
func (k *Ktensor) Distribute(d int) error {
	if d < 0 || d >= len(k.factors) {
		return sparterrors.NewIndexError("Ktensor.Distribute", d, len(k.factors))
	}
	if err := k.factors[d].ColScale(k.weights, false); err != nil {
		return err
	}
	for j := range k.weights {
		k.weights[j] = 1.0
	}
	return nil
}

// Normalize scales each factor to unit column norms of the given kind,
// absorbing the norms into the weights.
func (k *Ktensor) Normalize(kind Norm) error {
	for _, f := range k.factors {
		norms := f.ColNorms(kind, 0.0)
		for j, nrm := range norms {
			if nrm == 0 {
				norms[j] = 1.0
			}
		}
		if err := f.ColScale(norms, true); err != nil {
			return err
		}
		for j := range k.weights {
			k.weights[j] *= norms[j]
		}
	}
	return nil
}

// NormFsq returns the squared Frobenius norm of the full (dense-equivalent)
// tensor represented by the ktensor, computed in closed form as
//
//	sum_{j,j'} w_j w_j' prod_d <U_d[:,j], U_d[:,j']>.
func (k *Ktensor) NormFsq() float64 {
	nc := len(k.weights)
	coef := make([]float64, nc*nc)
	for a := 0; a < nc; a++ {
		for b := 0; b < nc; b++ {
			coef[a*nc+b] = k.weights[a] * k.weights[b]
		}
	}
	dot := make([]float64, nc*nc)
	for _, f := range k.factors {
		for i := range dot {
			dot[i] = 0
		}
		rows := f.NRows()
		for i := 0; i < rows; i++ {
			row := f.Row(i)
			for a := 0; a < nc; a++ {
				va := row[a]
				if va == 0 {
					continue
				}
				for b := 0; b < nc; b++ {
					dot[a*nc+b] += va * row[b]
				}
			}
		}
		floats.Mul(coef, dot)
	}
	return math.Abs(floats.Sum(coef))
}

// Entry evaluates the model at the given subscript tuple:
// sum_j w_j prod_d U_d[subs[d], j].
func (k *Ktensor) Entry(subs []int) (float64, error) {
	if len(subs) != len(k.factors) {
		return 0, sparterrors.NewDimensionError("Ktensor.Entry", len(k.factors), len(subs), 0)
	}
	nc := len(k.weights)
	total := 0.0
	for j := 0; j < nc; j++ {
		v := k.weights[j]
		for d, f := range k.factors {
			if subs[d] < 0 || subs[d] >= f.NRows() {
				return 0, sparterrors.NewIndexError("Ktensor.Entry", subs[d], f.NRows())
			}
			v *= f.Entry(subs[d], j)
		}
		total += v
	}
	return total, nil
}

// Arrange reorders components by descending weight. The sort is stable, so
// equal weights keep their original relative order.
func (k *Ktensor) Arrange() error {
	perm := sortPermStable(k.weights)
	buf := make([]float64, len(k.weights))
	for j, p := range perm {
		buf[j] = k.weights[p]
	}
	copy(k.weights, buf)
	for _, f := range k.factors {
		if err := f.PermuteCols(perm); err != nil {
			return err
		}
	}
	return nil
}

// IsFinite reports whether all weights and factor entries are finite.
func (k *Ktensor) IsFinite() bool {
	for _, w := range k.weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return false
		}
	}
	for _, f := range k.factors {
		if !f.IsFinite() {
			return false
		}
	}
	return true
}
