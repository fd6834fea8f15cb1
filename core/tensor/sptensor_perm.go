package tensor

import "sort"

// SptensorPerm is COO storage augmented with one permutation per mode.
// After FillComplete, perm[d] orders the nonzeros so that the d-th subscript
// is non-decreasing, with ties broken by nonzero index. The permutations let
// the MTTKRP kernel group writes to the same output row, trading atomic
// density for a one-time sort.
type SptensorPerm struct {
	Sptensor
	perm   [][]int // one permutation of [0, nnz) per mode
	filled bool
}

// NewSptensorPerm creates a permuted-COO sparse tensor. FillComplete must be
// called before Perm is used.
func NewSptensorPerm(dims []int, subs [][]int, vals []float64) (*SptensorPerm, error) {
	base, err := NewSptensor(dims, subs, vals)
	if err != nil {
		return nil, err
	}
	return &SptensorPerm{Sptensor: *base}, nil
}

// NewSptensorPermFromCOO wraps an existing COO tensor, sharing its storage.
func NewSptensorPermFromCOO(x *Sptensor) *SptensorPerm {
	return &SptensorPerm{Sptensor: *x}
}

// FillComplete builds the per-mode permutations. Idempotent: repeated calls
// return without recomputing, and the permutations are deterministic because
// the sort is stable with nonzero index as the tiebreak.
func (x *SptensorPerm) FillComplete() {
	if x.filled {
		return
	}
	nd := x.Ndims()
	nz := x.Nnz()
	x.perm = make([][]int, nd)
	for d := 0; d < nd; d++ {
		p := make([]int, nz)
		for i := range p {
			p[i] = i
		}
		sort.SliceStable(p, func(a, b int) bool {
			return x.Subscript(p[a], d) < x.Subscript(p[b], d)
		})
		x.perm[d] = p
	}
	x.filled = true
}

// Perm returns the i-th entry of the mode-d permutation.
func (x *SptensorPerm) Perm(i, d int) int { return x.perm[d][i] }

// ModePerm returns a borrowed view of the mode-d permutation.
func (x *SptensorPerm) ModePerm(d int) []int { return x.perm[d] }

// Filled reports whether FillComplete has run.
func (x *SptensorPerm) Filled() bool { return x.filled }
