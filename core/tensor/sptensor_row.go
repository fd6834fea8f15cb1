package tensor

// SptensorRow is permuted-COO storage augmented with one row-pointer array
// per mode. After FillComplete, the nonzeros whose d-th subscript equals r
// are exactly {perm[d][i] : rowptr[d][r] <= i < rowptr[d][r+1]}, which lets
// the MTTKRP kernel parallelize over output rows with no atomics at all.
type SptensorRow struct {
	SptensorPerm
	rowptr [][]int // one array of length size[d]+1 per mode
}

// NewSptensorRow creates a row-indexed sparse tensor. FillComplete must be
// called before PermRowBegin is used.
func NewSptensorRow(dims []int, subs [][]int, vals []float64) (*SptensorRow, error) {
	base, err := NewSptensorPerm(dims, subs, vals)
	if err != nil {
		return nil, err
	}
	return &SptensorRow{SptensorPerm: *base}, nil
}

// NewSptensorRowFromCOO wraps an existing COO tensor, sharing its storage.
func NewSptensorRowFromCOO(x *Sptensor) *SptensorRow {
	return &SptensorRow{SptensorPerm: *NewSptensorPermFromCOO(x)}
}

// FillComplete builds the per-mode permutations and row pointers. Idempotent.
func (x *SptensorRow) FillComplete() {
	if x.filled && x.rowptr != nil {
		return
	}
	x.SptensorPerm.FillComplete()

	nd := x.Ndims()
	nz := x.Nnz()
	x.rowptr = make([][]int, nd)
	for d := 0; d < nd; d++ {
		sz := x.Size(d)
		rp := make([]int, sz+1)
		if nz == 0 {
			x.rowptr[d] = rp
			continue
		}
		perm := x.perm[d]

		// Rows below the first occupied one point at 0; a row starts where
		// the sorted subscript changes, and any gap of empty rows shares the
		// same start; rows past the last occupied one point at nnz.
		first := x.Subscript(perm[0], d)
		for r := 0; r <= first; r++ {
			rp[r] = 0
		}
		for i := 1; i < nz; i++ {
			s := x.Subscript(perm[i], d)
			sm := x.Subscript(perm[i-1], d)
			for r := sm + 1; r <= s; r++ {
				rp[r] = i
			}
		}
		last := x.Subscript(perm[nz-1], d)
		for r := last + 1; r <= sz; r++ {
			rp[r] = nz
		}
		x.rowptr[d] = rp
	}
}

// PermRowBegin returns the offset into the mode-d permutation where row r
// begins. Valid arguments are 0 <= r <= Size(d).
func (x *SptensorRow) PermRowBegin(r, d int) int { return x.rowptr[d][r] }

// ModeRowptr returns a borrowed view of the mode-d row-pointer array.
func (x *SptensorRow) ModeRowptr(d int) []int { return x.rowptr[d] }
