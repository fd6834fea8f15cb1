package decomp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/sparten/core/tensor"
)

// refMttkrp is a sequential brute-force MTTKRP used as the oracle for the
// parallel kernels.
func refMttkrp(t *testing.T, x tensor.SparseTensor, u *tensor.Ktensor, n int) *tensor.FacMatrix {
	t.Helper()
	nc := u.Ncomponents()
	v, err := tensor.NewFacMatrix(x.Size(n), nc)
	require.NoError(t, err)
	w := u.Weights()
	for k := 0; k < x.Nnz(); k++ {
		for j := 0; j < nc; j++ {
			prod := x.Value(k) * w[j]
			for m := 0; m < x.Ndims(); m++ {
				if m != n {
					prod *= u.Factor(m).Entry(x.Subscript(k, m), j)
				}
			}
			v.SetEntry(x.Subscript(k, n), j, v.Entry(x.Subscript(k, n), j)+prod)
		}
	}
	return v
}

// relFrobDiff returns ||a-b||_F / ||a||_F.
func relFrobDiff(a, b *tensor.FacMatrix) float64 {
	var diff, norm float64
	for i := 0; i < a.NRows(); i++ {
		for j := 0; j < a.NCols(); j++ {
			d := a.Entry(i, j) - b.Entry(i, j)
			diff += d * d
			norm += a.Entry(i, j) * a.Entry(i, j)
		}
	}
	if norm == 0 {
		return math.Sqrt(diff)
	}
	return math.Sqrt(diff / norm)
}

// randomProblem builds a random sparse tensor (as COO) and a matching
// random ktensor.
func randomProblem(t *testing.T, rng *rand.Rand, dims []int, nnz, nc int) (*tensor.Sptensor, *tensor.Ktensor) {
	t.Helper()
	subs := make([][]int, nnz)
	vals := make([]float64, nnz)
	for i := range subs {
		row := make([]int, len(dims))
		for d, sz := range dims {
			row[d] = rng.Intn(sz)
		}
		subs[i] = row
		vals[i] = rng.NormFloat64()
	}
	x, err := tensor.NewSptensor(dims, subs, vals)
	require.NoError(t, err)

	u, err := tensor.NewKtensor(nc, dims)
	require.NoError(t, err)
	for d := range dims {
		f := u.Factor(d)
		for i := 0; i < f.NRows(); i++ {
			row := f.Row(i)
			for j := range row {
				row[j] = rng.NormFloat64()
			}
		}
	}
	w := u.Weights()
	for j := range w {
		w[j] = rng.Float64() + 0.5
	}
	return x, u
}

func TestMttkrp_SmallHandComputed(t *testing.T) {
	// 2x2x2 with nonzeros (0,0,0)=1, (1,0,1)=2, (0,1,1)=3.
	x, err := tensor.NewSptensor([]int{2, 2, 2},
		[][]int{{0, 0, 0}, {1, 0, 1}, {0, 1, 1}}, []float64{1, 2, 3})
	require.NoError(t, err)

	t.Run("unit basis factors", func(t *testing.T) {
		// Factors are the first column of the identity: only the (0,0,0)
		// nonzero survives the Hadamard products.
		u := basisKtensor(t, []int{2, 2, 2})
		v, err := tensor.NewFacMatrix(2, 1)
		require.NoError(t, err)

		require.NoError(t, Mttkrp(x, u, 0, v))
		assert.InDelta(t, 1.0, v.Entry(0, 0), 1e-14)
		assert.InDelta(t, 0.0, v.Entry(1, 0), 1e-14)
	})

	t.Run("all-ones factors", func(t *testing.T) {
		u, err := tensor.NewKtensor(1, []int{2, 2, 2})
		require.NoError(t, err)
		for d := 0; d < 3; d++ {
			u.Factor(d).Fill(1)
		}
		v, err := tensor.NewFacMatrix(2, 1)
		require.NoError(t, err)

		// Mode 0: row 0 collects nonzeros 1 and 3, row 1 collects 2.
		require.NoError(t, Mttkrp(x, u, 0, v))
		assert.InDelta(t, 4.0, v.Entry(0, 0), 1e-14)
		assert.InDelta(t, 2.0, v.Entry(1, 0), 1e-14)

		// Mode 2: row 0 collects nonzero 1, row 1 collects 2 and 3.
		require.NoError(t, Mttkrp(x, u, 2, v))
		assert.InDelta(t, 1.0, v.Entry(0, 0), 1e-14)
		assert.InDelta(t, 5.0, v.Entry(1, 0), 1e-14)
	})
}

// basisKtensor builds rank-1 factors equal to the first identity column.
func basisKtensor(t *testing.T, dims []int) *tensor.Ktensor {
	t.Helper()
	u, err := tensor.NewKtensor(1, dims)
	require.NoError(t, err)
	for d := range dims {
		u.Factor(d).SetEntry(0, 0, 1)
	}
	return u
}

func TestMttkrp_WeightsScaleResult(t *testing.T) {
	x, err := tensor.NewSptensor([]int{2, 2},
		[][]int{{0, 1}, {1, 0}}, []float64{2, 3})
	require.NoError(t, err)

	u, err := tensor.NewKtensor(2, []int{2, 2})
	require.NoError(t, err)
	for d := 0; d < 2; d++ {
		u.Factor(d).Fill(1)
	}
	require.NoError(t, u.SetWeights([]float64{2, 5}))

	v, err := tensor.NewFacMatrix(2, 2)
	require.NoError(t, err)
	require.NoError(t, Mttkrp(x, u, 0, v))
	assert.InDelta(t, 4.0, v.Entry(0, 0), 1e-14)
	assert.InDelta(t, 10.0, v.Entry(0, 1), 1e-14)
	assert.InDelta(t, 6.0, v.Entry(1, 0), 1e-14)
	assert.InDelta(t, 15.0, v.Entry(1, 1), 1e-14)
}

func TestMttkrp_VariantsAgree(t *testing.T) {
	eps := math.Nextafter(1, 2) - 1
	rng := rand.New(rand.NewSource(42))

	tests := []struct {
		name string
		dims []int
		nnz  int
		nc   int
	}{
		{name: "3-way rank 1", dims: []int{6, 7, 8}, nnz: 200, nc: 1},
		{name: "3-way rank 5 partial tile", dims: []int{6, 7, 8}, nnz: 300, nc: 5},
		{name: "3-way rank 16", dims: []int{10, 4, 9}, nnz: 500, nc: 16},
		{name: "4-way rank 33 over ladder", dims: []int{5, 6, 4, 7}, nnz: 400, nc: 33},
		{name: "skewed mode sizes", dims: []int{2, 50, 3}, nnz: 1000, nc: 8},
		{name: "more nonzeros than row blocks", dims: []int{3, 3, 3}, nnz: 700, nc: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coo, u := randomProblem(t, rng, tt.dims, tt.nnz, tt.nc)
			perm := tensor.NewSptensorPermFromCOO(coo)
			row := tensor.NewSptensorRowFromCOO(coo)
			perm.FillComplete()
			row.FillComplete()

			for n := 0; n < len(tt.dims); n++ {
				ref := refMttkrp(t, coo, u, n)

				for _, variant := range []struct {
					name string
					x    tensor.SparseTensor
				}{
					{name: "coo", x: coo},
					{name: "perm", x: perm},
					{name: "row", x: row},
				} {
					v, err := tensor.NewFacMatrix(coo.Size(n), tt.nc)
					require.NoError(t, err)
					require.NoError(t, Mttkrp(variant.x, u, n, v))
					assert.LessOrEqual(t, relFrobDiff(ref, v), 1e3*eps,
						"mode %d variant %s", n, variant.name)
				}
			}
		})
	}
}

func TestMttkrp_DuplicateSubscriptsSum(t *testing.T) {
	x, err := tensor.NewSptensor([]int{2, 2},
		[][]int{{1, 1}, {1, 1}, {1, 1}}, []float64{1, 2, 4})
	require.NoError(t, err)
	u, err := tensor.NewKtensor(1, []int{2, 2})
	require.NoError(t, err)
	u.Factor(0).Fill(1)
	u.Factor(1).Fill(1)

	for _, xt := range []tensor.SparseTensor{
		x,
		tensor.NewSptensorPermFromCOO(x),
		tensor.NewSptensorRowFromCOO(x),
	} {
		v, err := tensor.NewFacMatrix(2, 1)
		require.NoError(t, err)
		require.NoError(t, Mttkrp(xt, u, 0, v))
		assert.InDelta(t, 7.0, v.Entry(1, 0), 1e-14)
	}
}

func TestMttkrp_ArgumentChecks(t *testing.T) {
	x, err := tensor.NewSptensor([]int{2, 3}, [][]int{{0, 0}}, []float64{1})
	require.NoError(t, err)
	u, err := tensor.NewKtensor(2, []int{2, 3})
	require.NoError(t, err)

	good, err := tensor.NewFacMatrix(2, 2)
	require.NoError(t, err)

	t.Run("mode out of range", func(t *testing.T) {
		assert.Error(t, Mttkrp(x, u, 2, good))
		assert.Error(t, Mttkrp(x, u, -1, good))
	})

	t.Run("wrong output rows", func(t *testing.T) {
		v, err := tensor.NewFacMatrix(3, 2)
		require.NoError(t, err)
		assert.Error(t, Mttkrp(x, u, 0, v))
	})

	t.Run("wrong output cols", func(t *testing.T) {
		v, err := tensor.NewFacMatrix(2, 3)
		require.NoError(t, err)
		assert.Error(t, Mttkrp(x, u, 0, v))
	})

	t.Run("ndims mismatch", func(t *testing.T) {
		u3, err := tensor.NewKtensor(2, []int{2, 3, 4})
		require.NoError(t, err)
		assert.Error(t, Mttkrp(x, u3, 0, good))
	})

	t.Run("factor rows mismatch", func(t *testing.T) {
		ubad, err := tensor.NewKtensor(2, []int{2, 4})
		require.NoError(t, err)
		assert.Error(t, Mttkrp(x, ubad, 0, good))
	})
}

func TestMttkrp_OverwritesOutput(t *testing.T) {
	x, err := tensor.NewSptensor([]int{2, 2}, [][]int{{0, 0}}, []float64{1})
	require.NoError(t, err)
	u, err := tensor.NewKtensor(1, []int{2, 2})
	require.NoError(t, err)
	u.Factor(0).Fill(1)
	u.Factor(1).Fill(1)

	v, err := tensor.NewFacMatrix(2, 1)
	require.NoError(t, err)
	v.Fill(99)
	require.NoError(t, Mttkrp(x, u, 0, v))
	assert.InDelta(t, 1.0, v.Entry(0, 0), 1e-14)
	assert.InDelta(t, 0.0, v.Entry(1, 0), 1e-14)
}
