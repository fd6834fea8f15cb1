package decomp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/sparten/core/tensor"
)

// refInnerprod is the sequential oracle for the parallel reduction.
func refInnerprod(x tensor.SparseTensor, u *tensor.Ktensor, lambda []float64) float64 {
	total := 0.0
	for k := 0; k < x.Nnz(); k++ {
		for j := 0; j < u.Ncomponents(); j++ {
			prod := x.Value(k) * lambda[j]
			for m := 0; m < x.Ndims(); m++ {
				prod *= u.Factor(m).Entry(x.Subscript(k, m), j)
			}
			total += prod
		}
	}
	return total
}

func TestInnerprod_SmallHandComputed(t *testing.T) {
	x, err := tensor.NewSptensor([]int{2, 2, 2},
		[][]int{{0, 0, 0}, {1, 0, 1}, {0, 1, 1}}, []float64{1, 2, 3})
	require.NoError(t, err)

	// Rank-1 factors equal to the first identity column: only the (0,0,0)
	// nonzero survives, so the inner product is its value.
	u := basisKtensor(t, []int{2, 2, 2})
	got, err := Innerprod(x, u, []float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-14)

	// All-ones factors sum every nonzero value.
	for d := 0; d < 3; d++ {
		u.Factor(d).Fill(1)
	}
	got, err = Innerprod(x, u, []float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, got, 1e-14)

	// Weights scale linearly.
	got, err = Innerprod(x, u, []float64{2.5})
	require.NoError(t, err)
	assert.InDelta(t, 15.0, got, 1e-14)
}

func TestInnerprod_MatchesReference(t *testing.T) {
	eps := math.Nextafter(1, 2) - 1
	rng := rand.New(rand.NewSource(99))

	tests := []struct {
		name string
		dims []int
		nnz  int
		nc   int
	}{
		{name: "3-way rank 3", dims: []int{8, 9, 10}, nnz: 400, nc: 3},
		{name: "3-way rank 17 partial tile", dims: []int{8, 9, 10}, nnz: 2500, nc: 17},
		{name: "4-way rank 8", dims: []int{4, 5, 6, 7}, nnz: 600, nc: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, u := randomProblem(t, rng, tt.dims, tt.nnz, tt.nc)
			lambda := make([]float64, tt.nc)
			for j := range lambda {
				lambda[j] = rng.Float64() + 0.5
			}

			want := refInnerprod(x, u, lambda)
			got, err := Innerprod(x, u, lambda)
			require.NoError(t, err)
			assert.InDelta(t, want, got, 1e3*eps*math.Abs(want)+1e-12)
		})
	}
}

func TestInnerprod_NilLambdaUsesWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x, u := randomProblem(t, rng, []int{5, 6, 7}, 100, 4)

	want, err := Innerprod(x, u, u.Weights())
	require.NoError(t, err)
	got, err := Innerprod(x, u, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInnerprod_DeterministicAcrossRuns(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x, u := randomProblem(t, rng, []int{20, 20, 20}, 5000, 8)

	first, err := Innerprod(x, u, nil)
	require.NoError(t, err)
	for run := 0; run < 5; run++ {
		again, err := Innerprod(x, u, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again, "fixed parallel shape must reproduce bit-identical results")
	}
}

func TestInnerprod_ArgumentChecks(t *testing.T) {
	x, err := tensor.NewSptensor([]int{2, 3}, [][]int{{0, 0}}, []float64{1})
	require.NoError(t, err)
	u, err := tensor.NewKtensor(2, []int{2, 3})
	require.NoError(t, err)

	_, err = Innerprod(x, u, []float64{1})
	assert.Error(t, err, "lambda length must match the rank")

	ubad, err := tensor.NewKtensor(2, []int{2, 4})
	require.NoError(t, err)
	_, err = Innerprod(x, ubad, nil)
	assert.Error(t, err)
}
