package decomp

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/sparten/core/tensor"
	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// fullSptensorFromKtensor materializes every entry of the model as a sparse
// nonzero, producing a tensor that is exactly rank-R.
func fullSptensorFromKtensor(t *testing.T, k *tensor.Ktensor, dims []int) *tensor.Sptensor {
	t.Helper()
	var subs [][]int
	var vals []float64
	sub := make([]int, len(dims))
	var walk func(d int)
	walk = func(d int) {
		if d == len(dims) {
			v, err := k.Entry(sub)
			require.NoError(t, err)
			row := make([]int, len(sub))
			copy(row, sub)
			subs = append(subs, row)
			vals = append(vals, v)
			return
		}
		for i := 0; i < dims[d]; i++ {
			sub[d] = i
			walk(d + 1)
		}
	}
	walk(0)
	x, err := tensor.NewSptensor(dims, subs, vals)
	require.NoError(t, err)
	return x
}

// positiveKtensor builds a random ktensor with entries bounded away from
// zero, which keeps the exact-rank recovery problem well conditioned.
func positiveKtensor(t *testing.T, rng *rand.Rand, nc int, dims []int) *tensor.Ktensor {
	t.Helper()
	k, err := tensor.NewKtensor(nc, dims)
	require.NoError(t, err)
	for d := range dims {
		f := k.Factor(d)
		for i := 0; i < f.NRows(); i++ {
			row := f.Row(i)
			for j := range row {
				row[j] = rng.Float64() + 0.1
			}
		}
	}
	return k
}

func TestCpAls_RecoversExactRankModel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	dims := []int{4, 5, 6}
	const nc = 2

	truth := positiveKtensor(t, rng, nc, dims)
	x := fullSptensorFromKtensor(t, truth, dims)

	start := positiveKtensor(t, rng, nc, dims)
	result, err := CpAls(x, start,
		WithTol(1e-14),
		WithMaxIters(300),
	)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Fit, 1.0-1e-6,
		"an exactly rank-2 tensor must be recovered to near-perfect fit")
	assert.LessOrEqual(t, result.ResNorm, 1e-4*x.Norm())
}

func TestCpAls_ResidualMonotone(t *testing.T) {
	eps := math.Nextafter(1, 2) - 1
	rng := rand.New(rand.NewSource(2))
	dims := []int{5, 6, 4}

	truth := positiveKtensor(t, rng, 3, dims)
	x := fullSptensorFromKtensor(t, truth, dims)

	start := positiveKtensor(t, rng, 3, dims)
	result, err := CpAls(x, start,
		WithTol(1e-12),
		WithMaxIters(60),
		WithPerfEvery(1),
	)
	require.NoError(t, err)
	require.Greater(t, len(result.Perf), 2)

	slack := 10 * eps * x.Norm()
	for i := 1; i < len(result.Perf); i++ {
		assert.LessOrEqual(t, result.Perf[i].ResNorm, result.Perf[i-1].ResNorm+slack,
			"residual rose between samples %d and %d", i-1, i)
	}
}

func TestCpAls_ZeroColumnFailsSingular(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	dims := []int{4, 4, 4}

	truth := positiveKtensor(t, rng, 2, dims)
	x := fullSptensorFromKtensor(t, truth, dims)

	start := positiveKtensor(t, rng, 2, dims)
	// Zero out one column of every factor: the Gramian Hadamard product is
	// then exactly singular on the solve step.
	for d := range dims {
		f := start.Factor(d)
		for i := 0; i < f.NRows(); i++ {
			f.SetEntry(i, 1, 0)
		}
	}

	_, err := CpAls(x, start, WithMaxIters(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sparterrors.ErrSingularNormalEquations),
		"got %v, want singular normal equations", err)

	for d := range dims {
		assert.True(t, start.Factor(d).IsFinite(), "failure must not leave NaNs behind")
	}
}

func TestCpAls_ConvergesBeforeMaxIters(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	dims := []int{4, 5, 3}

	truth := positiveKtensor(t, rng, 2, dims)
	x := fullSptensorFromKtensor(t, truth, dims)

	start := positiveKtensor(t, rng, 2, dims)
	result, err := CpAls(x, start,
		WithTol(1e-4),
		WithMaxIters(500),
	)
	require.NoError(t, err)
	assert.Less(t, result.NumIters, 500, "loose tolerance should stop early")
	assert.GreaterOrEqual(t, result.NumIters, 2)
}

func TestCpAls_PostConditions(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	dims := []int{5, 4, 6}

	truth := positiveKtensor(t, rng, 3, dims)
	x := fullSptensorFromKtensor(t, truth, dims)

	u := positiveKtensor(t, rng, 3, dims)
	_, err := CpAls(x, u, WithTol(1e-8), WithMaxIters(50))
	require.NoError(t, err)

	// Factors come back with unit L2 column norms.
	for d := range dims {
		for _, n := range u.Factor(d).ColNorms(tensor.NormTwo, 0.0) {
			assert.InDelta(t, 1.0, n, 1e-10)
		}
	}
	// Components are arranged by descending weight.
	w := u.Weights()
	for j := 1; j < len(w); j++ {
		assert.GreaterOrEqual(t, w[j-1], w[j])
	}
}

func TestCpAls_RowAndPermVariants(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	dims := []int{4, 5, 4}

	truth := positiveKtensor(t, rng, 2, dims)
	coo := fullSptensorFromKtensor(t, truth, dims)

	for _, tt := range []struct {
		name string
		x    tensor.SparseTensor
	}{
		{name: "perm", x: tensor.NewSptensorPermFromCOO(coo)},
		{name: "row", x: tensor.NewSptensorRowFromCOO(coo)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			start := positiveKtensor(t, rng, 2, dims)
			result, err := CpAls(tt.x, start, WithTol(1e-12), WithMaxIters(200))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, result.Fit, 1.0-1e-5)
		})
	}
}

func TestCpAls_ArgumentChecks(t *testing.T) {
	x, err := tensor.NewSptensor([]int{2, 2}, [][]int{{0, 0}}, []float64{1})
	require.NoError(t, err)
	u, err := tensor.NewKtensor(2, []int{2, 2})
	require.NoError(t, err)
	u.Factor(0).Fill(1)
	u.Factor(1).Fill(1)

	_, err = CpAls(x, u, WithTol(-1))
	assert.Error(t, err)
	_, err = CpAls(x, u, WithMaxIters(0))
	assert.Error(t, err)

	ubad, err := tensor.NewKtensor(2, []int{2, 3})
	require.NoError(t, err)
	_, err = CpAls(x, ubad)
	assert.Error(t, err)
}

func TestComputeResNorm(t *testing.T) {
	t.Run("positive residual", func(t *testing.T) {
		got, err := computeResNorm(5, 4, 10)
		require.NoError(t, err)
		assert.InDelta(t, math.Sqrt(25+16-20), got, 1e-12)
	})

	t.Run("tiny negative treated as zero", func(t *testing.T) {
		// d = 100 + 100 - 200 - tiny roundoff-scale negative.
		xn := 10.0
		mn := math.Nextafter(10.0, 9.0)
		got, err := computeResNorm(xn, mn, 100)
		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
	})

	t.Run("large negative is an error", func(t *testing.T) {
		_, err := computeResNorm(1, 1, 100)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sparterrors.ErrNegativeResidualNorm))
	})
}
