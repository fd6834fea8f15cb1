// Package simulate generates synthetic test problems: random ktensors and
// sparse tensors sampled from them. The generated pairs are used by the
// performance drivers and by recovery tests, where CP-ALS from a random
// start should reconstruct the generating factors.
package simulate

import (
	"math"
	"math/rand"
	"sort"

	"github.com/ezoic/sparten/core/tensor"
	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// DiscreteCDF is a cumulative distribution over a finite set of outcomes,
// sampled by inverse transform.
type DiscreteCDF struct {
	cdf []float64
}

// NewDiscreteCDF builds a CDF from a probability vector. Entries must lie in
// [0, 1) (except for the degenerate single-outcome case) and sum to one
// within roundoff.
func NewDiscreteCDF(pdf []float64) (*DiscreteCDF, error) {
	const op = "simulate.NewDiscreteCDF"
	if len(pdf) == 0 {
		return nil, sparterrors.NewValueError(op, "empty probability vector")
	}
	cdf := make([]float64, len(pdf))
	if len(pdf) == 1 {
		cdf[0] = 1.0
		return &DiscreteCDF{cdf: cdf}, nil
	}
	running := 0.0
	for i, p := range pdf {
		if p < 0 || p >= 1 {
			return nil, sparterrors.NewValueError(op, "probabilities must lie in [0, 1)")
		}
		running += p
		cdf[i] = running
	}
	if math.Abs(running-1.0) > 1e-12 {
		return nil, sparterrors.NewValueError(op, "probabilities do not sum to one")
	}
	return &DiscreteCDF{cdf: cdf}, nil
}

// NewDiscreteCDFFromColumn builds a CDF from column col of a factor matrix
// whose columns are probability vectors.
func NewDiscreteCDFFromColumn(m *tensor.FacMatrix, col int) (*DiscreteCDF, error) {
	pdf := make([]float64, m.NRows())
	for i := range pdf {
		pdf[i] = m.Entry(i, col)
	}
	return NewDiscreteCDF(pdf)
}

// Sample returns the smallest outcome index whose cumulative probability is
// at least u, for u in [0, 1).
func (c *DiscreteCDF) Sample(u float64) int {
	i := sort.SearchFloat64s(c.cdf, u)
	if i >= len(c.cdf) {
		i = len(c.cdf) - 1
	}
	return i
}

// RandomKtensor creates a ktensor with nc components over dims, unit weights
// and factor entries drawn uniformly from [0, 1).
func RandomKtensor(rng *rand.Rand, nc int, dims []int) (*tensor.Ktensor, error) {
	k, err := tensor.NewKtensor(nc, dims)
	if err != nil {
		return nil, err
	}
	for d := range dims {
		f := k.Factor(d)
		for i := 0; i < f.NRows(); i++ {
			row := f.Row(i)
			for j := range row {
				row[j] = rng.Float64()
			}
		}
	}
	return k, nil
}

// GenSpFromRndKtensor generates a random ktensor over dims with nc
// components and samples a sparse tensor from it. Factor columns are
// normalized into probability distributions, then maxNnz samples are drawn
// (a component through the weights, then a row per mode through the column
// CDFs) and counted; duplicate locations merge, so the actual number of
// stored nonzeros can be below maxNnz.
func GenSpFromRndKtensor(rng *rand.Rand, dims []int, nc, maxNnz int) (*tensor.Sptensor, *tensor.Ktensor, error) {
	const op = "simulate.GenSpFromRndKtensor"
	if maxNnz < 1 {
		return nil, nil, sparterrors.NewValueError(op, "maxNnz must be at least 1")
	}
	sol, err := RandomKtensor(rng, nc, dims)
	if err != nil {
		return nil, nil, err
	}

	// Normalize each factor column into a probability vector, folding the
	// column sums into the weights so the ktensor still represents the same
	// model.
	nd := len(dims)
	weights := make([]float64, nc)
	for j := range weights {
		weights[j] = 1.0
	}
	for d := 0; d < nd; d++ {
		f := sol.Factor(d)
		for j := 0; j < nc; j++ {
			sum := 0.0
			for i := 0; i < f.NRows(); i++ {
				sum += f.Entry(i, j)
			}
			if sum == 0 {
				return nil, nil, sparterrors.NewValueError(op, "zero factor column")
			}
			for i := 0; i < f.NRows(); i++ {
				f.SetEntry(i, j, f.Entry(i, j)/sum)
			}
			weights[j] *= sum
		}
	}
	if err := sol.SetWeights(weights); err != nil {
		return nil, nil, err
	}

	// CDF over components, proportional to the weights.
	wsum := 0.0
	for _, w := range weights {
		wsum += w
	}
	wpdf := make([]float64, nc)
	for j, w := range weights {
		wpdf[j] = w / wsum
	}
	wcdf, err := NewDiscreteCDF(wpdf)
	if err != nil {
		return nil, nil, err
	}

	// Per-mode, per-component CDFs over rows.
	cdfs := make([][]*DiscreteCDF, nd)
	for d := 0; d < nd; d++ {
		cdfs[d] = make([]*DiscreteCDF, nc)
		for j := 0; j < nc; j++ {
			c, err := NewDiscreteCDFFromColumn(sol.Factor(d), j)
			if err != nil {
				return nil, nil, err
			}
			cdfs[d][j] = c
		}
	}

	strides := make([]uint64, nd)
	stride := uint64(1)
	for d := nd - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= uint64(dims[d])
	}

	counts := make(map[uint64]float64, maxNnz)
	sub := make([]int, nd)
	for s := 0; s < maxNnz; s++ {
		j := wcdf.Sample(rng.Float64())
		var key uint64
		for d := 0; d < nd; d++ {
			sub[d] = cdfs[d][j].Sample(rng.Float64())
			key += strides[d] * uint64(sub[d])
		}
		counts[key]++
	}

	keys := make([]uint64, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })

	subs := make([][]int, len(keys))
	vals := make([]float64, len(keys))
	for i, key := range keys {
		row := make([]int, nd)
		for d := 0; d < nd; d++ {
			row[d] = int(key / strides[d] % uint64(dims[d]))
		}
		subs[i] = row
		vals[i] = counts[key]
	}

	x, err := tensor.NewSptensor(dims, subs, vals)
	if err != nil {
		return nil, nil, err
	}
	return x, sol, nil
}
