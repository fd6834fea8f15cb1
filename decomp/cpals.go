package decomp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ezoic/sparten/core/tensor"
	sparterrors "github.com/ezoic/sparten/pkg/errors"
	"github.com/ezoic/sparten/pkg/log"
)

// machEps is the double-precision machine epsilon.
var machEps = math.Nextafter(1, 2) - 1

// CpAlsOption configures the CP-ALS driver.
type CpAlsOption func(*cpAlsOptions)

type cpAlsOptions struct {
	tol         float64
	maxIters    int
	maxSecs     float64
	printEvery  int
	perfEvery   int
	finiteCheck bool
}

// WithTol sets the stop tolerance on the change of the fit function.
func WithTol(tol float64) CpAlsOption {
	return func(o *cpAlsOptions) { o.tol = tol }
}

// WithMaxIters sets the maximum number of outer iterations.
func WithMaxIters(n int) CpAlsOption {
	return func(o *cpAlsOptions) { o.maxIters = n }
}

// WithMaxSecs sets a wall-clock budget in seconds, checked between outer
// iterations; the current iteration always runs to completion. Negative
// means no limit.
func WithMaxSecs(secs float64) CpAlsOption {
	return func(o *cpAlsOptions) { o.maxSecs = secs }
}

// WithPrintEvery logs progress every n outer iterations. Zero disables.
func WithPrintEvery(n int) CpAlsOption {
	return func(o *cpAlsOptions) { o.printEvery = n }
}

// WithPerfEvery records a PerfInfo entry every n outer iterations, plus one
// at the start and one at finish. Zero disables collection.
func WithPerfEvery(n int) CpAlsOption {
	return func(o *cpAlsOptions) { o.perfEvery = n }
}

// WithFiniteCheck enables a NaN/Inf guard on the factor matrices between
// outer iterations.
func WithFiniteCheck(enable bool) CpAlsOption {
	return func(o *cpAlsOptions) { o.finiteCheck = enable }
}

// CpAlsResult reports the outcome of a CP-ALS run.
type CpAlsResult struct {
	// NumIters is the number of outer iterations completed, counting from 1.
	NumIters int
	// ResNorm is the Frobenius norm of the final residual.
	ResNorm float64
	// Fit is 1 - ResNorm/||X||, the proportion of data described by the model.
	Fit float64
	// Perf holds performance samples when WithPerfEvery was given.
	Perf []PerfInfo
}

// CpAls fits a rank-R canonical-polyadic model to the sparse tensor x using
// alternating least squares. u supplies the initial guess and receives the
// resulting factorization: factors with unit column norms and components
// arranged by descending weight.
//
// Convergence is declared when the change in the fit function
// 1 - resNorm/||X|| falls below the tolerance. The solve step fails with
// ErrSingularNormalEquations when the Gramian Hadamard product is singular
// (for example when the initial guess has a zero column), and with
// ErrNegativeResidualNorm when the squared residual falls below the
// roundoff threshold, which indicates corruption rather than convergence.
func CpAls(x tensor.SparseTensor, u *tensor.Ktensor, opts ...CpAlsOption) (*CpAlsResult, error) {
	const op = "decomp.CpAls"

	o := cpAlsOptions{
		tol:      1e-4,
		maxIters: 100,
		maxSecs:  -1,
	}
	for _, apply := range opts {
		apply(&o)
	}
	if o.tol <= 0 {
		return nil, sparterrors.NewValueError(op, "tolerance must be positive")
	}
	if o.maxIters < 1 {
		return nil, sparterrors.NewValueError(op, "maxIters must be at least 1")
	}
	if !u.IsConsistent() {
		return nil, sparterrors.NewRankError(op, u.Ncomponents(), -1, -1)
	}
	if x.Ndims() != u.Ndims() {
		return nil, sparterrors.NewDimensionError(op, x.Ndims(), u.Ndims(), 0)
	}
	for d := 0; d < x.Ndims(); d++ {
		if u.Factor(d).NRows() != x.Size(d) {
			return nil, sparterrors.NewDimensionError(op, x.Size(d), u.Factor(d).NRows(), d)
		}
	}

	logger := log.GetLoggerWithName("decomp").With(
		log.ComponentKey, "cpals",
		log.OperationKey, log.OperationCpAls,
		log.NnzKey, x.Nnz(),
		log.RankKey, u.Ncomponents(),
	)

	nc := u.Ncomponents()
	nd := x.Ndims()
	start := time.Now()
	var mttkrpTime time.Duration
	var mttkrpCalls int

	// Push the initial weights into the first factor so the model carried
	// across the sweep lives entirely in lambda.
	if err := u.Distribute(0); err != nil {
		return nil, err
	}
	lambda := make([]float64, nc)
	for j := range lambda {
		lambda[j] = 1.0
	}

	// Gramians of the current factors. gamma[0] is rebuilt before first use.
	gamma := make([]*tensor.FacMatrix, nd)
	for n := 0; n < nd; n++ {
		g, err := tensor.NewFacMatrix(nc, nc)
		if err != nil {
			return nil, err
		}
		gamma[n] = g
	}
	for n := 1; n < nd; n++ {
		if err := gamma[n].Gramian(u.Factor(n)); err != nil {
			return nil, err
		}
	}

	upsilon, err := tensor.NewFacMatrix(nc, nc)
	if err != nil {
		return nil, err
	}
	tmpMat, err := tensor.NewFacMatrix(nc, nc)
	if err != nil {
		return nil, err
	}

	xNorm := x.Norm()

	result := &CpAlsResult{}
	fit := 0.0
	if o.perfEvery > 0 {
		// Fit of the initial guess; can be hugely negative for bad starts,
		// so bound it at zero.
		uNorm := math.Sqrt(u.NormFsq())
		xdotu, err := Innerprod(x, u, lambda)
		if err != nil {
			return nil, err
		}
		res, err := computeResNorm(xNorm, uNorm, xdotu)
		if err != nil {
			return nil, err
		}
		fit = 1.0 - res/xNorm
		if fit < 0 {
			fit = 0
		}
		result.Perf = append(result.Perf, PerfInfo{
			Iter:        0,
			ResNorm:     res,
			Fit:         fit,
			CumTimeSecs: time.Since(start).Seconds(),
		})
	}

	numIters := 0
	resNorm := 0.0
	for ; numIters < o.maxIters; numIters++ {
		fitold := fit

		for n := 0; n < nd; n++ {
			// Overwrite factor n with the MTTKRP result; the kernel reads
			// only the other factors.
			mt := time.Now()
			if err := Mttkrp(x, u, n, u.Factor(n)); err != nil {
				return nil, err
			}
			mttkrpTime += time.Since(mt)
			mttkrpCalls++

			// Coefficients of the normal equations: Hadamard product of the
			// Gramians of all other modes.
			upsilon.Fill(1.0)
			for idx := 0; idx < nd; idx++ {
				if idx != n {
					if err := upsilon.Times(gamma[idx]); err != nil {
						return nil, err
					}
				}
			}

			if err := u.Factor(n).SolveTransposeRHS(upsilon); err != nil {
				if errors.Is(err, sparterrors.ErrSingularNormalEquations) {
					return nil, sparterrors.NewSingularError(op, n)
				}
				return nil, err
			}

			// L2 norms on the first iteration, max norms (floored at one)
			// afterwards.
			if numIters == 0 {
				lambda = u.Factor(n).ColNorms(tensor.NormTwo, 0.0)
			} else {
				lambda = u.Factor(n).ColNorms(tensor.NormInf, 1.0)
			}
			if err := u.Factor(n).ColScale(lambda, true); err != nil {
				return nil, sparterrors.NewSingularError(op, n)
			}

			if err := gamma[n].Gramian(u.Factor(n)); err != nil {
				return nil, err
			}
		}

		// Frobenius norm of the model: upsilon still holds the Hadamard
		// product over all modes but the last.
		if err := upsilon.Times(gamma[nd-1]); err != nil {
			return nil, err
		}
		if err := tmpMat.Oprod(lambda); err != nil {
			return nil, err
		}
		if err := upsilon.Times(tmpMat); err != nil {
			return nil, err
		}
		pNorm := math.Sqrt(math.Abs(upsilon.Sum()))

		xpip, err := Innerprod(x, u, lambda)
		if err != nil {
			return nil, err
		}
		resNorm, err = computeResNorm(xNorm, pNorm, xpip)
		if err != nil {
			return nil, err
		}

		fit = 1.0 - resNorm/xNorm
		fitchange := math.Abs(fitold - fit)

		if o.finiteCheck && !u.IsFinite() {
			return nil, sparterrors.NewNumericError(op,
				fmt.Sprintf("non-finite factor entry after iteration %d", numIters+1),
				sparterrors.ErrNonFiniteValue)
		}

		if o.printEvery > 0 && (numIters+1)%o.printEvery == 0 {
			logger.Info("iteration finished",
				log.IterationKey, numIters+1,
				log.FitKey, fit,
				"fit_delta", fitchange,
			)
		}

		if o.perfEvery > 0 && (numIters+1)%o.perfEvery == 0 {
			result.Perf = append(result.Perf, PerfInfo{
				Iter:         numIters + 1,
				ResNorm:      resNorm,
				Fit:          fit,
				CumTimeSecs:  time.Since(start).Seconds(),
				MttkrpGFlops: mttkrpGFlops(x, nc, nd, mttkrpTime, mttkrpCalls),
			})
		}

		if numIters > 0 && fitchange < o.tol {
			numIters++
			break
		}
		if o.maxSecs >= 0 && time.Since(start).Seconds() > o.maxSecs {
			numIters++
			break
		}
		if numIters == o.maxIters-1 {
			numIters++
			break
		}
	}

	// Normalize the final factors and fold the trailing column norms into
	// the weights, then order components by weight.
	if err := u.Normalize(tensor.NormTwo); err != nil {
		return nil, err
	}
	w := u.Weights()
	for j := range lambda {
		lambda[j] *= w[j]
	}
	if err := u.SetWeights(lambda); err != nil {
		return nil, err
	}
	if err := u.Arrange(); err != nil {
		return nil, err
	}

	result.NumIters = numIters
	result.ResNorm = resNorm
	result.Fit = fit
	if o.perfEvery > 0 {
		result.Perf = append(result.Perf, PerfInfo{
			Iter:         numIters,
			ResNorm:      resNorm,
			Fit:          fit,
			CumTimeSecs:  time.Since(start).Seconds(),
			MttkrpGFlops: mttkrpGFlops(x, nc, nd, mttkrpTime, mttkrpCalls),
		})
	}

	if o.printEvery > 0 {
		logger.Info("cpals finished",
			log.IterationKey, numIters,
			log.FitKey, fit,
			log.ResNormKey, resNorm,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}

	return result, nil
}

// computeResNorm combines the data norm, model norm and their inner product
// into the residual Frobenius norm
//
//	sqrt(|X|^2 + |M|^2 - 2<X,M>).
//
// The argument of the square root can go slightly negative from roundoff
// when the model fits the data nearly exactly; anything below the empirical
// threshold indicates corruption and is an error.
func computeResNorm(xNorm, mNorm, xDotm float64) (float64, error) {
	d := xNorm*xNorm + mNorm*mNorm - 2*xDotm
	if d > math.SmallestNonzeroFloat64 {
		return math.Sqrt(d), nil
	}
	smallNegThresh := -(xDotm * math.Sqrt(machEps) * 1e3)
	if d > smallNegThresh {
		return 0, nil
	}
	return 0, sparterrors.NewNumericError("decomp.CpAls",
		fmt.Sprintf("residual norm is negative: %g", d),
		sparterrors.ErrNegativeResidualNorm)
}

// mttkrpGFlops estimates MTTKRP throughput from the Genten flop model
// nnz*R*(N+1), where the +1 accounts for the scatter-add.
func mttkrpGFlops(x tensor.SparseTensor, nc, nd int, total time.Duration, calls int) float64 {
	if calls == 0 || total <= 0 {
		return 0
	}
	avg := total.Seconds() / float64(calls)
	flops := float64(x.Nnz()) * float64(nc) * float64(nd+1)
	return flops / avg / (1024.0 * 1024.0 * 1024.0)
}
