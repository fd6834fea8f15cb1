package decomp

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// PerfInfo is one performance sample from a CP-ALS run.
type PerfInfo struct {
	// Iter is the outer iteration the sample was taken after; 0 is the
	// initial guess.
	Iter int
	// ResNorm is the residual Frobenius norm at the end of Iter.
	ResNorm float64
	// Fit is 1 - ResNorm/||X|| at the end of Iter.
	Fit float64
	// CumTimeSecs is wall-clock seconds from the start of the run.
	CumTimeSecs float64
	// MttkrpGFlops is the average MTTKRP throughput so far in GFLOP/s.
	MttkrpGFlops float64
}

// PlotPerfHistory renders the fit and residual-norm trajectories of a CP-ALS
// run to an image file. The format is inferred from the path extension
// (.png, .svg, .pdf, ...).
func PlotPerfHistory(infos []PerfInfo, path string) error {
	const op = "decomp.PlotPerfHistory"
	if len(infos) == 0 {
		return sparterrors.NewValueError(op, "no performance samples to plot")
	}

	p := plot.New()
	p.Title.Text = "CP-ALS convergence"
	p.X.Label.Text = "outer iteration"
	p.Y.Label.Text = "value"

	fitPts := make(plotter.XYs, len(infos))
	resPts := make(plotter.XYs, len(infos))
	for i, info := range infos {
		fitPts[i].X = float64(info.Iter)
		fitPts[i].Y = info.Fit
		resPts[i].X = float64(info.Iter)
		resPts[i].Y = info.ResNorm
	}

	if err := plotutil.AddLinePoints(p, "fit", fitPts, "resNorm", resPts); err != nil {
		return sparterrors.Wrapf(err, "%s: building plot", op)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return sparterrors.NewIOError(op, path, err)
	}
	return nil
}
