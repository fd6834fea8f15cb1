// Command cpals fits a rank-R canonical-polyadic model to a sparse tensor
// with alternating least squares and writes the resulting ktensor.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/ezoic/sparten/core/tensor"
	"github.com/ezoic/sparten/decomp"
	sparterrors "github.com/ezoic/sparten/pkg/errors"
	"github.com/ezoic/sparten/pkg/log"
	"github.com/ezoic/sparten/simulate"
	"github.com/ezoic/sparten/tensorio"
)

type options struct {
	Input      string  `toml:"input"`
	IndexBase  int     `toml:"index_base"`
	Gz         bool    `toml:"gz"`
	Nc         int     `toml:"nc"`
	MaxIters   int     `toml:"maxiters"`
	MaxSecs    float64 `toml:"maxsecs"`
	Tol        float64 `toml:"tol"`
	Seed       uint64  `toml:"seed"`
	PrintEvery int     `toml:"printitn"`
	PerfEvery  int     `toml:"perfitn"`
	Output     string  `toml:"output"`
	InitFile   string  `toml:"init"`
	TensorType string  `toml:"tensor"`
	PlotFile   string  `toml:"plot"`
	Config     string  `toml:"-"`
}

func main() {
	opts := options{
		Nc:         16,
		MaxIters:   100,
		MaxSecs:    -1,
		Tol:        1e-4,
		Seed:       12345,
		PrintEvery: 1,
		TensorType: "row",
	}

	cmd := &cobra.Command{
		Use:           "cpals",
		Short:         "Fit a CP model to a sparse tensor via alternating least squares",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Config != "" {
				if err := loadConfig(cmd, &opts); err != nil {
					return err
				}
			}
			return run(&opts)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&opts.Input, "input", opts.Input, "sptensor file to factorize (required)")
	fl.IntVar(&opts.IndexBase, "index_base", opts.IndexBase, "index base of headerless input files (0 or 1)")
	fl.BoolVar(&opts.Gz, "gz", opts.Gz, "input file is gzip compressed")
	fl.IntVar(&opts.Nc, "nc", opts.Nc, "number of components")
	fl.IntVar(&opts.MaxIters, "maxiters", opts.MaxIters, "maximum outer iterations")
	fl.Float64Var(&opts.MaxSecs, "maxsecs", opts.MaxSecs, "wall-clock budget in seconds; negative for none")
	fl.Float64Var(&opts.Tol, "tol", opts.Tol, "stop tolerance on the fit change")
	fl.Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed for the initial guess")
	fl.IntVar(&opts.PrintEvery, "printitn", opts.PrintEvery, "log progress every n iterations; 0 disables")
	fl.IntVar(&opts.PerfEvery, "perfitn", opts.PerfEvery, "collect performance samples every n iterations; 0 disables")
	fl.StringVar(&opts.Output, "output", opts.Output, "write the resulting ktensor to this file")
	fl.StringVar(&opts.InitFile, "init", opts.InitFile, "read the initial guess ktensor from this file instead of random")
	fl.StringVar(&opts.TensorType, "tensor", opts.TensorType, "tensor layout: kokkos, perm or row")
	fl.StringVar(&opts.PlotFile, "plot", opts.PlotFile, "write a convergence plot to this image file (requires --perfitn)")
	fl.StringVar(&opts.Config, "config", opts.Config, "TOML file with flag defaults")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "*** %v\n", err)
		os.Exit(1)
	}
}

// loadConfig overlays TOML values for every flag the user did not set
// explicitly on the command line.
func loadConfig(cmd *cobra.Command, opts *options) error {
	data, err := os.ReadFile(opts.Config)
	if err != nil {
		return sparterrors.NewIOError("cpals", opts.Config, err)
	}
	var fileOpts options
	if err := toml.Unmarshal(data, &fileOpts); err != nil {
		return sparterrors.NewParseErrorf("cpals", "config %s: %v", opts.Config, err)
	}

	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if !set("input") && fileOpts.Input != "" {
		opts.Input = fileOpts.Input
	}
	if !set("index_base") && fileOpts.IndexBase != 0 {
		opts.IndexBase = fileOpts.IndexBase
	}
	if !set("gz") && fileOpts.Gz {
		opts.Gz = fileOpts.Gz
	}
	if !set("nc") && fileOpts.Nc != 0 {
		opts.Nc = fileOpts.Nc
	}
	if !set("maxiters") && fileOpts.MaxIters != 0 {
		opts.MaxIters = fileOpts.MaxIters
	}
	if !set("maxsecs") && fileOpts.MaxSecs != 0 {
		opts.MaxSecs = fileOpts.MaxSecs
	}
	if !set("tol") && fileOpts.Tol != 0 {
		opts.Tol = fileOpts.Tol
	}
	if !set("seed") && fileOpts.Seed != 0 {
		opts.Seed = fileOpts.Seed
	}
	if !set("printitn") && fileOpts.PrintEvery != 0 {
		opts.PrintEvery = fileOpts.PrintEvery
	}
	if !set("perfitn") && fileOpts.PerfEvery != 0 {
		opts.PerfEvery = fileOpts.PerfEvery
	}
	if !set("output") && fileOpts.Output != "" {
		opts.Output = fileOpts.Output
	}
	if !set("init") && fileOpts.InitFile != "" {
		opts.InitFile = fileOpts.InitFile
	}
	if !set("tensor") && fileOpts.TensorType != "" {
		opts.TensorType = fileOpts.TensorType
	}
	if !set("plot") && fileOpts.PlotFile != "" {
		opts.PlotFile = fileOpts.PlotFile
	}
	return nil
}

func run(opts *options) error {
	if opts.Input == "" {
		return sparterrors.NewValueError("cpals", "--input is required")
	}
	if opts.PrintEvery > 0 {
		log.SetLevel("info")
	}
	if opts.PlotFile != "" && opts.PerfEvery <= 0 {
		return sparterrors.NewValueError("cpals", "--plot requires --perfitn > 0")
	}

	start := time.Now()
	coo, err := tensorio.ImportSptensorFile(opts.Input, opts.IndexBase, opts.Gz)
	if err != nil {
		return err
	}
	fmt.Printf("Read tensor with %d nonzeros, dimensions %v (%.3f seconds)\n",
		coo.Nnz(), coo.Sizes(), time.Since(start).Seconds())

	var x tensor.SparseTensor
	switch opts.TensorType {
	case "kokkos":
		x = coo
	case "perm":
		x = tensor.NewSptensorPermFromCOO(coo)
	case "row":
		x = tensor.NewSptensorRowFromCOO(coo)
	default:
		return sparterrors.NewValueError("cpals", "unknown --tensor layout: "+opts.TensorType)
	}
	x.FillComplete()

	var u *tensor.Ktensor
	if opts.InitFile != "" {
		u, err = tensorio.ImportKtensorFile(opts.InitFile, false)
		if err != nil {
			return err
		}
	} else {
		rng := rand.New(rand.NewSource(int64(opts.Seed)))
		u, err = simulate.RandomKtensor(rng, opts.Nc, coo.Sizes())
		if err != nil {
			return err
		}
	}

	result, err := decomp.CpAls(x, u,
		decomp.WithTol(opts.Tol),
		decomp.WithMaxIters(opts.MaxIters),
		decomp.WithMaxSecs(opts.MaxSecs),
		decomp.WithPrintEvery(opts.PrintEvery),
		decomp.WithPerfEvery(opts.PerfEvery),
	)
	if err != nil {
		return err
	}

	fmt.Printf("CpAls completed %d iterations, fit = %.9f, resNorm = %g\n",
		result.NumIters, result.Fit, result.ResNorm)

	if opts.Output != "" {
		if err := tensorio.ExportKtensorFile(opts.Output, u); err != nil {
			return err
		}
		fmt.Printf("Wrote result ktensor to %s\n", opts.Output)
	}
	if opts.PlotFile != "" {
		if err := decomp.PlotPerfHistory(result.Perf, opts.PlotFile); err != nil {
			return err
		}
		fmt.Printf("Wrote convergence plot to %s\n", opts.PlotFile)
	}
	return nil
}
