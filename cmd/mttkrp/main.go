// Command mttkrp benchmarks the MTTKRP kernels over the three sparse tensor
// layouts, on a tensor read from file or sampled from a random ktensor.
package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
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
	Input      string `toml:"input"`
	IndexBase  int    `toml:"index_base"`
	Gz         bool   `toml:"gz"`
	Dims       string `toml:"dims"`
	Nnz        int    `toml:"nnz"`
	Nc         int    `toml:"nc"`
	Iters      int    `toml:"iters"`
	Seed       uint64 `toml:"seed"`
	Check      bool   `toml:"check"`
	TensorType string `toml:"tensor"`
	Config     string `toml:"-"`
	Verbose    bool   `toml:"verbose"`
}

func main() {
	opts := options{
		IndexBase:  0,
		Dims:       "[30,40,50]",
		Nnz:        1_000_000,
		Nc:         32,
		Iters:      10,
		Seed:       12345,
		TensorType: "kokkos",
	}

	cmd := &cobra.Command{
		Use:           "mttkrp",
		Short:         "Benchmark sparse MTTKRP kernels",
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
	fl.StringVar(&opts.Input, "input", opts.Input, "sptensor file to benchmark; empty generates a random tensor")
	fl.IntVar(&opts.IndexBase, "index_base", opts.IndexBase, "index base of headerless input files (0 or 1)")
	fl.BoolVar(&opts.Gz, "gz", opts.Gz, "input file is gzip compressed")
	fl.StringVar(&opts.Dims, "dims", opts.Dims, "mode sizes of the generated tensor, e.g. [30,40,50]")
	fl.IntVar(&opts.Nnz, "nnz", opts.Nnz, "maximum nonzeros of the generated tensor")
	fl.IntVar(&opts.Nc, "nc", opts.Nc, "number of components")
	fl.IntVar(&opts.Iters, "iters", opts.Iters, "benchmark iterations")
	fl.Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	fl.BoolVar(&opts.Check, "check", opts.Check, "validate results against the COO reference kernel")
	fl.StringVar(&opts.TensorType, "tensor", opts.TensorType, "tensor layout: kokkos, perm or row")
	fl.StringVar(&opts.Config, "config", opts.Config, "TOML file with flag defaults")
	fl.BoolVar(&opts.Verbose, "verbose", opts.Verbose, "enable info logging")

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
		return sparterrors.NewIOError("mttkrp", opts.Config, err)
	}
	var fileOpts options
	if err := toml.Unmarshal(data, &fileOpts); err != nil {
		return sparterrors.NewParseErrorf("mttkrp", "config %s: %v", opts.Config, err)
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
	if !set("dims") && fileOpts.Dims != "" {
		opts.Dims = fileOpts.Dims
	}
	if !set("nnz") && fileOpts.Nnz != 0 {
		opts.Nnz = fileOpts.Nnz
	}
	if !set("nc") && fileOpts.Nc != 0 {
		opts.Nc = fileOpts.Nc
	}
	if !set("iters") && fileOpts.Iters != 0 {
		opts.Iters = fileOpts.Iters
	}
	if !set("seed") && fileOpts.Seed != 0 {
		opts.Seed = fileOpts.Seed
	}
	if !set("check") && fileOpts.Check {
		opts.Check = fileOpts.Check
	}
	if !set("tensor") && fileOpts.TensorType != "" {
		opts.TensorType = fileOpts.TensorType
	}
	return nil
}

// parseDims parses "[30,40,50]" (brackets optional) into mode sizes.
func parseDims(s string) ([]int, error) {
	s = strings.Trim(s, "[] ")
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) == 0 {
		return nil, sparterrors.NewValueError("mttkrp", "empty --dims")
	}
	dims := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 {
			return nil, sparterrors.NewValueError("mttkrp", "bad --dims entry: "+p)
		}
		dims[i] = v
	}
	return dims, nil
}

// wrapLayout converts a COO tensor into the requested kernel layout.
func wrapLayout(x *tensor.Sptensor, layout string) (tensor.SparseTensor, error) {
	switch layout {
	case "kokkos", "":
		return x, nil
	case "perm":
		return tensor.NewSptensorPermFromCOO(x), nil
	case "row":
		return tensor.NewSptensorRowFromCOO(x), nil
	default:
		return nil, sparterrors.NewValueError("mttkrp", "unknown --tensor layout: "+layout)
	}
}

func run(opts *options) error {
	if opts.Verbose {
		log.SetLevel("info")
	}
	rng := rand.New(rand.NewSource(int64(opts.Seed)))

	var coo *tensor.Sptensor
	if opts.Input != "" {
		start := time.Now()
		x, err := tensorio.ImportSptensorFile(opts.Input, opts.IndexBase, opts.Gz)
		if err != nil {
			return err
		}
		coo = x
		fmt.Printf("Data import took %6.3f seconds\n", time.Since(start).Seconds())
	} else {
		dims, err := parseDims(opts.Dims)
		if err != nil {
			return err
		}
		fmt.Printf("Will construct a random Ktensor/Sptensor pair:\n")
		fmt.Printf("  Ndims = %d,  Size = %v\n", len(dims), dims)
		fmt.Printf("  Ncomps = %d\n", opts.Nc)
		fmt.Printf("  Maximum nnz = %d\n", opts.Nnz)
		start := time.Now()
		x, _, err := simulate.GenSpFromRndKtensor(rng, dims, opts.Nc, opts.Nnz)
		if err != nil {
			return err
		}
		coo = x
		fmt.Printf("  (data generation took %6.3f seconds)\n", time.Since(start).Seconds())
		fmt.Printf("  Actual nnz  = %d\n", coo.Nnz())
	}

	x, err := wrapLayout(coo, opts.TensorType)
	if err != nil {
		return err
	}

	nd := coo.Ndims()
	input, err := simulate.RandomKtensor(rng, opts.Nc, coo.Sizes())
	if err != nil {
		return err
	}

	result := make([]*tensor.FacMatrix, nd)
	for n := 0; n < nd; n++ {
		v, err := tensor.NewFacMatrix(coo.Size(n), opts.Nc)
		if err != nil {
			return err
		}
		result[n] = v
	}

	start := time.Now()
	x.FillComplete()
	fmt.Printf("  (fillComplete() took %6.3f seconds)\n", time.Since(start).Seconds())

	fmt.Printf("Performing %d iterations of MTTKRP\n", opts.Iters)
	modeTime := make([]time.Duration, nd)
	for iter := 0; iter < opts.Iters; iter++ {
		for n := 0; n < nd; n++ {
			t0 := time.Now()
			if err := decomp.Mttkrp(x, input, n, result[n]); err != nil {
				return err
			}
			modeTime[n] += time.Since(t0)
		}
	}

	flops := float64(coo.Nnz()) * float64(opts.Nc) * float64(nd+1)
	fmt.Println("MTTKRP performance:")
	var total float64
	for n := 0; n < nd; n++ {
		avg := modeTime[n].Seconds() / float64(opts.Iters)
		total += avg
		fmt.Printf("  mode %d: %.3f GFLOP/s (%.4fs per call)\n",
			n, flops/avg/(1024*1024*1024), avg)
	}
	fmt.Printf("  all modes: %.3f GFLOP/s\n",
		float64(nd)*flops/total/(1024*1024*1024))

	if opts.Check {
		if err := checkAgainstCOO(coo, input, result); err != nil {
			return err
		}
		fmt.Println("Check passed: all modes match the COO reference")
	}
	return nil
}

// checkAgainstCOO recomputes each mode with the COO kernel and compares
// within the roundoff bound for reordered summation.
func checkAgainstCOO(coo *tensor.Sptensor, input *tensor.Ktensor, result []*tensor.FacMatrix) error {
	eps := math.Nextafter(1, 2) - 1
	for n := 0; n < coo.Ndims(); n++ {
		ref, err := tensor.NewFacMatrix(coo.Size(n), input.Ncomponents())
		if err != nil {
			return err
		}
		if err := decomp.Mttkrp(coo, input, n, ref); err != nil {
			return err
		}
		var diff, norm float64
		for i := 0; i < ref.NRows(); i++ {
			for j := 0; j < ref.NCols(); j++ {
				d := ref.Entry(i, j) - result[n].Entry(i, j)
				diff += d * d
				norm += ref.Entry(i, j) * ref.Entry(i, j)
			}
		}
		if norm > 0 && math.Sqrt(diff/norm) > 1e3*eps {
			return sparterrors.Newf(
				"mttkrp: mode %d result differs from COO reference by %g",
				n, math.Sqrt(diff/norm))
		}
	}
	return nil
}
