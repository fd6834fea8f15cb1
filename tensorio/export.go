package tensorio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ezoic/sparten/core/tensor"
	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// ExportOption configures number formatting and index base for the export
// functions.
type ExportOption func(*exportOptions)

type exportOptions struct {
	scientific bool
	digits     int
	oneBased   bool
}

func defaultExportOptions() exportOptions {
	return exportOptions{scientific: true, digits: 15}
}

// WithScientific selects scientific (true, default) or fixed (false)
// notation.
func WithScientific(enable bool) ExportOption {
	return func(o *exportOptions) { o.scientific = enable }
}

// WithDigits sets the number of decimal digits written (default 15).
func WithDigits(n int) ExportOption {
	return func(o *exportOptions) { o.digits = n }
}

// WithOneBasedIndices writes subscripts starting at one and tags the header
// accordingly. Applies to sptensor export only.
func WithOneBasedIndices() ExportOption {
	return func(o *exportOptions) { o.oneBased = true }
}

func (o *exportOptions) formatReal(v float64) string {
	if o.scientific {
		return strconv.FormatFloat(v, 'e', o.digits, 64)
	}
	return strconv.FormatFloat(v, 'f', o.digits, 64)
}

// ExportSptensor writes x in sptensor text format.
func ExportSptensor(w io.Writer, x *tensor.Sptensor, opts ...ExportOption) error {
	o := defaultExportOptions()
	for _, apply := range opts {
		apply(&o)
	}

	bw := bufio.NewWriter(w)
	if o.oneBased {
		fmt.Fprintln(bw, "sptensor indices-start-at-one")
	} else {
		fmt.Fprintln(bw, "sptensor")
	}
	fmt.Fprintln(bw, x.Ndims())
	for d := 0; d < x.Ndims(); d++ {
		if d > 0 {
			fmt.Fprint(bw, " ")
		}
		fmt.Fprint(bw, x.Size(d))
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, x.Nnz())

	offset := 0
	if o.oneBased {
		offset = 1
	}
	for i := 0; i < x.Nnz(); i++ {
		for d := 0; d < x.Ndims(); d++ {
			fmt.Fprintf(bw, "%d ", x.Subscript(i, d)+offset)
		}
		fmt.Fprintln(bw, o.formatReal(x.Value(i)))
	}
	return bw.Flush()
}

// ExportSptensorFile writes x to a file in sptensor text format.
func ExportSptensorFile(path string, x *tensor.Sptensor, opts ...ExportOption) error {
	const op = "tensorio.ExportSptensorFile"
	f, err := os.Create(path)
	if err != nil {
		return sparterrors.NewIOError(op, path, err)
	}
	if err := ExportSptensor(f, x, opts...); err != nil {
		f.Close()
		return sparterrors.Wrapf(err, "%s: %s", op, path)
	}
	if err := f.Close(); err != nil {
		return sparterrors.NewIOError(op, path, err)
	}
	return nil
}

// ExportMatrix writes m in matrix text format.
func ExportMatrix(w io.Writer, m *tensor.FacMatrix, opts ...ExportOption) error {
	o := defaultExportOptions()
	for _, apply := range opts {
		apply(&o)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "matrix")
	fmt.Fprintln(bw, 2)
	fmt.Fprintln(bw, m.NRows(), m.NCols())
	for i := 0; i < m.NRows(); i++ {
		for j := 0; j < m.NCols(); j++ {
			if j > 0 {
				fmt.Fprint(bw, " ")
			}
			fmt.Fprint(bw, o.formatReal(m.Entry(i, j)))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// ExportMatrixFile writes m to a file in matrix text format.
func ExportMatrixFile(path string, m *tensor.FacMatrix, opts ...ExportOption) error {
	const op = "tensorio.ExportMatrixFile"
	f, err := os.Create(path)
	if err != nil {
		return sparterrors.NewIOError(op, path, err)
	}
	if err := ExportMatrix(f, m, opts...); err != nil {
		f.Close()
		return sparterrors.Wrapf(err, "%s: %s", op, path)
	}
	if err := f.Close(); err != nil {
		return sparterrors.NewIOError(op, path, err)
	}
	return nil
}

// ExportKtensor writes k in ktensor text format: header lines followed by
// one embedded matrix block per mode.
func ExportKtensor(w io.Writer, k *tensor.Ktensor, opts ...ExportOption) error {
	o := defaultExportOptions()
	for _, apply := range opts {
		apply(&o)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "ktensor")
	fmt.Fprintln(bw, k.Ndims())
	for d := 0; d < k.Ndims(); d++ {
		if d > 0 {
			fmt.Fprint(bw, " ")
		}
		fmt.Fprint(bw, k.Factor(d).NRows())
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, k.Ncomponents())
	for j, wgt := range k.Weights() {
		if j > 0 {
			fmt.Fprint(bw, " ")
		}
		fmt.Fprint(bw, o.formatReal(wgt))
	}
	fmt.Fprintln(bw)
	if err := bw.Flush(); err != nil {
		return err
	}

	for d := 0; d < k.Ndims(); d++ {
		if err := ExportMatrix(w, k.Factor(d), opts...); err != nil {
			return err
		}
	}
	return nil
}

// ExportKtensorFile writes k to a file in ktensor text format.
func ExportKtensorFile(path string, k *tensor.Ktensor, opts ...ExportOption) error {
	const op = "tensorio.ExportKtensorFile"
	f, err := os.Create(path)
	if err != nil {
		return sparterrors.NewIOError(op, path, err)
	}
	if err := ExportKtensor(f, k, opts...); err != nil {
		f.Close()
		return sparterrors.Wrapf(err, "%s: %s", op, path)
	}
	if err := f.Close(); err != nil {
		return sparterrors.NewIOError(op, path, err)
	}
	return nil
}
