package tensorio

import (
	"fmt"
	"io"

	"github.com/ezoic/sparten/core/tensor"
)

const printRule = "-----------------------------------"

// FprintSptensor writes a human-readable dump of x, one nonzero per line.
func FprintSptensor(w io.Writer, x *tensor.Sptensor, name string) {
	if name == "" {
		name = "sptensor"
	}
	fmt.Fprintln(w, printRule)
	fmt.Fprintln(w, name)
	fmt.Fprintln(w, printRule)

	fmt.Fprintln(w, "Ndims =", x.Ndims())
	fmt.Fprint(w, "Size = [ ")
	for d := 0; d < x.Ndims(); d++ {
		fmt.Fprintf(w, "%d ", x.Size(d))
	}
	fmt.Fprintln(w, "]")
	fmt.Fprintln(w, "NNZ =", x.Nnz())

	for i := 0; i < x.Nnz(); i++ {
		fmt.Fprint(w, "X(")
		for d := 0; d < x.Ndims(); d++ {
			fmt.Fprint(w, x.Subscript(i, d))
			if d < x.Ndims()-1 {
				fmt.Fprint(w, ",")
			}
		}
		fmt.Fprintf(w, ") = %v\n", x.Value(i))
	}
	fmt.Fprintln(w, printRule)
}

// FprintMatrix writes a human-readable dump of m, one entry per line in
// column-major order.
func FprintMatrix(w io.Writer, m *tensor.FacMatrix, name string) {
	if name == "" {
		name = "matrix"
	}
	fmt.Fprintln(w, printRule)
	fmt.Fprintln(w, name)
	fmt.Fprintln(w, printRule)

	fmt.Fprintf(w, "Size = [ %d %d ]\n", m.NRows(), m.NCols())
	for j := 0; j < m.NCols(); j++ {
		for i := 0; i < m.NRows(); i++ {
			fmt.Fprintf(w, "X(%d,%d) = %v\n", i, j, m.Entry(i, j))
		}
	}
	fmt.Fprintln(w, printRule)
}

// FprintKtensor writes a human-readable dump of k: sizes, weights, then each
// factor entry.
func FprintKtensor(w io.Writer, k *tensor.Ktensor, name string) {
	if name == "" {
		name = "ktensor"
	}
	fmt.Fprintln(w, printRule)
	fmt.Fprintln(w, name)
	fmt.Fprintln(w, printRule)

	fmt.Fprintf(w, "Ndims = %d    Ncomps = %d\n", k.Ndims(), k.Ncomponents())
	fmt.Fprint(w, "Size = [ ")
	for d := 0; d < k.Ndims(); d++ {
		fmt.Fprintf(w, "%d ", k.Factor(d).NRows())
	}
	fmt.Fprintln(w, "]")
	fmt.Fprint(w, "Weights = [ ")
	for _, wgt := range k.Weights() {
		fmt.Fprintf(w, "%v ", wgt)
	}
	fmt.Fprintln(w, "]")

	for d := 0; d < k.Ndims(); d++ {
		fmt.Fprintln(w, "Factor", d)
		f := k.Factor(d)
		for j := 0; j < f.NCols(); j++ {
			for i := 0; i < f.NRows(); i++ {
				fmt.Fprintf(w, "f%d(%d,%d) = %v\n", d, i, j, f.Entry(i, j))
			}
		}
	}
	fmt.Fprintln(w, printRule)
}
