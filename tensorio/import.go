package tensorio

import (
	"io"
	"strconv"

	"github.com/ezoic/sparten/core/tensor"
	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// readPositiveInts reads one content line holding exactly count positive
// integers.
func readPositiveInts(lr *lineReader, count int, op string) ([]int, error) {
	line, ok := lr.next()
	if !ok {
		return nil, sparterrors.NewParseError(op, "cannot read line from file")
	}
	tokens := splitTokens(line)
	if len(tokens) != count {
		return nil, sparterrors.NewParseErrorf(op,
			"line contains %d integers, expecting %d", len(tokens), count)
	}
	out := make([]int, count)
	for i, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, sparterrors.NewParseErrorf(op, "not an integer: %q", tok)
		}
		if v <= 0 {
			return nil, sparterrors.NewParseErrorf(op,
				"line must contain positive integers, [%d] is not", i)
		}
		out[i] = v
	}
	return out, nil
}

// ImportSptensor reads a sparse tensor in sptensor text format. indexBase is
// used only for headerless files; a header's index-base tag takes precedence.
func ImportSptensor(r io.Reader, indexBase int) (*tensor.Sptensor, error) {
	const op = "tensorio.ImportSptensor"
	lr := newLineReader(r)

	line, ok := lr.next()
	if !ok {
		return nil, sparterrors.NewParseError(op, "tensor must have at least one nonzero or a header")
	}
	tokens := splitTokens(line)

	offset := indexBase
	var nModes, declaredNnz int
	var dims []int
	var subs []int
	var vals []float64
	computeDims := true

	if tokens[0] == "sptensor" {
		tagOffset, err := parseIndexBaseTag(op, tokens)
		if err != nil {
			return nil, err
		}
		offset = tagOffset

		naModes, err := readPositiveInts(lr, 1, op+", line 2")
		if err != nil {
			return nil, err
		}
		nModes = naModes[0]
		dims, err = readPositiveInts(lr, nModes, op+", line 3")
		if err != nil {
			return nil, err
		}
		naNnz, err := readPositiveInts(lr, 1, op+", line 4")
		if err != nil {
			return nil, err
		}
		declaredNnz = naNnz[0]
		computeDims = false
		subs = make([]int, 0, declaredNnz*nModes)
		vals = make([]float64, 0, declaredNnz)
	} else {
		// Headerless: this line is the first nonzero and defines the mode
		// count; dimensions are grown as nonzeros arrive.
		nModes = len(tokens) - 1
		if nModes < 1 {
			return nil, sparterrors.NewParseErrorf(op, "invalid line: %s", line)
		}
		dims = make([]int, nModes)
		sub, val, err := parseNonzero(op, tokens, nModes, offset, 1)
		if err != nil {
			return nil, err
		}
		for d, s := range sub {
			dims[d] = s + 1
		}
		subs = append(subs, sub...)
		vals = append(vals, val)
	}

	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		tokens = splitTokens(line)
		if len(tokens) != nModes+1 {
			return nil, sparterrors.NewParseErrorf(op,
				"error reading nonzero %d: %s", len(vals)+1, line)
		}
		sub, val, err := parseNonzero(op, tokens, nModes, offset, len(vals)+1)
		if err != nil {
			return nil, err
		}
		if computeDims {
			for d, s := range sub {
				if s+1 > dims[d] {
					dims[d] = s + 1
				}
			}
		}
		subs = append(subs, sub...)
		vals = append(vals, val)
	}

	if !computeDims && len(vals) != declaredNnz {
		return nil, sparterrors.NewParseErrorf(op,
			"expected %d nonzeros, found %d", declaredNnz, len(vals))
	}

	// Revalidate against the declared sizes.
	for i := 0; i < len(vals); i++ {
		for d := 0; d < nModes; d++ {
			s := subs[i*nModes+d]
			if s < 0 || s >= dims[d] {
				return nil, sparterrors.NewIndexError(op, s, dims[d])
			}
		}
	}

	rows := make([][]int, len(vals))
	for i := range rows {
		rows[i] = subs[i*nModes : (i+1)*nModes]
	}
	return tensor.NewSptensor(dims, rows, vals)
}

// parseNonzero parses one "s_0 ... s_{N-1} value" line, applying the index
// offset.
func parseNonzero(op string, tokens []string, nModes, offset, lineno int) ([]int, float64, error) {
	sub := make([]int, nModes)
	for d := 0; d < nModes; d++ {
		v, err := strconv.Atoi(tokens[d])
		if err != nil {
			return nil, 0, sparterrors.NewParseErrorf(op,
				"error reading nonzero %d: bad subscript %q", lineno, tokens[d])
		}
		sub[d] = v - offset
		if sub[d] < 0 {
			return nil, 0, sparterrors.NewParseErrorf(op,
				"error reading nonzero %d: subscript %d below index base", lineno, v)
		}
	}
	val, err := strconv.ParseFloat(tokens[nModes], 64)
	if err != nil {
		return nil, 0, sparterrors.NewParseErrorf(op,
			"error reading nonzero %d: bad value %q", lineno, tokens[nModes])
	}
	return sub, val, nil
}

// ImportSptensorFile reads a sparse tensor from a file, optionally gzip
// compressed.
func ImportSptensorFile(path string, indexBase int, gz bool) (*tensor.Sptensor, error) {
	const op = "tensorio.ImportSptensorFile"
	r, closer, err := openMaybeGzip(op, path, gz)
	if err != nil {
		return nil, err
	}
	defer closer()
	x, err := ImportSptensor(r, indexBase)
	if err != nil {
		return nil, sparterrors.Wrapf(err, "%s: %s", op, path)
	}
	return x, nil
}

// importMatrixFrom reads one matrix block from an open line reader, leaving
// the reader positioned after the block so multiple matrices can share a
// stream (as in the ktensor format).
func importMatrixFrom(lr *lineReader) (*tensor.FacMatrix, error) {
	const op = "tensorio.ImportMatrix"

	line, ok := lr.next()
	if !ok {
		return nil, sparterrors.NewParseError(op, "cannot read header line")
	}
	tokens := splitTokens(line)
	if tokens[0] != "matrix" && tokens[0] != "facmatrix" {
		return nil, sparterrors.NewParseError(op, "data type header is not 'matrix'")
	}
	// The index-base tag is recognized but informational for matrices.
	if _, err := parseIndexBaseTag(op, tokens); err != nil {
		return nil, err
	}

	naModes, err := readPositiveInts(lr, 1, op+", number of dimensions")
	if err != nil {
		return nil, err
	}
	if naModes[0] != 2 {
		return nil, sparterrors.NewParseError(op, "illegal number of dimensions")
	}
	shape, err := readPositiveInts(lr, 2, op+", shape line")
	if err != nil {
		return nil, err
	}
	nRows, nCols := shape[0], shape[1]

	data := make([]float64, nRows*nCols)
	for i := 0; i < nRows; i++ {
		line, ok := lr.next()
		if !ok {
			return nil, sparterrors.NewParseErrorf(op, "error reading row %d of %d", i, nRows)
		}
		tokens := splitTokens(line)
		if len(tokens) != nCols {
			return nil, sparterrors.NewParseErrorf(op,
				"wrong number of values in row %d: expected %d, got %d", i, nCols, len(tokens))
		}
		for j, tok := range tokens {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, sparterrors.NewParseErrorf(op,
					"error reading column %d of row %d: %q", j, i, tok)
			}
			data[i*nCols+j] = v
		}
	}
	return tensor.NewFacMatrixFromData(data, nRows, nCols)
}

// ImportMatrix reads a factor matrix in matrix/facmatrix text format.
// Content past the matrix block is ignored, allowing multiple matrices per
// stream.
func ImportMatrix(r io.Reader) (*tensor.FacMatrix, error) {
	return importMatrixFrom(newLineReader(r))
}

// ImportMatrixFile reads a factor matrix from a file, optionally gzip
// compressed. The file must contain exactly one matrix.
func ImportMatrixFile(path string, gz bool) (*tensor.FacMatrix, error) {
	const op = "tensorio.ImportMatrixFile"
	r, closer, err := openMaybeGzip(op, path, gz)
	if err != nil {
		return nil, err
	}
	defer closer()
	lr := newLineReader(r)
	m, err := importMatrixFrom(lr)
	if err != nil {
		return nil, sparterrors.Wrapf(err, "%s: %s", op, path)
	}
	if err := lr.verifyEOF(op); err != nil {
		return nil, sparterrors.Wrapf(err, "%s: %s", op, path)
	}
	return m, nil
}

// ImportKtensor reads a ktensor in text format: header, mode count, mode
// sizes, component count, weight line, then one embedded matrix block per
// mode.
func ImportKtensor(r io.Reader) (*tensor.Ktensor, error) {
	return importKtensorFrom(newLineReader(r))
}

func importKtensorFrom(lr *lineReader) (*tensor.Ktensor, error) {
	const op = "tensorio.ImportKtensor"

	line, ok := lr.next()
	if !ok {
		return nil, sparterrors.NewParseError(op, "cannot read header line")
	}
	tokens := splitTokens(line)
	if tokens[0] != "ktensor" {
		return nil, sparterrors.NewParseError(op, "data type header is not 'ktensor'")
	}
	if _, err := parseIndexBaseTag(op, tokens); err != nil {
		return nil, err
	}

	naModes, err := readPositiveInts(lr, 1, op+", line 2")
	if err != nil {
		return nil, err
	}
	nModes := naModes[0]
	sizes, err := readPositiveInts(lr, nModes, op+", line 3")
	if err != nil {
		return nil, err
	}
	naComps, err := readPositiveInts(lr, 1, op+", line 4")
	if err != nil {
		return nil, err
	}
	nComps := naComps[0]

	line, ok = lr.next()
	if !ok {
		return nil, sparterrors.NewParseError(op, "cannot read line with weights")
	}
	tokens = splitTokens(line)
	if len(tokens) != nComps {
		return nil, sparterrors.NewParseErrorf(op,
			"wrong number of weights: expected %d, got %d", nComps, len(tokens))
	}
	weights := make([]float64, nComps)
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, sparterrors.NewParseErrorf(op, "error reading weight %d: %q", i, tok)
		}
		if v < 0 {
			return nil, sparterrors.NewParseError(op, "factor weight cannot be negative")
		}
		weights[i] = v
	}

	factors := make([]*tensor.FacMatrix, nModes)
	for d := 0; d < nModes; d++ {
		f, err := importMatrixFrom(lr)
		if err != nil {
			return nil, err
		}
		if f.NRows() != sizes[d] || f.NCols() != nComps {
			return nil, sparterrors.NewParseErrorf(op,
				"factor matrix %d is not the correct size, expecting %d by %d",
				d, sizes[d], nComps)
		}
		factors[d] = f
	}

	return tensor.NewKtensorFromFactors(factors, weights)
}

// ImportKtensorFile reads a ktensor from a file, optionally gzip compressed.
func ImportKtensorFile(path string, gz bool) (*tensor.Ktensor, error) {
	const op = "tensorio.ImportKtensorFile"
	r, closer, err := openMaybeGzip(op, path, gz)
	if err != nil {
		return nil, err
	}
	defer closer()
	lr := newLineReader(r)
	k, err := importKtensorFrom(lr)
	if err != nil {
		return nil, sparterrors.Wrapf(err, "%s: %s", op, path)
	}
	if err := lr.verifyEOF(op); err != nil {
		return nil, sparterrors.Wrapf(err, "%s: %s", op, path)
	}
	return k, nil
}
