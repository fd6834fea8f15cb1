// Package tensorio reads and writes the text formats for sparse tensors,
// factor matrices and ktensors.
//
// All three formats share a leading keyword line (sptensor, matrix,
// facmatrix, ktensor), optionally followed by an index-base tag
// (indices-start-at-zero or indices-start-at-one; absent means zero-based).
// Blank lines and lines starting with // are ignored everywhere, and a
// trailing carriage return is stripped from every line. A sptensor file
// without a header is interpreted as raw nonzero lines: the mode count is
// taken from the first line and the mode sizes are the per-mode maxima plus
// one, with the index base supplied by the caller.
//
// Gzip-compressed files are supported by the Import*File functions via the gz
// argument; the Export*File functions write plain text only.
package tensorio

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strings"

	sparterrors "github.com/ezoic/sparten/pkg/errors"
)

// lineReader yields content lines: comments and blank lines skipped,
// whitespace trimmed, trailing '\r' removed.
type lineReader struct {
	sc *bufio.Scanner
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &lineReader{sc: sc}
}

// next returns the next content line and true, or "", false at EOF.
func (lr *lineReader) next() (string, bool) {
	for lr.sc.Scan() {
		line := lr.sc.Text()
		line = strings.TrimSuffix(line, "\r")
		line = strings.Trim(line, " \t")
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		return line, true
	}
	return "", false
}

// verifyEOF returns an error if any content line remains.
func (lr *lineReader) verifyEOF(op string) error {
	if _, ok := lr.next(); ok {
		return sparterrors.NewParseError(op, "extra lines found after last element")
	}
	return nil
}

// splitTokens splits a content line on blanks and tabs.
func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
}

// parseIndexBaseTag interprets the optional second token of a header line.
// Returns the offset (0 or 1).
func parseIndexBaseTag(op string, tokens []string) (int, error) {
	if len(tokens) > 2 {
		return 0, sparterrors.NewParseError(op, "bad format for first line")
	}
	if len(tokens) == 2 {
		switch tokens[1] {
		case "indices-start-at-zero":
			return 0, nil
		case "indices-start-at-one":
			return 1, nil
		default:
			return 0, sparterrors.NewParseError(op,
				"2nd word on first line must be 'indices-start-at-zero' or 'indices-start-at-one'")
		}
	}
	return 0, nil
}

// openMaybeGzip opens a file, wrapping it in a gzip reader when gz is set.
// The returned closer closes both layers.
func openMaybeGzip(op, path string, gz bool) (io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, sparterrors.NewIOError(op, path, err)
	}
	if !gz {
		return f, f.Close, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, sparterrors.NewIOError(op, path, err)
	}
	closer := func() error {
		zerr := zr.Close()
		ferr := f.Close()
		if zerr != nil {
			return zerr
		}
		return ferr
	}
	return zr, closer, nil
}
