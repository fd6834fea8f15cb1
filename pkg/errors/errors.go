// Package errors provides structured error types for tensor decomposition operations.
//
// This package defines the error taxonomy shared by all of the sparten packages:
//
//   - DimensionError: tensor / factor matrix shapes disagree
//   - RankError: factor matrices carry differing component counts
//   - IndexError: a subscript or mode index is out of range
//   - ParseError: a text tensor/matrix/ktensor file is malformed
//   - IOError: a file cannot be opened or a codec is unavailable
//   - SingularError: the normal equations of a solve step are numerically singular
//   - NumericError: a computed quantity is corrupt (negative residual, NaN/Inf)
//   - ValueError: an argument has an invalid value
//
// All types implement the standard error interface and work with errors.Is /
// errors.As through their sentinel values, so callers can branch on error kind
// without string matching:
//
//	_, err := decomp.CpAls(x, u)
//	if errors.Is(err, sparterrors.ErrSingularNormalEquations) {
//	    // retry with a different initial guess
//	}
//
// Wrapping and stack capture are delegated to github.com/cockroachdb/errors.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrDimensionMismatch indicates tensor and factor dimensions disagree.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrRankMismatch indicates factor matrices have differing column counts.
	ErrRankMismatch = errors.New("rank mismatch")

	// ErrIndexOutOfRange indicates a subscript or mode index is out of range.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrMalformedInput indicates a text parse failure.
	ErrMalformedInput = errors.New("malformed input")

	// ErrIOFailure indicates a file could not be opened or read.
	ErrIOFailure = errors.New("i/o failure")

	// ErrSingularNormalEquations indicates the coefficient matrix of a solve
	// step is numerically singular.
	ErrSingularNormalEquations = errors.New("singular normal equations")

	// ErrNegativeResidualNorm indicates the squared residual fell below the
	// small-negative roundoff threshold, pointing at numerical corruption.
	ErrNegativeResidualNorm = errors.New("negative residual norm")

	// ErrNonFiniteValue indicates a NaN or Inf was detected in a factor matrix.
	ErrNonFiniteValue = errors.New("non-finite value")
)

// DimensionError represents a shape mismatch between operands.
type DimensionError struct {
	Op       string // Operation that detected the mismatch
	Expected int    // Expected dimension
	Got      int    // Actual dimension
	Axis     int    // Axis (mode) where the mismatch occurred
}

// NewDimensionError creates a new DimensionError.
func NewDimensionError(op string, expected, got, axis int) *DimensionError {
	return &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch on axis %d: expected %d, got %d",
		e.Op, e.Axis, e.Expected, e.Got)
}

// Unwrap ties DimensionError to ErrDimensionMismatch for errors.Is.
func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// RankError represents factor matrices with inconsistent component counts.
type RankError struct {
	Op       string
	Expected int // Component count of the ktensor
	Got      int // Component count of the offending factor
	Mode     int // Mode of the offending factor
}

// NewRankError creates a new RankError.
func NewRankError(op string, expected, got, mode int) *RankError {
	return &RankError{Op: op, Expected: expected, Got: got, Mode: mode}
}

func (e *RankError) Error() string {
	return fmt.Sprintf("%s: factor %d has %d components, expected %d",
		e.Op, e.Mode, e.Got, e.Expected)
}

// Unwrap ties RankError to ErrRankMismatch for errors.Is.
func (e *RankError) Unwrap() error { return ErrRankMismatch }

// IndexError represents a subscript or mode index outside its valid range.
type IndexError struct {
	Op    string
	Index int // Offending index value
	Bound int // Exclusive upper bound
}

// NewIndexError creates a new IndexError.
func NewIndexError(op string, index, bound int) *IndexError {
	return &IndexError{Op: op, Index: index, Bound: bound}
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: index %d out of range [0, %d)", e.Op, e.Index, e.Bound)
}

// Unwrap ties IndexError to ErrIndexOutOfRange for errors.Is.
func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// ParseError represents a malformed text tensor/matrix/ktensor file.
type ParseError struct {
	Op      string
	Message string
}

// NewParseError creates a new ParseError.
func NewParseError(op, message string) *ParseError {
	return &ParseError{Op: op, Message: message}
}

// NewParseErrorf creates a new ParseError with a formatted message.
func NewParseErrorf(op, format string, args ...interface{}) *ParseError {
	return &ParseError{Op: op, Message: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap ties ParseError to ErrMalformedInput for errors.Is.
func (e *ParseError) Unwrap() error { return ErrMalformedInput }

// IOError represents a failed file operation, carrying the offending path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

// NewIOError creates a new IOError wrapping the underlying cause.
func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

func (e *IOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: cannot access %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: cannot access %q", e.Op, e.Path)
}

// Unwrap ties IOError to ErrIOFailure for errors.Is.
func (e *IOError) Unwrap() error { return ErrIOFailure }

// SingularError represents a numerically singular coefficient matrix in the
// normal-equations solve of CP-ALS.
type SingularError struct {
	Op   string
	Mode int // Mode being solved when singularity was detected
}

// NewSingularError creates a new SingularError.
func NewSingularError(op string, mode int) *SingularError {
	return &SingularError{Op: op, Mode: mode}
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("%s: normal equations are singular while solving mode %d",
		e.Op, e.Mode)
}

// Unwrap ties SingularError to ErrSingularNormalEquations for errors.Is.
func (e *SingularError) Unwrap() error { return ErrSingularNormalEquations }

// NumericError represents a corrupt computed quantity, such as a residual
// norm below the roundoff threshold or a non-finite factor entry.
type NumericError struct {
	Op      string
	Message string
	Kind    error // ErrNegativeResidualNorm or ErrNonFiniteValue
}

// NewNumericError creates a new NumericError of the given kind.
func NewNumericError(op, message string, kind error) *NumericError {
	return &NumericError{Op: op, Message: message, Kind: kind}
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the sentinel kind for errors.Is.
func (e *NumericError) Unwrap() error { return e.Kind }

// ValueError represents an argument with an invalid value.
type ValueError struct {
	Op      string
	Message string
}

// NewValueError creates a new ValueError.
func NewValueError(op, message string) *ValueError {
	return &ValueError{Op: op, Message: message}
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Newf creates a formatted error with stack capture.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// Wrapf annotates err with a formatted message, preserving the chain.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Recover converts a panic into an error assigned to *errp, annotated with op.
// Intended for use as a deferred call at the top of exported entry points:
//
//	func (m *FacMatrix) Gramian(u *FacMatrix) (err error) {
//	    defer sparterrors.Recover(&err, "FacMatrix.Gramian")
//	    ...
//	}
func Recover(errp *error, op string) {
	if r := recover(); r != nil {
		if err, ok := r.(error); ok {
			*errp = errors.Wrapf(err, "%s: panic", op)
		} else {
			*errp = errors.Newf("%s: panic: %v", op, r)
		}
	}
}
