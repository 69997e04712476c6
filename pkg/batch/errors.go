package batch

import "errors"

var (
	// ErrTypeMismatch is returned when a write's runtime type disagrees
	// with the column's declared type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrDimensionMismatch is returned when an f32vec row has a length
	// other than the column's dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrOutOfBounds is returned for row indices outside [0, len).
	ErrOutOfBounds = errors.New("row index out of bounds")

	// ErrRowCountMismatch is returned when an installed column is shorter
	// than the batch's row count.
	ErrRowCountMismatch = errors.New("column row count mismatch")

	// ErrColumnConflict is returned by Concat when the same key appears
	// with different column types across inputs. This indicates a
	// programming error upstream of the concatenation.
	ErrColumnConflict = errors.New("conflicting column types")
)
