package domain

import "errors"

// Common domain errors that can occur during reconciliation operations.
var (
	// ErrInvalidInput indicates that an operation received input that is
	// not a usable collection of orderings or identifier sequences.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidOrderingShape indicates that an ordering record is
	// malformed, for example it lacks an item sequence entirely.
	ErrInvalidOrderingShape = errors.New("invalid ordering shape")

	// ErrDuplicateItem indicates that an identifier appears more than once
	// within a single ordering or consensus sequence.
	ErrDuplicateItem = errors.New("duplicate item")

	// ErrInvalidWeight indicates that a merge weight is outside the
	// inclusive [0, 1] range or is not a number.
	ErrInvalidWeight = errors.New("invalid merge weight")
)
