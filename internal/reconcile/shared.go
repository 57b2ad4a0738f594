// Package reconcile provides the deterministic compute units that turn
// participants' proposed review orderings into a consensus ordering and
// the artifacts derived from it: agreement metadata, weighted merges,
// integrity verdicts, positional diffs, and rename pairings.
//
// Every unit is stateless after construction and safe for concurrent use.
// Context parameters carry tracing spans only; the math itself has no
// cancellation points.
package reconcile

import (
	"errors"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Resource guards bounding pathological inputs. Ordinary reviews sit far
// below these limits.
const (
	// MaxOrderings caps how many orderings a single computation accepts.
	MaxOrderings = 10_000

	// MaxUniqueItems caps the size of the identifier union across all
	// orderings in a single computation.
	MaxUniqueItems = 100_000

	// MaxRenameCandidates caps either side of a rename pairing, which
	// compares the two sides pairwise.
	MaxRenameCandidates = 1_000
)

// Common errors returned by reconciliation units.
var (
	// ErrEmptyName is returned when a unit is created without a name.
	ErrEmptyName = errors.New("unit name cannot be empty")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// meanInts returns the arithmetic mean of xs. The caller guarantees xs is
// non-empty.
func meanInts(xs []int) float64 {
	var sum int
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

// stdDevInts returns the population standard deviation of xs around the
// provided mean. The caller guarantees xs is non-empty.
func stdDevInts(xs []int, mean float64) float64 {
	var sum float64
	for _, x := range xs {
		d := float64(x) - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// medianInts returns the median of xs without mutating it, using the
// arithmetic mean of the two middle elements for even counts.
func medianInts(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]int, len(xs))
	copy(sorted, xs)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}

// clamp01 confines x to the inclusive [0, 1] interval.
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// absInt returns the absolute value of x.
func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
