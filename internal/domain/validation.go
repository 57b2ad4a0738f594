package domain

import (
	"fmt"
	"strings"
)

// ViolationCode identifies a class of consensus integrity violation.
type ViolationCode string

// Violation codes reported by consensus validation.
const (
	// ViolationEmptyConsensus flags an empty consensus over non-empty
	// orderings.
	ViolationEmptyConsensus ViolationCode = "empty_consensus"

	// ViolationMissingItem flags an identifier some ordering mentions but
	// the consensus omits.
	ViolationMissingItem ViolationCode = "missing_item"

	// ViolationUnknownItem flags a consensus identifier no ordering
	// mentions.
	ViolationUnknownItem ViolationCode = "unknown_item"

	// ViolationDuplicateItem flags an identifier the consensus repeats.
	ViolationDuplicateItem ViolationCode = "duplicate_item"

	// ViolationMalformedOrdering flags an input record that could not be
	// checked, for example one lacking an item sequence.
	ViolationMalformedOrdering ViolationCode = "malformed_ordering"
)

// Violation describes a single consensus integrity failure.
type Violation struct {
	// Code classifies the failure.
	Code ViolationCode `json:"code"`

	// Item names the identifier involved, when one applies.
	Item string `json:"item,omitempty"`

	// Detail is a human-readable description of the failure.
	Detail string `json:"detail"`
}

// ValidationResult accumulates every integrity violation found while
// checking a consensus against its source orderings. Validation is a
// verdict, not a failure: callers always receive a result, never an error.
type ValidationResult struct {
	// Valid is true when no violations were recorded.
	Valid bool `json:"valid"`

	// Violations lists every recorded failure in discovery order.
	// It is omitted from JSON when empty.
	Violations []Violation `json:"violations,omitempty"`
}

// NewValidationResult returns a result that is valid until a violation is
// added.
func NewValidationResult() ValidationResult {
	return ValidationResult{Valid: true}
}

// Add records a violation and marks the result invalid.
func (r *ValidationResult) Add(v Violation) {
	r.Valid = false
	r.Violations = append(r.Violations, v)
}

// Addf records a violation built from a format string.
func (r *ValidationResult) Addf(code ViolationCode, item, format string, args ...any) {
	r.Add(Violation{Code: code, Item: item, Detail: fmt.Sprintf(format, args...)})
}

// HasViolations reports whether any violation was recorded.
func (r ValidationResult) HasViolations() bool { return len(r.Violations) > 0 }

// Summary renders the violations as a single readable line, or "valid"
// when there are none.
func (r ValidationResult) Summary() string {
	if !r.HasViolations() {
		return "valid"
	}
	parts := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		parts[i] = v.Detail
	}
	return fmt.Sprintf("%d violation(s): %s", len(r.Violations), strings.Join(parts, "; "))
}
