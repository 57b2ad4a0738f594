package domain

import (
	"fmt"
	"slices"
	"time"
)

// Ordering is a single participant's proposal for how a review's file
// paths should be sequenced. Orderings are plain value records; engine
// operations never mutate them.
type Ordering struct {
	// Participant uniquely identifies the proposer within a review.
	Participant string `json:"participant"`

	// Items holds identifiers (typically file paths) in proposed order,
	// earliest first. A nil slice marks a record that arrived without an
	// item sequence and is rejected as malformed; an empty non-nil slice
	// is a deliberate "no vote" and is skipped during reconciliation.
	Items []string `json:"items"`

	// CreatedAt records when the ordering was submitted.
	// The zero value means the submission time is unknown.
	CreatedAt time.Time `json:"created_at"`

	// Source is a free-form provenance tag such as "manual" or "import".
	Source string `json:"source,omitempty"`
}

// Validate reports whether the ordering is structurally sound: a named
// participant, a present (possibly empty) item sequence, and no empty or
// duplicated identifiers. Errors wrap the domain sentinels so callers can
// classify them with errors.Is.
func (o Ordering) Validate() error {
	if o.Participant == "" {
		return fmt.Errorf("%w: participant must not be empty", ErrInvalidOrderingShape)
	}
	if o.Items == nil {
		return fmt.Errorf("%w: ordering from %q has no item sequence", ErrInvalidOrderingShape, o.Participant)
	}
	seen := make(map[string]struct{}, len(o.Items))
	for i, item := range o.Items {
		if item == "" {
			return fmt.Errorf("%w: ordering from %q has an empty identifier at position %d",
				ErrInvalidOrderingShape, o.Participant, i)
		}
		if _, dup := seen[item]; dup {
			return fmt.Errorf("%w: %q appears more than once in ordering from %q",
				ErrDuplicateItem, item, o.Participant)
		}
		seen[item] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy whose item slice shares no storage with the
// receiver. The nil versus empty distinction of Items is preserved.
func (o Ordering) Clone() Ordering {
	c := o
	c.Items = slices.Clone(o.Items)
	return c
}

// IsEmpty reports whether the ordering casts no vote.
func (o Ordering) IsEmpty() bool { return len(o.Items) == 0 }

// Contains reports whether the ordering mentions the given identifier.
func (o Ordering) Contains(item string) bool { return slices.Contains(o.Items, item) }
