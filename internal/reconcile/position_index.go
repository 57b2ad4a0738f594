package reconcile

import (
	"fmt"

	"github.com/rkonrad/go-concord/internal/domain"
)

// buildPositionIndex scans orderings in input order and records every
// zero-based position at which each identifier was observed. Empty
// orderings cast no vote and are skipped entirely.
//
// The second return value is the identifier union in first-appearance
// order. It serves as the deterministic tie-break key wherever two
// identifiers compare equal, so results never depend on map iteration.
//
// A nil item sequence fails the scan with domain.ErrInvalidOrderingShape;
// an identifier repeated within one ordering fails it with
// domain.ErrDuplicateItem. An all-empty input yields an empty index and
// union with no error.
func buildPositionIndex(orderings []domain.Ordering) (domain.PositionIndex, []string, error) {
	index := make(domain.PositionIndex)
	var union []string

	for i, o := range orderings {
		if o.Items == nil {
			return nil, nil, fmt.Errorf("%w: ordering %d (participant %q) has no item sequence",
				domain.ErrInvalidOrderingShape, i, o.Participant)
		}
		if len(o.Items) == 0 {
			continue
		}

		seen := make(map[string]struct{}, len(o.Items))
		for pos, item := range o.Items {
			if _, dup := seen[item]; dup {
				return nil, nil, fmt.Errorf("%w: %q appears more than once in ordering %d (participant %q)",
					domain.ErrDuplicateItem, item, i, o.Participant)
			}
			seen[item] = struct{}{}

			if _, known := index[item]; !known {
				union = append(union, item)
			}
			index[item] = append(index[item], pos)
		}
	}

	return index, union, nil
}

// countNonEmpty returns how many orderings cast a vote.
func countNonEmpty(orderings []domain.Ordering) int {
	var n int
	for _, o := range orderings {
		if !o.IsEmpty() {
			n++
		}
	}
	return n
}
