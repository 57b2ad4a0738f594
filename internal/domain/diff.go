package domain

// DiffCategory classifies how an identifier changed between two orderings.
type DiffCategory string

// Diff entry categories.
const (
	// DiffUnchanged marks an identifier that kept its position.
	DiffUnchanged DiffCategory = "unchanged"

	// DiffMovedUp marks an identifier that moved toward the front.
	DiffMovedUp DiffCategory = "moved_up"

	// DiffMovedDown marks an identifier that moved toward the back.
	DiffMovedDown DiffCategory = "moved_down"

	// DiffAdded marks an identifier present only in the second ordering.
	DiffAdded DiffCategory = "added"

	// DiffRemoved marks an identifier present only in the first ordering.
	DiffRemoved DiffCategory = "removed"
)

// DiffEntry records the positional change of one identifier between an
// ordering A and an ordering B.
type DiffEntry struct {
	// Item is the identifier being compared.
	Item string `json:"item"`

	// Category classifies the change.
	Category DiffCategory `json:"category"`

	// PosA is the zero-based position in A. For identifiers absent from A
	// it holds the union size as an out-of-sequence sentinel.
	PosA int `json:"pos_a"`

	// PosB is the zero-based position in B, with the same sentinel
	// convention as PosA.
	PosB int `json:"pos_b"`

	// Delta is PosB minus PosA for identifiers present on both sides,
	// and zero for added or removed identifiers. Negative values mean the
	// identifier moved up.
	Delta int `json:"delta"`
}

// OrderDiff is the full positional comparison of two orderings.
type OrderDiff struct {
	// Entries holds one record per identifier in the union of both
	// orderings: A's identifiers in A order, then B-only identifiers in
	// B order.
	Entries []DiffEntry `json:"entries"`

	// TotalDisplacement is the sum of absolute deltas over identifiers
	// present on both sides.
	TotalDisplacement int `json:"total_displacement"`

	// MaxDisplacement is the theoretical displacement ceiling n*(n-1)
	// for a union of n identifiers.
	MaxDisplacement int `json:"max_displacement"`

	// Similarity scores how alike the orderings are on a 0 to 100 scale,
	// 100 meaning identical membership and order.
	Similarity int `json:"similarity"`

	// Unchanged, Moved, Added, and Removed count entries per category,
	// with Moved covering both directions.
	Unchanged int `json:"unchanged"`
	Moved     int `json:"moved"`
	Added     int `json:"added"`
	Removed   int `json:"removed"`

	// LargeMoves lists the entries whose absolute delta exceeded the
	// configured threshold, in entry order. Omitted from JSON when empty.
	LargeMoves []DiffEntry `json:"large_moves,omitempty"`
}

// RenamePair links a path that disappeared from one ordering to a similar
// path that appeared in the other, suggesting a rename rather than an
// unrelated add and remove.
type RenamePair struct {
	// From is the removed path.
	From string `json:"from"`

	// To is the added path.
	To string `json:"to"`

	// Similarity is the normalized edit-distance similarity in [0, 1].
	Similarity float64 `json:"similarity"`
}
