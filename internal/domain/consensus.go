package domain

import (
	"slices"
	"time"
)

// Consensus is a reconciled ordering of unique identifiers, earliest first.
type Consensus []string

// Clone returns a copy that shares no storage with the receiver.
func (c Consensus) Clone() Consensus { return slices.Clone(c) }

// Position returns the zero-based rank of item within the consensus and
// whether the item is present at all.
func (c Consensus) Position(item string) (int, bool) {
	i := slices.Index(c, item)
	return i, i >= 0
}

// PositionIndex maps an identifier to every zero-based position at which it
// was observed, one entry per contributing ordering, in input order.
type PositionIndex map[string][]int

// Conflict describes one contested identifier: participants placed it at
// positions whose dispersion exceeded the configured threshold.
type Conflict struct {
	// Item is the contested identifier.
	Item string `json:"item"`

	// Positions lists the observed zero-based positions, one per ordering
	// that contains the item, in input order.
	Positions []int `json:"positions"`

	// MeanPosition is the arithmetic mean of Positions.
	MeanPosition float64 `json:"mean_position"`

	// StdDev is the population standard deviation of Positions.
	StdDev float64 `json:"std_dev"`
}

// Metadata summarizes how strongly a set of orderings agrees with its
// consensus.
type Metadata struct {
	// ParticipantCount is the number of non-empty orderings considered.
	ParticipantCount int `json:"participant_count"`

	// AgreementScore measures overall agreement in [0, 1], where 1 means
	// every participant proposed the consensus exactly.
	AgreementScore float64 `json:"agreement_score"`

	// Conflicts lists contested identifiers ordered most contentious
	// first. It is omitted from JSON when empty.
	Conflicts []Conflict `json:"conflicts,omitempty"`

	// MostRecent is the latest known submission time across the orderings.
	// It is nil when no ordering carries a timestamp.
	MostRecent *time.Time `json:"most_recent,omitempty"`
}
