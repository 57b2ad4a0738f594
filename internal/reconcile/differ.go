package reconcile

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkonrad/go-concord/internal/domain"
)

// Differ compares two orderings position by position, categorizing every
// identifier in their union and scoring how alike the sequences are.
//
// Similarity measures positional agreement of the shared identifiers
// only; membership changes surface as added and removed entries without
// lowering the score. The comparison is symmetric in its aggregate
// metrics: swapping the arguments flips entry categories and delta signs
// but yields the same displacement totals and similarity.
//
// The differ is stateless and safe for concurrent use.
type Differ struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config DifferConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// DifferConfig controls move reporting. Configuration is immutable after
// unit creation.
type DifferConfig struct {
	// LargeMoveThreshold is the absolute position delta a move must
	// strictly exceed to be reported in LargeMoves.
	LargeMoveThreshold int `yaml:"large_move_threshold" json:"large_move_threshold" validate:"gte=1"`
}

// DefaultDifferConfig returns a DifferConfig flagging moves of more than
// ten positions.
func DefaultDifferConfig() DifferConfig {
	return DifferConfig{LargeMoveThreshold: 10}
}

// NewDiffer creates a Differ with a validated configuration.
// Returns ErrEmptyName if name is empty, or a validation error if the
// configuration violates its constraints.
func NewDiffer(name string, config DifferConfig) (*Differ, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &Differ{
		name:   name,
		config: config,
		tracer: otel.Tracer("order-differ"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (d *Differ) Name() string { return d.name }

// Diff compares ordering a to ordering b.
//
// The result holds one entry per union identifier: a's identifiers in a
// order, then b-only identifiers in b order. Absent positions carry the
// union size as a sentinel. TotalDisplacement sums absolute deltas of
// shared identifiers; MaxDisplacement is n*(n-1) for a union of n; and
// Similarity is round(100 * (1 - total/max)) clamped to [0, 100], with
// unions of at most one identifier scoring 100.
//
// A repeated identifier within either argument wraps
// domain.ErrDuplicateItem.
func (d *Differ) Diff(ctx context.Context, a, b []string) (domain.OrderDiff, error) {
	_, span := d.tracer.Start(ctx, "Differ.Diff",
		trace.WithAttributes(
			attribute.String("unit.id", d.name),
			attribute.Int("input.a_items", len(a)),
			attribute.Int("input.b_items", len(b)),
		),
	)
	defer span.End()

	posA, err := positionsOf(a, "first ordering")
	if err != nil {
		span.RecordError(err)
		return domain.OrderDiff{}, err
	}
	posB, err := positionsOf(b, "second ordering")
	if err != nil {
		span.RecordError(err)
		return domain.OrderDiff{}, err
	}

	n := len(posA)
	for _, item := range b {
		if _, shared := posA[item]; !shared {
			n++
		}
	}

	diff := domain.OrderDiff{
		Entries:         make([]domain.DiffEntry, 0, n),
		MaxDisplacement: n * (n - 1),
	}

	for i, item := range a {
		entry := domain.DiffEntry{Item: item, PosA: i, PosB: n}
		if j, shared := posB[item]; shared {
			entry.PosB = j
			entry.Delta = j - i
			switch {
			case entry.Delta == 0:
				entry.Category = domain.DiffUnchanged
				diff.Unchanged++
			case entry.Delta < 0:
				entry.Category = domain.DiffMovedUp
				diff.Moved++
			default:
				entry.Category = domain.DiffMovedDown
				diff.Moved++
			}
			diff.TotalDisplacement += absInt(entry.Delta)
		} else {
			entry.Category = domain.DiffRemoved
			diff.Removed++
		}
		diff.Entries = append(diff.Entries, entry)
	}

	for j, item := range b {
		if _, shared := posA[item]; shared {
			continue
		}
		diff.Entries = append(diff.Entries, domain.DiffEntry{
			Item:     item,
			Category: domain.DiffAdded,
			PosA:     n,
			PosB:     j,
		})
		diff.Added++
	}

	diff.Similarity = similarityScore(diff.TotalDisplacement, diff.MaxDisplacement, n)

	for _, entry := range diff.Entries {
		if absInt(entry.Delta) > d.config.LargeMoveThreshold {
			diff.LargeMoves = append(diff.LargeMoves, entry)
		}
	}

	span.SetAttributes(
		attribute.Int("diff.similarity", diff.Similarity),
		attribute.Int("diff.total_displacement", diff.TotalDisplacement),
		attribute.Int("diff.entries", len(diff.Entries)),
	)
	return diff, nil
}

// similarityScore converts displacement into a 0 to 100 score. Unions of
// one or zero identifiers cannot disagree on order and score 100.
func similarityScore(total, max, unionSize int) int {
	if unionSize <= 1 {
		return 100
	}
	score := int(math.Round(100 * (1 - float64(total)/float64(max))))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
