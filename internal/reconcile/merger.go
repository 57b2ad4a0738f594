package reconcile

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkonrad/go-concord/internal/domain"
)

// Merger blends an established consensus with an incoming ordering under
// a caller-chosen weight in [0, 1].
//
// Weight zero preserves the consensus verbatim and weight one adopts the
// incoming ordering, with identifiers unique to the other side appended in
// their original relative order. Interior weights interpolate positions:
// each identifier absent from one side is assigned a virtual position past
// that side's end, so the blend converges to the boundary behaviors as the
// weight approaches them.
//
// The merger is stateless and safe for concurrent use.
type Merger struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config MergerConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// MergerConfig controls merge behavior when callers do not choose a
// weight. Configuration is immutable after unit creation.
type MergerConfig struct {
	// DefaultWeight is the blend weight MergeDefault applies. Zero
	// preserves the consensus; one adopts the incoming ordering.
	DefaultWeight float64 `yaml:"default_weight" json:"default_weight" validate:"gte=0,lte=1"`
}

// DefaultMergerConfig returns a MergerConfig giving both sides equal say.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{DefaultWeight: 0.5}
}

// NewMerger creates a Merger with a validated configuration.
// Returns ErrEmptyName if name is empty, or a validation error if the
// configuration violates its constraints.
func NewMerger(name string, config MergerConfig) (*Merger, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &Merger{
		name:   name,
		config: config,
		tracer: otel.Tracer("order-merger"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (m *Merger) Name() string { return m.name }

// MergeDefault blends with the configured default weight.
func (m *Merger) MergeDefault(ctx context.Context, consensus domain.Consensus, incoming []string) ([]string, error) {
	return m.Merge(ctx, consensus, incoming, m.config.DefaultWeight)
}

// Merge blends the consensus with an incoming ordering.
//
// weight == 0 returns a copy of the consensus and drops identifiers only
// the incoming ordering mentions. weight == 1 returns the incoming
// ordering with consensus-only identifiers appended in consensus order.
// Interior weights score every identifier in the union as
// (1-w)*posC + w*posN, substituting len(side) + positionOnOtherSide for a
// missing position, and sort ascending with ties resolved by established
// consensus position first.
//
// Weights outside [0, 1] or NaN wrap domain.ErrInvalidWeight; a repeated
// identifier within either argument wraps domain.ErrDuplicateItem. Inputs
// are never mutated.
func (m *Merger) Merge(
	ctx context.Context,
	consensus domain.Consensus,
	incoming []string,
	weight float64,
) ([]string, error) {
	_, span := m.tracer.Start(ctx, "Merger.Merge",
		trace.WithAttributes(
			attribute.String("unit.id", m.name),
			attribute.Int("input.consensus_items", len(consensus)),
			attribute.Int("input.incoming_items", len(incoming)),
			attribute.Float64("input.weight", weight),
		),
	)
	defer span.End()

	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		err := fmt.Errorf("%w: %v is outside [0, 1]", domain.ErrInvalidWeight, weight)
		span.RecordError(err)
		return nil, err
	}

	posC, err := positionsOf(consensus, "consensus")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	posN, err := positionsOf(incoming, "incoming ordering")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch weight {
	case 0:
		return slices.Clone(consensus), nil
	case 1:
		merged := slices.Clone(incoming)
		for _, item := range consensus {
			if _, ok := posN[item]; !ok {
				merged = append(merged, item)
			}
		}
		return merged, nil
	}

	type scored struct {
		item  string
		score float64
		tie   int
	}

	blend := make([]scored, 0, len(consensus)+len(incoming))
	for _, item := range consensus {
		vC := float64(posC[item])
		vN := float64(len(incoming) + posC[item])
		if p, ok := posN[item]; ok {
			vN = float64(p)
		}
		blend = append(blend, scored{
			item:  item,
			score: (1-weight)*vC + weight*vN,
			tie:   posC[item],
		})
	}
	for _, item := range incoming {
		if _, ok := posC[item]; ok {
			continue
		}
		vC := float64(len(consensus) + posN[item])
		blend = append(blend, scored{
			item:  item,
			score: (1-weight)*vC + weight*float64(posN[item]),
			tie:   len(consensus) + posN[item],
		})
	}

	sort.Slice(blend, func(i, j int) bool {
		if blend[i].score != blend[j].score {
			return blend[i].score < blend[j].score
		}
		return blend[i].tie < blend[j].tie
	})

	merged := make([]string, len(blend))
	for i, s := range blend {
		merged[i] = s.item
	}

	span.SetAttributes(attribute.Int("merged.items", len(merged)))
	return merged, nil
}

// positionsOf maps each identifier to its position, rejecting repeats.
func positionsOf(items []string, side string) (map[string]int, error) {
	pos := make(map[string]int, len(items))
	for i, item := range items {
		if _, dup := pos[item]; dup {
			return nil, fmt.Errorf("%w: %q appears more than once in %s",
				domain.ErrDuplicateItem, item, side)
		}
		pos[item] = i
	}
	return pos, nil
}
