package reconcile

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkonrad/go-concord/internal/domain"
)

// Calculator derives a consensus ordering from a set of participant
// orderings by ranking identifiers on their arithmetic mean position.
//
// Identifiers with equal mean positions keep their first-appearance order
// across the input, so results are fully deterministic for a given input
// sequence. An optional robustness pass excludes orderings that disagree
// wildly with the trial consensus before the final ranking is computed.
//
// The calculator is stateless and safe for concurrent use. It never
// mutates its inputs and always returns freshly allocated slices.
type Calculator struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config CalculatorConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// CalculatorConfig controls the consensus ranking behavior. Configuration
// is immutable after unit creation.
type CalculatorConfig struct {
	// ExcludeOutliers enables a second ranking pass that drops orderings
	// whose total displacement from the trial consensus is extreme. It
	// only takes effect when at least three orderings cast votes.
	ExcludeOutliers bool `yaml:"exclude_outliers" json:"exclude_outliers"`

	// OutlierFactor scales the median displacement to form the exclusion
	// cutoff: an ordering is excluded when its displacement strictly
	// exceeds OutlierFactor times the median displacement of all voters.
	// Values below one make exclusion aggressive enough to flag every
	// voter, in which case the unfiltered result is kept.
	OutlierFactor float64 `yaml:"outlier_factor" json:"outlier_factor" validate:"required_if=ExcludeOutliers true,omitempty,gt=0"`
}

// DefaultCalculatorConfig returns a CalculatorConfig with production
// defaults: no outlier exclusion, and a cutoff of twice the median
// displacement once exclusion is switched on.
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		ExcludeOutliers: false,
		OutlierFactor:   2.0,
	}
}

// NewCalculator creates a Calculator with a validated configuration.
// Returns ErrEmptyName if name is empty, or a validation error if the
// configuration violates its constraints.
func NewCalculator(name string, config CalculatorConfig) (*Calculator, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &Calculator{
		name:   name,
		config: config,
		tracer: otel.Tracer("consensus-calculator"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (c *Calculator) Name() string { return c.name }

// Calculate reconciles the given orderings into a single consensus.
//
// Empty orderings cast no vote. An input with no votes at all yields an
// empty, non-nil consensus. A single voter's ordering is returned
// verbatim. Otherwise identifiers are ranked by ascending mean position
// with first-appearance order breaking ties, and the optional outlier
// pass refines the result.
//
// The returned consensus is always a permutation of the identifier union
// of all non-empty orderings. Malformed records wrap
// domain.ErrInvalidOrderingShape or domain.ErrDuplicateItem; inputs that
// blow the package resource guards wrap domain.ErrInvalidInput.
func (c *Calculator) Calculate(ctx context.Context, orderings []domain.Ordering) (domain.Consensus, error) {
	_, span := c.tracer.Start(ctx, "Calculator.Calculate",
		trace.WithAttributes(
			attribute.String("unit.id", c.name),
			attribute.Int("input.orderings", len(orderings)),
			attribute.Bool("config.exclude_outliers", c.config.ExcludeOutliers),
		),
	)
	defer span.End()

	if len(orderings) > MaxOrderings {
		err := fmt.Errorf("%w: %d orderings exceeds limit of %d",
			domain.ErrInvalidInput, len(orderings), MaxOrderings)
		span.RecordError(err)
		return nil, err
	}

	index, union, err := buildPositionIndex(orderings)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(union) > MaxUniqueItems {
		err := fmt.Errorf("%w: %d unique identifiers exceeds limit of %d",
			domain.ErrInvalidInput, len(union), MaxUniqueItems)
		span.RecordError(err)
		return nil, err
	}

	if len(union) == 0 {
		span.SetAttributes(attribute.Int("consensus.items", 0))
		return domain.Consensus{}, nil
	}

	// A single voter is its own consensus.
	if countNonEmpty(orderings) == 1 {
		for _, o := range orderings {
			if !o.IsEmpty() {
				span.SetAttributes(attribute.Int("consensus.items", len(o.Items)))
				return domain.Consensus(o.Items).Clone(), nil
			}
		}
	}

	consensus := rankByMeanPosition(index, union)

	if c.config.ExcludeOutliers && countNonEmpty(orderings) >= 3 {
		refined, excluded := c.excludeOutliers(orderings, consensus)
		span.SetAttributes(attribute.Int("outliers.excluded", excluded))
		consensus = refined
	}

	span.SetAttributes(attribute.Int("consensus.items", len(consensus)))
	return consensus, nil
}

// rankByMeanPosition orders the union ascending by mean observed position,
// breaking ties by first-appearance rank. The union slice itself supplies
// that rank, so the result is independent of map iteration order.
func rankByMeanPosition(index domain.PositionIndex, union []string) domain.Consensus {
	type ranked struct {
		item string
		mean float64
		seen int
	}

	rows := make([]ranked, len(union))
	for i, item := range union {
		rows[i] = ranked{item: item, mean: meanInts(index[item]), seen: i}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].mean != rows[j].mean {
			return rows[i].mean < rows[j].mean
		}
		return rows[i].seen < rows[j].seen
	})

	consensus := make(domain.Consensus, len(rows))
	for i, r := range rows {
		consensus[i] = r.item
	}
	return consensus
}

// excludeOutliers recomputes the consensus without the orderings whose
// displacement from the trial consensus exceeds the configured cutoff.
//
// Displacement is the sum over an ordering's items of the absolute
// difference between the item's position and its rank in the trial
// consensus. When exclusion removes the only orderings mentioning some
// identifiers, those identifiers are appended in trial order so the
// result stays a permutation of the full union. When every voter is
// flagged, the trial consensus stands.
func (c *Calculator) excludeOutliers(
	orderings []domain.Ordering,
	trial domain.Consensus,
) (domain.Consensus, int) {
	rank := make(map[string]int, len(trial))
	for i, item := range trial {
		rank[item] = i
	}

	var (
		voters        []domain.Ordering
		displacements []int
	)
	for _, o := range orderings {
		if o.IsEmpty() {
			continue
		}
		var d int
		for pos, item := range o.Items {
			d += absInt(pos - rank[item])
		}
		voters = append(voters, o)
		displacements = append(displacements, d)
	}

	cutoff := c.config.OutlierFactor * medianInts(displacements)

	kept := make([]domain.Ordering, 0, len(voters))
	for i, o := range voters {
		if float64(displacements[i]) > cutoff {
			continue
		}
		kept = append(kept, o)
	}

	excluded := len(voters) - len(kept)
	if excluded == 0 {
		return trial, 0
	}
	if len(kept) == 0 {
		return trial, 0
	}

	// Inputs were already validated during the trial pass.
	keptIndex, keptUnion, _ := buildPositionIndex(kept)
	refined := rankByMeanPosition(keptIndex, keptUnion)

	// Identifiers known only to excluded voters keep their trial rank.
	if len(refined) < len(trial) {
		present := make(map[string]struct{}, len(refined))
		for _, item := range refined {
			present[item] = struct{}{}
		}
		for _, item := range trial {
			if _, ok := present[item]; !ok {
				refined = append(refined, item)
			}
		}
	}

	return refined, excluded
}
