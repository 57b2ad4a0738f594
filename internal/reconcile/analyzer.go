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

// Analyzer summarizes how strongly a set of orderings agrees with a
// consensus: an overall agreement score, the contested identifiers, and
// recency information.
//
// Agreement uses the Spearman footrule normalized per ordering, so the
// score stays comparable across reviews of different sizes. Conflicts are
// ranked by the population standard deviation of each identifier's
// observed positions.
//
// The analyzer is stateless and safe for concurrent use.
type Analyzer struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config AnalyzerConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// AnalyzerConfig controls conflict reporting. Configuration is immutable
// after unit creation.
type AnalyzerConfig struct {
	// ConflictThreshold is the population standard deviation a contested
	// identifier's positions must strictly exceed to be reported.
	ConflictThreshold float64 `yaml:"conflict_threshold" json:"conflict_threshold" validate:"gte=0"`

	// MaxConflicts caps the reported conflict list. Zero keeps the list
	// unbounded so presentation layers decide how much to show.
	MaxConflicts int `yaml:"max_conflicts" json:"max_conflicts" validate:"gte=0"`
}

// DefaultAnalyzerConfig returns an AnalyzerConfig with production
// defaults: a threshold of one position of standard deviation and an
// unbounded conflict list.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		ConflictThreshold: 1.0,
		MaxConflicts:      0,
	}
}

// NewAnalyzer creates an Analyzer with a validated configuration.
// Returns ErrEmptyName if name is empty, or a validation error if the
// configuration violates its constraints.
func NewAnalyzer(name string, config AnalyzerConfig) (*Analyzer, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &Analyzer{
		name:   name,
		config: config,
		tracer: otel.Tracer("metadata-analyzer"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (a *Analyzer) Name() string { return a.name }

// Analyze computes agreement metadata for the orderings against the given
// consensus.
//
// ParticipantCount counts non-empty orderings. AgreementScore is the mean
// per-ordering footrule agreement in [0, 1], or zero when nothing voted.
// Conflicts holds identifiers placed at meaningfully different positions
// by at least two participants, most contentious first. MostRecent is the
// latest known submission time, including from empty orderings, or nil
// when no ordering carries one.
//
// Malformed records produce the same wrapped errors as the calculator.
func (a *Analyzer) Analyze(
	ctx context.Context,
	orderings []domain.Ordering,
	consensus domain.Consensus,
) (domain.Metadata, error) {
	_, span := a.tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(
			attribute.String("unit.id", a.name),
			attribute.Int("input.orderings", len(orderings)),
			attribute.Float64("config.conflict_threshold", a.config.ConflictThreshold),
		),
	)
	defer span.End()

	if len(orderings) > MaxOrderings {
		err := fmt.Errorf("%w: %d orderings exceeds limit of %d",
			domain.ErrInvalidInput, len(orderings), MaxOrderings)
		span.RecordError(err)
		return domain.Metadata{}, err
	}

	index, _, err := buildPositionIndex(orderings)
	if err != nil {
		span.RecordError(err)
		return domain.Metadata{}, err
	}

	meta := domain.Metadata{
		ParticipantCount: countNonEmpty(orderings),
		AgreementScore:   agreementScore(orderings, consensus),
		Conflicts:        a.conflicts(index),
	}

	for _, o := range orderings {
		if o.CreatedAt.IsZero() {
			continue
		}
		if meta.MostRecent == nil || o.CreatedAt.After(*meta.MostRecent) {
			t := o.CreatedAt
			meta.MostRecent = &t
		}
	}

	span.SetAttributes(
		attribute.Float64("metadata.agreement_score", meta.AgreementScore),
		attribute.Int("metadata.conflicts", len(meta.Conflicts)),
		attribute.Int("metadata.participants", meta.ParticipantCount),
	)
	return meta, nil
}

// agreementScore averages per-ordering agreement with the consensus over
// every ordering that cast a vote, clamped to [0, 1]. No votes means no
// agreement to measure, which scores zero.
func agreementScore(orderings []domain.Ordering, consensus domain.Consensus) float64 {
	rank := make(map[string]int, len(consensus))
	for i, item := range consensus {
		rank[item] = i
	}

	var total float64
	var voters int
	for _, o := range orderings {
		if o.IsEmpty() {
			continue
		}
		voters++
		total += orderingAgreement(o.Items, rank)
	}
	if voters == 0 {
		return 0
	}
	return clamp01(total / float64(voters))
}

// orderingAgreement compares one ordering against the consensus projected
// onto the ordering's own identifiers, scoring 1 minus the normalized
// Spearman footrule. Identifiers the consensus does not rank are ignored;
// orderings of one or zero ranked identifiers trivially agree.
func orderingAgreement(items []string, consensusRank map[string]int) float64 {
	ranked := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := consensusRank[item]; ok {
			ranked = append(ranked, item)
		}
	}

	m := len(ranked)
	if m <= 1 {
		return 1
	}

	// Project the consensus onto this ordering's identifiers: the same
	// items, reordered by consensus rank, renumbered 0..m-1.
	projected := make([]string, m)
	copy(projected, ranked)
	sort.Slice(projected, func(i, j int) bool {
		return consensusRank[projected[i]] < consensusRank[projected[j]]
	})
	projectedRank := make(map[string]int, m)
	for i, item := range projected {
		projectedRank[item] = i
	}

	var footrule int
	for i, item := range ranked {
		footrule += absInt(i - projectedRank[item])
	}

	// floor(m*m/2) is the footrule of a full reversal, the worst case.
	maxFootrule := (m * m) / 2
	return 1 - float64(footrule)/float64(maxFootrule)
}

// conflicts collects identifiers whose observed positions disperse beyond
// the configured threshold, sorted most contentious first with ties broken
// by identifier so output is deterministic.
func (a *Analyzer) conflicts(index domain.PositionIndex) []domain.Conflict {
	var out []domain.Conflict
	for item, positions := range index {
		if len(positions) < 2 {
			continue
		}
		mean := meanInts(positions)
		sd := stdDevInts(positions, mean)
		if sd > a.config.ConflictThreshold {
			out = append(out, domain.Conflict{
				Item:         item,
				Positions:    positions,
				MeanPosition: mean,
				StdDev:       sd,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StdDev != out[j].StdDev {
			return out[i].StdDev > out[j].StdDev
		}
		return out[i].Item < out[j].Item
	})

	if a.config.MaxConflicts > 0 && len(out) > a.config.MaxConflicts {
		out = out[:a.config.MaxConflicts]
	}
	return out
}
