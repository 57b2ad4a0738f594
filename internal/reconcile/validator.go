package reconcile

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkonrad/go-concord/internal/domain"
)

// ConsensusValidator checks a consensus for integrity against the
// orderings it was derived from. It is a diagnostic tool: every violation
// is accumulated into the result and nothing short-circuits, so callers
// see the complete picture in one pass.
//
// The validator is stateless and safe for concurrent use.
type ConsensusValidator struct {
	// name is the unique identifier for this unit instance.
	name string
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// NewConsensusValidator creates a ConsensusValidator.
// Returns ErrEmptyName if name is empty.
func NewConsensusValidator(name string) (*ConsensusValidator, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	return &ConsensusValidator{
		name:   name,
		tracer: otel.Tracer("consensus-validator"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (v *ConsensusValidator) Name() string { return v.name }

// Check verifies that the consensus is a faithful reconciliation of the
// orderings: no repeated identifiers, nothing mentioned by a participant
// missing, nothing present that no participant mentioned.
//
// Check never returns an error. Malformed ordering records are themselves
// reported as violations and skipped, and all remaining checks still run.
// Violation order is deterministic: malformed records in input order,
// consensus duplicates, empty consensus, missing identifiers in
// first-appearance order, then unknown identifiers in consensus order.
func (v *ConsensusValidator) Check(
	ctx context.Context,
	consensus domain.Consensus,
	orderings []domain.Ordering,
) domain.ValidationResult {
	_, span := v.tracer.Start(ctx, "ConsensusValidator.Check",
		trace.WithAttributes(
			attribute.String("unit.id", v.name),
			attribute.Int("input.consensus_items", len(consensus)),
			attribute.Int("input.orderings", len(orderings)),
		),
	)
	defer span.End()

	result := domain.NewValidationResult()

	// Union of identifiers across checkable orderings, first appearance
	// first so violation order is stable.
	mentioned := make(map[string]struct{})
	var mentionedOrder []string
	for i, o := range orderings {
		if o.Items == nil {
			result.Addf(domain.ViolationMalformedOrdering, "",
				"ordering %d (participant %q) has no item sequence", i, o.Participant)
			continue
		}
		perOrdering := make(map[string]struct{}, len(o.Items))
		for _, item := range o.Items {
			if _, dup := perOrdering[item]; dup {
				result.Addf(domain.ViolationMalformedOrdering, item,
					"ordering %d (participant %q) repeats %q", i, o.Participant, item)
				continue
			}
			perOrdering[item] = struct{}{}
			if _, ok := mentioned[item]; !ok {
				mentioned[item] = struct{}{}
				mentionedOrder = append(mentionedOrder, item)
			}
		}
	}

	inConsensus := make(map[string]struct{}, len(consensus))
	counts := make(map[string]int, len(consensus))
	for _, item := range consensus {
		inConsensus[item] = struct{}{}
		counts[item]++
		if counts[item] == 2 {
			result.Addf(domain.ViolationDuplicateItem, item,
				"%q appears more than once in consensus", item)
		}
	}

	if len(consensus) == 0 && len(mentionedOrder) > 0 {
		result.Addf(domain.ViolationEmptyConsensus, "",
			"consensus is empty but %d identifiers were proposed", len(mentionedOrder))
	}

	for _, item := range mentionedOrder {
		if _, ok := inConsensus[item]; !ok {
			result.Addf(domain.ViolationMissingItem, item,
				"%q was proposed but is missing from consensus", item)
		}
	}

	reported := make(map[string]struct{}, len(consensus))
	for _, item := range consensus {
		if _, done := reported[item]; done {
			continue
		}
		reported[item] = struct{}{}
		if _, ok := mentioned[item]; !ok {
			result.Addf(domain.ViolationUnknownItem, item,
				"%q is in consensus but no ordering mentions it", item)
		}
	}

	span.SetAttributes(
		attribute.Bool("result.valid", result.Valid),
		attribute.Int("result.violations", len(result.Violations)),
	)
	return result
}
