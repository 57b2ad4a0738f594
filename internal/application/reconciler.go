package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

// validate checks service configuration structs against their constraints.
var validate = validator.New()

// ReconcilerConfig defines the service-level parameters of the Reconciler.
// Configuration is immutable after service creation.
type ReconcilerConfig struct {
	// MaxConcurrentReviews caps how many reviews a batch reconciliation
	// processes in parallel.
	MaxConcurrentReviews int `yaml:"max_concurrent_reviews" json:"max_concurrent_reviews" validate:"gte=1,lte=256"`
}

// DefaultReconcilerConfig returns a ReconcilerConfig suitable for most
// deployments.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{MaxConcurrentReviews: 8}
}

// ReviewResult is the outcome of reconciling a single review within a
// batch. Failures are carried per review so one broken review does not
// abort the rest of the batch.
type ReviewResult struct {
	// ReviewID identifies the review this result belongs to.
	ReviewID string
	// Consensus is the reconciled ordering, nil when Err is set.
	Consensus domain.Consensus
	// Metadata describes agreement and conflicts, zero when Err is set.
	Metadata domain.Metadata
	// Err records why this review could not be reconciled.
	Err error
}

// Reconciler orchestrates review storage and the reconciliation engine.
// The engine units stay pure; every piece of I/O, from loading orderings
// to recording metrics, lives here.
//
// The Reconciler is safe for concurrent use.
type Reconciler struct {
	config  ReconcilerConfig
	engine  *Engine
	store   ports.ReviewStore
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewReconciler creates a Reconciler from a validated configuration, an
// engine bundle, and a review store. A nil metrics collector disables
// metric recording.
func NewReconciler(
	config ReconcilerConfig,
	engine *Engine,
	store ports.ReviewStore,
	metrics ports.MetricsCollector,
) (*Reconciler, error) {
	if engine == nil {
		return nil, errors.New("engine must not be nil")
	}
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Reconciler{
		config:  config,
		engine:  engine,
		store:   store,
		metrics: metrics,
		tracer:  otel.Tracer("reconciler"),
	}, nil
}

// Engine returns the engine bundle this service reconciles with.
func (r *Reconciler) Engine() *Engine { return r.engine }

// CreateReview registers a new, empty review.
func (r *Reconciler) CreateReview(ctx context.Context, reviewID string) error {
	if reviewID == "" {
		return fmt.Errorf("%w: review id must not be empty", domain.ErrInvalidInput)
	}
	if err := r.store.CreateReview(ctx, reviewID); err != nil {
		return err
	}
	r.metrics.RecordCounter("reviews_created", 1, nil)
	return nil
}

// ListReviews returns the identifiers of every known review.
func (r *Reconciler) ListReviews(ctx context.Context) ([]string, error) {
	return r.store.ListReviews(ctx)
}

// Orderings returns the review's orderings in submission order.
func (r *Reconciler) Orderings(ctx context.Context, reviewID string) ([]domain.Ordering, error) {
	return r.store.GetOrderings(ctx, reviewID)
}

// RemoveOrdering withdraws a participant's ordering from the review.
func (r *Reconciler) RemoveOrdering(ctx context.Context, reviewID, participant string) error {
	return r.store.DeleteOrdering(ctx, reviewID, participant)
}

// Submit validates and persists a participant's ordering for the review.
// A zero CreatedAt is stamped with the current UTC time, so recency
// tie-breaking works even for clients that do not track timestamps.
func (r *Reconciler) Submit(ctx context.Context, reviewID string, ordering domain.Ordering) error {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Submit",
		trace.WithAttributes(
			attribute.String("review.id", reviewID),
			attribute.String("review.participant", ordering.Participant),
			attribute.Int("input.items", len(ordering.Items)),
		),
	)
	defer span.End()

	if reviewID == "" {
		err := fmt.Errorf("%w: review id must not be empty", domain.ErrInvalidInput)
		span.RecordError(err)
		return err
	}
	if err := ordering.Validate(); err != nil {
		span.RecordError(err)
		return err
	}
	if ordering.CreatedAt.IsZero() {
		ordering.CreatedAt = time.Now().UTC()
	}

	if err := r.store.PutOrdering(ctx, reviewID, ordering); err != nil {
		span.RecordError(err)
		return err
	}

	r.metrics.RecordCounter("orderings_submitted", 1, map[string]string{"review": reviewID})
	return nil
}

// Consensus reconciles the review's orderings into a consensus ordering
// with its metadata.
func (r *Reconciler) Consensus(ctx context.Context, reviewID string) (domain.Consensus, domain.Metadata, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Consensus",
		trace.WithAttributes(attribute.String("review.id", reviewID)),
	)
	defer span.End()
	start := time.Now()

	orderings, err := r.store.GetOrderings(ctx, reviewID)
	if err != nil {
		span.RecordError(err)
		return nil, domain.Metadata{}, err
	}

	consensus, err := r.engine.Calculator.Calculate(ctx, orderings)
	if err != nil {
		span.RecordError(err)
		return nil, domain.Metadata{}, err
	}

	metadata, err := r.engine.Analyzer.Analyze(ctx, orderings, consensus)
	if err != nil {
		span.RecordError(err)
		return nil, domain.Metadata{}, err
	}

	labels := map[string]string{"review": reviewID}
	r.metrics.RecordLatency("consensus", time.Since(start), labels)
	r.metrics.RecordHistogram("agreement_score", metadata.AgreementScore, nil)
	r.metrics.RecordGauge("review_participants", float64(metadata.ParticipantCount), labels)
	if len(metadata.Conflicts) > 0 {
		r.metrics.RecordCounter("conflicts_detected", float64(len(metadata.Conflicts)), labels)
	}

	span.SetAttributes(
		attribute.Int("consensus.items", len(consensus)),
		attribute.Float64("consensus.agreement", metadata.AgreementScore),
	)
	return consensus, metadata, nil
}

// Merge blends an incoming ordering into the review's current consensus.
// A nil weight uses the profile's default weight.
func (r *Reconciler) Merge(ctx context.Context, reviewID string, incoming []string, weight *float64) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Merge",
		trace.WithAttributes(
			attribute.String("review.id", reviewID),
			attribute.Int("input.incoming_items", len(incoming)),
			attribute.Bool("input.default_weight", weight == nil),
		),
	)
	defer span.End()

	orderings, err := r.store.GetOrderings(ctx, reviewID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	consensus, err := r.engine.Calculator.Calculate(ctx, orderings)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var merged []string
	if weight == nil {
		merged, err = r.engine.Merger.MergeDefault(ctx, consensus, incoming)
	} else {
		merged, err = r.engine.Merger.Merge(ctx, consensus, incoming, *weight)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	r.metrics.RecordCounter("merges_performed", 1, map[string]string{"review": reviewID})
	return merged, nil
}

// Diff compares two orderings and proposes rename pairs between the paths
// one side removed and the other added.
func (r *Reconciler) Diff(ctx context.Context, a, b []string) (domain.OrderDiff, []domain.RenamePair, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Diff",
		trace.WithAttributes(
			attribute.Int("input.a_items", len(a)),
			attribute.Int("input.b_items", len(b)),
		),
	)
	defer span.End()

	diff, err := r.engine.Differ.Diff(ctx, a, b)
	if err != nil {
		span.RecordError(err)
		return domain.OrderDiff{}, nil, err
	}

	var removed, added []string
	for _, entry := range diff.Entries {
		switch entry.Category {
		case domain.DiffRemoved:
			removed = append(removed, entry.Item)
		case domain.DiffAdded:
			added = append(added, entry.Item)
		}
	}

	pairs, err := r.engine.Renames.Pair(ctx, removed, added)
	if err != nil {
		span.RecordError(err)
		return domain.OrderDiff{}, nil, err
	}

	r.metrics.RecordHistogram("diff_similarity", float64(diff.Similarity), nil)
	return diff, pairs, nil
}

// Validate checks the review's current consensus against its orderings.
func (r *Reconciler) Validate(ctx context.Context, reviewID string) (domain.ValidationResult, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Validate",
		trace.WithAttributes(attribute.String("review.id", reviewID)),
	)
	defer span.End()

	orderings, err := r.store.GetOrderings(ctx, reviewID)
	if err != nil {
		span.RecordError(err)
		return domain.ValidationResult{}, err
	}
	consensus, err := r.engine.Calculator.Calculate(ctx, orderings)
	if err != nil {
		span.RecordError(err)
		return domain.ValidationResult{}, err
	}

	result := r.engine.Validator.Check(ctx, consensus, orderings)
	if !result.Valid {
		r.metrics.RecordCounter("validation_failures", 1, map[string]string{"review": reviewID})
	}
	return result, nil
}

// ReconcileAll reconciles a batch of reviews concurrently, bounded by
// MaxConcurrentReviews. Results come back in input order; a failing
// review records its error in its slot without aborting the batch.
func (r *Reconciler) ReconcileAll(ctx context.Context, reviewIDs []string) ([]ReviewResult, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.ReconcileAll",
		trace.WithAttributes(attribute.Int("input.reviews", len(reviewIDs))),
	)
	defer span.End()

	results := make([]ReviewResult, len(reviewIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.MaxConcurrentReviews)
	for i, reviewID := range reviewIDs {
		g.Go(func() error {
			consensus, metadata, err := r.Consensus(gctx, reviewID)
			results[i] = ReviewResult{
				ReviewID:  reviewID,
				Consensus: consensus,
				Metadata:  metadata,
				Err:       err,
			}
			return nil
		})
	}
	// Workers never return errors; per-review failures live in the slots.
	_ = g.Wait()

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("result.failed_reviews", failed))
	r.metrics.RecordCounter("batch_reconciliations", 1, nil)

	return results, nil
}

// noopMetrics discards every measurement. It stands in when no collector
// is configured.
type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)     {}
