// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/rkonrad/go-concord/internal/domain"
)

// ReviewStore persists the orderings submitted for each review.
// Implementations could use an embedded key/value store, Redis, or
// in-memory storage; the reconciliation engine itself never touches
// storage directly.
//
// A review is identified by an opaque non-empty string chosen by the
// caller. Within a review each participant holds at most one ordering;
// resubmitting replaces the previous one.
type ReviewStore interface {
	// CreateReview registers a new, empty review.
	// Returns ErrReviewExists (wrapped in a StoreError) when the
	// identifier is already taken.
	CreateReview(ctx context.Context, reviewID string) error

	// PutOrdering stores or replaces a participant's ordering for the
	// review. The ordering must already be validated; stores persist it
	// verbatim. Returns ErrReviewNotFound when the review does not exist.
	PutOrdering(ctx context.Context, reviewID string, ordering domain.Ordering) error

	// GetOrderings returns every ordering submitted for the review in
	// submission order. Replacing an ordering keeps its original slot so
	// reconciliation inputs stay stable. Returns ErrReviewNotFound when
	// the review does not exist.
	GetOrderings(ctx context.Context, reviewID string) ([]domain.Ordering, error)

	// DeleteOrdering removes a participant's ordering from the review.
	// Returns ErrOrderingNotFound when the participant never submitted
	// one, and ErrReviewNotFound when the review does not exist.
	DeleteOrdering(ctx context.Context, reviewID, participant string) error

	// ListReviews returns the identifiers of every known review in
	// lexical order.
	ListReviews(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store. The store must not
	// be used afterwards.
	Close() error
}
