package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

// Redis key layout. The review set tracks every known review so empty
// reviews survive restarts; each review owns a hash of participant
// payloads and a companion list preserving submission order.
const keyReviews = "concord:reviews"

func reviewKey(id string) string   { return "concord:review:" + id }
func sequenceKey(id string) string { return reviewKey(id) + ":seq" }

// connectTimeout bounds the liveness probe performed when the store opens.
const connectTimeout = 5 * time.Second

// RedisStore is a ports.ReviewStore backed by Redis. Orderings are stored
// as JSON in a hash per review (participant as field) with submission
// order kept in a companion list. Replacing an ordering rewrites the hash
// field but leaves the participant's list slot untouched.
//
// All operations honor the caller's context. Network failures surface as
// retryable StoreErrors wrapping ports.ErrStoreUnavailable.
type RedisStore struct {
	client *redis.Client
}

var _ ports.ReviewStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection with a ping.
// The dsn is either a redis:// URL or a plain host:port address.
func NewRedisStore(dsn string) (*RedisStore, error) {
	var opts *redis.Options
	if strings.Contains(dsn, "://") {
		parsed, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis dsn: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: dsn}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connect %s: %v", ports.ErrStoreUnavailable, opts.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

// CreateReview registers a new, empty review. SADD reports whether the
// identifier was actually added, which doubles as the existence check.
func (s *RedisStore) CreateReview(ctx context.Context, reviewID string) error {
	added, err := s.client.SAdd(ctx, keyReviews, reviewID).Result()
	if err != nil {
		return s.wrap(reviewID, "CreateReview", err)
	}
	if added == 0 {
		return ports.NewStoreError(reviewID, "CreateReview", ports.ErrReviewExists)
	}
	return nil
}

// PutOrdering stores or replaces a participant's ordering, keeping the
// participant's original submission slot on replacement.
func (s *RedisStore) PutOrdering(ctx context.Context, reviewID string, ordering domain.Ordering) error {
	if err := s.ensureReview(ctx, reviewID, "PutOrdering"); err != nil {
		return err
	}

	payload, err := json.Marshal(ordering)
	if err != nil {
		return ports.NewStoreError(reviewID, "PutOrdering", err)
	}

	// HSET reports the number of new fields, so a first-time submission
	// also claims a slot in the sequence list.
	added, err := s.client.HSet(ctx, reviewKey(reviewID), ordering.Participant, payload).Result()
	if err != nil {
		return s.wrap(reviewID, "PutOrdering", err)
	}
	if added > 0 {
		if err := s.client.RPush(ctx, sequenceKey(reviewID), ordering.Participant).Err(); err != nil {
			return s.wrap(reviewID, "PutOrdering", err)
		}
	}
	return nil
}

// GetOrderings returns the review's orderings in submission order.
func (s *RedisStore) GetOrderings(ctx context.Context, reviewID string) ([]domain.Ordering, error) {
	if err := s.ensureReview(ctx, reviewID, "GetOrderings"); err != nil {
		return nil, err
	}

	participants, err := s.client.LRange(ctx, sequenceKey(reviewID), 0, -1).Result()
	if err != nil {
		return nil, s.wrap(reviewID, "GetOrderings", err)
	}

	out := make([]domain.Ordering, 0, len(participants))
	if len(participants) == 0 {
		return out, nil
	}

	values, err := s.client.HMGet(ctx, reviewKey(reviewID), participants...).Result()
	if err != nil {
		return nil, s.wrap(reviewID, "GetOrderings", err)
	}
	for i, value := range values {
		payload, ok := value.(string)
		if !ok {
			return nil, ports.NewStoreError(reviewID, "GetOrderings",
				fmt.Errorf("sequence references unknown participant %q", participants[i]))
		}
		var o domain.Ordering
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, ports.NewStoreError(reviewID, "GetOrderings",
				fmt.Errorf("decode ordering for %q: %w", participants[i], err))
		}
		out = append(out, o)
	}
	return out, nil
}

// DeleteOrdering removes a participant's ordering and its sequence slot.
func (s *RedisStore) DeleteOrdering(ctx context.Context, reviewID, participant string) error {
	if err := s.ensureReview(ctx, reviewID, "DeleteOrdering"); err != nil {
		return err
	}

	removed, err := s.client.HDel(ctx, reviewKey(reviewID), participant).Result()
	if err != nil {
		return s.wrap(reviewID, "DeleteOrdering", err)
	}
	if removed == 0 {
		return ports.NewStoreError(reviewID, "DeleteOrdering", ports.ErrOrderingNotFound)
	}
	if err := s.client.LRem(ctx, sequenceKey(reviewID), 1, participant).Err(); err != nil {
		return s.wrap(reviewID, "DeleteOrdering", err)
	}
	return nil
}

// ListReviews returns every review identifier in lexical order.
func (s *RedisStore) ListReviews(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, keyReviews).Result()
	if err != nil {
		return nil, s.wrap("", "ListReviews", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

// ensureReview verifies the review exists before touching its keys.
func (s *RedisStore) ensureReview(ctx context.Context, reviewID, operation string) error {
	ok, err := s.client.SIsMember(ctx, keyReviews, reviewID).Result()
	if err != nil {
		return s.wrap(reviewID, operation, err)
	}
	if !ok {
		return ports.NewStoreError(reviewID, operation, ports.ErrReviewNotFound)
	}
	return nil
}

// wrap converts a backend failure into a StoreError, promoting network
// errors to the retryable ports.ErrStoreUnavailable sentinel.
func (s *RedisStore) wrap(reviewID, operation string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		err = fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return ports.NewStoreError(reviewID, operation, err)
}
