package reconcile

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/rkonrad/go-concord/internal/domain"
)

// foldCaser is a package-level Unicode case folder so case-insensitive
// pairing does not allocate a caser per comparison.
var foldCaser = cases.Fold()

// RenameMatcher pairs paths that vanished from one ordering with similar
// paths that appeared in the other, suggesting renames instead of
// unrelated removals and additions.
//
// Similarity is the Levenshtein distance normalized by the longer path's
// rune count. Pairing is greedy best-first: the most similar candidate
// pair wins, each path participates in at most one pair, and ties are
// broken lexically so results are deterministic.
//
// The matcher is stateless and safe for concurrent use.
type RenameMatcher struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config RenameConfig
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// RenameConfig defines the pairing parameters. All fields are validated
// during unit creation.
type RenameConfig struct {
	// Threshold is the minimum normalized similarity (0.0-1.0) for two
	// paths to be proposed as a rename pair.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gte=0,lte=1"`

	// CaseSensitive determines whether paths are compared as written.
	// When false, both sides are Unicode case folded before comparison.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`
}

// DefaultRenameConfig returns a RenameConfig with sensible defaults for
// file paths: case-sensitive comparison and a 0.6 similarity floor.
func DefaultRenameConfig() RenameConfig {
	return RenameConfig{
		Threshold:     0.6,
		CaseSensitive: true,
	}
}

// NewRenameMatcher creates a RenameMatcher with a validated configuration.
// Returns ErrEmptyName if name is empty, or a validation error if the
// configuration violates its constraints.
func NewRenameMatcher(name string, config RenameConfig) (*RenameMatcher, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &RenameMatcher{
		name:   name,
		config: config,
		tracer: otel.Tracer("rename-matcher"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (rm *RenameMatcher) Name() string { return rm.name }

// Pair proposes rename pairs between removed and added paths.
//
// Every removed path is compared with every added path; candidates at or
// above the similarity threshold enter a greedy best-first selection in
// which each path pairs at most once. Pairs come back ordered by
// similarity descending, then by removed path.
//
// Sides larger than MaxRenameCandidates wrap domain.ErrInvalidInput and a
// repeated path within a side wraps domain.ErrDuplicateItem.
func (rm *RenameMatcher) Pair(ctx context.Context, removed, added []string) ([]domain.RenamePair, error) {
	_, span := rm.tracer.Start(ctx, "RenameMatcher.Pair",
		trace.WithAttributes(
			attribute.String("unit.id", rm.name),
			attribute.Int("input.removed", len(removed)),
			attribute.Int("input.added", len(added)),
			attribute.Float64("config.threshold", rm.config.Threshold),
		),
	)
	defer span.End()

	if len(removed) > MaxRenameCandidates || len(added) > MaxRenameCandidates {
		err := fmt.Errorf("%w: rename candidate sides %d and %d exceed limit of %d",
			domain.ErrInvalidInput, len(removed), len(added), MaxRenameCandidates)
		span.RecordError(err)
		return nil, err
	}
	if _, err := positionsOf(removed, "removed paths"); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if _, err := positionsOf(added, "added paths"); err != nil {
		span.RecordError(err)
		return nil, err
	}

	type candidate struct {
		from, to   string
		similarity float64
	}

	var candidates []candidate
	for _, from := range removed {
		for _, to := range added {
			s := rm.pathSimilarity(from, to)
			if s >= rm.config.Threshold {
				candidates = append(candidates, candidate{from: from, to: to, similarity: s})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		if candidates[i].from != candidates[j].from {
			return candidates[i].from < candidates[j].from
		}
		return candidates[i].to < candidates[j].to
	})

	var pairs []domain.RenamePair
	usedFrom := make(map[string]struct{}, len(removed))
	usedTo := make(map[string]struct{}, len(added))
	for _, c := range candidates {
		if _, taken := usedFrom[c.from]; taken {
			continue
		}
		if _, taken := usedTo[c.to]; taken {
			continue
		}
		usedFrom[c.from] = struct{}{}
		usedTo[c.to] = struct{}{}
		pairs = append(pairs, domain.RenamePair{From: c.from, To: c.to, Similarity: c.similarity})
	}

	span.SetAttributes(attribute.Int("pairs.matched", len(pairs)))
	return pairs, nil
}

// pathSimilarity computes the normalized Levenshtein similarity between
// two paths: 1 - distance/maxRuneCount, clamped to [0, 1]. Two empty
// strings are identical.
func (rm *RenameMatcher) pathSimilarity(a, b string) float64 {
	if !rm.config.CaseSensitive {
		a = foldCaser.String(a)
		b = foldCaser.String(b)
	}
	if a == b {
		return 1
	}

	// The distance operates on runes, so normalization must too.
	distance := levenshtein.ComputeDistance(a, b)
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}

	return clamp01(1 - float64(distance)/float64(maxLen))
}
