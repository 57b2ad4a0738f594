package testutils

import (
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/rkonrad/go-concord/internal/domain"
)

// poolDirs are the directory prefixes used to synthesize repository-style
// file paths.
var poolDirs = []string{
	"internal/engine",
	"internal/store",
	"internal/api",
	"cmd/server",
	"pkg/config",
	"docs",
}

// FilePool returns n distinct repository-style file paths in a canonical
// order. The pool is deterministic, so two calls with the same n yield
// the same paths.
func FilePool(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		dir := poolDirs[i%len(poolDirs)]
		if dir == "docs" {
			paths[i] = fmt.Sprintf("docs/note_%03d.md", i)
			continue
		}
		paths[i] = fmt.Sprintf("%s/file_%03d.go", dir, i)
	}
	return paths
}

// GenerateOrderings creates orderings from the given number of participants
// over a shared pool of files. Each participant starts from the canonical
// pool order and receives the given number of random adjacent swaps, so
// higher swap counts mean noisier reviews.
//
// The seed parameter controls randomization - use time.Now().UnixNano() for
// non-deterministic generation or a fixed value for reproducible tests.
func GenerateOrderings(participants, files, swaps int, seed int64) []domain.Ordering {
	rng := rand.New(rand.NewSource(seed))
	base := FilePool(files)
	createdAt := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

	orderings := make([]domain.Ordering, participants)
	for p := range orderings {
		items := slices.Clone(base)
		if files > 1 {
			for s := 0; s < swaps; s++ {
				i := rng.Intn(files - 1)
				items[i], items[i+1] = items[i+1], items[i]
			}
		}
		orderings[p] = domain.Ordering{
			Participant: fmt.Sprintf("reviewer-%02d", p+1),
			Items:       items,
			CreatedAt:   createdAt.Add(time.Duration(p) * time.Minute),
			Source:      "synthetic",
		}
	}
	return orderings
}
