// Command genreviews writes a synthetic review dataset for load tests and
// local experiments. Every review shares one file pool; the swap count
// controls how much the generated participants disagree.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rkonrad/go-concord/internal/application"
	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/testutils"
)

type dataset struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Seed        int64          `json:"seed"`
	Reviews     []reviewRecord `json:"reviews"`
}

type reviewRecord struct {
	ID        string            `json:"id"`
	Orderings []domain.Ordering `json:"orderings"`
}

func main() {
	var (
		reviews      = flag.Int("reviews", 20, "Number of reviews to generate")
		participants = flag.Int("participants", 5, "Participants per review")
		items        = flag.Int("items", 30, "Files per review")
		swaps        = flag.Int("swaps", 15, "Adjacent swaps per participant; more swaps means less agreement")
		seed         = flag.Int64("seed", 0, "Random seed (0 uses the current time)")
		outputPath   = flag.String("output", "testdata/reviews/sample_reviews.json", "Output file path")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ds := dataset{
		GeneratedAt: time.Now().UTC(),
		Seed:        *seed,
		Reviews:     make([]reviewRecord, *reviews),
	}
	for i := range ds.Reviews {
		ds.Reviews[i] = reviewRecord{
			ID:        fmt.Sprintf("pr-%03d", i+1),
			Orderings: testutils.GenerateOrderings(*participants, *items, *swaps, *seed+int64(i)),
		}
	}

	if err := save(ds, *outputPath); err != nil {
		log.Fatalf("Failed to save dataset: %v", err)
	}

	agreement, err := meanAgreement(ds)
	if err != nil {
		log.Fatalf("Failed to score dataset: %v", err)
	}

	fmt.Printf("Generated review dataset:\n")
	fmt.Printf("- Path: %s\n", *outputPath)
	fmt.Printf("- Reviews: %d\n", *reviews)
	fmt.Printf("- Participants per review: %d\n", *participants)
	fmt.Printf("- Files per review: %d\n", *items)
	fmt.Printf("- Mean agreement: %.3f\n", agreement)
}

func save(ds dataset, path string) error {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// meanAgreement reconciles every generated review with the default profile
// and averages the agreement scores, so a dataset's noise level is visible
// before anything consumes it.
func meanAgreement(ds dataset) (float64, error) {
	set := &application.ProfileSet{
		Version:  "1.0.0",
		Profiles: []application.Profile{{Name: application.DefaultProfileName}},
	}
	engine, err := set.DefaultEngine()
	if err != nil {
		return 0, err
	}

	ctx := context.Background()
	var total float64
	for _, review := range ds.Reviews {
		consensus, err := engine.Calculator.Calculate(ctx, review.Orderings)
		if err != nil {
			return 0, fmt.Errorf("review %s: %w", review.ID, err)
		}
		metadata, err := engine.Analyzer.Analyze(ctx, review.Orderings, consensus)
		if err != nil {
			return 0, fmt.Errorf("review %s: %w", review.ID, err)
		}
		total += metadata.AgreementScore
	}
	if len(ds.Reviews) == 0 {
		return 0, nil
	}
	return total / float64(len(ds.Reviews)), nil
}
