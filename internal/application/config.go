// Package application provides the core business logic and orchestration
// for the reconciliation engine: profile configuration, engine assembly,
// and the review service that ties storage to the pure engine units.
package application

import (
	"github.com/rkonrad/go-concord/internal/reconcile"
)

// DefaultProfileName is the profile every document must define. It is the
// profile used when a deployment does not select one explicitly.
const DefaultProfileName = "default"

// ProfileSet defines the complete set of engine profiles for a deployment
// and serves as the primary configuration entry point for the system.
// Use ProfileSet when deployments need differently tuned engines, for
// example a strict profile for release branches and a lenient one for
// drafts, without recompiling.
type ProfileSet struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Profiles defines the named engine configurations. Exactly one of
	// them must be called "default".
	Profiles []Profile `yaml:"profiles" validate:"required,min=1,dive"`
}

// Profile defines the tuning for one complete engine: every section maps
// onto the configuration of one reconciliation unit.
//
// Sections are all or nothing: an omitted section takes the unit's
// defaults, while a present section must satisfy that unit's constraints
// as written.
type Profile struct {
	// Name is the identifier used to select this profile
	// and must be unique within the document.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description provides a human-readable explanation of the profile's
	// intended use.
	Description string `yaml:"description" validate:"max=1000"`
	// Calculator tunes consensus calculation and outlier exclusion.
	Calculator *reconcile.CalculatorConfig `yaml:"calculator"`
	// Analyzer tunes agreement scoring and conflict detection.
	Analyzer *reconcile.AnalyzerConfig `yaml:"analyzer"`
	// Merger tunes how incoming orderings blend into a consensus.
	Merger *reconcile.MergerConfig `yaml:"merger"`
	// Differ tunes ordering comparison and large move reporting.
	Differ *reconcile.DifferConfig `yaml:"differ"`
	// Rename tunes the pairing of removed and added paths.
	Rename *reconcile.RenameConfig `yaml:"rename"`
}
