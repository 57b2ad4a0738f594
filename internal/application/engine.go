package application

import (
	"fmt"

	"github.com/rkonrad/go-concord/internal/ports"
	"github.com/rkonrad/go-concord/internal/reconcile"
)

// Engine bundles the reconciliation units materialized from one profile.
// All units are stateless and safe for concurrent use, so a single Engine
// can serve every request of a deployment.
type Engine struct {
	// Profile is the name of the profile this engine was built from.
	Profile string

	Calculator *reconcile.Calculator
	Analyzer   *reconcile.Analyzer
	Merger     *reconcile.Merger
	Validator  *reconcile.ConsensusValidator
	Differ     *reconcile.Differ
	Renames    *reconcile.RenameMatcher
}

// Engine materializes the named profile into a configured engine bundle.
// Omitted profile sections fall back to each unit's defaults.
// Engine returns ports.ErrConfigNotFound (wrapped) when no profile with
// that name exists, or the unit's validation error when a section is
// invalid.
func (ps *ProfileSet) Engine(name string) (*Engine, error) {
	var profile *Profile
	for i := range ps.Profiles {
		if ps.Profiles[i].Name == name {
			profile = &ps.Profiles[i]
			break
		}
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: profile %q", ports.ErrConfigNotFound, name)
	}

	calculatorCfg := reconcile.DefaultCalculatorConfig()
	if profile.Calculator != nil {
		calculatorCfg = *profile.Calculator
	}
	analyzerCfg := reconcile.DefaultAnalyzerConfig()
	if profile.Analyzer != nil {
		analyzerCfg = *profile.Analyzer
	}
	mergerCfg := reconcile.DefaultMergerConfig()
	if profile.Merger != nil {
		mergerCfg = *profile.Merger
	}
	differCfg := reconcile.DefaultDifferConfig()
	if profile.Differ != nil {
		differCfg = *profile.Differ
	}
	renameCfg := reconcile.DefaultRenameConfig()
	if profile.Rename != nil {
		renameCfg = *profile.Rename
	}

	calculator, err := reconcile.NewCalculator(name+".calculator", calculatorCfg)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	analyzer, err := reconcile.NewAnalyzer(name+".analyzer", analyzerCfg)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	merger, err := reconcile.NewMerger(name+".merger", mergerCfg)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	validator, err := reconcile.NewConsensusValidator(name + ".validator")
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	differ, err := reconcile.NewDiffer(name+".differ", differCfg)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	renames, err := reconcile.NewRenameMatcher(name+".rename", renameCfg)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}

	return &Engine{
		Profile:    name,
		Calculator: calculator,
		Analyzer:   analyzer,
		Merger:     merger,
		Validator:  validator,
		Differ:     differ,
		Renames:    renames,
	}, nil
}

// DefaultEngine materializes the profile named "default".
func (ps *ProfileSet) DefaultEngine() (*Engine, error) {
	return ps.Engine(DefaultProfileName)
}

// Names returns the profile names in document order.
func (ps *ProfileSet) Names() []string {
	names := make([]string, len(ps.Profiles))
	for i, p := range ps.Profiles {
		names[i] = p.Name
	}
	return names
}
