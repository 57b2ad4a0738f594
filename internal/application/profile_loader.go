package application

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/rkonrad/go-concord/internal/ports"
)

// ProfileLoader provides YAML configuration parsing, validation, and
// caching for engine profiles, transforming declarative YAML documents
// into validated ProfileSet values.
// Use ProfileLoader to load profiles from files or readers while
// benefiting from SHA256-based caching and comprehensive validation.
type ProfileLoader struct {
	// validator performs struct field validation and custom validation
	// rules for profile documents and their nested sections.
	validator *validator.Validate
	// cache stores validated profile sets indexed by SHA256 hash of the
	// normalized document to avoid revalidating identical configurations.
	// WARNING: Cached sets MUST NOT be mutated; Engine builds fresh units
	// on every call, so sharing the set is safe as long as it stays
	// read-only.
	cache map[string]*ProfileSet // SHA256 hash -> validated profile set
	// cacheMu provides thread-safe access to the cache map during
	// concurrent read and write operations.
	cacheMu sync.RWMutex
	// sf prevents duplicate validation when multiple goroutines load the
	// same document simultaneously.
	sf singleflight.Group
}

// NewProfileLoader creates a new profile loader with validation
// capabilities and an empty cache, ready to load engine profiles.
// NewProfileLoader registers the custom semver validator used by the
// version field and returns an error if registration fails.
func NewProfileLoader() (*ProfileLoader, error) {
	v := validator.New()

	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return nil, fmt.Errorf("failed to register semver validator: %w", err)
	}

	return &ProfileLoader{
		validator: v,
		cache:     make(map[string]*ProfileSet),
	}, nil
}

// LoadFromFile loads and validates an engine profile document from a YAML
// file, utilizing SHA256-based caching to avoid revalidating identical
// files. Errors are wrapped in a ports.ConfigError carrying the path.
func (pl *ProfileLoader) LoadFromFile(path string) (*ProfileSet, error) {
	// Clean the path to prevent directory traversal issues.
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, ports.NewConfigError(cleanPath, err)
	}

	set, err := pl.load(data)
	if err != nil {
		return nil, ports.NewConfigError(cleanPath, err)
	}
	return set, nil
}

// LoadFromReader loads and validates an engine profile document from an
// io.Reader, supporting any source that implements the Reader interface.
// LoadFromReader applies the same caching and validation as LoadFromFile.
func (pl *ProfileLoader) LoadFromReader(r io.Reader) (*ProfileSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return pl.load(data)
}

// load is the common implementation for loading profiles from byte data,
// utilizing singleflight to prevent duplicate validation and SHA256-based
// caching for efficiency.
func (pl *ProfileLoader) load(data []byte) (*ProfileSet, error) {
	// Parse YAML first to normalize it before hashing.
	set, err := pl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Calculate hash based on the normalized document, not raw bytes.
	hash, err := pl.calculateConfigHash(set)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := pl.sf.Do(hash, func() (any, error) {
		// Check cache inside singleflight to handle the race between the
		// cache check and singleflight group execution.
		if cached, ok := pl.getCachedSet(hash); ok {
			return cached, nil
		}

		if err := pl.validateConfig(set); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		pl.cacheSet(hash, set)

		return set, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*ProfileSet), nil
}

// parseYAML unmarshals YAML byte data into a structured ProfileSet.
// parseYAML uses strict decoding to detect unknown fields, preventing
// configuration typos from being silently ignored.
func (pl *ProfileLoader) parseYAML(data []byte) (*ProfileSet, error) {
	var set ProfileSet
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.

	if err := decoder.Decode(&set); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &set, nil
}

// validateConfig performs comprehensive validation on a parsed profile
// document, including struct field validation and semantic validation of
// relationships between profiles.
func (pl *ProfileLoader) validateConfig(set *ProfileSet) error {
	if err := pl.validator.Struct(set); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	if err := pl.validateSemantics(set); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}

	return nil
}

// validateSemantics performs domain-specific validation rules that cannot
// be expressed through struct tags: profile names must be unique, a
// default profile must exist, and every profile must actually materialize
// into an engine.
func (pl *ProfileLoader) validateSemantics(set *ProfileSet) error {
	names := make(map[string]struct{}, len(set.Profiles))
	for _, profile := range set.Profiles {
		if _, exists := names[profile.Name]; exists {
			return fmt.Errorf("duplicate profile name %q", profile.Name)
		}
		names[profile.Name] = struct{}{}
	}

	if _, exists := names[DefaultProfileName]; !exists {
		return fmt.Errorf("no %q profile defined", DefaultProfileName)
	}

	// Build every engine once so section errors surface at load time
	// rather than on first use.
	for _, profile := range set.Profiles {
		if _, err := set.Engine(profile.Name); err != nil {
			return err
		}
	}

	return nil
}

// calculateConfigHash computes the SHA256 hash of a normalized ProfileSet
// for cache indexing, ensuring semantically identical documents produce
// the same hash regardless of whitespace or key ordering differences.
func (pl *ProfileLoader) calculateConfigHash(set *ProfileSet) (string, error) {
	// Normalize the document by re-encoding it with consistent formatting.
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(set); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// getCachedSet attempts to retrieve a previously validated profile set
// from the cache using its SHA256 hash as the lookup key.
// getCachedSet is safe for concurrent use.
func (pl *ProfileLoader) getCachedSet(hash string) (*ProfileSet, bool) {
	pl.cacheMu.RLock()
	defer pl.cacheMu.RUnlock()

	set, ok := pl.cache[hash]
	return set, ok
}

// cacheSet stores a validated profile set in the cache indexed by its
// normalized document's SHA256 hash for future retrieval.
// cacheSet is safe for concurrent use and will overwrite any existing
// entry with the same hash.
func (pl *ProfileLoader) cacheSet(hash string, set *ProfileSet) {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()

	pl.cache[hash] = set
}

// ClearCache removes all cached profile sets and reinitializes the cache
// map, forcing subsequent loads to revalidate from source.
// ClearCache is safe for concurrent use.
func (pl *ProfileLoader) ClearCache() {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()

	pl.cache = make(map[string]*ProfileSet)
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
// validateSemver is a validator.Func that can be registered with
// the validator instance for use in struct tags.
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3
}
