package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Profile is a named, per-model override bundle loaded from a TOML
// "recipe" file, mirroring the teacher's formula/recipe TOML files
// (internal/formula, internal/recipes) rather than the general app
// config (which uses YAML/env via viper, see load.go).
//
// The Parent* fields double as the ops CLI's model manifest: embedding
// code normally registers models with registry.Declare directly, but
// canonctl has no embedding Go code to call, so it builds a Registry
// from this same profiles file instead (see cmd/canonctl/registry.go).
type Profile struct {
	Model                       string   `toml:"model"`
	CanonicalExcludeTagPrefixes []string `toml:"canonical_exclude_tag_prefixes"`
	AggregationTags             []string `toml:"aggregation_tags"`

	// ParentKind is "" (root entity, the default), "none", "entity", or
	// "value_object". Empty and "none" are treated as a root entity,
	// matching types.ParentNone; cmd/canonctl rejects any other value.
	ParentKind    string `toml:"parent_kind"`
	ParentModel   string `toml:"parent_model"`
	ParentKeyPath string `toml:"parent_key_path"`

	// ExternalIdKeys lists dotted paths naming the external-id field
	// under each source, beyond the reserved identifier.external.*
	// bag scanned automatically.
	ExternalIdKeys []string `toml:"external_id_keys"`
}

// ProfileFile is the top-level shape of a profiles.toml file: one
// [[profile]] table array entry per model override.
type ProfileFile struct {
	Profile []Profile `toml:"profile"`
}

// LoadProfiles reads and parses a TOML profiles file. A missing file
// yields an empty ProfileFile rather than an error, matching the
// teacher's "absent optional file is not fatal" convention.
func LoadProfiles(path string) (*ProfileFile, error) {
	if path == "" {
		return &ProfileFile{}, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return &ProfileFile{}, nil
		}
		return nil, fmt.Errorf("config: reading profiles %s: %w", path, err)
	}
	var pf ProfileFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("config: parsing profiles %s: %w", path, err)
	}
	return &pf, nil
}

// ApplyProfile merges a named profile's overrides onto base for the
// given model, returning a new Options value. Only fields a profile sets
// are overridden.
func ApplyProfile(base Options, pf *ProfileFile, model string) Options {
	out := base
	for _, p := range pf.Profile {
		if p.Model != model {
			continue
		}
		if len(p.CanonicalExcludeTagPrefixes) > 0 {
			out.CanonicalExcludeTagPrefixes = p.CanonicalExcludeTagPrefixes
		}
		if len(p.AggregationTags) > 0 {
			out.AggregationTags = p.AggregationTags
		}
	}
	return out
}
