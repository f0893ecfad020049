package main

import (
	"fmt"

	"github.com/flowcanon/canon/internal/config"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/types"
)

// buildRegistry constructs a registry.Registry from a profiles.toml model
// manifest. There is no embedding Go program for the ops CLI to call
// registry.Declare from directly, so it reads the same profiles file the
// workers use for per-model option overrides and treats every [[profile]]
// entry as a model declaration too.
func buildRegistry(path string) (*registry.Registry, error) {
	pf, err := config.LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	for _, p := range pf.Profile {
		if p.Model == "" {
			continue
		}
		decl, err := parentDeclaration(p)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Model, err)
		}
		reg.Register(registry.Declare(p.Model, p.AggregationTags, decl, p.ExternalIdKeys))
	}
	return reg, nil
}

func parentDeclaration(p config.Profile) (types.ParentDeclaration, error) {
	switch p.ParentKind {
	case "", "none":
		return types.ParentDeclaration{}, nil
	case "entity":
		if p.ParentModel == "" || p.ParentKeyPath == "" {
			return types.ParentDeclaration{}, fmt.Errorf("parent_kind=entity requires parent_model and parent_key_path")
		}
		return types.ParentDeclaration{Kind: types.ParentEntity, ParentModel: p.ParentModel, ParentKeyPath: p.ParentKeyPath}, nil
	case "value_object":
		if p.ParentModel == "" || p.ParentKeyPath == "" {
			return types.ParentDeclaration{}, fmt.Errorf("parent_kind=value_object requires parent_model and parent_key_path")
		}
		return types.ParentDeclaration{Kind: types.ParentValueObject, ParentModel: p.ParentModel, ParentKeyPath: p.ParentKeyPath}, nil
	default:
		return types.ParentDeclaration{}, fmt.Errorf("unknown parent_kind %q", p.ParentKind)
	}
}
