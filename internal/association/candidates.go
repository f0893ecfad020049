package association

import (
	"context"
	"fmt"

	"github.com/flowcanon/canon/internal/dotpath"
	"github.com/flowcanon/canon/internal/parentresolve"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/types"
)

// candidate is one (aggregation tag, value) pair extracted from a stage
// record; KeyIndex is keyed on Value alone, Tag is carried through only
// for diagnostics.
type candidate struct {
	Tag   string
	Value string
}

// extractCandidates builds the candidate key set for r under m. A
// non-empty parkReason means extraction itself failed (parent
// unresolved or no keys at all); candidates is nil in that case.
func extractCandidates(ctx context.Context, pctx *pipeline.Context, m registry.Model, r *types.StageRecord) (candidates []candidate, parkReason string, evidence map[string]interface{}, err error) {
	decl := m.Parent()

	if !decl.HasParent() {
		tags := m.AggregationTags()
		if len(tags) == 0 {
			tags = pctx.Options.AggregationTags
		}
		for _, tag := range tags {
			v, ok := dotpath.Get(r.Data, tag)
			if !ok {
				continue
			}
			for _, val := range dotpath.Values(v) {
				candidates = append(candidates, candidate{Tag: tag, Value: fmt.Sprint(val)})
			}
		}
	} else {
		raw, ok := dotpath.Get(r.Data, decl.ParentKeyPath)
		localId, isStr := raw.(string)
		if !ok || !isStr || localId == "" {
			// Nothing to resolve at all, as opposed to a resolution
			// attempt that came back empty: NO_KEYS, not PARENT_NOT_FOUND.
			return nil, types.ReasonNoKeys, map[string]interface{}{
				"reason": "vo-parent-key-missing",
				"path":   decl.ParentKeyPath,
			}, nil
		}
		system := r.Source["system"]
		refId, resolved, rerr := parentresolve.Resolve(ctx, pctx.Storage, decl.ParentModel, system, localId)
		if rerr != nil {
			return nil, "", nil, rerr
		}
		if !resolved {
			return nil, types.ReasonParentNotFound, map[string]interface{}{
				"reason":        "parent-not-resolved",
				"parentModel":   decl.ParentModel,
				"sourceSystem":  system,
				"sourceLocalId": localId,
			}, nil
		}
		candidates = append(candidates, candidate{Tag: decl.ParentKeyPath, Value: refId})
	}

	if system, adapter := r.Source["system"], r.Source["adapter"]; system != "" && adapter != "" {
		extKeys := append(append([]string(nil), m.ExternalIdKeys()...), registry.BagExternalIdKeys(r.Data)...)
		for _, extKey := range extKeys {
			raw, ok := dotpath.Get(r.Data, extKey)
			ext, isStr := raw.(string)
			if !ok || !isStr || ext == "" {
				continue
			}
			// Tag deliberately keeps the literal "System|Adapter" segment
			// from the external interface contract; only extKey varies.
			candidates = append(candidates, candidate{
				Tag:   "env.System|Adapter|" + extKey,
				Value: system + "|" + adapter + "|" + ext,
			})
		}
	}

	if len(candidates) == 0 {
		return nil, types.ReasonNoKeys, map[string]interface{}{
			"reason": "no-values",
			"tags":   m.AggregationTags(),
		}, nil
	}
	return candidates, "", nil, nil
}
