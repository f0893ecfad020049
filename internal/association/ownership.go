package association

import (
	"context"
	"sort"
	"time"

	"github.com/flowcanon/canon/internal/idgen"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/types"
)

// resolveOwnership applies the ownership rules against the root model's
// KeyIndex and, failing that, the current model's IdentityLink. A
// non-empty parkReason means the record must be parked/rejected instead
// of adopting a ReferenceId.
func resolveOwnership(ctx context.Context, pctx *pipeline.Context, m, root registry.Model, r *types.StageRecord, candidates []candidate) (chosen, parkReason string, evidence map[string]interface{}, err error) {
	keyIndexSet := storage.SetName(root.Name(), storage.SetKeyIndex)

	owners := make(map[string]bool)
	ownerKeys := make(map[string][]string)
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		ki, gerr := storage.Get[types.KeyIndex](ctx, pctx.Storage, keyIndexSet, c.Value)
		if gerr != nil {
			if storage.IsNotFound(gerr) {
				continue
			}
			return "", "", nil, gerr
		}
		owners[ki.ReferenceId] = true
		ownerKeys[ki.ReferenceId] = append(ownerKeys[ki.ReferenceId], c.Value)
	}

	switch len(owners) {
	case 0:
		return resolveViaIdentity(ctx, pctx, m, r)
	case 1:
		for o := range owners {
			return o, "", nil, nil
		}
	}

	ownerList := make([]string, 0, len(owners))
	for o := range owners {
		ownerList = append(ownerList, o)
	}
	sort.Strings(ownerList)
	return "", types.ReasonMultiOwnerCollision, map[string]interface{}{
		"owners":    ownerList,
		"ownerKeys": ownerKeys,
	}, nil
}

// resolveViaIdentity handles the zero-owner branch: adopt an existing
// IdentityLink if the envelope identifies one, otherwise mint a new
// ReferenceId (provisionally linked when an external id is present).
func resolveViaIdentity(ctx context.Context, pctx *pipeline.Context, m registry.Model, r *types.StageRecord) (chosen, parkReason string, evidence map[string]interface{}, err error) {
	system, adapter, externalId := r.Source["system"], r.Source["adapter"], r.SourceId
	if system == "" || adapter == "" || externalId == "" || externalId == "unknown" {
		return idgen.NewReferenceId(), "", nil, nil
	}

	linkSet := storage.SetName(m.Name(), storage.SetIdentityLink)
	linkId := types.IdentityLinkID(system, adapter, externalId)

	link, gerr := storage.Get[types.IdentityLink](ctx, pctx.Storage, linkSet, linkId)
	if gerr == nil {
		return link.ReferenceId, "", nil, nil
	}
	if !storage.IsNotFound(gerr) {
		return "", "", nil, gerr
	}

	newId := idgen.NewReferenceId()
	expires := time.Now().Add(pctx.Options.ProvisionalLinkTtl)
	newLink := &types.IdentityLink{
		Id:          linkId,
		System:      system,
		Adapter:     adapter,
		ExternalId:  externalId,
		ReferenceId: newId,
		Provisional: true,
		ExpiresAt:   &expires,
	}
	if err := storage.Upsert(ctx, pctx.Storage, linkSet, newLink); err != nil {
		return "", "", nil, err
	}
	return newId, "", nil, nil
}

// commitKeyIndex performs the two-pass check-then-write KeyIndex commit:
// every candidate is re-read and checked against chosen before any
// write happens, so a record never partially commits some keys under
// one owner and then discovers a conflict on a later one.
func commitKeyIndex(ctx context.Context, pctx *pipeline.Context, rootName, chosen string, candidates []candidate) (parkReason string, evidence map[string]interface{}, err error) {
	keyIndexSet := storage.SetName(rootName, storage.SetKeyIndex)

	type checked struct {
		key    string
		exists bool
	}
	plan := make([]checked, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		if seen[c.Value] {
			continue
		}
		seen[c.Value] = true

		existing, gerr := storage.Get[types.KeyIndex](ctx, pctx.Storage, keyIndexSet, c.Value)
		if gerr != nil {
			if storage.IsNotFound(gerr) {
				plan = append(plan, checked{key: c.Value, exists: false})
				continue
			}
			return "", nil, gerr
		}
		if existing.ReferenceId != chosen {
			return types.ReasonKeyOwnerMismatch, map[string]interface{}{
				"key":      c.Value,
				"existing": existing.ReferenceId,
				"incoming": chosen,
			}, nil
		}
		plan = append(plan, checked{key: c.Value, exists: true})
	}

	for _, p := range plan {
		if p.exists {
			continue
		}
		entry := &types.KeyIndex{Id: p.key, ReferenceId: chosen}
		if err := storage.Upsert(ctx, pctx.Storage, keyIndexSet, entry); err != nil {
			return "", nil, err
		}
	}
	return "", nil, nil
}
