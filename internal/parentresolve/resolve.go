// Package parentresolve implements the ParentResolve protocol and the
// background sweep that retries parked "parent not yet known" records
// once their parent becomes resolvable.
package parentresolve

import (
	"context"
	"fmt"

	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/types"
)

// Resolve implements the ParentResolve(parentModel, sourceSystem,
// sourceLocalId) protocol from spec §4.5: build the composite id
// "sourceSystem|sourceSystem|sourceLocalId" and look it up in
// IdentityLink<parentModel>. It never mints a provisional parent; an
// unresolved lookup returns ok=false.
func Resolve(ctx context.Context, store storage.Storage, parentModel, sourceSystem, sourceLocalId string) (referenceId string, ok bool, err error) {
	set := storage.SetName(parentModel, storage.SetIdentityLink)
	id := types.IdentityLinkID(sourceSystem, sourceSystem, sourceLocalId)

	link, err := storage.Get[types.IdentityLink](ctx, store, set, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("parentresolve: looking up %s/%s: %w", set, id, err)
	}
	return link.ReferenceId, true, nil
}
