package registry

import "github.com/flowcanon/canon/internal/types"

// DynamicModel is a map-backed model declared explicitly rather than
// derived from a Go struct. It is the variant used for payloads whose
// shape is not known at compile time.
type DynamicModel struct {
	name            string
	aggregationTags []string
	parent          types.ParentDeclaration
	externalIdKeys  []string
}

var _ Model = (*DynamicModel)(nil)

// Declare creates a DynamicModel. aggregationTags and externalIdKeys are
// ordered dotted paths; parent may be the zero value (types.ParentNone)
// for a pure root entity.
func Declare(name string, aggregationTags []string, parent types.ParentDeclaration, externalIdKeys []string) *DynamicModel {
	return &DynamicModel{
		name:            name,
		aggregationTags: append([]string(nil), aggregationTags...),
		parent:          parent,
		externalIdKeys:  append([]string(nil), externalIdKeys...),
	}
}

func (m *DynamicModel) Name() string                        { return m.name }
func (m *DynamicModel) AggregationTags() []string            { return m.aggregationTags }
func (m *DynamicModel) Parent() types.ParentDeclaration       { return m.parent }
func (m *DynamicModel) ExternalIdKeys() []string              { return m.externalIdKeys }
