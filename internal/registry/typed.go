package registry

import (
	"reflect"
	"sort"
	"strings"

	"github.com/flowcanon/canon/internal/types"
)

// TypedModel wraps a Go struct type whose fields declare their role via
// `canon:"..."` struct tags, discovered once at registration time:
//
//	type Contact struct {
//		Email string `canon:"agg:email"`
//		Phone string `canon:"agg:phone"`
//	}
//
// Supported tag values: "agg:<path>" (aggregation tag), "extid:<path>"
// (external-id field), and, on a field naming a parent model,
// "parent:<ModelName>" or "valueparent:<ModelName>".
type TypedModel struct {
	name            string
	sample          interface{}
	aggregationTags []string
	parent          types.ParentDeclaration
	externalIdKeys  []string
}

var _ Model = (*TypedModel)(nil)

// DeclareTyped builds a TypedModel by reflecting over sample's struct
// tags once. sample is a zero-value instance (or pointer to one) of the
// Go type backing this model; it is never mutated.
func DeclareTyped(name string, sample interface{}) *TypedModel {
	t := typeOf(sample)
	m := &TypedModel{name: name, sample: sample}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, ok := f.Tag.Lookup("canon")
		if !ok {
			continue
		}
		for _, part := range strings.Split(tag, ",") {
			kv := strings.SplitN(part, ":", 2)
			if len(kv) != 2 {
				continue
			}
			key, val := kv[0], kv[1]
			switch key {
			case "agg":
				m.aggregationTags = append(m.aggregationTags, val)
			case "extid":
				m.externalIdKeys = append(m.externalIdKeys, val)
			case "parent":
				m.parent = types.ParentDeclaration{Kind: types.ParentEntity, ParentModel: val, ParentKeyPath: jsonPathOf(f)}
			case "valueparent":
				m.parent = types.ParentDeclaration{Kind: types.ParentValueObject, ParentModel: val, ParentKeyPath: jsonPathOf(f)}
			}
		}
	}
	sort.Strings(m.aggregationTags)
	sort.Strings(m.externalIdKeys)
	return m
}

func jsonPathOf(f reflect.StructField) string {
	if j, ok := f.Tag.Lookup("json"); ok {
		name := strings.Split(j, ",")[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(f.Name)
}

func (m *TypedModel) Name() string                  { return m.name }
func (m *TypedModel) AggregationTags() []string      { return m.aggregationTags }
func (m *TypedModel) Parent() types.ParentDeclaration { return m.parent }
func (m *TypedModel) ExternalIdKeys() []string        { return m.externalIdKeys }

// Sample returns the zero-value instance this TypedModel was built from,
// used by the projection worker's strongly-typed root snapshot writer to
// discover field names via case-insensitive matching.
func (m *TypedModel) Sample() interface{} { return m.sample }
