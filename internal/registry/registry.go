// Package registry discovers model types and derives the per-model
// metadata the association and projection workers need: aggregation-tag
// paths, parent declarations, external-id field paths, and display
// names.
//
// Models are a closed set of two implementations of the Model interface
// rather than dispatched through reflection on every record:
// DynamicModel is map-backed and declared explicitly; TypedModel wraps a
// Go struct whose fields are discovered once, at registration time, via
// `canon:"..."` struct tags.
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/flowcanon/canon/internal/types"
)

// Model is the uniform per-model descriptor both workers consume.
type Model interface {
	// Name is the stable display/set-naming name for this model.
	Name() string
	// AggregationTags lists the dotted payload paths used as aggregation
	// keys: in declaration order for DynamicModel, sorted by path for
	// TypedModel.
	AggregationTags() []string
	// Parent describes this model's relationship to a parent model, if
	// any.
	Parent() types.ParentDeclaration
	// ExternalIdKeys lists dotted paths naming the external-id field
	// under each source. Reserved-prefix bag keys are not included; they
	// are found per record by BagExternalIdKeys.
	ExternalIdKeys() []string
}

// Registry holds the set of known models, keyed by name.
type Registry struct {
	models map[string]Model
	order  []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register adds m to the registry. It panics on a duplicate name or a
// duplicate aggregation tag within m (a declaration error, not a runtime
// condition to recover from). The parent declaration is not validated
// here.
func (r *Registry) Register(m Model) {
	if _, exists := r.models[m.Name()]; exists {
		panic(fmt.Sprintf("registry: model %q already registered", m.Name()))
	}
	if err := validateTags(m.AggregationTags()); err != nil {
		panic(fmt.Sprintf("registry: model %q: %v", m.Name(), err))
	}
	r.models[m.Name()] = m
	r.order = append(r.order, m.Name())
}

func validateTags(tags []string) error {
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if seen[t] {
			return fmt.Errorf("duplicate aggregation tag %q", t)
		}
		seen[t] = true
	}
	return nil
}

// Lookup returns the model registered under name, or false.
func (r *Registry) Lookup(name string) (Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Models returns every registered model, in registration order.
func (r *Registry) Models() []Model {
	out := make([]Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Names returns every registered model name, sorted, for diagnostics.
func (r *Registry) Names() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// RootOf walks Parent() declarations to find the root aggregable entity a
// value-object model ultimately belongs to. A model with no parent
// declaration is its own root.
func RootOf(r *Registry, m Model) (Model, error) {
	seen := make(map[string]bool)
	cur := m
	for cur.Parent().HasParent() {
		if seen[cur.Name()] {
			return nil, fmt.Errorf("registry: parent cycle detected at %q", cur.Name())
		}
		seen[cur.Name()] = true
		parentName := cur.Parent().ParentModel
		parent, ok := r.Lookup(parentName)
		if !ok {
			return nil, fmt.Errorf("registry: model %q declares unknown parent %q", cur.Name(), parentName)
		}
		if cur.Parent().Kind == types.ParentEntity {
			// Entities with a parent are still their own root for
			// KeyIndex purposes — their aggregation keys are scoped to
			// themselves, not folded into the parent's set namespace.
			return cur, nil
		}
		cur = parent
	}
	return cur, nil
}

// reservedExternalIdBagPrefix is the reserved bag-key prefix scanned on
// every record in addition to any registry-declared ExternalIdKeys.
const reservedExternalIdBagPrefix = "identifier.external."

// BagExternalIdKeys scans data for keys under the reserved
// "identifier.external.*" bag prefix and returns their full dotted paths.
func BagExternalIdKeys(data map[string]interface{}) []string {
	var out []string
	walkPaths(data, "", func(path string) {
		if strings.HasPrefix(path, reservedExternalIdBagPrefix) {
			out = append(out, path)
		}
	})
	sort.Strings(out)
	return out
}

func walkPaths(data map[string]interface{}, prefix string, visit func(path string)) {
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			walkPaths(nested, path, visit)
			continue
		}
		visit(path)
	}
}

// typeOf is a small helper used by TypedModel to avoid importing reflect
// in call sites.
func typeOf(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
