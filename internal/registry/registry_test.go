package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/types"
)

func TestDeclareDynamicModel(t *testing.T) {
	r := registry.New()
	contact := registry.Declare("Contact", []string{"email", "phone"}, types.ParentDeclaration{}, nil)
	r.Register(contact)

	got, ok := r.Lookup("Contact")
	require.True(t, ok)
	require.Equal(t, []string{"email", "phone"}, got.AggregationTags())
	require.False(t, got.Parent().HasParent())
}

func TestDuplicateAggregationTagPanics(t *testing.T) {
	r := registry.New()
	require.Panics(t, func() {
		r.Register(registry.Declare("Bad", []string{"email", "email"}, types.ParentDeclaration{}, nil))
	})
}

func TestRootOfValueObject(t *testing.T) {
	r := registry.New()
	device := registry.Declare("Device", []string{"deviceCode"}, types.ParentDeclaration{}, nil)
	reading := registry.Declare("Reading", nil, types.ParentDeclaration{
		Kind: types.ParentValueObject, ParentModel: "Device", ParentKeyPath: "deviceCode",
	}, nil)
	r.Register(device)
	r.Register(reading)

	root, err := registry.RootOf(r, reading)
	require.NoError(t, err)
	require.Equal(t, "Device", root.Name())
}

type typedContact struct {
	Email string `json:"email" canon:"agg:email"`
	Phone string `json:"phone" canon:"agg:phone"`
	ExtID string `json:"externalId" canon:"extid:externalId"`
}

func TestDeclareTypedModel(t *testing.T) {
	m := registry.DeclareTyped("Contact", typedContact{})
	require.ElementsMatch(t, []string{"email", "phone"}, m.AggregationTags())
	require.Equal(t, []string{"externalId"}, m.ExternalIdKeys())
}

func TestBagExternalIdKeys(t *testing.T) {
	data := map[string]interface{}{
		"identifier": map[string]interface{}{
			"external": map[string]interface{}{
				"crm": "C42",
				"sup": "S9",
			},
		},
		"email": "a@x.com",
	}
	keys := registry.BagExternalIdKeys(data)
	require.Equal(t, []string{"identifier.external.crm", "identifier.external.sup"}, keys)
}
