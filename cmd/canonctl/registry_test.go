package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/config"
	"github.com/flowcanon/canon/internal/types"
)

func writeProfiles(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestBuildRegistryRootsAndValueObjects(t *testing.T) {
	path := writeProfiles(t, `
[[profile]]
model = "Account"
aggregation_tags = ["identifier.external.crm"]

[[profile]]
model = "Contact"
aggregation_tags = ["email"]
parent_kind = "entity"
parent_model = "Account"
parent_key_path = "accountId"

[[profile]]
model = "Reading"
aggregation_tags = ["deviceId", "timestamp"]
parent_kind = "value_object"
parent_model = "Device"
parent_key_path = "deviceId"
`)

	reg, err := buildRegistry(path)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Account", "Contact", "Reading"}, reg.Names())

	contact, ok := reg.Lookup("Contact")
	require.True(t, ok)
	require.Equal(t, types.ParentEntity, contact.Parent().Kind)
	require.Equal(t, "Account", contact.Parent().ParentModel)

	reading, ok := reg.Lookup("Reading")
	require.True(t, ok)
	require.True(t, reading.Parent().IsValueObject())
}

func TestBuildRegistryMissingFileYieldsEmptyRegistry(t *testing.T) {
	reg, err := buildRegistry("")
	require.NoError(t, err)
	require.Empty(t, reg.Names())
}

func TestParentDeclarationRejectsIncompleteEntityDeclaration(t *testing.T) {
	_, err := parentDeclaration(config.Profile{Model: "Contact", ParentKind: "entity"})
	require.Error(t, err)
}

func TestParentDeclarationRejectsUnknownKind(t *testing.T) {
	_, err := parentDeclaration(config.Profile{Model: "Contact", ParentKind: "bogus"})
	require.Error(t, err)
}
