package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/config"
)

func TestDefaultsAndNormalize(t *testing.T) {
	o := config.Options{}
	o.Normalize()
	require.Equal(t, 500, o.BatchSize)
	require.Equal(t, config.Defaults().AssociationPollInterval, o.AssociationPollInterval)
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	l, err := config.NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)
	require.Equal(t, 500, l.Options().BatchSize)
}

func TestLoaderReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch-size: 25\npark-and-sweep-enabled: false\n"), 0o600))

	l, err := config.NewLoader(path, nil)
	require.NoError(t, err)
	require.Equal(t, 25, l.Options().BatchSize)
	require.False(t, l.Options().ParkAndSweepEnabled)
}

func TestIsExcluded(t *testing.T) {
	o := config.Options{CanonicalExcludeTagPrefixes: []string{"reading."}}
	require.True(t, o.IsExcluded("reading.temp"))
	require.False(t, o.IsExcluded("identifier.external.crm"))
}

func TestLoadProfilesAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.toml")
	content := `
[[profile]]
model = "Reading"
canonical_exclude_tag_prefixes = ["raw."]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	pf, err := config.LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, pf.Profile, 1)

	merged := config.ApplyProfile(config.Defaults(), pf, "Reading")
	require.Equal(t, []string{"raw."}, merged.CanonicalExcludeTagPrefixes)
}

func TestLoadProfilesMissingFile(t *testing.T) {
	pf, err := config.LoadProfiles(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Empty(t, pf.Profile)
}
