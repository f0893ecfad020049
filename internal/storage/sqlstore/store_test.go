package sqlstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/storage"
)

func TestResolveConfigDefaults(t *testing.T) {
	driver, table := resolveConfig(Config{})
	require.Equal(t, "mysql", driver)
	require.Equal(t, defaultTable, table)

	driver, table = resolveConfig(Config{Driver: "dolt", Table: "custom_records"})
	require.Equal(t, "dolt", driver)
	require.Equal(t, "custom_records", table)
}

func TestSchemaDDLNamesTableAndUniqueKey(t *testing.T) {
	ddl := schemaDDL("canon_records")
	require.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS canon_records")
	require.Contains(t, ddl, "PRIMARY KEY (set_name, id)")
	require.Contains(t, ddl, "canon_records_seq")
}

func TestPageOffset(t *testing.T) {
	require.Equal(t, 0, pageOffset(1, 500))
	require.Equal(t, 500, pageOffset(2, 500))
	require.Equal(t, 1000, pageOffset(3, 500))
}

func TestClassifyDistinguishesTransientFromPermanent(t *testing.T) {
	transient := classify(errors.New("driver: bad connection"))
	require.True(t, storage.IsTransient(transient))
	require.False(t, storage.IsPermanent(transient))

	goneAway := classify(errors.New("Error 2006: MySQL server has gone away"))
	require.True(t, storage.IsTransient(goneAway))

	permanent := classify(errors.New("Error 1062: Duplicate entry"))
	require.True(t, storage.IsPermanent(permanent))
	require.False(t, storage.IsTransient(permanent))

	require.NoError(t, classify(nil))
}
