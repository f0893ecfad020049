package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/storage/memory"
	"github.com/flowcanon/canon/internal/types"
)

func TestStatusCountsPerModel(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, storage.Upsert(ctx, store, storage.SetName("Contact", storage.SetStageIntake), &types.StageRecord{
		Id: "s1", Data: map[string]interface{}{"email": "a@x.com"}, Source: map[string]string{"system": "crm"},
	}))
	require.NoError(t, storage.Upsert(ctx, store, storage.SetName("Contact", storage.SetStageParked), &types.ParkedRecord{
		StageRecord: types.StageRecord{Id: "p1"}, ReasonCode: types.ReasonParentNotFound,
	}))

	n, err := store.Count(ctx, storage.SetName("Contact", storage.SetStageIntake))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = store.Count(ctx, storage.SetName("Contact", storage.SetStageParked))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = store.Count(ctx, storage.SetName("Contact", storage.SetStageKeyed))
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestPrintStatusTableHandlesEmptyRegistry(t *testing.T) {
	// Exercises the "no models registered" branch without a terminal.
	printStatusTable(nil)
}
