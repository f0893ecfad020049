package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/storage/memory"
	"github.com/flowcanon/canon/internal/types"
)

func TestUpsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	ref := &types.ReferenceItem{Id: "r1", Version: 1, RequiresProjection: true}
	require.NoError(t, storage.Upsert(ctx, s, "Contact#reference", ref))

	got, err := storage.Get[types.ReferenceItem](ctx, s, "Contact#reference", "r1")
	require.NoError(t, err)
	require.Equal(t, ref.Version, got.Version)
	require.True(t, got.RequiresProjection)
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, err := storage.Get[types.ReferenceItem](ctx, s, "Contact#reference", "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteThenMoveBetweenSets(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec := &types.StageRecord{Id: "sr1", SourceId: "src", Data: map[string]interface{}{"x": 1}}
	require.NoError(t, storage.Upsert(ctx, s, "Contact#stage.intake", rec))
	require.NoError(t, storage.Upsert(ctx, s, "Contact#stage.keyed", rec))
	require.NoError(t, s.Delete(ctx, "Contact#stage.intake", "sr1"))

	_, err := storage.Get[types.StageRecord](ctx, s, "Contact#stage.intake", "sr1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := storage.Get[types.StageRecord](ctx, s, "Contact#stage.keyed", "sr1")
	require.NoError(t, err)
	require.Equal(t, "sr1", got.Id)
}

func TestPageStableOrderAndPagination(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, storage.Upsert(ctx, s, "Contact#stage.intake", &types.StageRecord{Id: id}))
	}

	page1, err := storage.Page[types.StageRecord](ctx, s, "Contact#stage.intake", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.Equal(t, "a", page1[0].Id)
	require.Equal(t, "b", page1[1].Id)

	page2, err := storage.Page[types.StageRecord](ctx, s, "Contact#stage.intake", 2, 2)
	require.NoError(t, err)
	require.Equal(t, "c", page2[0].Id)

	page3, err := storage.FirstPage[types.StageRecord](ctx, s, "Contact#stage.intake", 10)
	require.NoError(t, err)
	require.Len(t, page3, 5)

	count, err := s.Count(ctx, "Contact#stage.intake")
	require.NoError(t, err)
	require.EqualValues(t, 5, count)
}
