package idgen_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/idgen"
)

func TestNewReferenceIdOrdering(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := idgen.NewReferenceIdAt(base)
	later := idgen.NewReferenceIdAt(base.Add(time.Hour))
	require.Less(t, earlier[:8], later[:8])
}

func TestNewReferenceIdLengthAndAlphabet(t *testing.T) {
	id := idgen.NewReferenceId()
	require.Len(t, id, 14)
	for _, c := range id {
		require.Contains(t, "0123456789abcdefghijklmnopqrstuvwxyz", string(c))
	}
}

func TestNewReferenceIdUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := idgen.NewReferenceId()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
