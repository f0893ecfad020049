package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/association"
	"github.com/flowcanon/canon/internal/config"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/storage/memory"
	"github.com/flowcanon/canon/internal/types"
)

// fakeLocker is an always-available RecordLocker, enough to prove the
// Supervisor actually threads a configured lock down into the
// association worker instead of silently dropping it.
type fakeLocker struct{ acquired int }

func (l *fakeLocker) Acquire(context.Context, string, string) (bool, error) {
	l.acquired++
	return true, nil
}

func (l *fakeLocker) Release(context.Context, string, string) error { return nil }

var _ association.RecordLocker = (*fakeLocker)(nil)

func TestSupervisorDrivesRecordToCanonicalProjection(t *testing.T) {
	contact := registry.Declare("Contact", []string{"email"}, types.ParentDeclaration{}, nil)
	reg := registry.New()
	reg.Register(contact)

	opts := config.Defaults()
	opts.AssociationPollInterval = 5 * time.Millisecond
	opts.ProjectionPollInterval = 5 * time.Millisecond
	opts.ParentSweepInterval = time.Hour

	store := memory.New()
	pctx := pipeline.New(store, reg, opts, nil, nil)

	intakeSet := storage.SetName("Contact", storage.SetStageIntake)
	require.NoError(t, storage.Upsert(context.Background(), store, intakeSet, &types.StageRecord{
		Id:       "stage-1",
		SourceId: "crm-1",
		Data:     map[string]interface{}{"email": "a@x.com"},
		Source:   map[string]string{"system": "crm", "adapter": "sf"},
	}))

	sup := New(pctx, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, sup.Run(ctx), "ordinary context cancellation is a clean stop, not a failure")

	keyIdx, err := storage.Get[types.KeyIndex](context.Background(), store, storage.SetName("Contact", storage.SetKeyIndex), "a@x.com")
	require.NoError(t, err)

	canonDoc, err := storage.Get[types.CanonicalProjection](context.Background(), store, storage.SetName("Contact", storage.SetViewsCanonical), types.CanonicalProjectionID(keyIdx.ReferenceId))
	require.NoError(t, err)
	require.ElementsMatch(t, []interface{}{"a@x.com"}, canonDoc.Model["email"])
}

func TestSupervisorWithLockThreadsLockerIntoAssociationWorker(t *testing.T) {
	contact := registry.Declare("Contact", []string{"email"}, types.ParentDeclaration{}, nil)
	reg := registry.New()
	reg.Register(contact)

	opts := config.Defaults()
	opts.AssociationPollInterval = 5 * time.Millisecond
	opts.ProjectionPollInterval = 5 * time.Millisecond
	opts.ParentSweepInterval = time.Hour

	store := memory.New()
	pctx := pipeline.New(store, reg, opts, nil, nil)

	require.NoError(t, storage.Upsert(context.Background(), store, storage.SetName("Contact", storage.SetStageIntake), &types.StageRecord{
		Id:       "stage-1",
		SourceId: "crm-1",
		Data:     map[string]interface{}{"email": "a@x.com"},
		Source:   map[string]string{"system": "crm", "adapter": "sf"},
	}))

	locker := &fakeLocker{}
	sup := New(pctx, nil, nil).WithLock(locker)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, sup.Run(ctx))
	require.Greater(t, locker.acquired, 0, "configured locker must be exercised by the association worker")

	_, err := storage.Get[types.KeyIndex](context.Background(), store, storage.SetName("Contact", storage.SetKeyIndex), "a@x.com")
	require.NoError(t, err)
}

func TestSupervisorStopsCleanlyOnCancel(t *testing.T) {
	reg := registry.New()
	pctx := pipeline.New(memory.New(), reg, config.Defaults(), nil, nil)

	sup := New(pctx, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sup.Run(ctx)
	require.NoError(t, err)
}
