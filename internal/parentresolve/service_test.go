package parentresolve

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowcanon/canon/internal/config"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/storage/memory"
	"github.com/flowcanon/canon/internal/types"
)

func newTestContext(t *testing.T) (*pipeline.Context, *registry.Registry) {
	t.Helper()
	store := memory.New()
	reg := registry.New()
	reg.Register(registry.Declare("Account", []string{"account.taxId"}, types.ParentDeclaration{}, nil))
	reg.Register(registry.Declare("Contact", nil, types.ParentDeclaration{
		Kind:          types.ParentEntity,
		ParentModel:   "Account",
		ParentKeyPath: "account.sourceLocalId",
	}, nil))
	opts := config.Defaults()
	return pipeline.New(store, reg, opts, nil, nil), reg
}

func TestResolveFound(t *testing.T) {
	pctx, _ := newTestContext(t)
	ctx := context.Background()

	link := &types.IdentityLink{
		Id:          types.IdentityLinkID("crm", "crm", "acct-1"),
		System:      "crm",
		Adapter:     "crm",
		ExternalId:  "acct-1",
		ReferenceId: "ref-account-1",
	}
	require.NoError(t, storage.Upsert(ctx, pctx.Storage, storage.SetName("Account", storage.SetIdentityLink), link))

	refId, ok, err := Resolve(ctx, pctx.Storage, "Account", "crm", "acct-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ref-account-1", refId)
}

func TestResolveNotFound(t *testing.T) {
	pctx, _ := newTestContext(t)
	ctx := context.Background()

	_, ok, err := Resolve(ctx, pctx.Storage, "Account", "crm", "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSweepUnparksOnceParentResolvable(t *testing.T) {
	pctx, _ := newTestContext(t)
	ctx := context.Background()

	parked := &types.ParkedRecord{
		StageRecord: types.StageRecord{
			Id:         "stage-1",
			SourceId:   "contact-source-1",
			OccurredAt: time.Now(),
			Data: map[string]interface{}{
				"account": map[string]interface{}{
					"sourceLocalId": "acct-1",
				},
			},
			Source: map[string]string{"system": "crm", "adapter": "crm"},
		},
		ReasonCode: types.ReasonParentNotFound,
		ParkedAt:   time.Now(),
	}
	parkedSet := storage.SetName("Contact", storage.SetStageParked)
	require.NoError(t, storage.Upsert(ctx, pctx.Storage, parkedSet, parked))

	svc := NewService(pctx, nil)
	require.NoError(t, svc.sweepOnce(ctx))

	// Parent still unresolved: record must remain parked untouched.
	_, err := storage.Get[types.ParkedRecord](ctx, pctx.Storage, parkedSet, "stage-1")
	require.NoError(t, err)

	link := &types.IdentityLink{
		Id:          types.IdentityLinkID("crm", "crm", "acct-1"),
		System:      "crm",
		Adapter:     "crm",
		ExternalId:  "acct-1",
		ReferenceId: "ref-account-1",
	}
	require.NoError(t, storage.Upsert(ctx, pctx.Storage, storage.SetName("Account", storage.SetIdentityLink), link))

	require.NoError(t, svc.sweepOnce(ctx))

	_, err = storage.Get[types.ParkedRecord](ctx, pctx.Storage, parkedSet, "stage-1")
	require.True(t, storage.IsNotFound(err), "parked record should have been removed once unparked")

	intakeSet := storage.SetName("Contact", storage.SetStageIntake)
	intake, err := storage.FirstPage[types.StageRecord](ctx, pctx.Storage, intakeSet, 10)
	require.NoError(t, err)
	require.Len(t, intake, 1)
	require.Equal(t, "contact-source-1", intake[0].SourceId)
	require.NotEqual(t, "stage-1", intake[0].Id, "unparked record must get a fresh stage id")
}

func TestSweepIgnoresOtherReasonCodes(t *testing.T) {
	pctx, _ := newTestContext(t)
	ctx := context.Background()

	parked := &types.ParkedRecord{
		StageRecord: types.StageRecord{Id: "stage-2", SourceId: "contact-source-2", OccurredAt: time.Now()},
		ReasonCode:  types.ReasonMultiOwnerCollision,
		ParkedAt:    time.Now(),
	}
	parkedSet := storage.SetName("Contact", storage.SetStageParked)
	require.NoError(t, storage.Upsert(ctx, pctx.Storage, parkedSet, parked))

	svc := NewService(pctx, nil)
	require.NoError(t, svc.sweepOnce(ctx))

	_, err := storage.Get[types.ParkedRecord](ctx, pctx.Storage, parkedSet, "stage-2")
	require.NoError(t, err, "non-parent-not-found parks must be left for manual review, not swept")
}

// countingStore counts PageRaw calls against one set, so a test can tell
// how many sweeps have scanned it.
type countingStore struct {
	storage.Storage
	set   string
	mu    sync.Mutex
	pages int
}

func (s *countingStore) PageRaw(ctx context.Context, set string, page, pageSize int) ([][]byte, error) {
	if set == s.set {
		s.mu.Lock()
		s.pages++
		s.mu.Unlock()
	}
	return s.Storage.PageRaw(ctx, set, page, pageSize)
}

func (s *countingStore) scans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages
}

func TestPokeTriggersImmediateSweep(t *testing.T) {
	pctx, _ := newTestContext(t)
	pctx.Options.ParentSweepInterval = time.Hour
	store := &countingStore{Storage: pctx.Storage, set: storage.SetName("Contact", storage.SetStageParked)}
	pctx.Storage = store
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	svc := NewService(pctx, nil)
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.Poke(context.Background())

	// Run sweeps once on start; with an hour-long interval, a second scan
	// of the parked set can only come from the poke.
	require.Eventually(t, func() bool { return store.scans() >= 2 }, 150*time.Millisecond, 5*time.Millisecond)

	<-ctx.Done()
	<-done
}
