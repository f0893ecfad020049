package association

import (
	"context"
	"time"

	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/types"
)

// processRecord runs one stage record through extraction, ownership,
// key-index commit, version bookkeeping, and the stage transition. A
// returned error means a storage fault occurred; the record stays in
// intake untouched and is retried next tick. A park or rejection is not
// an error: it is a completed, successful routing decision.
func (w *Worker) processRecord(ctx context.Context, m registry.Model, r *types.StageRecord) error {
	root, err := registry.RootOf(w.pctx.Registry, m)
	if err != nil {
		return err
	}

	candidates, parkReason, evidence, err := extractCandidates(ctx, w.pctx, m, r)
	if err != nil {
		return err
	}
	if parkReason != "" {
		return w.parkOrReject(ctx, m, r, parkReason, evidence)
	}

	var chosen string
	if m.Parent().Kind == types.ParentValueObject {
		// A value object has no canonical identity of its own: it folds
		// into the parent's projection, so it adopts the parent's
		// ReferenceId directly instead of running ownership resolution
		// that would mint one. commitKeyIndex below still validates the
		// candidate against it.
		chosen = candidates[0].Value
	} else {
		chosen, parkReason, evidence, err = resolveOwnership(ctx, w.pctx, m, root, r, candidates)
		if err != nil {
			return err
		}
		if parkReason != "" {
			return w.parkOrReject(ctx, m, r, parkReason, evidence)
		}
	}

	parkReason, evidence, err = commitKeyIndex(ctx, w.pctx, root.Name(), chosen, candidates)
	if err != nil {
		return err
	}
	if parkReason != "" {
		return w.parkOrReject(ctx, m, r, parkReason, evidence)
	}

	version, err := w.bumpReferenceItem(ctx, root.Name(), chosen)
	if err != nil {
		return err
	}

	if !m.Parent().IsValueObject() {
		if err := w.enqueueProjectionTask(ctx, root.Name(), chosen, version); err != nil {
			return err
		}
	}

	return w.transitionToKeyed(ctx, m, r, chosen)
}

func (w *Worker) bumpReferenceItem(ctx context.Context, rootName, chosen string) (int64, error) {
	set := storage.SetName(rootName, storage.SetReference)
	var version int64 = 1
	prior, err := storage.Get[types.ReferenceItem](ctx, w.pctx.Storage, set, chosen)
	switch {
	case err == nil:
		version = prior.Version + 1
	case storage.IsNotFound(err):
		// first touch for this reference
	default:
		return 0, err
	}

	item := &types.ReferenceItem{Id: chosen, Version: version, RequiresProjection: true}
	if err := storage.Upsert(ctx, w.pctx.Storage, set, item); err != nil {
		return 0, err
	}
	return version, nil
}

func (w *Worker) enqueueProjectionTask(ctx context.Context, rootName, chosen string, version int64) error {
	set := storage.SetName(rootName, storage.SetTasks)
	task := &types.ProjectionTask{
		Id:          types.ProjectionTaskID(chosen, version),
		ReferenceId: chosen,
		Version:     version,
		ViewName:    "canonical",
		CreatedAt:   time.Now(),
	}
	if err := storage.Upsert(ctx, w.pctx.Storage, set, task); err != nil {
		return err
	}
	w.pctx.Metrics.TaskEnqueued(ctx, rootName)
	return nil
}

func (w *Worker) transitionToKeyed(ctx context.Context, m registry.Model, r *types.StageRecord, chosen string) error {
	keyed := r.Clone()
	keyed.ReferenceId = chosen

	keyedSet := storage.SetName(m.Name(), storage.SetStageKeyed)
	if err := storage.Upsert(ctx, w.pctx.Storage, keyedSet, keyed); err != nil {
		return err
	}

	intakeSet := storage.SetName(m.Name(), storage.SetStageIntake)
	if err := w.pctx.Storage.Delete(ctx, intakeSet, r.Id); err != nil {
		return err
	}

	w.pctx.Metrics.RecordAssociated(ctx, m.Name())
	return nil
}

// parkOrReject always writes a RejectionReport, and additionally a
// ParkedRecord when parking is enabled, then removes the record from
// intake. A PARENT_NOT_FOUND park also pokes the parent resolution
// service for an immediate retry rather than waiting for its next tick.
func (w *Worker) parkOrReject(ctx context.Context, m registry.Model, r *types.StageRecord, reasonCode string, evidence map[string]interface{}) error {
	report := &types.RejectionReport{
		Id:            "rejection::" + r.Id,
		Model:         m.Name(),
		SourceId:      r.SourceId,
		ReasonCode:    reasonCode,
		Evidence:      evidence,
		PolicyVersion: r.PolicyVersion,
		CreatedAt:     time.Now(),
	}
	rejectionSet := storage.SetName(m.Name(), storage.SetRejections)
	if err := storage.Upsert(ctx, w.pctx.Storage, rejectionSet, report); err != nil {
		return err
	}
	w.pctx.Metrics.RecordRejected(ctx, m.Name(), reasonCode)

	if w.pctx.Options.ParkAndSweepEnabled {
		parked := &types.ParkedRecord{
			StageRecord: *r,
			ReasonCode:  reasonCode,
			Evidence:    evidence,
			ParkedAt:    time.Now(),
		}
		parkedSet := storage.SetName(m.Name(), storage.SetStageParked)
		if err := storage.Upsert(ctx, w.pctx.Storage, parkedSet, parked); err != nil {
			return err
		}
		w.pctx.Metrics.RecordParked(ctx, m.Name(), reasonCode)

		if reasonCode == types.ReasonParentNotFound && w.poker != nil {
			w.poker.Poke(ctx)
		}
	}

	intakeSet := storage.SetName(m.Name(), storage.SetStageIntake)
	return w.pctx.Storage.Delete(ctx, intakeSet, r.Id)
}
