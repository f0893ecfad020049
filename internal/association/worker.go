// Package association implements the first of the two cooperating
// background workers: it decides the canonical ReferenceId for each
// inbound stage record, commits the key and identity indexes that back
// that decision, and routes failures to parking or rejection.
package association

import (
	"context"
	"time"

	"github.com/flowcanon/canon/internal/idgen"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/types"
)

// ParentPoker lets the worker ask the parent resolution service for an
// immediate sweep right after parking a record for a missing parent,
// instead of waiting out the service's regular tick.
type ParentPoker interface {
	Poke(ctx context.Context)
}

// RecordLocker is the advisory per-record lock §5 requires for
// multi-instance deployments, so two worker instances never run
// processRecord on the same stage record concurrently.
// internal/coordination.Lock satisfies this.
type RecordLocker interface {
	Acquire(ctx context.Context, name, token string) (bool, error)
	Release(ctx context.Context, name, token string) error
}

// Worker runs the association pass across every registered model.
type Worker struct {
	pctx   *pipeline.Context
	poker  ParentPoker
	locker RecordLocker
}

// NewWorker builds a Worker. poker may be nil; parking still happens,
// it just waits for the parent resolution service's own tick.
func NewWorker(pctx *pipeline.Context, poker ParentPoker) *Worker {
	return &Worker{pctx: pctx, poker: poker}
}

// WithLock attaches an advisory RecordLocker, used so multiple worker
// instances can share one intake stage without double-processing a
// record. A nil locker (the default) restricts safe operation to a
// single instance.
func (w *Worker) WithLock(locker RecordLocker) *Worker {
	w.locker = locker
	return w
}

// Run drives the association loop until ctx is cancelled. Each tick
// processes every model's intake page once, in registration order;
// models are independent, but within one model records are handled
// strictly in arrival order.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.pctx.Options.AssociationPollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		anyWork := false
		for _, m := range w.pctx.Registry.Models() {
			did, err := w.processModel(ctx, m)
			if err != nil {
				w.pctx.Log.Warn("association: model pass aborted", "model", m.Name(), "error", err)
				continue
			}
			if did {
				anyWork = true
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if anyWork {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// processModel handles one bounded page of m's intake stage. It reports
// true if any records were present, so the caller can skip its idle
// sleep and keep draining a busy model.
func (w *Worker) processModel(ctx context.Context, m registry.Model) (bool, error) {
	pageSize := w.pctx.Options.BatchSize
	if pageSize <= 0 {
		pageSize = 500
	}
	set := storage.SetName(m.Name(), storage.SetStageIntake)
	var records []*types.StageRecord
	err := storage.WithRetry(ctx, func() error {
		var fetchErr error
		records, fetchErr = storage.FirstPage[types.StageRecord](ctx, w.pctx.Storage, set, pageSize)
		return fetchErr
	})
	if err != nil {
		return false, err
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if w.locker != nil {
			held, err := w.tryProcessLocked(ctx, m, r)
			if err != nil {
				w.pctx.Log.Warn("association: record left in place for retry",
					"model", m.Name(), "stageId", r.Id, "error", err)
			} else if !held {
				w.pctx.Log.Debug("association: record locked by another instance, skipping",
					"model", m.Name(), "stageId", r.Id)
			}
			continue
		}
		err := storage.WithRetry(ctx, func() error {
			return w.processRecord(ctx, m, r)
		})
		if err != nil {
			w.pctx.Log.Warn("association: record left in place for retry",
				"model", m.Name(), "stageId", r.Id, "error", err)
		}
	}
	return len(records) > 0, nil
}

// tryProcessLocked acquires the advisory lock for r before processing it
// and releases it afterward regardless of outcome, so a crashed or slow
// worker never leaves a record permanently locked out past the lock's
// own TTL. It reports whether the lock was held (false means another
// instance owns it right now, not an error).
func (w *Worker) tryProcessLocked(ctx context.Context, m registry.Model, r *types.StageRecord) (bool, error) {
	name := lockName(m, r)
	token := idgen.NewReferenceId()

	acquired, err := w.locker.Acquire(ctx, name, token)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if releaseErr := w.locker.Release(ctx, name, token); releaseErr != nil {
			w.pctx.Log.Warn("association: releasing record lock", "model", m.Name(), "stageId", r.Id, "error", releaseErr)
		}
	}()

	return true, storage.WithRetry(ctx, func() error {
		return w.processRecord(ctx, m, r)
	})
}

func lockName(m registry.Model, r *types.StageRecord) string {
	return storage.SetName(m.Name(), storage.SetStageIntake) + ":" + r.Id
}
