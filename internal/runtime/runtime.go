// Package runtime starts the association worker, the projection worker,
// and the parent-resolution sweep as one cancellable unit, the way the
// teacher's daemon runs several periodic loops under one process with
// one logger and one cancellation path.
package runtime

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/flowcanon/canon/internal/association"
	"github.com/flowcanon/canon/internal/parentresolve"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/projection"
)

// Supervisor owns the three background loops.
type Supervisor struct {
	pctx         *pipeline.Context
	broadcaster  parentresolve.Broadcaster
	materializer projection.Materializer
	monitors     []projection.Monitor
	locker       association.RecordLocker
}

// New builds a Supervisor. broadcaster may be nil, which restricts parked
// "parent not found" pokes to the local process. materializer may be nil,
// which falls back to projection.LastWriterMaterializer.
func New(pctx *pipeline.Context, broadcaster parentresolve.Broadcaster, materializer projection.Materializer, monitors ...projection.Monitor) *Supervisor {
	return &Supervisor{pctx: pctx, broadcaster: broadcaster, materializer: materializer, monitors: monitors}
}

// WithLock attaches an advisory RecordLocker for the association worker,
// so multiple Supervisor instances can run against one shared intake
// stage without double-processing a record. A nil locker (the default)
// restricts safe operation to a single instance.
func (s *Supervisor) WithLock(locker association.RecordLocker) *Supervisor {
	s.locker = locker
	return s
}

// Run starts all three loops and blocks until ctx is cancelled or one of
// them fails for a reason other than cancellation, at which point the
// others are stopped too.
func (s *Supervisor) Run(ctx context.Context) error {
	resolveSvc := parentresolve.NewService(s.pctx, s.broadcaster)
	assocWorker := association.NewWorker(s.pctx, resolveSvc).WithLock(s.locker)
	projWorker := projection.NewWorker(s.pctx, s.materializer, s.monitors...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runUntilCancelled(gctx, resolveSvc.Run) })
	g.Go(func() error { return runUntilCancelled(gctx, assocWorker.Run) })
	g.Go(func() error { return runUntilCancelled(gctx, projWorker.Run) })
	return g.Wait()
}

// runUntilCancelled treats context cancellation as a clean stop rather
// than a failure the errgroup should use to cancel its sibling loops.
func runUntilCancelled(ctx context.Context, loop func(context.Context) error) error {
	err := loop(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
