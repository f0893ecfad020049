package parentresolve

import (
	"context"
	"time"

	"github.com/flowcanon/canon/internal/dotpath"
	"github.com/flowcanon/canon/internal/idgen"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/types"
)

// Broadcaster lets a poke cross process boundaries in a multi-instance
// deployment. internal/coordination provides a Redis Pub/Sub
// implementation; a nil Broadcaster limits poking to the current
// process, which is the spec's assumed single-instance default.
type Broadcaster interface {
	Publish(ctx context.Context) error
	Listen(ctx context.Context, onPoke func())
}

// Service runs the periodic parked-record sweep and exposes the "poke"
// entry point the association worker calls after parking a record.
type Service struct {
	pctx        *pipeline.Context
	pokeCh      chan struct{}
	broadcaster Broadcaster
}

// NewService builds a Service. broadcaster may be nil for single-process
// operation.
func NewService(pctx *pipeline.Context, broadcaster Broadcaster) *Service {
	return &Service{
		pctx:        pctx,
		pokeCh:      make(chan struct{}, 1),
		broadcaster: broadcaster,
	}
}

// Poke requests an immediate resolution pass, in addition to the regular
// periodic sweep. Non-blocking: a pending poke is not lost, but a second
// poke before the first is serviced is coalesced into one pass.
func (s *Service) Poke(ctx context.Context) {
	select {
	case s.pokeCh <- struct{}{}:
	default:
	}
	if s.broadcaster != nil {
		_ = s.broadcaster.Publish(ctx) // best-effort; local poke already queued
	}
}

// Run drives the periodic sweep every ParentSweepInterval until ctx is
// cancelled, and additionally runs a sweep whenever poked (locally or,
// if configured, via the Broadcaster).
func (s *Service) Run(ctx context.Context) error {
	if s.broadcaster != nil {
		s.broadcaster.Listen(ctx, func() {
			select {
			case s.pokeCh <- struct{}{}:
			default:
			}
		})
	}

	interval := s.pctx.Options.ParentSweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.sweepOnce(ctx); err != nil {
			s.pctx.Log.Warn("parentresolve: sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.pokeCh:
		}
	}
}

// SweepOnce runs a single resolution pass across every model, independent
// of Run's ticker/poke loop. Exposed for the `canonctl sweep` one-shot
// command.
func (s *Service) SweepOnce(ctx context.Context) error {
	return s.sweepOnce(ctx)
}

// sweepOnce scans every model's parked set for PARENT_NOT_FOUND entries
// and retries resolution for each.
func (s *Service) sweepOnce(ctx context.Context) error {
	for _, m := range s.pctx.Registry.Models() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sweepModel(ctx, m); err != nil {
			s.pctx.Log.Warn("parentresolve: sweep model failed", "model", m.Name(), "error", err)
		}
	}
	return nil
}

func (s *Service) sweepModel(ctx context.Context, m registry.Model) error {
	decl := m.Parent()
	if !decl.HasParent() {
		return nil
	}
	set := storage.SetName(m.Name(), storage.SetStageParked)
	pageSize := s.pctx.Options.BatchSize
	if pageSize <= 0 {
		pageSize = 500
	}

	for page := 1; ; page++ {
		parked, err := storage.Page[types.ParkedRecord](ctx, s.pctx.Storage, set, page, pageSize)
		if err != nil {
			return err
		}
		if len(parked) == 0 {
			return nil
		}
		for _, p := range parked {
			if p.ReasonCode != types.ReasonParentNotFound {
				continue
			}
			if err := s.tryUnpark(ctx, m, decl, p); err != nil {
				s.pctx.Log.Warn("parentresolve: unpark attempt failed", "model", m.Name(), "id", p.Id, "error", err)
			}
		}
	}
}

func (s *Service) tryUnpark(ctx context.Context, m registry.Model, decl types.ParentDeclaration, p *types.ParkedRecord) error {
	sourceLocal, ok := lookupParentKey(p, decl.ParentKeyPath)
	if !ok {
		return nil
	}
	system := p.Source["system"]
	if system == "" {
		return nil
	}

	refId, resolved, err := Resolve(ctx, s.pctx.Storage, decl.ParentModel, system, sourceLocal)
	if err != nil {
		return err
	}
	if !resolved {
		return nil
	}

	intake := types.StageRecord{
		Id:            idgen.NewReferenceId(),
		SourceId:      p.SourceId,
		OccurredAt:    p.OccurredAt,
		PolicyVersion: p.PolicyVersion,
		CorrelationId: p.CorrelationId,
		Data:          p.Data,
		Source:        p.Source,
	}
	intakeSet := storage.SetName(m.Name(), storage.SetStageIntake)
	if err := storage.Upsert(ctx, s.pctx.Storage, intakeSet, &intake); err != nil {
		return err
	}

	parkedSet := storage.SetName(m.Name(), storage.SetStageParked)
	if err := s.pctx.Storage.Delete(ctx, parkedSet, p.Id); err != nil {
		return err
	}

	refIdCopy := refId
	_ = refIdCopy // resolved parent reference; association recomputes the owner itself
	s.pctx.Log.Info("parentresolve: unparked", "model", m.Name(), "id", p.Id, "parent", decl.ParentModel)
	return nil
}

func lookupParentKey(p *types.ParkedRecord, path string) (string, bool) {
	v, ok := dotpath.Get(p.Data, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
