// Package projection implements the second of the two cooperating
// background workers: it consumes projection tasks, reduces contributing
// stage records into canonical and lineage views, and drives the
// Materializer/Monitor hooks that produce the root snapshot and policy
// state.
package projection

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/flowcanon/canon/internal/dotpath"
	"github.com/flowcanon/canon/internal/parentresolve"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/types"
)

const maxContributingRecords = 500

// Worker drains every registered root model's projection-task queue.
type Worker struct {
	pctx         *pipeline.Context
	materializer Materializer
	monitors     []Monitor
}

// NewWorker builds a Worker. A nil materializer falls back to
// LastWriterMaterializer so the worker runs without a bespoke policy
// engine configured.
func NewWorker(pctx *pipeline.Context, materializer Materializer, monitors ...Monitor) *Worker {
	if materializer == nil {
		materializer = NewLastWriterMaterializer()
	}
	return &Worker{pctx: pctx, materializer: materializer, monitors: monitors}
}

// Run drives the projection loop until ctx is cancelled, sleeping between
// full passes over every model's task set.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.pctx.Options.ProjectionPollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, m := range w.pctx.Registry.Models() {
			if m.Parent().IsValueObject() {
				continue // value objects never own a projection-task queue
			}
			if err := w.drainModel(ctx, m); err != nil {
				w.pctx.Log.Warn("projection: model pass aborted", "model", m.Name(), "error", err)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// drainModel pages through m's task set until it runs dry, so one busy
// model doesn't wait a full interval between batches.
func (w *Worker) drainModel(ctx context.Context, m registry.Model) error {
	pageSize := w.pctx.Options.BatchSize
	if pageSize <= 0 {
		pageSize = 500
	}
	set := storage.SetName(m.Name(), storage.SetTasks)

	for {
		var tasks []*types.ProjectionTask
		err := storage.WithRetry(ctx, func() error {
			var fetchErr error
			tasks, fetchErr = storage.FirstPage[types.ProjectionTask](ctx, w.pctx.Storage, set, pageSize)
			return fetchErr
		})
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		for _, t := range tasks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.processTask(ctx, m, t); err != nil {
				w.pctx.Log.Warn("projection: task left in place for retry",
					"model", m.Name(), "taskId", t.Id, "error", err)
			}
		}
		if len(tasks) < pageSize {
			return nil
		}
	}
}

// processTask runs one task to completion or aborts it entirely: there
// are no partial commits beyond upserts that already landed, and a
// failed task is simply retried on the next pass since every write here
// is keyed deterministically by ReferenceId.
func (w *Worker) processTask(ctx context.Context, m registry.Model, t *types.ProjectionTask) error {
	return storage.WithRetry(ctx, func() error {
		return w.runTask(ctx, m, t)
	})
}

func (w *Worker) runTask(ctx context.Context, m registry.Model, t *types.ProjectionTask) error {
	canonical := make(map[string][]interface{})
	lineage := make(lineageIndex)

	count := 0
	for _, cm := range w.contributingModels(m) {
		if count >= maxContributingRecords {
			break
		}
		records, err := w.gatherModelRecords(ctx, cm, t.ReferenceId)
		if err != nil {
			return err
		}
		for _, r := range records {
			if count >= maxContributingRecords {
				break
			}
			w.foldRecord(ctx, cm, r, canonical, lineage)
			count++
		}
	}

	ranges := reduceRanges(canonical)

	if err := w.writeViews(ctx, m, t.ReferenceId, ranges, lineage); err != nil {
		return err
	}
	if err := w.syncIdentityLinks(ctx, m, t.ReferenceId, ranges); err != nil {
		return err
	}

	flat, policies := w.materializer.Materialize(m.Name(), ranges)
	if flat == nil {
		flat = map[string]interface{}{}
	}
	if policies == nil {
		policies = map[string]interface{}{}
	}
	if err := w.runMonitors(m.Name(), t.ReferenceId, flat, policies); err != nil {
		return err
	}

	if err := w.writeRootSnapshot(ctx, m, t.ReferenceId, flat); err != nil {
		return err
	}

	policyState := &types.PolicyState{Id: t.ReferenceId, ReferenceId: t.ReferenceId, Policies: policies}
	if err := storage.Upsert(ctx, w.pctx.Storage, storage.SetName(m.Name(), storage.SetPolicies), policyState); err != nil {
		return err
	}

	if err := w.clearRequiresProjection(ctx, m, t.ReferenceId); err != nil {
		return err
	}

	taskSet := storage.SetName(m.Name(), storage.SetTasks)
	if err := w.pctx.Storage.Delete(ctx, taskSet, t.Id); err != nil {
		return err
	}

	w.pctx.Metrics.RecordProjected(ctx, m.Name())
	w.pctx.Metrics.TaskCompleted(ctx, m.Name())
	return nil
}

// contributingModels is m itself plus every value-object model whose
// root is m: a value object has no canonical of its own, but its
// contributing records still fold into its root's view.
func (w *Worker) contributingModels(m registry.Model) []registry.Model {
	out := []registry.Model{m}
	for _, cand := range w.pctx.Registry.Models() {
		if cand.Name() == m.Name() || !cand.Parent().IsValueObject() {
			continue
		}
		root, err := registry.RootOf(w.pctx.Registry, cand)
		if err != nil || root.Name() != m.Name() {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// gatherModelRecords fetches cm's keyed records for referenceId, falling
// back to intake when keyed has none yet.
func (w *Worker) gatherModelRecords(ctx context.Context, cm registry.Model, referenceId string) ([]*types.StageRecord, error) {
	recs, err := w.filterByReference(ctx, cm, storage.SetStageKeyed, referenceId)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		return recs, nil
	}
	return w.filterByReference(ctx, cm, storage.SetStageIntake, referenceId)
}

// filterByReference scans every page of kind's set looking for records
// owned by referenceId, stopping once it has collected
// maxContributingRecords matches or the set is exhausted. Keyed records
// are never deleted, so a single page can't be trusted to hold all of a
// reference's contributions once the set grows past one page.
func (w *Worker) filterByReference(ctx context.Context, cm registry.Model, kind storage.SetKind, referenceId string) ([]*types.StageRecord, error) {
	set := storage.SetName(cm.Name(), kind)
	out := make([]*types.StageRecord, 0, maxContributingRecords)
	for page := 1; ; page++ {
		recs, err := storage.Page[types.StageRecord](ctx, w.pctx.Storage, set, page, maxContributingRecords)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return out, nil
		}
		for _, r := range recs {
			if r.ReferenceId == referenceId {
				out = append(out, r)
				if len(out) >= maxContributingRecords {
					return out, nil
				}
			}
		}
	}
}

// foldRecord appends r's contribution to canonical and lineage: the
// external-id axis, any entity-parent rewrite, and every remaining
// non-excluded path.
func (w *Worker) foldRecord(ctx context.Context, cm registry.Model, r *types.StageRecord, canonical map[string][]interface{}, lineage lineageIndex) {
	if system := r.Source["system"]; system != "" && r.SourceId != "" && r.SourceId != "unknown" {
		path := "identifier.external." + system
		canonical[path] = append(canonical[path], r.SourceId)
		lineage.add(path, r.SourceId, r.SourceId)
	}

	data := r.Data
	if decl := cm.Parent(); decl.Kind == types.ParentEntity {
		if rewritten, ok := w.rewriteParentKey(ctx, decl, r); ok {
			data = rewritten
		}
	}

	for path, raw := range dotpath.Flatten(data) {
		if path == "id" || path == "Id" || w.pctx.Options.IsExcluded(path) {
			continue
		}
		for _, v := range dotpath.Values(raw) {
			canonical[path] = append(canonical[path], v)
			lineage.add(path, v, r.SourceId)
		}
	}
}

// rewriteParentKey resolves r's entity-parent reference for the current
// source system and, if resolved, returns a copy of r.Data with the
// parent-key path rewritten to the parent's ReferenceId, so canonical
// joins refer to canonical ids rather than source-local ones.
func (w *Worker) rewriteParentKey(ctx context.Context, decl types.ParentDeclaration, r *types.StageRecord) (map[string]interface{}, bool) {
	system := r.Source["system"]
	if system == "" {
		return nil, false
	}
	raw, ok := dotpath.Get(r.Data, decl.ParentKeyPath)
	localId, isStr := raw.(string)
	if !ok || !isStr || localId == "" {
		return nil, false
	}

	refId, resolved, err := parentresolve.Resolve(ctx, w.pctx.Storage, decl.ParentModel, system, localId)
	if err != nil {
		w.pctx.Log.Warn("projection: parent resolve failed, keeping source-local value",
			"parentModel", decl.ParentModel, "sourceSystem", system, "error", err)
		return nil, false
	}
	if !resolved {
		return nil, false
	}

	cp := r.Clone()
	dotpath.Set(cp.Data, decl.ParentKeyPath, refId)
	return cp.Data, true
}

func (w *Worker) writeViews(ctx context.Context, m registry.Model, referenceId string, ranges map[string][]interface{}, lineage lineageIndex) error {
	flatRanges := make(map[string]interface{}, len(ranges))
	for k, v := range ranges {
		flatRanges[k] = v
	}
	canonicalDoc := &types.CanonicalProjection{
		Id:          types.CanonicalProjectionID(referenceId),
		ReferenceId: referenceId,
		ViewName:    "canonical",
		Model:       dotpath.Expand(flatRanges),
	}
	if err := storage.Upsert(ctx, w.pctx.Storage, storage.SetName(m.Name(), storage.SetViewsCanonical), canonicalDoc); err != nil {
		return err
	}

	lineageDoc := &types.LineageProjection{
		Id:          types.LineageProjectionID(referenceId),
		ReferenceId: referenceId,
		View:        lineage.view(),
	}
	return storage.Upsert(ctx, w.pctx.Storage, storage.SetName(m.Name(), storage.SetViewsLineage), lineageDoc)
}

const externalIdPrefix = "identifier.external."

// syncIdentityLinks ensures a non-provisional IdentityLink backs every
// external id now visible in canonical, confirming any link a prior
// association pass minted provisionally.
func (w *Worker) syncIdentityLinks(ctx context.Context, m registry.Model, referenceId string, ranges map[string][]interface{}) error {
	for path, values := range ranges {
		if !strings.HasPrefix(path, externalIdPrefix) {
			continue
		}
		system := strings.TrimPrefix(path, externalIdPrefix)
		for _, v := range values {
			externalId, ok := v.(string)
			if !ok || externalId == "" {
				continue
			}
			if err := w.ensureIdentityLink(ctx, m, system, externalId, referenceId); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Worker) ensureIdentityLink(ctx context.Context, m registry.Model, system, externalId, referenceId string) error {
	set := storage.SetName(m.Name(), storage.SetIdentityLink)
	id := types.IdentityLinkID(system, system, externalId)

	existing, err := storage.Get[types.IdentityLink](ctx, w.pctx.Storage, set, id)
	switch {
	case err == nil:
		if existing.ReferenceId == referenceId && !existing.Provisional {
			return nil
		}
		existing.ReferenceId = referenceId
		existing.Provisional = false
		return storage.Upsert(ctx, w.pctx.Storage, set, existing)
	case storage.IsNotFound(err):
		link := &types.IdentityLink{
			Id: id, System: system, Adapter: system, ExternalId: externalId,
			ReferenceId: referenceId, Provisional: false,
		}
		return storage.Upsert(ctx, w.pctx.Storage, set, link)
	default:
		return err
	}
}

func (w *Worker) runMonitors(modelName, referenceId string, flat, policies map[string]interface{}) error {
	for _, mon := range w.monitors {
		tm, ok := mon.(TypedMonitor)
		if !ok || tm.ModelName() != modelName {
			continue
		}
		if err := tm.OnProjected(modelName, referenceId, flat, policies); err != nil {
			return err
		}
	}
	for _, mon := range w.monitors {
		if _, ok := mon.(TypedMonitor); ok {
			continue
		}
		if err := mon.OnProjected(modelName, referenceId, flat, policies); err != nil {
			return err
		}
	}
	return nil
}

// writeRootSnapshot writes the dynamic-model nested-object variant or the
// strongly-typed case-insensitive field-assignment variant, depending on
// which kind of Model m is.
func (w *Worker) writeRootSnapshot(ctx context.Context, m registry.Model, referenceId string, flat map[string]interface{}) error {
	set := storage.SetName(m.Name(), storage.SetRoot)

	if tm, ok := m.(*registry.TypedModel); ok {
		snap := &types.RootSnapshot{Id: referenceId, Fields: caseInsensitiveFields(tm.Sample(), flat)}
		return storage.Upsert(ctx, w.pctx.Storage, set, snap)
	}

	snap := &types.RootSnapshot{Id: referenceId, Model: dotpath.Expand(flat)}
	return storage.Upsert(ctx, w.pctx.Storage, set, snap)
}

// caseInsensitiveFields matches flat's top-level (undotted) keys against
// sample's exported struct field names, skipping Id.
func caseInsensitiveFields(sample interface{}, flat map[string]interface{}) map[string]interface{} {
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	names := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Name
		names[strings.ToLower(name)] = name
	}

	out := make(map[string]interface{})
	for path, v := range flat {
		if strings.Contains(path, ".") || strings.EqualFold(path, "id") {
			continue
		}
		if name, ok := names[strings.ToLower(path)]; ok {
			out[name] = v
		}
	}
	return out
}

func (w *Worker) clearRequiresProjection(ctx context.Context, m registry.Model, referenceId string) error {
	set := storage.SetName(m.Name(), storage.SetReference)
	item, err := storage.Get[types.ReferenceItem](ctx, w.pctx.Storage, set, referenceId)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !item.RequiresProjection {
		return nil
	}
	item.RequiresProjection = false
	return storage.Upsert(ctx, w.pctx.Storage, set, item)
}
