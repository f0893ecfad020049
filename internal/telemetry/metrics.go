// Package telemetry wires the association and projection workers to
// OpenTelemetry metrics, grounded on the teacher's own
// otel.Meter("github.com/steveyegge/beads/storage/dolt")-style
// module-qualified instrumentation in internal/storage/dolt/store.go.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/flowcanon/canon"

// Metrics holds the counters the workers increment. A Metrics built over
// a noop MeterProvider (see NoOp) costs nothing and is always safe to
// call into, so callers never nil-check it.
type Metrics struct {
	associated  metric.Int64Counter
	rejected    metric.Int64Counter
	parked      metric.Int64Counter
	projected   metric.Int64Counter
	tasksPending metric.Int64UpDownCounter
}

// New builds a Metrics instrument set against the given MeterProvider.
func New(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(instrumentationName)

	associated, err := meter.Int64Counter("canon.records.associated",
		metric.WithDescription("stage records successfully associated to a reference"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: counter canon.records.associated: %w", err)
	}
	rejected, err := meter.Int64Counter("canon.records.rejected",
		metric.WithDescription("stage records rejected with a RejectionReport"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: counter canon.records.rejected: %w", err)
	}
	parked, err := meter.Int64Counter("canon.records.parked",
		metric.WithDescription("stage records moved to the parked set"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: counter canon.records.parked: %w", err)
	}
	projected, err := meter.Int64Counter("canon.projections.committed",
		metric.WithDescription("projection tasks successfully committed"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: counter canon.projections.committed: %w", err)
	}
	tasksPending, err := meter.Int64UpDownCounter("canon.tasks.pending",
		metric.WithDescription("outstanding projection tasks"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: updowncounter canon.tasks.pending: %w", err)
	}

	return &Metrics{
		associated:   associated,
		rejected:     rejected,
		parked:       parked,
		projected:    projected,
		tasksPending: tasksPending,
	}, nil
}

// NoOp returns a Metrics backed by the OTel noop provider, for tests and
// for operation without a configured exporter.
func NoOp() *Metrics {
	m, _ := New(noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordAssociated(ctx context.Context, model string) {
	m.associated.Add(ctx, 1, metric.WithAttributes(modelAttr(model)))
}

func (m *Metrics) RecordRejected(ctx context.Context, model, reasonCode string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(modelAttr(model), reasonAttr(reasonCode)))
}

func (m *Metrics) RecordParked(ctx context.Context, model, reasonCode string) {
	m.parked.Add(ctx, 1, metric.WithAttributes(modelAttr(model), reasonAttr(reasonCode)))
}

func (m *Metrics) RecordProjected(ctx context.Context, model string) {
	m.projected.Add(ctx, 1, metric.WithAttributes(modelAttr(model)))
}

func (m *Metrics) TaskEnqueued(ctx context.Context, model string) {
	m.tasksPending.Add(ctx, 1, metric.WithAttributes(modelAttr(model)))
}

func (m *Metrics) TaskCompleted(ctx context.Context, model string) {
	m.tasksPending.Add(ctx, -1, metric.WithAttributes(modelAttr(model)))
}
