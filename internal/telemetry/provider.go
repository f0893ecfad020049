package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// ProviderConfig selects how metrics leave the process.
type ProviderConfig struct {
	// Exporter is "stdout" (default), "otlp", or "none".
	Exporter string
	// OTLPEndpoint is the collector address used when Exporter == "otlp".
	OTLPEndpoint string
	// StdoutWriter overrides where the stdout exporter writes; nil keeps
	// the exporter's own default, os.Stdout.
	StdoutWriter io.Writer
	// Interval is how often metrics are exported. Default 15s.
	Interval time.Duration
}

// NewMeterProvider builds an SDK MeterProvider per cfg. Callers are
// responsible for calling Shutdown on the returned provider.
func NewMeterProvider(ctx context.Context, cfg ProviderConfig) (*metric.MeterProvider, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	switch cfg.Exporter {
	case "", "stdout":
		opts := []stdoutmetric.Option{}
		if cfg.StdoutWriter != nil {
			opts = append(opts, stdoutmetric.WithWriter(cfg.StdoutWriter))
		}
		exp, err := stdoutmetric.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		reader := metric.NewPeriodicReader(exp, metric.WithInterval(interval))
		return metric.NewMeterProvider(metric.WithReader(reader)), nil

	case "otlp":
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		reader := metric.NewPeriodicReader(exp, metric.WithInterval(interval))
		return metric.NewMeterProvider(metric.WithReader(reader)), nil

	case "none":
		return metric.NewMeterProvider(), nil

	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}
}
