// Package pipeline carries the explicit context every worker threads
// through its functions, replacing the ambient service-locator /
// global-registry-override pattern the source design notes flag (see
// spec.md "Global mutable state").
package pipeline

import (
	"log/slog"

	"github.com/flowcanon/canon/internal/config"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/telemetry"
)

// Context bundles everything a worker needs: storage, the model
// registry, options, a logger, and the telemetry meter. No package in
// this repo reaches for a package-level global instead of a Context
// field.
type Context struct {
	Storage  storage.Storage
	Registry *registry.Registry
	Options  config.Options
	Log      *slog.Logger
	Metrics  *telemetry.Metrics
}

// New builds a Context, defaulting a nil logger to slog.Default() and a
// nil Metrics to a no-op recorder so callers never nil-check it.
func New(store storage.Storage, reg *registry.Registry, opts config.Options, log *slog.Logger, metrics *telemetry.Metrics) *Context {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.NoOp()
	}
	return &Context{Storage: store, Registry: reg, Options: opts, Log: log, Metrics: metrics}
}
