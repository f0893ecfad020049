// Package config loads the single scoped Options object the core
// consumes, the way the teacher loads settings: environment variables
// layered over a YAML or TOML file via spf13/viper, with an optional
// fsnotify watcher that re-reads the file into the Loader's Options
// (workers keep the copy they were started with).
package config

import "time"

// Options is the single scoped options object named in the external
// interface contract.
type Options struct {
	// BatchSize is the max records per scan page per tick. Default 500,
	// minimum 1.
	BatchSize int `mapstructure:"batch-size"`

	// AggregationTags is the fallback aggregation-tag list used when a
	// model declares none of its own.
	AggregationTags []string `mapstructure:"aggregation-tags"`

	// CanonicalExcludeTagPrefixes lists dotted-path prefixes excluded
	// from canonical/lineage.
	CanonicalExcludeTagPrefixes []string `mapstructure:"canonical-exclude-tag-prefixes"`

	IntakeTtl          time.Duration `mapstructure:"intake-ttl"`
	KeyedTtl           time.Duration `mapstructure:"keyed-ttl"`
	ParkedTtl          time.Duration `mapstructure:"parked-ttl"`
	ProjectionTaskTtl  time.Duration `mapstructure:"projection-task-ttl"`
	RejectionReportTtl time.Duration `mapstructure:"rejection-report-ttl"`

	PurgeEnabled  bool          `mapstructure:"purge-enabled"`
	PurgeInterval time.Duration `mapstructure:"purge-interval"`

	// ParkAndSweepEnabled, when false, skips parked writes (rejections
	// are still produced). Defaults to true.
	ParkAndSweepEnabled bool `mapstructure:"park-and-sweep-enabled"`

	// AssociationPollInterval and ProjectionPollInterval override the
	// spec's default pacing (500ms / 5s) for tests and tuning.
	AssociationPollInterval time.Duration `mapstructure:"association-poll-interval"`
	ProjectionPollInterval  time.Duration `mapstructure:"projection-poll-interval"`
	ParentSweepInterval     time.Duration `mapstructure:"parent-sweep-interval"`

	// ProvisionalLinkTtl is how long a provisional IdentityLink lives
	// before it is eligible for expiry if never confirmed. Spec default
	// is 2 days.
	ProvisionalLinkTtl time.Duration `mapstructure:"provisional-link-ttl"`
}

// Defaults returns the spec-mandated defaults.
func Defaults() Options {
	return Options{
		BatchSize:               500,
		ParkAndSweepEnabled:     true,
		PurgeEnabled:            false,
		PurgeInterval:           time.Hour,
		AssociationPollInterval: 500 * time.Millisecond,
		ProjectionPollInterval:  5 * time.Second,
		ParentSweepInterval:     5 * time.Second,
		ProvisionalLinkTtl:      48 * time.Hour,
	}
}

// Normalize clamps/fills fields Options callers may have left at the Go
// zero value, matching the spec's stated minimums/defaults.
func (o *Options) Normalize() {
	if o.BatchSize < 1 {
		o.BatchSize = 500
	}
	if o.AssociationPollInterval <= 0 {
		o.AssociationPollInterval = 500 * time.Millisecond
	}
	if o.ProjectionPollInterval <= 0 {
		o.ProjectionPollInterval = 5 * time.Second
	}
	if o.ParentSweepInterval <= 0 {
		o.ParentSweepInterval = 5 * time.Second
	}
	if o.ProvisionalLinkTtl <= 0 {
		o.ProvisionalLinkTtl = 48 * time.Hour
	}
}

// IsExcluded reports whether path falls under one of the configured
// canonical-exclude prefixes.
func (o *Options) IsExcluded(path string) bool {
	for _, prefix := range o.CanonicalExcludeTagPrefixes {
		if prefix == "" {
			continue
		}
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
