package types

import (
	"fmt"
	"time"
)

// ProjectionTask is a unit of work for the projection worker.
type ProjectionTask struct {
	Id          string    `json:"id"` // "{ReferenceId}::{Version}::canonical"
	ReferenceId string    `json:"referenceId"`
	Version     int64     `json:"version"`
	ViewName    string    `json:"viewName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProjectionTaskID builds the canonical task id.
func ProjectionTaskID(referenceId string, version int64) string {
	return fmt.Sprintf("%s::%d::canonical", referenceId, version)
}

// CanonicalProjection is the per-entity canonical view document. Model is
// a nested object built by expanding dotted-path ranges.
type CanonicalProjection struct {
	Id          string                 `json:"id"` // "canonical::{ReferenceId}"
	ReferenceId string                 `json:"referenceId"`
	ViewName    string                 `json:"viewName"`
	Model       map[string]interface{} `json:"model"`
}

// CanonicalProjectionID builds the canonical document id.
func CanonicalProjectionID(referenceId string) string {
	return "canonical::" + referenceId
}

// LineageProjection is the per-entity provenance map: tag -> value ->
// set<sourceId>. Value is stringified for use as a map key; the
// string-coerced form is what lineage witnesses, matching the canonical
// dedup rule in the projection reducer.
type LineageProjection struct {
	Id          string                         `json:"id"` // "lineage::{ReferenceId}"
	ReferenceId string                         `json:"referenceId"`
	View        map[string]map[string][]string `json:"view"`
}

// LineageProjectionID builds the lineage document id.
func LineageProjectionID(referenceId string) string {
	return "lineage::" + referenceId
}

// PolicyState is the per-entity map of policyName -> chosen
// value/rationale produced by the materializer.
type PolicyState struct {
	Id          string                 `json:"id"` // == ReferenceId
	ReferenceId string                 `json:"referenceId"`
	Policies    map[string]interface{} `json:"policies"`
}

// RootSnapshot is the flattened or structured materialized form stored in
// the model's root set. For dynamic models, Model carries the nested
// object; for strongly-typed models, Fields carries the case-insensitive
// flat assignment the caller applies to its own struct.
type RootSnapshot struct {
	Id     string                 `json:"id"` // == ReferenceId
	Model  map[string]interface{} `json:"model,omitempty"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}
