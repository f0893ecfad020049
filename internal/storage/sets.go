package storage

// SetKind enumerates the logical shapes a set can hold. The suffix table
// below is the "small table mapping logical entity-kind -> suffix" the
// source design notes call for, replacing reflection-driven naming.
type SetKind int

const (
	// SetRoot is the model's root entity snapshot set (no suffix).
	SetRoot SetKind = iota
	SetStageIntake
	SetStageKeyed
	SetStageParked
	SetViewsCanonical
	SetViewsLineage
	SetIdentityLink
	SetKeyIndex
	SetReference
	SetTasks
	SetPolicies
	SetRejections
)

var suffixes = map[SetKind]string{
	SetRoot:           "",
	SetStageIntake:    "#stage.intake",
	SetStageKeyed:     "#stage.keyed",
	SetStageParked:    "#stage.parked",
	SetViewsCanonical: "#views.canonical",
	SetViewsLineage:   "#views.lineage",
	SetIdentityLink:   "#identityLink",
	SetKeyIndex:       "#keyIndex",
	SetReference:      "#reference",
	SetTasks:          "#tasks",
	SetPolicies:       "#policies",
	// Rejection reports are diagnostic-only; they reuse the #stage
	// namespace prefix with their own leaf name since the spec does not
	// assign them a fixed suffix of their own.
	SetRejections: "#stage.rejections",
}

// SetName returns the bit-exact set name for modelFullName and kind.
//
//	SetName("Contact", SetStageIntake)    -> "Contact#stage.intake"
//	SetName("Contact", SetKeyIndex)       -> "Contact#keyIndex"
//	SetName("Contact", SetRoot)           -> "Contact"
func SetName(modelFullName string, kind SetKind) string {
	return modelFullName + suffixes[kind]
}
