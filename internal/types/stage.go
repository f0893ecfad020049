// Package types defines the data model shared by the association and
// projection workers: stage records, reference identity, key and
// identity indexes, projection tasks and views, and the diagnostic
// (parked/rejection) records that failures produce.
package types

import "time"

// StageRecord is a single inbound payload for a model, sitting in one of
// the intake/keyed/parked stages.
type StageRecord struct {
	Id             string                 `json:"id"`
	SourceId       string                 `json:"sourceId"`
	OccurredAt     time.Time              `json:"occurredAt"`
	PolicyVersion  string                 `json:"policyVersion,omitempty"`
	CorrelationId  string                 `json:"correlationId,omitempty"`
	Data           map[string]interface{} `json:"data"`
	Source         map[string]string      `json:"source"`
	ReferenceId    string                 `json:"referenceId,omitempty"`
}

// Clone returns a deep-enough copy of the record for safe mutation
// (the projection worker rewrites parent-key paths on a copy).
func (r *StageRecord) Clone() *StageRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Data = cloneMap(r.Data)
	cp.Source = make(map[string]string, len(r.Source))
	for k, v := range r.Source {
		cp.Source[k] = v
	}
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Reason codes, string-exact per the external interface contract.
const (
	ReasonNoKeys              = "NO_KEYS"
	ReasonMultiOwnerCollision = "MULTI_OWNER_COLLISION"
	ReasonKeyOwnerMismatch    = "KEY_OWNER_MISMATCH"
	ReasonParentNotFound      = "PARENT_NOT_FOUND"
)

// ParkedRecord is a stage record set aside for later retry.
type ParkedRecord struct {
	StageRecord
	ReasonCode string                 `json:"reasonCode"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
	ParkedAt   time.Time              `json:"parkedAt"`
}

// RejectionReport is an append-only diagnostic record. It is never
// resubmitted automatically.
type RejectionReport struct {
	Id            string                 `json:"id"`
	Model         string                 `json:"model"`
	SourceId      string                 `json:"sourceId"`
	ReasonCode    string                 `json:"reasonCode"`
	Evidence      map[string]interface{} `json:"evidenceJson"`
	PolicyVersion string                 `json:"policyVersion,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}
