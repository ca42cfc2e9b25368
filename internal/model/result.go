package model

import "time"

// ResultStatus tracks an extraction result through review. A result is
// reviewed exactly once: pending -> accepted | rejected | edited, all
// terminal.
type ResultStatus string

const (
	ResultStatusPending  ResultStatus = "pending"
	ResultStatusAccepted ResultStatus = "accepted"
	ResultStatusRejected ResultStatus = "rejected"
	ResultStatusEdited   ResultStatus = "edited"
)

// Valid reports whether s is a known result status.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultStatusPending, ResultStatusAccepted, ResultStatusRejected, ResultStatusEdited:
		return true
	}
	return false
}

// ReviewAction is a reviewer's decision on a pending result.
type ReviewAction string

const (
	ReviewActionAccept ReviewAction = "accept"
	ReviewActionReject ReviewAction = "reject"
	ReviewActionEdit   ReviewAction = "edit"
)

// Valid reports whether a is a known review action.
func (a ReviewAction) Valid() bool {
	switch a {
	case ReviewActionAccept, ReviewActionReject, ReviewActionEdit:
		return true
	}
	return false
}

// ResultStatus returns the terminal status this action transitions to.
func (a ReviewAction) ResultStatus() ResultStatus {
	switch a {
	case ReviewActionAccept:
		return ResultStatusAccepted
	case ReviewActionReject:
		return ResultStatusRejected
	case ReviewActionEdit:
		return ResultStatusEdited
	}
	return ""
}

// Applies reports whether the action writes an attribute row on review.
func (a ReviewAction) Applies() bool {
	return a == ReviewActionAccept || a == ReviewActionEdit
}

// ExtractionResult is one candidate attribute value produced by a job,
// awaiting human review. ExtractedValue is the stable text encoding of the
// typed value (see EncodeValue).
type ExtractionResult struct {
	ID               string       `json:"id"`
	JobID            string       `json:"job_id"`
	EntityID         string       `json:"entity_id"`
	AttrSlug         string       `json:"attr_slug"`
	ExtractedValue   string       `json:"extracted_value"`
	Confidence       float64      `json:"confidence"`
	Reasoning        string       `json:"reasoning,omitempty"`
	SourceEvidenceID string       `json:"source_evidence_id,omitempty"`
	Status           ResultStatus `json:"status"`
	ReviewedValue    *string      `json:"reviewed_value,omitempty"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// AppliedValue returns the value an accept/edit review writes to the
// attribute store: the reviewed value when present, else the extracted one.
func (r ExtractionResult) AppliedValue() string {
	if r.ReviewedValue != nil && *r.ReviewedValue != "" {
		return *r.ReviewedValue
	}
	return r.ExtractedValue
}

// ReviewQueueItem is a pending result joined with its job context for the
// review queue.
type ReviewQueueItem struct {
	ExtractionResult
	Project    string `json:"project"`
	SourceType string `json:"source_type"`
	Model      string `json:"model,omitempty"`
}
