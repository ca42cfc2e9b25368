package model

import "time"

// AttributeSourceExtraction marks attribute rows written by review apply.
const AttributeSourceExtraction = "extraction"

// AttributeSourceManual marks attribute rows entered by an operator.
const AttributeSourceManual = "manual"

// EntityAttribute is one row of the append-only attribute history for an
// entity. Rows are only ever inserted; apply never rewrites history, so the
// trail of accepted values stays auditable.
type EntityAttribute struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	EntityID   string    `json:"entity_id"`
	AttrSlug   string    `json:"attr_slug"`
	Value      string    `json:"value"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}
