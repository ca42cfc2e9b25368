package model

import "time"

// Dimension is a project-defined scratch attribute: a lightweight EAV column
// operators add ad hoc, with upsert (last-writer-wins) value semantics.
// Contrast with EntityAttribute, which is append-only history.
type Dimension struct {
	ID          string    `json:"id"`
	Project     string    `json:"project"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	DataType    DataType  `json:"data_type"`
	EnumValues  []string  `json:"enum_values,omitempty"`
	Source      string    `json:"source,omitempty"`
	AIPrompt    string    `json:"ai_prompt,omitempty"`
	ValueCount  int       `json:"value_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// DimensionValue is the current value of a dimension for one company.
// (company_id, dimension_id) is unique; writes upsert and keep no history.
type DimensionValue struct {
	CompanyID   string    `json:"company_id"`
	DimensionID string    `json:"dimension_id"`
	Value       string    `json:"value"`
	Confidence  float64   `json:"confidence,omitempty"`
	Source      string    `json:"source,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
