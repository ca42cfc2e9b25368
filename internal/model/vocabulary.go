package model

import "time"

// CanonicalFeature is the single authoritative name for a concept within a
// (project, attr_slug) vocabulary scope. Canonical names are unique within
// their scope, case-insensitively. Every feature owns at least one mapping:
// creating a feature also creates the self-mapping raw_value=canonical_name.
type CanonicalFeature struct {
	ID            string           `json:"id"`
	Project       string           `json:"project"`
	AttrSlug      string           `json:"attr_slug"`
	CanonicalName string           `json:"canonical_name"`
	Description   string           `json:"description,omitempty"`
	Category      string           `json:"category,omitempty"`
	Mappings      []FeatureMapping `json:"mappings,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// FeatureMapping records that a raw free-text value means a given canonical
// feature. A raw value maps to at most one feature within its scope.
type FeatureMapping struct {
	ID        string    `json:"id"`
	FeatureID string    `json:"feature_id"`
	Project   string    `json:"project"`
	AttrSlug  string    `json:"attr_slug"`
	RawValue  string    `json:"raw_value"`
	CreatedAt time.Time `json:"created_at"`
}

// Suggestion is a model-proposed canonical name for a raw value. Advisory
// only; IsNew is recomputed against the store, never trusted from the model.
type Suggestion struct {
	RawValue      string `json:"raw_value"`
	CanonicalName string `json:"canonical_name"`
	IsNew         bool   `json:"is_new"`
}
