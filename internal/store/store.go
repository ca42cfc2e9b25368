package store

import (
	"context"
	"time"

	"github.com/sells-group/curator-cli/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Project string          `json:"project,omitempty"`
	Status  model.JobStatus `json:"status,omitempty"`
	Kind    model.JobKind   `json:"kind,omitempty"`
	Entity  string          `json:"entity,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// UpdateJobParams is a partial update of a job row; nil fields are left
// unchanged. Status transitions are forward-only (pending < running <
// terminal): an update that would move a job backwards, or out of a terminal
// state, matches zero rows and reports updated=false rather than failing.
type UpdateJobParams struct {
	Status       *model.JobStatus
	Model        *string
	Cost         *float64
	Duration     *int64
	ResultCount  *int
	ErrorMessage *string
	Result       []byte
	CompletedAt  *time.Time
}

// PipelineStats aggregates job and review-state counts for one project.
type PipelineStats struct {
	Project         string         `json:"project"`
	JobsByStatus    map[string]int `json:"jobs_by_status"`
	ResultsByStatus map[string]int `json:"results_by_status"`
	TotalCost       float64        `json:"total_cost"`
}

// VocabStat summarizes one attribute's vocabulary within a project.
type VocabStat struct {
	AttrSlug     string `json:"attr_slug"`
	FeatureCount int    `json:"feature_count"`
	MappingCount int    `json:"mapping_count"`
}

// UnmappedValue is an observed raw attribute value with no mapping yet,
// surfaced for curation.
type UnmappedValue struct {
	RawValue    string `json:"raw_value"`
	Occurrences int    `json:"occurrences"`
}

// Store defines the persistence interface for the curation pipeline.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job model.Job) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJob(ctx context.Context, jobID string, params UpdateJobParams) (bool, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Extraction results
	RecordResults(ctx context.Context, results []model.ExtractionResult) ([]string, error)
	GetResult(ctx context.Context, resultID string) (*model.ExtractionResult, error)
	ReviewQueue(ctx context.Context, project string, limit, offset int) ([]model.ReviewQueueItem, error)
	ReviewResult(ctx context.Context, resultID string, action model.ReviewAction, editedValue *string) (bool, error)
	PipelineStats(ctx context.Context, project string) (*PipelineStats, error)

	// Attribute history
	AppendEntityAttribute(ctx context.Context, attr model.EntityAttribute) (*model.EntityAttribute, error)
	ListEntityAttributes(ctx context.Context, entityID, attrSlug string) ([]model.EntityAttribute, error)
	UnmappedValues(ctx context.Context, project, attrSlug string) ([]UnmappedValue, error)

	// Vocabulary
	CreateFeature(ctx context.Context, feature model.CanonicalFeature) (*model.CanonicalFeature, error)
	GetFeature(ctx context.Context, featureID string) (*model.CanonicalFeature, error)
	ListFeatures(ctx context.Context, project, attrSlug string) ([]model.CanonicalFeature, error)
	AddMapping(ctx context.Context, mapping model.FeatureMapping) (*model.FeatureMapping, error)
	RemoveMapping(ctx context.Context, mappingID string) error
	MergeFeatures(ctx context.Context, targetID string, sourceIDs []string) (int, error)
	ResolveMapping(ctx context.Context, project, attrSlug, rawValue string) (*model.CanonicalFeature, error)
	VocabStats(ctx context.Context, project string) ([]VocabStat, error)

	// Dimensions
	CreateDimension(ctx context.Context, dim model.Dimension) (*model.Dimension, error)
	GetDimension(ctx context.Context, dimensionID string) (*model.Dimension, error)
	ListDimensions(ctx context.Context, project string) ([]model.Dimension, error)
	DeleteDimension(ctx context.Context, dimensionID string) error
	SetDimensionValue(ctx context.Context, val model.DimensionValue) error
	BulkSetDimensionValues(ctx context.Context, vals []model.DimensionValue) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
