package extraction

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/registry"
	"github.com/sells-group/curator-cli/internal/store"
)

// Store is the subset of the persistence interface the pipeline needs.
type Store interface {
	CreateJob(ctx context.Context, job model.Job) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJob(ctx context.Context, jobID string, params store.UpdateJobParams) (bool, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error)
	RecordResults(ctx context.Context, results []model.ExtractionResult) ([]string, error)
	ReviewQueue(ctx context.Context, project string, limit, offset int) ([]model.ReviewQueueItem, error)
	PipelineStats(ctx context.Context, project string) (*store.PipelineStats, error)
}

// Candidate is one attribute value proposed by extraction, before encoding.
// Value is dynamically typed as parsed from the model or an API body; the
// pipeline encodes it to stable text per the attribute's declared data type.
type Candidate struct {
	AttrSlug   string  `json:"attr_slug"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Pipeline creates extraction jobs and records their candidate results for
// review.
type Pipeline struct {
	store Store
	attrs *registry.AttributeRegistry
}

// NewPipeline returns a Pipeline encoding values against the given attribute
// registry. A nil registry falls back to the built-in attribute set.
func NewPipeline(st Store, attrs *registry.AttributeRegistry) *Pipeline {
	if attrs == nil {
		attrs = registry.DefaultAttributes()
	}
	return &Pipeline{store: st, attrs: attrs}
}

// Attributes exposes the attribute registry the pipeline encodes against.
func (p *Pipeline) Attributes() *registry.AttributeRegistry {
	return p.attrs
}

// CreateJob inserts a pending extraction job and returns its id. The insert
// is the only side effect; execution is scheduled separately.
func (p *Pipeline) CreateJob(ctx context.Context, project, entity, sourceType, evidenceID string) (string, error) {
	if project == "" || sourceType == "" {
		return "", eris.Wrap(model.ErrValidation, "extraction: project and source_type are required")
	}

	job, err := p.store.CreateJob(ctx, model.Job{
		Project:    project,
		Entity:     entity,
		Kind:       model.JobKindExtraction,
		SourceType: sourceType,
		SourceRef:  evidenceID,
	})
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// GetJob loads one job row.
func (p *Pipeline) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	if jobID == "" {
		return nil, eris.Wrap(model.ErrValidation, "extraction: job id is required")
	}
	return p.store.GetJob(ctx, jobID)
}

// ListJobs lists jobs matching the filter, newest first.
func (p *Pipeline) ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error) {
	return p.store.ListJobs(ctx, filter)
}

// RecordResults encodes and batch-inserts candidates as pending results in
// one transaction, all or nothing. Unknown attribute slugs encode as text.
func (p *Pipeline) RecordResults(ctx context.Context, jobID, entityID string, candidates []Candidate, evidenceID string) ([]string, error) {
	if jobID == "" || entityID == "" {
		return nil, eris.Wrap(model.ErrValidation, "extraction: job id and entity id are required")
	}
	if len(candidates) == 0 {
		return nil, eris.Wrap(model.ErrValidation, "extraction: at least one result is required")
	}

	results := make([]model.ExtractionResult, len(candidates))
	for i, c := range candidates {
		if c.AttrSlug == "" {
			return nil, eris.Wrapf(model.ErrValidation, "extraction: result %d has no attr_slug", i)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return nil, eris.Wrapf(model.ErrValidation, "extraction: result %d confidence %v out of range", i, c.Confidence)
		}
		encoded, err := p.encode(c.AttrSlug, c.Value)
		if err != nil {
			return nil, err
		}
		results[i] = model.ExtractionResult{
			JobID:            jobID,
			EntityID:         entityID,
			AttrSlug:         c.AttrSlug,
			ExtractedValue:   encoded,
			Confidence:       c.Confidence,
			Reasoning:        c.Reasoning,
			SourceEvidenceID: evidenceID,
		}
	}

	ids, err := p.store.RecordResults(ctx, results)
	if err != nil {
		return nil, err
	}
	zap.L().Info("extraction results recorded",
		zap.String("job_id", jobID),
		zap.Int("count", len(ids)))
	return ids, nil
}

// UpdateJob applies a partial update from a dynamic field map. Only the
// whitelisted job fields are applied; unknown fields are ignored rather than
// rejected. Reports whether a row actually changed.
func (p *Pipeline) UpdateJob(ctx context.Context, jobID string, fields map[string]any) (bool, error) {
	if jobID == "" {
		return false, eris.Wrap(model.ErrValidation, "extraction: job id is required")
	}

	var params store.UpdateJobParams
	touched := false
	for key, raw := range fields {
		switch key {
		case "status":
			s, ok := raw.(string)
			status := model.JobStatus(s)
			if !ok || !status.Valid() {
				return false, eris.Wrapf(model.ErrValidation, "extraction: invalid status %v", raw)
			}
			params.Status = &status
		case "model":
			m, ok := raw.(string)
			if !ok {
				return false, eris.Wrapf(model.ErrValidation, "extraction: invalid model %v", raw)
			}
			params.Model = &m
		case "cost":
			f, ok := toFloat(raw)
			if !ok {
				return false, eris.Wrapf(model.ErrValidation, "extraction: invalid cost %v", raw)
			}
			params.Cost = &f
		case "duration":
			f, ok := toFloat(raw)
			if !ok {
				return false, eris.Wrapf(model.ErrValidation, "extraction: invalid duration %v", raw)
			}
			d := int64(f)
			params.Duration = &d
		case "result_count":
			f, ok := toFloat(raw)
			if !ok {
				return false, eris.Wrapf(model.ErrValidation, "extraction: invalid result_count %v", raw)
			}
			n := int(f)
			params.ResultCount = &n
		case "error":
			m, ok := raw.(string)
			if !ok {
				return false, eris.Wrapf(model.ErrValidation, "extraction: invalid error %v", raw)
			}
			params.ErrorMessage = &m
		case "completed_at":
			ts, err := toTime(raw)
			if err != nil {
				return false, eris.Wrapf(model.ErrValidation, "extraction: invalid completed_at %v", raw)
			}
			params.CompletedAt = &ts
		default:
			continue
		}
		touched = true
	}
	if !touched {
		return false, nil
	}

	return p.store.UpdateJob(ctx, jobID, params)
}

// Queue returns pending results with job context, highest confidence first,
// oldest first within equal confidence.
func (p *Pipeline) Queue(ctx context.Context, project string, limit, offset int) ([]model.ReviewQueueItem, error) {
	if project == "" {
		return nil, eris.Wrap(model.ErrValidation, "extraction: project is required")
	}
	return p.store.ReviewQueue(ctx, project, limit, offset)
}

// Stats aggregates job and review-state counts plus total model spend for a
// project.
func (p *Pipeline) Stats(ctx context.Context, project string) (*store.PipelineStats, error) {
	if project == "" {
		return nil, eris.Wrap(model.ErrValidation, "extraction: project is required")
	}
	return p.store.PipelineStats(ctx, project)
}

func (p *Pipeline) encode(attrSlug string, value any) (string, error) {
	dt := model.TypeText
	if def := p.attrs.BySlug(attrSlug); def != nil {
		dt = def.DataType
	}
	encoded, err := model.EncodeValue(dt, value)
	if err != nil {
		return "", eris.Wrapf(err, "extraction: attribute %s", attrSlug)
	}
	return encoded, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	return time.Time{}, eris.Errorf("unsupported timestamp type %T", v)
}
