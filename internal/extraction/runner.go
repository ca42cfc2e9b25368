package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/curator-cli/internal/jobs"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/registry"
	"github.com/sells-group/curator-cli/internal/resilience"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

const (
	defaultModel          = "claude-sonnet-4-5-20250929"
	defaultMaxTokens      = 1024
	defaultMaxConcurrency = 4
	defaultMaxAttempts    = 3
)

// RunnerConfig tunes the model-facing job runners.
type RunnerConfig struct {
	Model          string
	MaxTokens      int64
	MaxConcurrency int
	MaxAttempts    int
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// retryPolicy classifies anthropic API errors alongside network-level ones;
// validation and parse failures stay permanent.
func (c RunnerConfig) retryPolicy(operation string) resilience.Policy {
	p := resilience.DefaultPolicy()
	p.Attempts = c.MaxAttempts
	p.Retryable = func(err error) bool {
		return anthropic.IsTransient(err) || resilience.IsTransient(err)
	}
	p.OnRetry = resilience.RetryLogger("anthropic", operation)
	return p
}

// extractParams is the runner-facing portion of an extraction job's params.
// Project, entity and evidence id travel on the job row itself.
type extractParams struct {
	Evidence   string   `json:"evidence"`
	Attributes []string `json:"attributes,omitempty"`
}

// ExtractRunner executes extraction jobs: one model call per attribute
// against the evidence carried in the job params, candidates recorded as
// pending results for review.
type ExtractRunner struct {
	pipeline *Pipeline
	client   anthropic.Client
	cfg      RunnerConfig
}

// NewExtractRunner builds an ExtractRunner. Zero config fields fall back to
// package defaults.
func NewExtractRunner(p *Pipeline, client anthropic.Client, cfg RunnerConfig) *ExtractRunner {
	return &ExtractRunner{pipeline: p, client: client, cfg: cfg.withDefaults()}
}

// Kind implements jobs.Runner.
func (r *ExtractRunner) Kind() model.JobKind {
	return model.JobKindExtraction
}

// Run implements jobs.Runner.
func (r *ExtractRunner) Run(ctx context.Context, job *model.Job) (*jobs.RunResult, error) {
	var params extractParams
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return nil, eris.Wrap(model.ErrValidation, "extract: malformed job params")
		}
	}
	if strings.TrimSpace(params.Evidence) == "" {
		return nil, eris.Wrap(model.ErrValidation, "extract: params.evidence is required")
	}
	if job.Entity == "" {
		return nil, eris.Wrap(model.ErrValidation, "extract: job has no entity")
	}

	defs := r.selectDefs(params.Attributes)
	if len(defs) == 0 {
		return nil, eris.Wrap(model.ErrValidation, "extract: no known attributes requested")
	}

	log := zap.L().With(zap.String("job_id", job.ID), zap.String("entity", job.Entity))
	system := anthropic.CachedSystem(buildSystemPrompt(job, params.Evidence))
	retryPolicy := r.cfg.retryPolicy("create message")

	request := func(def *registry.AttributeDef) anthropic.MessageRequest {
		return anthropic.MessageRequest{
			Model:     r.cfg.Model,
			MaxTokens: r.cfg.MaxTokens,
			System:    system,
			Messages:  []anthropic.Message{{Role: "user", Content: buildAttributePrompt(def)}},
		}
	}
	ask := func(ctx context.Context, def *registry.AttributeDef) (*anthropic.MessageResponse, error) {
		return resilience.Do(ctx, retryPolicy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return r.client.CreateMessage(ctx, request(def))
		})
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
		usage      anthropic.TokenUsage
		failed     int
	)
	collect := func(def *registry.AttributeDef, resp *anthropic.MessageResponse) {
		parsed := parseCandidates(def, resp)
		mu.Lock()
		defer mu.Unlock()
		candidates = append(candidates, parsed...)
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		usage.CacheCreationInputTokens += resp.Usage.CacheCreationInputTokens
		usage.CacheReadInputTokens += resp.Usage.CacheReadInputTokens
	}

	// The first attribute runs alone as the primer, writing the evidence
	// into the prompt cache; the fan-out below then reads it back instead
	// of re-sending it.
	primer, err := resilience.Do(ctx, retryPolicy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return anthropic.PrimerRequest(ctx, r.client, request(defs[0]))
	})
	if err != nil {
		log.Warn("attribute extraction failed",
			zap.String("attr_slug", defs[0].Slug),
			zap.Error(err))
		failed++
	} else {
		collect(defs[0], primer)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "extract: cancelled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrency)
	for _, def := range defs[1:] {
		g.Go(func() error {
			resp, err := ask(gctx, def)
			if err != nil {
				log.Warn("attribute extraction failed",
					zap.String("attr_slug", def.Slug),
					zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			collect(def, resp)
			return nil
		})
	}
	_ = g.Wait() // workers tally failures instead of returning errors

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "extract: cancelled")
	}
	if failed == len(defs) {
		return nil, eris.Errorf("extract: all %d attribute requests failed", len(defs))
	}

	var ids []string
	if len(candidates) > 0 {
		var err error
		ids, err = r.pipeline.RecordResults(ctx, job.ID, job.Entity, candidates, job.SourceRef)
		if err != nil {
			return nil, err
		}
	}

	cost := usage.EstimateCost(r.cfg.Model)
	usage.LogCost(r.cfg.Model, "extraction")
	log.Info("extraction finished",
		zap.Int("attributes", len(defs)),
		zap.Int("failed_attributes", failed),
		zap.Int("result_count", len(ids)))

	return &jobs.RunResult{
		Payload: map[string]any{
			"result_count":  len(ids),
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
		},
		Model:       r.cfg.Model,
		Cost:        cost,
		ResultCount: len(ids),
	}, nil
}

// selectDefs resolves the requested attribute slugs against the registry,
// in request order without duplicates. An empty request means all defined
// attributes.
func (r *ExtractRunner) selectDefs(requested []string) []*registry.AttributeDef {
	attrs := r.pipeline.Attributes()
	if len(requested) == 0 {
		defs := make([]*registry.AttributeDef, len(attrs.Defs))
		for i := range attrs.Defs {
			defs[i] = &attrs.Defs[i]
		}
		return defs
	}

	var defs []*registry.AttributeDef
	seen := make(map[string]bool, len(requested))
	for _, slug := range requested {
		def := attrs.BySlug(slug)
		if def == nil {
			zap.L().Warn("skipping unknown attribute", zap.String("attr_slug", slug))
			continue
		}
		if seen[def.Slug] {
			continue
		}
		seen[def.Slug] = true
		defs = append(defs, def)
	}
	return defs
}

const systemRules = `You are a meticulous data curation analyst for a company research platform.

You extract structured attribute values about one company from the evidence below.

Rules:
- Extract ONLY values stated in the evidence; never use outside knowledge
- Return an empty array when the evidence does not mention the attribute
- Confidence reflects how directly the evidence states the value, from 0.0 to 1.0
- For numeric attributes return bare numbers without units or formatting
- For yes/no attributes return true or false
- Keep reasoning to one sentence citing the supporting evidence`

func buildSystemPrompt(job *model.Job, evidence string) string {
	return fmt.Sprintf(`%s

Project: %s
Company: %s

Evidence:
%s`, systemRules, job.Project, job.Entity, strings.TrimSpace(evidence))
}

func buildAttributePrompt(def *registry.AttributeDef) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Extract the attribute %q (%s, type %s) from the evidence.\n", def.Label, def.Slug, def.DataType)
	if def.Prompt != "" {
		sb.WriteString(def.Prompt)
		sb.WriteString("\n")
	}
	if def.Vocabulary || def.DataType == model.TypeList {
		sb.WriteString("Return one entry per distinct value found.\n")
	}
	fmt.Fprintf(&sb, `
Respond with ONLY valid JSON in this format:
[
  {"value": <%s>, "confidence": <0.0 to 1.0>, "reasoning": "<one sentence>"}
]

Return [] if the evidence does not mention this attribute.`, valueHint(def.DataType))
	return sb.String()
}

func valueHint(dt model.DataType) string {
	switch dt {
	case model.TypeNumber:
		return "number"
	case model.TypeBoolean:
		return "true or false"
	case model.TypeList:
		return "array of strings"
	default:
		return "string"
	}
}
