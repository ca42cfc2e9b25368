package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/curator-cli/internal/jobs"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/resilience"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

// ReportRunner renders a project's pipeline statistics into a short
// narrative status report via the model.
type ReportRunner struct {
	pipeline *Pipeline
	client   anthropic.Client
	cfg      RunnerConfig
}

// NewReportRunner builds a ReportRunner. Zero config fields fall back to
// package defaults.
func NewReportRunner(p *Pipeline, client anthropic.Client, cfg RunnerConfig) *ReportRunner {
	return &ReportRunner{pipeline: p, client: client, cfg: cfg.withDefaults()}
}

// Kind implements jobs.Runner.
func (r *ReportRunner) Kind() model.JobKind {
	return model.JobKindReport
}

// Run implements jobs.Runner.
func (r *ReportRunner) Run(ctx context.Context, job *model.Job) (*jobs.RunResult, error) {
	stats, err := r.pipeline.Stats(ctx, job.Project)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: marshal stats")
	}

	retryPolicy := r.cfg.retryPolicy("create message")
	resp, err := resilience.Do(ctx, retryPolicy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.cfg.Model,
			MaxTokens: r.cfg.MaxTokens,
			Messages:  []anthropic.Message{{Role: "user", Content: buildReportPrompt(job.Project, data)}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "report: model request")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, eris.New("report: model returned no text")
	}

	cost := resp.Usage.EstimateCost(r.cfg.Model)
	resp.Usage.LogCost(r.cfg.Model, "report")

	return &jobs.RunResult{
		Payload: map[string]any{"report": text},
		Model:   r.cfg.Model,
		Cost:    cost,
	}, nil
}

func buildReportPrompt(project string, stats []byte) string {
	return fmt.Sprintf(`You are summarizing the state of a data curation pipeline for the %q project.

Pipeline statistics:
%s

Write a short status report (3-5 sentences) covering extraction progress, the review backlog, and total model spend so far. Plain text, no markdown.`, project, stats)
}
