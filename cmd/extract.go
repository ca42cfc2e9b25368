package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/jobs"
	"github.com/sells-group/curator-cli/internal/model"
)

var (
	extractProject    string
	extractEntity     string
	extractFile       string
	extractEvidenceID string
	extractAttrs      []string
	extractPollEvery  time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract attributes from a local evidence file",
	Long:  "Starts an extraction job from a local evidence file, waits for it to reach a terminal status, and prints the job summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		evidence, err := os.ReadFile(extractFile)
		if err != nil {
			return eris.Wrap(err, "read evidence file")
		}

		env, err := initEnv(ctx, "model")
		if err != nil {
			return err
		}
		defer env.Close()

		evidenceID := extractEvidenceID
		if evidenceID == "" {
			evidenceID = filepath.Base(extractFile)
		}

		params, err := json.Marshal(map[string]any{
			"project":     extractProject,
			"entity":      extractEntity,
			"source_type": "document",
			"evidence_id": evidenceID,
			"evidence":    string(evidence),
			"attributes":  extractAttrs,
		})
		if err != nil {
			return eris.Wrap(err, "encode job params")
		}

		jobID, err := env.Gateway.Start(ctx, model.JobKindExtraction, params)
		if err != nil {
			return err
		}

		zap.L().Info("extraction job started",
			zap.String("job_id", jobID),
			zap.String("entity", extractEntity),
			zap.Int("evidence_bytes", len(evidence)),
		)

		status, err := waitForJob(ctx, env.Gateway, jobID, extractPollEvery)
		if err != nil {
			return err
		}
		if status.Status == model.JobStatusError {
			return eris.Errorf("extraction failed: %s", status.Error)
		}

		job, err := env.Pipeline.GetJob(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "load finished job")
		}

		formatJobSummary(os.Stdout, job)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractProject, "project", "", "project the entity belongs to (required)")
	extractCmd.Flags().StringVar(&extractEntity, "entity", "", "entity the evidence describes (required)")
	extractCmd.Flags().StringVar(&extractFile, "file", "", "path to the evidence file (required)")
	extractCmd.Flags().StringVar(&extractEvidenceID, "evidence-id", "", "evidence identifier (default: file name)")
	extractCmd.Flags().StringSliceVar(&extractAttrs, "attributes", nil, "attribute slugs to extract (default: all registered)")
	extractCmd.Flags().DurationVar(&extractPollEvery, "poll-every", 500*time.Millisecond, "job poll interval")
	_ = extractCmd.MarkFlagRequired("project")
	_ = extractCmd.MarkFlagRequired("entity")
	_ = extractCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(extractCmd)
}

// waitForJob polls the gateway until the job reaches a terminal status or
// ctx is cancelled.
func waitForJob(ctx context.Context, gw *jobs.Gateway, jobID string, every time.Duration) (jobs.PollStatus, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		status := gw.Poll(ctx, jobID)
		if status.Status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, eris.Wrap(ctx.Err(), "wait for job")
		case <-ticker.C:
		}
	}
}

// formatJobSummary writes a one-job summary to w.
func formatJobSummary(out io.Writer, job *model.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Job:\t%s\n", job.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", job.Status)
	_, _ = fmt.Fprintf(w, "Project:\t%s\n", job.Project)
	if job.Entity != "" {
		_, _ = fmt.Fprintf(w, "Entity:\t%s\n", job.Entity)
	}
	if job.Model != "" {
		_, _ = fmt.Fprintf(w, "Model:\t%s\n", job.Model)
	}
	_, _ = fmt.Fprintf(w, "Results:\t%d\n", job.ResultCount)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", job.Cost)
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", (time.Duration(job.Duration) * time.Millisecond).String())
	if job.ErrorMessage != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", job.ErrorMessage)
	}
	_ = w.Flush()
}
