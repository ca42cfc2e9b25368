package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/curator-cli/internal/extraction"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect extraction jobs",
	Long:  "Commands for listing, viewing, and summarizing extraction jobs.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		project, _ := cmd.Flags().GetString("project")
		status, _ := cmd.Flags().GetString("status")
		kind, _ := cmd.Flags().GetString("kind")
		entity, _ := cmd.Flags().GetString("entity")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.JobFilter{
			Project: project,
			Status:  model.JobStatus(status),
			Kind:    model.JobKind(kind),
			Entity:  entity,
			Limit:   limit,
		}

		pipe := extraction.NewPipeline(st, nil)
		list, err := pipe.ListJobs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, list)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show full details of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pipe := extraction.NewPipeline(st, nil)
		job, err := pipe.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-project pipeline statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		project, _ := cmd.Flags().GetString("project")

		pipe := extraction.NewPipeline(st, nil)
		stats, err := pipe.Stats(ctx, project)
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}

		formatPipelineStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("project", "", "filter by project")
	jobsListCmd.Flags().String("status", "", "filter by job status (pending, running, completed, error)")
	jobsListCmd.Flags().String("kind", "", "filter by job kind (extraction, similarity, report)")
	jobsListCmd.Flags().String("entity", "", "filter by entity")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsStatsCmd.Flags().String("project", "", "project to summarize (required)")
	_ = jobsStatsCmd.MarkFlagRequired("project")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, list []model.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROJECT\tENTITY\tKIND\tSTATUS\tRESULTS\tCOST\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t----\t------\t-------\t----\t-------")

	for _, j := range list {
		entity := j.Entity
		if len(entity) > 30 {
			entity = entity[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t$%.4f\t%s\n",
			truncateID(j.ID),
			j.Project,
			entity,
			j.Kind,
			j.Status,
			j.ResultCount,
			j.Cost,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatPipelineStats writes per-project aggregates to w. Status counts are
// printed in a stable order.
func formatPipelineStats(out io.Writer, stats *store.PipelineStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Project:\t%s\n", stats.Project)

	_, _ = fmt.Fprintln(w, "Jobs:")
	for _, line := range sortedCounts(stats.JobsByStatus) {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", line.key, line.n)
	}

	_, _ = fmt.Fprintln(w, "Results:")
	for _, line := range sortedCounts(stats.ResultsByStatus) {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", line.key, line.n)
	}

	_, _ = fmt.Fprintf(w, "Total cost:\t$%.4f\n", stats.TotalCost)
	_ = w.Flush()
}

type countLine struct {
	key string
	n   int
}

func sortedCounts(m map[string]int) []countLine {
	lines := make([]countLine, 0, len(m))
	for k, n := range m {
		lines = append(lines, countLine{key: k, n: n})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].key < lines[j].key })
	return lines
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
