package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review extraction results",
	Long:  "Commands for listing the pending review queue and accepting, rejecting, or editing candidate values.",
}

// -- review queue --

var reviewQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List pending results, highest confidence first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		project, _ := cmd.Flags().GetString("project")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		wf := review.NewWorkflow(st)
		items, err := wf.Queue(ctx, project, limit, offset)
		if err != nil {
			return eris.Wrap(err, "review queue")
		}

		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "Review queue is empty.")
			return nil
		}

		formatReviewQueue(os.Stdout, items)
		return nil
	},
}

// -- review accept / reject / edit --

var reviewAcceptCmd = &cobra.Command{
	Use:   "accept <result-id>",
	Short: "Accept a pending result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(cmd, args[0], model.ReviewActionAccept, nil)
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <result-id>",
	Short: "Reject a pending result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(cmd, args[0], model.ReviewActionReject, nil)
	},
}

var reviewEditCmd = &cobra.Command{
	Use:   "edit <result-id> <value>",
	Short: "Accept a pending result with a corrected value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(cmd, args[0], model.ReviewActionEdit, &args[1])
	},
}

// runDecision applies one review decision and reports the outcome.
func runDecision(cmd *cobra.Command, resultID string, action model.ReviewAction, editedValue *string) error {
	ctx := cmd.Context()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	wf := review.NewWorkflow(st)
	applied, err := wf.Review(ctx, resultID, action, editedValue)
	if err != nil {
		return eris.Wrapf(err, "review %s", action)
	}

	if !applied {
		fmt.Fprintln(os.Stderr, "Result not found or already reviewed.")
		return nil
	}
	fmt.Printf("Result %s %s.\n", truncateID(resultID), action.ResultStatus())
	return nil
}

// -- review bulk --

var reviewBulkCmd = &cobra.Command{
	Use:   "bulk <accept|reject> <result-id>...",
	Short: "Apply one decision to many pending results",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		wf := review.NewWorkflow(st)
		count, err := wf.BulkReview(ctx, args[1:], model.ReviewAction(args[0]))
		if err != nil {
			return eris.Wrap(err, "review bulk")
		}

		fmt.Printf("%d of %d results %s.\n", count, len(args)-1, model.ReviewAction(args[0]).ResultStatus())
		return nil
	},
}

func init() {
	reviewQueueCmd.Flags().String("project", "", "project whose queue to list (required)")
	reviewQueueCmd.Flags().Int("limit", 50, "max number of results to display")
	reviewQueueCmd.Flags().Int("offset", 0, "number of results to skip")
	_ = reviewQueueCmd.MarkFlagRequired("project")

	reviewCmd.AddCommand(reviewQueueCmd)
	reviewCmd.AddCommand(reviewAcceptCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	reviewCmd.AddCommand(reviewEditCmd)
	reviewCmd.AddCommand(reviewBulkCmd)
	rootCmd.AddCommand(reviewCmd)
}

// formatReviewQueue writes a tabular review queue to w.
func formatReviewQueue(out io.Writer, items []model.ReviewQueueItem) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tENTITY\tATTRIBUTE\tVALUE\tCONF\tAGE")
	_, _ = fmt.Fprintln(w, "--\t------\t---------\t-----\t----\t---")

	for _, it := range items {
		value := it.ExtractedValue
		if len(value) > 40 {
			value = value[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			truncateID(it.ID),
			it.EntityID,
			it.AttrSlug,
			value,
			it.Confidence,
			formatAge(it.CreatedAt),
		)
	}
	_ = w.Flush()
}

// formatAge renders the time since ts compactly.
func formatAge(ts time.Time) string {
	d := time.Since(ts)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}
