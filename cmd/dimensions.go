package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/curator-cli/internal/dimension"
	"github.com/sells-group/curator-cli/internal/model"
)

var dimensionsCmd = &cobra.Command{
	Use:   "dimensions",
	Short: "Manage scoring dimensions",
	Long:  "Commands for defining per-project dimensions and recording per-company values against them.",
}

var dimensionsProject string

// -- dimensions create --

var dimensionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Define a new dimension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dataType, _ := cmd.Flags().GetString("type")
		enumValues, _ := cmd.Flags().GetStringSlice("enum-values")
		description, _ := cmd.Flags().GetString("description")
		prompt, _ := cmd.Flags().GetString("ai-prompt")

		reg := dimension.NewRegistry(st)
		created, err := reg.Create(ctx, model.Dimension{
			Project:     dimensionsProject,
			Name:        args[0],
			Description: description,
			DataType:    model.DataType(dataType),
			EnumValues:  enumValues,
			AIPrompt:    prompt,
		})
		if err != nil {
			return eris.Wrap(err, "dimensions create")
		}

		fmt.Printf("Created dimension %q (slug %s, id %s).\n", created.Name, created.Slug, truncateID(created.ID))
		return nil
	},
}

// -- dimensions list --

var dimensionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dimensions for a project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := dimension.NewRegistry(st)
		dims, err := reg.List(ctx, dimensionsProject)
		if err != nil {
			return eris.Wrap(err, "dimensions list")
		}

		if len(dims) == 0 {
			fmt.Fprintln(os.Stderr, "No dimensions defined.")
			return nil
		}

		formatDimensionsList(os.Stdout, dims)
		return nil
	},
}

// -- dimensions delete --

var dimensionsDeleteCmd = &cobra.Command{
	Use:   "delete <dimension-id>",
	Short: "Delete a dimension and its values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := dimension.NewRegistry(st)
		if err := reg.Delete(ctx, args[0]); err != nil {
			return eris.Wrap(err, "dimensions delete")
		}

		fmt.Printf("Dimension %s deleted.\n", truncateID(args[0]))
		return nil
	},
}

// -- dimensions set --

var dimensionsSetCmd = &cobra.Command{
	Use:   "set <dimension-id> <company-id> <value>",
	Short: "Record a company's value for a dimension",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		confidence, _ := cmd.Flags().GetFloat64("confidence")
		source, _ := cmd.Flags().GetString("source")

		reg := dimension.NewRegistry(st)
		err = reg.SetValue(ctx, model.DimensionValue{
			DimensionID: args[0],
			CompanyID:   args[1],
			Value:       args[2],
			Confidence:  confidence,
			Source:      source,
		})
		if err != nil {
			return eris.Wrap(err, "dimensions set")
		}

		fmt.Printf("Set %s = %q for %s.\n", truncateID(args[0]), args[2], args[1])
		return nil
	},
}

// -- dimensions seed --

var dimensionsSeedCmd = &cobra.Command{
	Use:   "seed <definitions.yaml>",
	Short: "Create dimensions from a YAML definition file",
	Long:  "Loads dimension definitions from a YAML file and creates the ones the project does not have yet. Existing slugs are skipped, so seeding is idempotent.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := dimension.NewRegistry(st)
		created, err := reg.SeedFromYAML(ctx, dimensionsProject, args[0])
		if err != nil {
			return eris.Wrap(err, "dimensions seed")
		}

		fmt.Printf("Seeded %d dimensions from %s.\n", created, args[0])
		return nil
	},
}

func init() {
	dimensionsCmd.PersistentFlags().StringVar(&dimensionsProject, "project", "", "project the dimensions belong to (required)")
	_ = dimensionsCmd.MarkPersistentFlagRequired("project")

	dimensionsCreateCmd.Flags().String("type", string(model.TypeText), "value type (text, number, boolean, enum)")
	dimensionsCreateCmd.Flags().StringSlice("enum-values", nil, "allowed values (enum type only)")
	dimensionsCreateCmd.Flags().String("description", "", "what the dimension measures")
	dimensionsCreateCmd.Flags().String("ai-prompt", "", "prompt used when the dimension is scored by a model")

	dimensionsSetCmd.Flags().Float64("confidence", 0, "confidence in the value, 0 to 1")
	dimensionsSetCmd.Flags().String("source", "manual", "where the value came from")

	dimensionsCmd.AddCommand(dimensionsCreateCmd)
	dimensionsCmd.AddCommand(dimensionsListCmd)
	dimensionsCmd.AddCommand(dimensionsDeleteCmd)
	dimensionsCmd.AddCommand(dimensionsSetCmd)
	dimensionsCmd.AddCommand(dimensionsSeedCmd)
	rootCmd.AddCommand(dimensionsCmd)
}

// formatDimensionsList writes a tabular dimension list to w.
func formatDimensionsList(out io.Writer, dims []model.Dimension) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSLUG\tTYPE\tVALUES")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t----\t------")

	for _, d := range dims {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			truncateID(d.ID),
			d.Name,
			d.Slug,
			d.DataType,
			d.ValueCount,
		)
	}
	_ = w.Flush()
}
