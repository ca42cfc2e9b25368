package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
	"github.com/sells-group/curator-cli/internal/vocabulary"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Manage the canonical feature vocabulary",
	Long:  "Commands for curating canonical features, their raw-value mappings, and model-assisted suggestions.",
}

// vocabProject and vocabAttr scope most vocab subcommands; each subcommand
// registers the flags it needs in init.
var (
	vocabProject string
	vocabAttr    string
)

// -- vocab create --

var vocabCreateCmd = &cobra.Command{
	Use:   "create <canonical-name> [raw-value]...",
	Short: "Create a canonical feature, optionally with initial mappings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		description, _ := cmd.Flags().GetString("description")
		category, _ := cmd.Flags().GetString("category")

		feature := model.CanonicalFeature{
			Project:       vocabProject,
			AttrSlug:      vocabAttr,
			CanonicalName: args[0],
			Description:   description,
			Category:      category,
		}
		for _, raw := range args[1:] {
			feature.Mappings = append(feature.Mappings, model.FeatureMapping{RawValue: raw})
		}

		norm := vocabulary.NewNormalizer(st, nil, "")
		created, err := norm.CreateFeature(ctx, feature)
		if err != nil {
			return eris.Wrap(err, "vocab create")
		}

		fmt.Printf("Created %q (%s) with %d mappings.\n", created.CanonicalName, truncateID(created.ID), len(created.Mappings))
		return nil
	},
}

// -- vocab list --

var vocabListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical features",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		norm := vocabulary.NewNormalizer(st, nil, "")
		features, err := norm.ListFeatures(ctx, vocabProject, vocabAttr)
		if err != nil {
			return eris.Wrap(err, "vocab list")
		}

		if len(features) == 0 {
			fmt.Fprintln(os.Stderr, "No features found.")
			return nil
		}

		formatFeaturesList(os.Stdout, features)
		return nil
	},
}

// -- vocab map / unmap --

var vocabMapCmd = &cobra.Command{
	Use:   "map <feature-id> <raw-value>",
	Short: "Map a raw value onto a canonical feature",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		norm := vocabulary.NewNormalizer(st, nil, "")
		mapping, err := norm.AddMapping(ctx, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "vocab map")
		}

		fmt.Printf("Mapped %q (%s).\n", mapping.RawValue, truncateID(mapping.ID))
		return nil
	},
}

var vocabUnmapCmd = &cobra.Command{
	Use:   "unmap <mapping-id>",
	Short: "Remove a raw-value mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		norm := vocabulary.NewNormalizer(st, nil, "")
		if err := norm.RemoveMapping(ctx, args[0]); err != nil {
			return eris.Wrap(err, "vocab unmap")
		}

		fmt.Printf("Mapping %s removed.\n", truncateID(args[0]))
		return nil
	},
}

// -- vocab merge --

var vocabMergeCmd = &cobra.Command{
	Use:   "merge <target-id> <source-id>...",
	Short: "Merge duplicate features into a target",
	Long:  "Moves all raw-value mappings from the source features onto the target, then deletes the sources.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		norm := vocabulary.NewNormalizer(st, nil, "")
		moved, err := norm.Merge(ctx, args[0], args[1:])
		if err != nil {
			return eris.Wrap(err, "vocab merge")
		}

		fmt.Printf("Merged %d features into %s, %d mappings moved.\n", len(args)-1, truncateID(args[0]), moved)
		return nil
	},
}

// -- vocab resolve --

var vocabResolveCmd = &cobra.Command{
	Use:   "resolve <raw-value>",
	Short: "Resolve a raw value to its canonical feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		norm := vocabulary.NewNormalizer(st, nil, "")
		feature, err := norm.Resolve(ctx, vocabProject, vocabAttr, args[0])
		if err != nil {
			return eris.Wrap(err, "vocab resolve")
		}

		if feature == nil {
			fmt.Printf("%q is not mapped.\n", args[0])
			return nil
		}
		fmt.Printf("%q -> %q (%s)\n", args[0], feature.CanonicalName, truncateID(feature.ID))
		return nil
	},
}

// -- vocab unmapped --

var vocabUnmappedCmd = &cobra.Command{
	Use:   "unmapped",
	Short: "List observed raw values with no mapping, most frequent first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		norm := vocabulary.NewNormalizer(st, nil, "")
		unmapped, err := norm.FindUnmapped(ctx, vocabProject, vocabAttr)
		if err != nil {
			return eris.Wrap(err, "vocab unmapped")
		}

		if len(unmapped) == 0 {
			fmt.Fprintln(os.Stderr, "No unmapped values.")
			return nil
		}

		formatUnmapped(os.Stdout, unmapped)
		return nil
	},
}

// -- vocab suggest --

var vocabSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Ask the model to propose canonical names for unmapped values",
	Long:  "Collects the attribute's unmapped raw values (or the ones passed via --raw) and asks the model to group them under canonical names. Suggestions are advisory; nothing is written.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "model")
		if err != nil {
			return err
		}
		defer env.Close()

		raws, _ := cmd.Flags().GetStringSlice("raw")
		if len(raws) == 0 {
			unmapped, err := env.Vocab.FindUnmapped(ctx, vocabProject, vocabAttr)
			if err != nil {
				return eris.Wrap(err, "vocab suggest")
			}
			for _, u := range unmapped {
				raws = append(raws, u.RawValue)
			}
		}
		if len(raws) == 0 {
			fmt.Fprintln(os.Stderr, "Nothing to suggest: no unmapped values.")
			return nil
		}

		zap.L().Info("requesting suggestions",
			zap.String("project", vocabProject),
			zap.String("attr_slug", vocabAttr),
			zap.Int("raw_values", len(raws)),
		)

		suggestions, err := env.Vocab.Suggest(ctx, vocabProject, vocabAttr, raws)
		if err != nil {
			return eris.Wrap(err, "vocab suggest")
		}

		formatSuggestions(os.Stdout, suggestions)
		return nil
	},
}

// -- vocab stats --

var vocabStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-attribute vocabulary coverage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		norm := vocabulary.NewNormalizer(st, nil, "")
		stats, err := norm.Stats(ctx, vocabProject)
		if err != nil {
			return eris.Wrap(err, "vocab stats")
		}

		if len(stats) == 0 {
			fmt.Fprintln(os.Stderr, "No vocabulary yet.")
			return nil
		}

		formatVocabStats(os.Stdout, stats)
		return nil
	},
}

// -- vocab export --

var vocabExportCmd = &cobra.Command{
	Use:   "export <output.xlsx>",
	Short: "Export the project vocabulary to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := os.Create(args[0])
		if err != nil {
			return eris.Wrap(err, "create export file")
		}

		norm := vocabulary.NewNormalizer(st, nil, "")
		if err := norm.ExportXLSX(ctx, vocabProject, f); err != nil {
			_ = f.Close()
			return eris.Wrap(err, "vocab export")
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "close export file")
		}

		fmt.Printf("Vocabulary for %q written to %s.\n", vocabProject, args[0])
		return nil
	},
}

func init() {
	vocabCmd.PersistentFlags().StringVar(&vocabProject, "project", "", "project the vocabulary belongs to (required)")
	_ = vocabCmd.MarkPersistentFlagRequired("project")

	for _, c := range []*cobra.Command{vocabCreateCmd, vocabListCmd, vocabResolveCmd, vocabUnmappedCmd, vocabSuggestCmd} {
		c.Flags().StringVar(&vocabAttr, "attr", "features", "attribute the vocabulary normalizes")
	}

	vocabCreateCmd.Flags().String("description", "", "what the feature means")
	vocabCreateCmd.Flags().String("category", "", "grouping label for exports")
	vocabSuggestCmd.Flags().StringSlice("raw", nil, "raw values to suggest for (default: all unmapped)")

	vocabCmd.AddCommand(vocabCreateCmd)
	vocabCmd.AddCommand(vocabListCmd)
	vocabCmd.AddCommand(vocabMapCmd)
	vocabCmd.AddCommand(vocabUnmapCmd)
	vocabCmd.AddCommand(vocabMergeCmd)
	vocabCmd.AddCommand(vocabResolveCmd)
	vocabCmd.AddCommand(vocabUnmappedCmd)
	vocabCmd.AddCommand(vocabSuggestCmd)
	vocabCmd.AddCommand(vocabStatsCmd)
	vocabCmd.AddCommand(vocabExportCmd)
	rootCmd.AddCommand(vocabCmd)
}

// formatFeaturesList writes a tabular feature list to w.
func formatFeaturesList(out io.Writer, features []model.CanonicalFeature) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tATTRIBUTE\tCATEGORY\tMAPPINGS")
	_, _ = fmt.Fprintln(w, "--\t----\t---------\t--------\t--------")

	for _, f := range features {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			truncateID(f.ID),
			f.CanonicalName,
			f.AttrSlug,
			f.Category,
			len(f.Mappings),
		)
	}
	_ = w.Flush()
}

// formatUnmapped writes unmapped raw values to w.
func formatUnmapped(out io.Writer, unmapped []store.UnmappedValue) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RAW VALUE\tOCCURRENCES")
	_, _ = fmt.Fprintln(w, "---------\t-----------")

	for _, u := range unmapped {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", u.RawValue, u.Occurrences)
	}
	_ = w.Flush()
}

// formatSuggestions writes model suggestions to w. "new" marks canonical
// names that do not resolve to an existing feature.
func formatSuggestions(out io.Writer, suggestions []model.Suggestion) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RAW VALUE\tCANONICAL\tSTATUS")
	_, _ = fmt.Fprintln(w, "---------\t---------\t------")

	for _, s := range suggestions {
		status := "existing"
		if s.IsNew {
			status = "new"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.RawValue, s.CanonicalName, status)
	}
	_ = w.Flush()
}

// formatVocabStats writes per-attribute coverage counts to w.
func formatVocabStats(out io.Writer, stats []store.VocabStat) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ATTRIBUTE\tFEATURES\tMAPPINGS")
	_, _ = fmt.Fprintln(w, "---------\t--------\t--------")

	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", s.AttrSlug, s.FeatureCount, s.MappingCount)
	}
	_ = w.Flush()
}
