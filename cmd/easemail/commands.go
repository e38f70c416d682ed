package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Cfomodz/easemail/internal/adapters/mailfile"
	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/di"
)

func newPrefsCommand(flags *di.CLIFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "List learned preferences, strongest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, store core.PreferenceStore) error {
				defer store.Close()
				prefs, err := store.All(ctx)
				if err != nil {
					return err
				}
				if limit > 0 && len(prefs) > limit {
					prefs = prefs[:limit]
				}
				printPreferences(cmd.OutOrStdout(), prefs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum preferences to list (0 for all)")
	cmd.AddCommand(newPrefsAddCommand(flags), newPrefsDeleteCommand(flags))
	return cmd
}

func newPrefsAddCommand(flags *di.CLIFlags) *cobra.Command {
	var (
		kind, value, action string
		confidence          float64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Seed a preference with a chosen confidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, v, a, err := parseManualPreference(kind, value, action, confidence)
			if err != nil {
				return err
			}
			return invoke(cmd.Context(), flags, func(ctx context.Context, store core.PreferenceStore) error {
				defer store.Close()
				p, err := store.Set(ctx, k, v, a, confidence)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added preference %d: %s:%s -> %s (%.2f)\n", p.ID, p.Kind, p.Value, p.Action, p.Confidence)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Pattern kind (sender, domain, subject_keyword)")
	cmd.Flags().StringVar(&value, "value", "", "Pattern value")
	cmd.Flags().StringVar(&action, "action", "", "Action (discard, defer, act_now)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.8, "Confidence between 0 and 1")
	return cmd
}

// parseManualPreference validates operator input for prefs add
func parseManualPreference(kind, value, action string, confidence float64) (core.PatternKind, string, core.Action, error) {
	k, ok := core.ParsePatternKind(kind)
	if !ok {
		return "", "", "", fmt.Errorf("invalid pattern kind %q (want sender, domain or subject_keyword)", kind)
	}
	v := core.NormalizePatternValue(k, value)
	if v == "" {
		return "", "", "", fmt.Errorf("pattern value required")
	}
	a, ok := core.ParseAction(action)
	if !ok {
		return "", "", "", fmt.Errorf("invalid action %q (want discard, defer or act_now)", action)
	}
	if confidence < 0 || confidence > 1 {
		return "", "", "", fmt.Errorf("confidence must be between 0 and 1, got %v", confidence)
	}
	return k, v, a, nil
}

func newPrefsDeleteCommand(flags *di.CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a preference by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid preference id %q", args[0])
			}
			return invoke(cmd.Context(), flags, func(ctx context.Context, store core.PreferenceStore) error {
				defer store.Close()
				if err := store.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted preference %d\n", id)
				return nil
			})
		},
	}
}

func printPreferences(w io.Writer, prefs []core.Preference) {
	if len(prefs) == 0 {
		fmt.Fprintln(w, "No preferences learned yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tVALUE\tACTION\tCONFIDENCE\tUSES")
	for _, p := range prefs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%d\n", p.ID, p.Kind, p.Value, p.Action, p.Confidence, p.UsageCount)
	}
	tw.Flush()
}

func newStatsCommand(flags *di.CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the decision log and the opt-out ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, store core.PreferenceStore, registry core.OptOutRegistry) error {
				defer store.Close()
				counts, err := store.DecisionCounts(ctx)
				if err != nil {
					return err
				}
				ledger, err := registry.Stats(ctx)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), counts, ledger)
				return nil
			})
		},
	}
}

func printStats(w io.Writer, counts *core.DecisionCounts, ledger *core.OptOutStats) {
	fmt.Fprintln(w, "=== Decisions ===")
	fmt.Fprintf(w, "Total:        %d\n", counts.Total)
	fmt.Fprintf(w, "Auto-decided: %d\n", counts.Auto)
	if counts.Total > 0 {
		fmt.Fprintf(w, "Automation:   %.1f%%\n", float64(counts.Auto)/float64(counts.Total)*100)
	}
	actions := make([]string, 0, len(counts.ByAction))
	for a := range counts.ByAction {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-16s %d\n", a, counts.ByAction[core.Action(a)])
	}

	fmt.Fprintln(w, "\n=== Opt-outs ===")
	fmt.Fprintf(w, "Domains:          %d\n", ledger.Domains)
	fmt.Fprintf(w, "Repeat offenders: %d\n", ledger.RepeatOffenders)
	fmt.Fprintf(w, "Total requests:   %d\n", ledger.TotalRequests)
}

func newClassifyCommand(flags *di.CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file.eml...]",
		Short: "Classify saved messages without touching the mailbox",
		Long:  "classify runs the classifier over .eml files, or a message on stdin, and prints the suggested decision. Nothing is learned or applied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, parser *mailfile.Parser, classifier *core.Classifier, store core.PreferenceStore) error {
				defer store.Close()
				defer classifier.Close()

				items, err := readItems(parser, args)
				if err != nil {
					return err
				}
				classified, err := classifier.ClassifyAll(ctx, items)
				if err != nil {
					return err
				}
				printClassified(cmd.OutOrStdout(), classified)
				return nil
			})
		},
	}
}

func readItems(parser *mailfile.Parser, paths []string) ([]*core.Item, error) {
	if len(paths) == 0 {
		item, err := parser.Parse(os.Stdin, "stdin")
		if err != nil {
			return nil, err
		}
		return []*core.Item{item}, nil
	}
	items := make([]*core.Item, 0, len(paths))
	for _, p := range paths {
		item, err := parser.ParseFile(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func printClassified(w io.Writer, classified []core.ClassifiedItem) {
	for _, ci := range classified {
		fmt.Fprintf(w, "\n=== %s ===\n", ci.Item.ID)
		fmt.Fprintf(w, "From:       %s\n", ci.Item.Sender)
		fmt.Fprintf(w, "Subject:    %s\n", ci.Item.Subject)
		fmt.Fprintf(w, "Action:     %s\n", ci.Decision.Action)
		fmt.Fprintf(w, "Confidence: %.2f\n", ci.Decision.Confidence)
		fmt.Fprintf(w, "Source:     %s\n", ci.Decision.Source)
		if ci.Decision.Rationale != "" {
			fmt.Fprintf(w, "Rationale:  %s\n", ci.Decision.Rationale)
		}
	}
}
