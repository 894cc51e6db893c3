package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/revfinder/internal/audit"
	"github.com/Veraticus/revfinder/internal/cli"
	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/engine"
	"github.com/Veraticus/revfinder/internal/input"
	"github.com/Veraticus/revfinder/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [files...]",
		Short: "Audit NF-e items and report recoverable PIS/COFINS",
		Long: `Resolve every product record in the given JSON files and report which items
are single-phase, what NCM they should carry and how much can be recovered.

Inputs are JSON arrays of product records. Paths may be doublestar globs
(e.g. "notas/**/*.json"); "-" reads from standard input.

Items answered by the external classifier are learned, so later runs answer
them locally. Press Ctrl-C to stop: learned verdicts are kept and the partial
report is still written.`,
		Example: `  revfinder classify notas/**/*.json --output relatorio.csv
  revfinder classify --offline - < itens.json`,
		RunE: runClassify,
	}

	cmd.Flags().StringSliceP("input", "i", nil, "input files or globs (may be repeated)")
	cmd.Flags().StringP("output", "o", "", "write a report (.csv for flagged items, .json for everything)")
	cmd.Flags().Int("concurrency", 0, "records resolved in parallel (default from config)")
	cmd.Flags().String("rate", "", "recovery rate in percent (default 9.25)")
	cmd.Flags().Bool("offline", false, "never call the external classifier")
	cmd.Flags().Bool("no-progress", false, "hide the progress bar")

	_ = viper.BindPFlag("resolver.concurrency", cmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("recovery.rate", cmd.Flags().Lookup("rate"))

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	patterns, _ := cmd.Flags().GetStringSlice("input")
	patterns = append(patterns, args...)
	if len(patterns) == 0 {
		return common.NewUserError("No input given", fmt.Errorf("%w: pass files, globs or - for stdin", common.ErrMissingConfig))
	}
	output, _ := cmd.Flags().GetString("output")
	offline, _ := cmd.Flags().GetBool("offline")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	if output != "" {
		if _, err := report.FormatFor(output); err != nil {
			return common.NewUserError("Unsupported report file", err)
		}
	}

	rate, err := recoveryRate()
	if err != nil {
		return err
	}
	agg, err := audit.NewAggregator(rate)
	if err != nil {
		return err
	}

	records, err := input.LoadRecords(patterns, cmd.InOrStdin())
	if err != nil {
		return common.NewUserError("Could not read input records", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No product records found"))
		return nil
	}

	a, err := newApp(cmd.Context(), offline)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatTitle(fmt.Sprintf("Auditing %d items", len(records))))
	if a.resolver.Offline() {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning("Offline mode: unlearned items will stay unresolved"))
	}

	runCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := handler.HandleInterrupts(runCtx)

	opts := engine.BatchOptions{}
	if !noProgress {
		opts.Progress = cli.ProgressCallback(cli.NewProgressBar(cmd.ErrOrStderr(), len(records)))
	}

	slog.Info("Starting audit", "records", len(records), "offline", a.resolver.Offline())
	batch, batchErr := a.resolver.ResolveBatch(ctx, records, opts)
	if batchErr != nil && !errors.Is(batchErr, context.Canceled) {
		return batchErr
	}

	agg.AddBatch(batch)
	summary := agg.Summary()
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderSummary(summary, batch))

	if output != "" {
		meta := report.Meta{
			GeneratedAt: time.Now(),
			RunID:       batch.RunID,
			LegalBasis:  a.tables.Rules.BaseLegal(),
			RulesSource: a.tables.Source,
			Warnings:    batch.Warnings,
		}
		if err := report.WriteFile(output, agg, meta); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Report written to "+output))
	}

	if batchErr != nil {
		if handler.WasInterrupted() {
			return common.NewUserError(
				fmt.Sprintf("Interrupted after %d of %d items", batch.Completed, len(records)), batchErr)
		}
		return batchErr
	}
	return nil
}
