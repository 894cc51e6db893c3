package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/revfinder/internal/cache"
	"github.com/Veraticus/revfinder/internal/cli"
	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/Veraticus/revfinder/internal/rules"
	"github.com/Veraticus/revfinder/internal/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// learnedExportVersion is bumped when the export layout changes.
const learnedExportVersion = 1

type learnedExport struct {
	ExportedAt time.Time            `yaml:"exported_at"`
	Entries    []model.LearnedEntry `yaml:"entries"`
	Version    int                  `yaml:"version"`
}

func learnedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learned",
		Short: "Manage the learned cache",
		Long: `View, correct and move the verdicts learned from the external classifier.

Entries set by hand are marked MANUAL and are never replaced by a later
external verdict.`,
	}

	cmd.AddCommand(learnedListCmd())
	cmd.AddCommand(learnedShowCmd())
	cmd.AddCommand(learnedSetCmd())
	cmd.AddCommand(learnedForgetCmd())
	cmd.AddCommand(learnedStatsCmd())
	cmd.AddCommand(learnedExportCmd())
	cmd.AddCommand(learnedImportCmd())

	return cmd
}

// withCache opens the learned cache for the duration of fn.
func withCache(cmd *cobra.Command, fn func(*storage.SQLiteStorage, *cache.Cache) error) error {
	store, c, err := openLearned(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()
	return fn(store, c)
}

func learnedListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned verdicts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manualOnly, _ := cmd.Flags().GetBool("manual")
			singlePhaseOnly, _ := cmd.Flags().GetBool("single-phase")

			return withCache(cmd, func(_ *storage.SQLiteStorage, c *cache.Cache) error {
				var entries []model.LearnedEntry
				for _, e := range c.Entries() {
					if manualOnly && e.Origin != model.OriginManual {
						continue
					}
					if singlePhaseOnly && !e.SinglePhase {
						continue
					}
					entries = append(entries, e)
				}

				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, cli.InfoStyle.Render("No learned verdicts yet. Run 'revfinder classify' to build the cache."))
					return nil
				}
				return writeLearnedTable(out, entries)
			})
		},
	}

	cmd.Flags().Bool("manual", false, "only entries set by hand")
	cmd.Flags().Bool("single-phase", false, "only single-phase entries")

	return cmd
}

func writeLearnedTable(out io.Writer, entries []model.LearnedEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		cli.TableHeaderStyle.Render("Description"),
		cli.TableHeaderStyle.Render("Single-phase"),
		cli.TableHeaderStyle.Render("NCM"),
		cli.TableHeaderStyle.Render("Origin"),
		cli.TableHeaderStyle.Render("Hits"),
		cli.TableHeaderStyle.Render("Learned")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range entries {
		answer := "no"
		if e.SinglePhase {
			answer = "yes"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Description,
			answer,
			e.SuggestedCode,
			e.Origin,
			e.Hits,
			e.LearnedAt.Format("2006-01-02")); err != nil {
			return fmt.Errorf("failed to write entry row: %w", err)
		}
	}

	return w.Flush()
}

func learnedShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <description>",
		Short: "Show the learned verdict for a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.Join(args, " ")
			return withCache(cmd, func(_ *storage.SQLiteStorage, c *cache.Cache) error {
				e, ok := c.Entry(description)
				if !ok {
					return common.NewUserError(fmt.Sprintf("Nothing learned for %q", description), common.ErrNotFound)
				}

				lines := []string{
					fmt.Sprintf("Key:         %s", e.Key),
					fmt.Sprintf("Verdict:     %s", cli.FormatVerdict(e.Verdict())),
					fmt.Sprintf("NCM:         %s", e.SuggestedCode),
					fmt.Sprintf("Category:    %s", e.Category),
					fmt.Sprintf("Rationale:   %s", e.Rationale),
					fmt.Sprintf("Origin:      %s", e.Origin),
					fmt.Sprintf("Hits:        %d", e.Hits),
					fmt.Sprintf("Learned at:  %s", e.LearnedAt.Format(time.RFC3339)),
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.BrainIcon+" "+e.Description, strings.Join(lines, "\n")))
				return nil
			})
		},
	}
}

func learnedSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <description>",
		Short: "Set a verdict by hand",
		Long: `Record a manual verdict for a description. Manual verdicts are served by
the cache tier and are never replaced by the external classifier.`,
		Example: `  revfinder learned set "CERVEJA ARTESANAL XPTO 500ML" --single-phase --ncm 22030000
  revfinder learned set "CAMISETA BASICA" --single-phase=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: runLearnedSet,
	}

	cmd.Flags().Bool("single-phase", false, "whether the product is single-phase (required)")
	cmd.Flags().String("ncm", "", "correct NCM code")
	cmd.Flags().String("category", "", "single-phase category")
	cmd.Flags().String("reason", "", "rationale shown in reports")

	return cmd
}

func runLearnedSet(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("single-phase") {
		return common.NewUserError("Pass --single-phase or --single-phase=false",
			fmt.Errorf("%w: verdict not given", common.ErrMissingConfig))
	}
	singlePhase, _ := cmd.Flags().GetBool("single-phase")
	ncm, _ := cmd.Flags().GetString("ncm")
	category, _ := cmd.Flags().GetString("category")
	reason, _ := cmd.Flags().GetString("reason")

	if ncm != "" {
		code, ok := rules.NormalizeCode(ncm)
		if !ok {
			return common.NewUserError("Invalid --ncm", fmt.Errorf("%w: %q is not an 8-digit NCM", common.ErrInvalidConfig, ncm))
		}
		ncm = code
	}
	if reason == "" {
		reason = "set manually"
	}

	description := strings.Join(args, " ")
	v := model.Verdict{
		SinglePhase:   model.TristateOf(singlePhase),
		SuggestedCode: ncm,
		Category:      category,
		Rationale:     reason,
	}

	return withCache(cmd, func(_ *storage.SQLiteStorage, c *cache.Cache) error {
		entry, err := c.Override(cmd.Context(), description, v)
		if err != nil {
			return fmt.Errorf("failed to save verdict: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Learned %q as %s", entry.Key, cli.FormatVerdict(entry.Verdict()))))
		return nil
	})
}

func learnedForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <description>",
		Short: "Delete a learned verdict",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			description := strings.Join(args, " ")

			return withCache(cmd, func(_ *storage.SQLiteStorage, c *cache.Cache) error {
				e, ok := c.Entry(description)
				if !ok {
					return common.NewUserError(fmt.Sprintf("Nothing learned for %q", description), common.ErrNotFound)
				}

				out := cmd.OutOrStdout()
				if !yes {
					reader := cli.NewNonBlockingReader(cmd.InOrStdin())
					confirmed, err := cli.Confirm(cmd.Context(), reader, out,
						fmt.Sprintf("Forget %s verdict for %q?", strings.ToLower(string(e.Origin)), e.Key))
					if err != nil {
						return err
					}
					if !confirmed {
						fmt.Fprintln(out, "Operation canceled.")
						return nil
					}
				}

				if err := c.Forget(cmd.Context(), description); err != nil {
					return fmt.Errorf("failed to forget verdict: %w", err)
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Forgot %q", e.Key)))
				return nil
			})
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "skip confirmation prompt")

	return cmd
}

func learnedStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show learned cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(store *storage.SQLiteStorage, c *cache.Cache) error {
				s, err := c.Stats(cmd.Context())
				if err != nil {
					return err
				}
				lines := []string{
					fmt.Sprintf("Database:          %s", store.Path()),
					fmt.Sprintf("Entries:           %d", s.Entries),
					fmt.Sprintf("  Single-phase:    %d", s.SinglePhase),
					fmt.Sprintf("  Not single-phase: %d", s.NotSinglePhase),
					fmt.Sprintf("  Manual:          %d", s.Manual),
					fmt.Sprintf("Cache hits:        %d", s.Hits),
					fmt.Sprintf("%s External calls saved: %d", cli.MoneyIcon, s.SavedCalls),
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.ChartIcon+" Learned Cache", strings.Join(lines, "\n")))
				return nil
			})
		},
	}
}

func learnedExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export learned verdicts as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(_ *storage.SQLiteStorage, c *cache.Cache) error {
				doc := learnedExport{
					Version:    learnedExportVersion,
					ExportedAt: time.Now().UTC(),
					Entries:    c.Entries(),
				}

				if len(args) == 0 || args[0] == "-" {
					return writeLearnedExport(cmd.OutOrStdout(), doc)
				}

				f, err := os.Create(args[0]) // #nosec G304 - path is provided by the operator
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				if err := writeLearnedExport(f, doc); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to close export file: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess(fmt.Sprintf("Exported %d entries to %s", len(doc.Entries), args[0])))
				return nil
			})
		},
	}
}

func writeLearnedExport(w io.Writer, doc learnedExport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return enc.Close()
}

func readLearnedExport(r io.Reader) (learnedExport, error) {
	var doc learnedExport
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return doc, fmt.Errorf("%w: export file is empty", common.ErrMalformedRecord)
		}
		return doc, fmt.Errorf("%w: decoding export: %w", common.ErrMalformedRecord, err)
	}
	if doc.Version > learnedExportVersion {
		return doc, fmt.Errorf("%w: export version %d is newer than supported version %d",
			common.ErrInvalidConfig, doc.Version, learnedExportVersion)
	}
	return doc, nil
}

func learnedImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import learned verdicts from a YAML export",
		Long: `Import verdicts written by 'revfinder learned export'. The database is backed up
first. Manual entries already in the cache are only replaced by manual entries.`,
		Args: cobra.ExactArgs(1),
		RunE: runLearnedImport,
	}

	cmd.Flags().Bool("no-backup", false, "skip the database backup")

	return cmd
}

func runLearnedImport(cmd *cobra.Command, args []string) error {
	noBackup, _ := cmd.Flags().GetBool("no-backup")

	f, err := os.Open(args[0]) // #nosec G304 - path is provided by the operator
	if err != nil {
		return common.NewUserError("Could not open export file", err)
	}
	doc, err := readLearnedExport(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	return withCache(cmd, func(store *storage.SQLiteStorage, c *cache.Cache) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if !noBackup && store.Path() != storage.MemoryPath {
			backup := store.BackupPath("pre-import", time.Now())
			if err := store.Backup(ctx, backup); err != nil {
				return fmt.Errorf("failed to back up database before import: %w", err)
			}
			fmt.Fprintln(out, cli.FormatInfo("Backup written to "+backup))
		}

		written, err := c.Import(ctx, doc.Entries)
		if err != nil {
			return fmt.Errorf("import failed, no entries were written: %w", err)
		}
		skipped := len(doc.Entries) - written
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d entries (%d kept as manual)", written, skipped)))
		return nil
	})
}
