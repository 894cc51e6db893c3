package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/revfinder/internal/cli"
	"github.com/Veraticus/revfinder/internal/config"
	"github.com/Veraticus/revfinder/internal/rules"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the NCM rule and keyword tables",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "lookup <ncm>",
		Short: "Show the rule for an NCM code",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesLookup,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "match <description>",
		Short: "Show which keyword, if any, identifies a description",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRulesMatch,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Validate a rules file and print its contents summary",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRulesCheck,
	})

	return cmd
}

func runRulesLookup(cmd *cobra.Command, args []string) error {
	tables, err := loadTables()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	code, ok := rules.NormalizeCode(args[0])
	if !ok {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%q is not an 8-digit NCM", args[0])))
		return nil
	}
	rule, ok := tables.Rules.Lookup(code)
	if !ok {
		fmt.Fprintln(out, cli.FormatInfo("NCM "+code+" is not in the rule table"))
		return nil
	}

	v := rule.Verdict()
	fmt.Fprintf(out, "%s %s %s\n", cli.RuleIcon, cli.BoldStyle.Render(code), cli.FormatVerdict(v))
	if rule.Category != "" {
		fmt.Fprintf(out, "  Category: %s\n", rule.Category)
	}
	if rule.Description != "" {
		fmt.Fprintf(out, "  %s\n", cli.SubtleStyle.Render(rule.Description))
	}
	return nil
}

func runRulesMatch(cmd *cobra.Command, args []string) error {
	tables, err := loadTables()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	description := strings.Join(args, " ")
	m, ok := tables.Keywords.Match(description)
	if !ok {
		fmt.Fprintln(out, cli.FormatInfo("No keyword matches "+fmt.Sprintf("%q", description)))
		return nil
	}

	fmt.Fprintf(out, "%s %s matched %s\n", cli.KeywordIcon, cli.BoldStyle.Render(m.Keyword), m.Category)
	fmt.Fprintf(out, "  Confidence: %s\n", m.Confidence)
	if m.SuggestedCode != "" {
		fmt.Fprintf(out, "  Suggested NCM: %s\n", m.SuggestedCode)
	}
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	path := viper.GetString("rules.path")
	if len(args) == 1 {
		path = args[0]
	}

	tables, err := config.LoadTables(path)
	if err != nil {
		return err
	}

	meta := tables.Rules.Metadata()
	lines := []string{
		fmt.Sprintf("Source:      %s", tables.Source),
		fmt.Sprintf("NCM rules:   %d", tables.Rules.Len()),
		fmt.Sprintf("Categories:  %s", strings.Join(tables.Keywords.Categories(), ", ")),
		fmt.Sprintf("Keywords:    %d", tables.Keywords.TokenCount()),
		fmt.Sprintf("Legal basis: %s", tables.Rules.BaseLegal()),
	}
	if meta.Version != "" {
		lines = append(lines, fmt.Sprintf("Version:     %s (%s)", meta.Version, meta.UpdatedAt))
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.SuccessIcon+" Rules OK", strings.Join(lines, "\n")))
	return nil
}
