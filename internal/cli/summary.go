package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/revfinder/internal/audit"
	"github.com/Veraticus/revfinder/internal/engine"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// RenderSummary renders the end-of-run box.
func RenderSummary(s audit.Summary, batch engine.Batch) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Recoverable: %s\n", MoneyIcon,
		BoldStyle.Render("R$ "+s.Recoverable.StringFixed(2)))
	fmt.Fprintf(&b, "  • Flagged items: %d (R$ %s at %s%%)\n",
		s.Flagged, s.FlaggedValue.StringFixed(2), s.Rate.String())
	fmt.Fprintf(&b, "  • Items: %d resolved, %d unresolved, %d skipped\n",
		s.Resolved, s.Unresolved, s.Skipped)
	if s.CodeMismatches > 0 {
		fmt.Fprintf(&b, "  • %s NCM mismatches: %d\n", WarningIcon, s.CodeMismatches)
	}

	b.WriteString("\n" + ChartIcon + " By source\n")
	for _, src := range model.Sources() {
		fmt.Fprintf(&b, "  %s %-9s %d\n", SourceIcon(src), src, s.BySource[src])
	}

	fmt.Fprintf(&b, "\n%s External calls this run: %d (%.0f%% answered locally)\n",
		RobotIcon, batch.ExternalCalls, s.SavingsRatio()*100)
	if len(batch.Warnings) > 0 {
		fmt.Fprintf(&b, "%s\n", FormatWarning(fmt.Sprintf("%d learned verdicts were not saved", len(batch.Warnings))))
	}

	return RenderBox("Audit Complete", strings.TrimRight(b.String(), "\n"))
}

// RenderResolution renders one record's verdict and tier trace.
func RenderResolution(res engine.Resolution) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Product:"), res.Record.Description)
	if res.Record.HasCode() {
		fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("NCM:"), res.Record.Code)
	}
	fmt.Fprintf(&b, "%s %s", BoldStyle.Render("Verdict:"), FormatVerdict(res.Verdict))
	if res.Verdict.Source != "" {
		fmt.Fprintf(&b, " %s %s (%s confidence)", SourceIcon(res.Verdict.Source), res.Verdict.Source, res.Verdict.Confidence)
	}
	b.WriteString("\n")
	if res.Verdict.SuggestedCode != "" {
		code := res.Verdict.SuggestedCode
		if res.CodeMismatch {
			code = WarningStyle.Render(code + " (invoice NCM differs)")
		}
		fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Suggested NCM:"), code)
	}
	if res.Verdict.Rationale != "" {
		fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Rationale:"), res.Verdict.Rationale)
	}
	if res.CacheWarning != nil {
		b.WriteString(FormatWarning("not persisted: "+res.CacheWarning.Error()) + "\n")
	}

	trace := make([]string, len(res.Trace))
	for i, s := range res.Trace {
		trace[i] = string(s)
	}
	b.WriteString(SubtleStyle.Render("Trace: " + strings.Join(trace, " → ")))

	return lipgloss.NewStyle().PaddingLeft(1).Render(b.String())
}
