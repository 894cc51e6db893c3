// Package report exports audit results as semicolon-separated CSV or JSON.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/revfinder/internal/audit"
	"github.com/Veraticus/revfinder/internal/model"
)

// Formats accepted by FormatFor.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Header is the CSV column order.
var Header = []string{
	"Chave de Acesso",
	"Nº Nota",
	"Data Emissão",
	"CNPJ Emitente",
	"Emitente",
	"Produto",
	"NCM Sistema",
	"NCM Correto",
	"Valor a Recuperar (R$)",
	"Motivo",
	"Auditoria Feita Por",
	"Base Legal",
}

// SourceLabel returns the human label for a verdict source.
func SourceLabel(source model.VerdictSource) string {
	switch source {
	case model.SourceRule:
		return "Banco de Dados"
	case model.SourceKeyword:
		return "Identificação por Nome"
	case model.SourceCache:
		return "Cache IA (Aprendizado)"
	case model.SourceExternal:
		return "Agente IA"
	default:
		return string(source)
	}
}

// Meta is report-level context.
type Meta struct {
	GeneratedAt time.Time `json:"generated_at"`
	RunID       string    `json:"run_id,omitempty"`
	LegalBasis  string    `json:"legal_basis,omitempty"`
	RulesSource string    `json:"rules_source,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// WriteCSV writes the flagged rows, one per line, separated by semicolons.
func WriteCSV(w io.Writer, rows []audit.Row, meta Meta) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(csvRecord(r, meta.LegalBasis)); err != nil {
			return fmt.Errorf("failed to write row for %q: %w", r.Record.Description, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

func csvRecord(r audit.Row, legalBasis string) []string {
	issued := ""
	if !r.Record.IssuedAt.IsZero() {
		issued = r.Record.IssuedAt.Format("02/01/2006")
	}
	correct := r.Verdict.SuggestedCode
	if correct == "" {
		correct = r.Record.Code
	}
	return []string{
		r.Record.DocumentID,
		r.Record.DocumentNumber,
		issued,
		r.Record.IssuerTaxID,
		r.Record.IssuerName,
		r.Record.Description,
		r.Record.Code,
		correct,
		brazilianAmount(r.Recoverable.StringFixed(2)),
		r.Verdict.Rationale,
		SourceLabel(r.Verdict.Source),
		legalBasis,
	}
}

// brazilianAmount swaps the decimal point for a comma.
func brazilianAmount(s string) string {
	return strings.Replace(s, ".", ",", 1)
}

type jsonRow struct {
	DocumentID     string                `json:"document_id"`
	DocumentNumber string                `json:"document_number,omitempty"`
	IssuedAt       string                `json:"issued_at,omitempty"`
	IssuerTaxID    string                `json:"issuer_tax_id,omitempty"`
	IssuerName     string                `json:"issuer_name,omitempty"`
	Description    string                `json:"description"`
	Code           string                `json:"code,omitempty"`
	SuggestedCode  string                `json:"suggested_code,omitempty"`
	TotalValue     string                `json:"total_value"`
	Recoverable    string                `json:"recoverable"`
	Rationale      string                `json:"rationale"`
	Reason         string                `json:"reason,omitempty"`
	SinglePhase    model.Tristate        `json:"single_phase"`
	Source         model.VerdictSource   `json:"source,omitempty"`
	State          model.ResolutionState `json:"state"`
	Confidence     model.Confidence      `json:"confidence,omitempty"`
	CodeMismatch   bool                  `json:"code_mismatch"`
}

type jsonSummary struct {
	BySource       map[model.VerdictSource]int `json:"by_source"`
	Rate           string                      `json:"rate_percent"`
	Recoverable    string                      `json:"recoverable"`
	FlaggedValue   string                      `json:"flagged_value"`
	SavingsRatio   float64                     `json:"savings_ratio"`
	Lines          int                         `json:"lines"`
	Resolved       int                         `json:"resolved"`
	Unresolved     int                         `json:"unresolved"`
	Skipped        int                         `json:"skipped"`
	Flagged        int                         `json:"flagged"`
	CodeMismatches int                         `json:"code_mismatches"`
	CacheWarnings  int                         `json:"cache_warnings"`
}

type jsonReport struct {
	Meta    Meta        `json:"meta"`
	Summary jsonSummary `json:"summary"`
	Rows    []jsonRow   `json:"rows"`
}

// WriteJSON writes every row plus the summary as one indented document.
func WriteJSON(w io.Writer, rows []audit.Row, summary audit.Summary, meta Meta) error {
	out := jsonReport{
		Meta: meta,
		Summary: jsonSummary{
			BySource:       summary.BySource,
			Rate:           summary.Rate.String(),
			Recoverable:    summary.Recoverable.StringFixed(2),
			FlaggedValue:   summary.FlaggedValue.StringFixed(2),
			SavingsRatio:   summary.SavingsRatio(),
			Lines:          summary.Lines,
			Resolved:       summary.Resolved,
			Unresolved:     summary.Unresolved,
			Skipped:        summary.Skipped,
			Flagged:        summary.Flagged,
			CodeMismatches: summary.CodeMismatches,
			CacheWarnings:  summary.CacheWarnings,
		},
		Rows: make([]jsonRow, 0, len(rows)),
	}
	for _, r := range rows {
		row := jsonRow{
			DocumentID:     r.Record.DocumentID,
			DocumentNumber: r.Record.DocumentNumber,
			IssuerTaxID:    r.Record.IssuerTaxID,
			IssuerName:     r.Record.IssuerName,
			Description:    r.Record.Description,
			Code:           r.Record.Code,
			SuggestedCode:  r.Verdict.SuggestedCode,
			TotalValue:     r.Record.TotalValue.StringFixed(2),
			Recoverable:    r.Recoverable.StringFixed(2),
			Rationale:      r.Verdict.Rationale,
			Reason:         r.Reason,
			SinglePhase:    r.Verdict.SinglePhase,
			Source:         r.Verdict.Source,
			State:          r.State,
			Confidence:     r.Verdict.Confidence,
			CodeMismatch:   r.CodeMismatch,
		}
		if !r.Record.IssuedAt.IsZero() {
			row.IssuedAt = r.Record.IssuedAt.Format("2006-01-02")
		}
		out.Rows = append(out.Rows, row)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// FormatFor infers the report format from a file extension.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported report extension %q (use .csv or .json)", filepath.Ext(path))
	}
}

// WriteFile writes a report to path, choosing the format from its extension.
// CSV files contain only flagged rows; JSON files contain every row.
func WriteFile(path string, agg *audit.Aggregator, meta Meta) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	switch format {
	case FormatCSV:
		err = WriteCSV(f, agg.FlaggedRows(), meta)
	default:
		err = WriteJSON(f, agg.Rows(), agg.Summary(), meta)
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close report: %w", closeErr)
	}
	return err
}
