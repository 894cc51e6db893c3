// Package audit accumulates resolver outcomes into recoverable totals and per-source statistics.
package audit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/engine"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultRate is PIS 1.65% plus COFINS 7.6%, as a percentage of the line total.
var DefaultRate = decimal.RequireFromString("9.25")

// Row is one resolved line with its recoverable amount.
type Row struct {
	Record       model.ProductRecord
	Recoverable  decimal.Decimal
	Verdict      model.Verdict
	State        model.ResolutionState
	Reason       string
	CodeMismatch bool
}

// Flagged reports whether the row counts toward the recoverable total.
func (r Row) Flagged() bool {
	return r.State == model.StateResolved && r.Verdict.IsSinglePhase()
}

// Summary holds the accumulated counts and totals.
type Summary struct {
	BySource       map[model.VerdictSource]int
	Rate           decimal.Decimal
	Recoverable    decimal.Decimal
	FlaggedValue   decimal.Decimal
	Lines          int
	Resolved       int
	Unresolved     int
	Skipped        int
	Flagged        int
	CodeMismatches int
	CacheWarnings  int
}

// SavingsRatio is the share of resolved lines answered without a fresh external call.
func (s Summary) SavingsRatio() float64 {
	if s.Resolved == 0 {
		return 0
	}
	local := s.Resolved - s.BySource[model.SourceExternal]
	return float64(local) / float64(s.Resolved)
}

// Aggregator accumulates resolutions. It is safe for concurrent use and its
// summary does not depend on the order in which resolutions are added.
type Aggregator struct {
	summary Summary
	rows    []Row
	factor  decimal.Decimal
	mu      sync.Mutex
}

// NewAggregator creates an aggregator. rate is a percentage of the line total, e.g. 9.25.
func NewAggregator(rate decimal.Decimal) (*Aggregator, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: recovery rate %s must be between 0 and 100", common.ErrInvalidConfig, rate)
	}
	return &Aggregator{
		factor: rate.Shift(-2),
		summary: Summary{
			Rate:         rate,
			Recoverable:  decimal.Zero,
			FlaggedValue: decimal.Zero,
			BySource:     make(map[model.VerdictSource]int),
		},
	}, nil
}

// Add accumulates one resolution and returns its row.
func (a *Aggregator) Add(res engine.Resolution) Row {
	row := Row{
		Record:       res.Record,
		Verdict:      res.Verdict,
		State:        res.State,
		Reason:       res.Reason,
		CodeMismatch: res.CodeMismatch,
		Recoverable:  decimal.Zero,
	}
	if row.Flagged() {
		row.Recoverable = res.Record.TotalValue.Mul(a.factor)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.summary
	s.Lines++
	switch res.State {
	case model.StateResolved:
		s.Resolved++
		s.BySource[res.Verdict.Source]++
	case model.StateSkipped:
		s.Skipped++
	default:
		s.Unresolved++
	}
	if res.CacheWarning != nil {
		s.CacheWarnings++
	}
	if row.Flagged() {
		s.Flagged++
		s.FlaggedValue = s.FlaggedValue.Add(res.Record.TotalValue)
		s.Recoverable = s.Recoverable.Add(row.Recoverable)
		if row.CodeMismatch {
			s.CodeMismatches++
		}
	}

	a.rows = append(a.rows, row)
	return row
}

// AddBatch accumulates every started resolution of a batch.
func (a *Aggregator) AddBatch(b engine.Batch) {
	for _, res := range b.Resolutions {
		if res.State == model.StateNotStarted {
			continue
		}
		a.Add(res)
	}
}

// Summary returns a copy of the accumulated summary.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.summary
	s.BySource = make(map[model.VerdictSource]int, len(a.summary.BySource))
	for k, v := range a.summary.BySource {
		s.BySource[k] = v
	}
	return s
}

// Rows returns every row in the order added.
func (a *Aggregator) Rows() []Row {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Row(nil), a.rows...)
}

// FlaggedRows returns the recoverable rows ordered by document, line and description.
func (a *Aggregator) FlaggedRows() []Row {
	a.mu.Lock()
	flagged := make([]Row, 0, a.summary.Flagged)
	for _, r := range a.rows {
		if r.Flagged() {
			flagged = append(flagged, r)
		}
	}
	a.mu.Unlock()

	sort.SliceStable(flagged, func(i, j int) bool {
		ri, rj := flagged[i].Record, flagged[j].Record
		if ri.DocumentID != rj.DocumentID {
			return ri.DocumentID < rj.DocumentID
		}
		if ri.Line != rj.Line {
			return ri.Line < rj.Line
		}
		return ri.Description < rj.Description
	})
	return flagged
}
