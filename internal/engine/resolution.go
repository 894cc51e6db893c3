package engine

import (
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/Veraticus/revfinder/internal/rules"
)

// Resolution is the per-record outcome of the cascade.
type Resolution struct {
	// CacheWarning is set when an external verdict could not be persisted.
	CacheWarning error
	Record       model.ProductRecord
	Verdict      model.Verdict
	State        model.ResolutionState
	// Reason explains an UNRESOLVED or SKIPPED outcome.
	Reason string
	Trace  []model.ResolutionState
	// CodeMismatch is set when a single-phase verdict suggests a code other than the one on the invoice.
	CodeMismatch bool
	// External reports whether the external classifier was called for this record.
	External bool
}

// Resolved reports whether the cascade produced a definite verdict.
func (r Resolution) Resolved() bool {
	return r.State == model.StateResolved
}

// Recoverable reports whether the line counts toward the recoverable total.
func (r Resolution) Recoverable() bool {
	return r.Resolved() && r.Verdict.IsSinglePhase()
}

func (r *Resolution) advance(s model.ResolutionState) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

func (r *Resolution) resolve(v model.Verdict) {
	r.Verdict = v
	r.CodeMismatch = codeMismatch(r.Record.Code, v)
	r.advance(model.StateResolved)
}

func (r *Resolution) unresolve(reason string) {
	r.Verdict = model.UnresolvedVerdict(reason)
	r.Reason = reason
	r.advance(model.StateUnresolved)
}

func (r *Resolution) skip(err error) {
	r.Verdict = model.UnresolvedVerdict(err.Error())
	r.Reason = err.Error()
	r.advance(model.StateSkipped)
}

func codeMismatch(current string, v model.Verdict) bool {
	if !v.IsSinglePhase() || v.SuggestedCode == "" {
		return false
	}
	normalized, ok := rules.NormalizeCode(current)
	if !ok {
		return true
	}
	return normalized != v.SuggestedCode
}
