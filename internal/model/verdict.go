// Package model defines the core domain models used throughout the application.
package model

// VerdictSource identifies the tier that produced a verdict.
type VerdictSource string

// Verdict source constants, in cascade order.
const (
	SourceRule     VerdictSource = "RULE"
	SourceKeyword  VerdictSource = "KEYWORD"
	SourceCache    VerdictSource = "CACHE"
	SourceExternal VerdictSource = "EXTERNAL"
)

// Sources lists every verdict source in cascade order.
func Sources() []VerdictSource {
	return []VerdictSource{SourceRule, SourceKeyword, SourceCache, SourceExternal}
}

// Tristate is a boolean that may also be unknown.
type Tristate string

// Tristate values.
const (
	Unknown Tristate = "UNKNOWN"
	Yes     Tristate = "YES"
	No      Tristate = "NO"
)

// TristateOf converts a definite boolean.
func TristateOf(b bool) Tristate {
	if b {
		return Yes
	}
	return No
}

// Confidence is a coarse trust level attached to a verdict.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Verdict is the resolver's answer for one product.
type Verdict struct {
	SinglePhase   Tristate      `json:"single_phase" yaml:"single_phase"`
	SuggestedCode string        `json:"suggested_code,omitempty" yaml:"suggested_code,omitempty"`
	Category      string        `json:"category,omitempty" yaml:"category,omitempty"`
	Rationale     string        `json:"rationale" yaml:"rationale"`
	Keyword       string        `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Source        VerdictSource `json:"source,omitempty" yaml:"source,omitempty"`
	Confidence    Confidence    `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// IsSinglePhase reports a definite single-phase answer.
func (v Verdict) IsSinglePhase() bool {
	return v.SinglePhase == Yes
}

// IsDefinite reports whether the verdict answers the single-phase question.
func (v Verdict) IsDefinite() bool {
	return v.SinglePhase == Yes || v.SinglePhase == No
}

// UnresolvedVerdict builds the verdict returned when no tier could answer.
func UnresolvedVerdict(reason string) Verdict {
	return Verdict{
		SinglePhase: Unknown,
		Rationale:   reason,
	}
}

// TierResult is the outcome of consulting one tier: absent, or a definite verdict.
type TierResult struct {
	verdict Verdict
	found   bool
}

// Absent is the inconclusive tier result; the cascade continues.
func Absent() TierResult {
	return TierResult{}
}

// Definite wraps a verdict that terminates the cascade.
func Definite(v Verdict) TierResult {
	return TierResult{verdict: v, found: true}
}

// Verdict returns the wrapped verdict and whether the result is definite.
func (r TierResult) Verdict() (Verdict, bool) {
	return r.verdict, r.found
}
