package model

import "time"

// LearnedOrigin indicates how a learned entry was created.
type LearnedOrigin string

const (
	// OriginExternal indicates the entry was written back after an external classification.
	OriginExternal LearnedOrigin = "EXTERNAL"
	// OriginManual indicates the entry was set by an operator and must not be overwritten automatically.
	OriginManual LearnedOrigin = "MANUAL"
)

// LearnedEntry is a previously resolved verdict keyed by normalized description.
type LearnedEntry struct {
	LearnedAt     time.Time     `json:"learned_at" yaml:"learned_at"`
	Key           string        `json:"key" yaml:"key"`
	Description   string        `json:"description" yaml:"description"`
	SuggestedCode string        `json:"suggested_code,omitempty" yaml:"suggested_code,omitempty"`
	Category      string        `json:"category,omitempty" yaml:"category,omitempty"`
	Rationale     string        `json:"rationale" yaml:"rationale"`
	Origin        LearnedOrigin `json:"origin" yaml:"origin"`
	Hits          int           `json:"hits" yaml:"hits"`
	SinglePhase   bool          `json:"single_phase" yaml:"single_phase"`
}

// NewLearnedEntry builds an entry from a definite verdict.
func NewLearnedEntry(description string, v Verdict, origin LearnedOrigin, at time.Time) LearnedEntry {
	return LearnedEntry{
		Key:           NormalizeDescription(description),
		Description:   description,
		SinglePhase:   v.IsSinglePhase(),
		SuggestedCode: v.SuggestedCode,
		Category:      v.Category,
		Rationale:     v.Rationale,
		Origin:        origin,
		LearnedAt:     at,
	}
}

// Verdict reconstructs the verdict served from the learned cache.
func (e LearnedEntry) Verdict() Verdict {
	return Verdict{
		SinglePhase:   TristateOf(e.SinglePhase),
		SuggestedCode: e.SuggestedCode,
		Category:      e.Category,
		Rationale:     e.Rationale,
		Source:        SourceCache,
		Confidence:    ConfidenceHigh,
	}
}

// SameVerdict reports whether two entries carry the same answer, ignoring bookkeeping fields.
func (e LearnedEntry) SameVerdict(other LearnedEntry) bool {
	return e.SinglePhase == other.SinglePhase &&
		e.SuggestedCode == other.SuggestedCode &&
		e.Category == other.Category &&
		e.Rationale == other.Rationale &&
		e.Origin == other.Origin
}
