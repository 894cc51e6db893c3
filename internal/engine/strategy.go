package engine

import (
	"github.com/Veraticus/revfinder/internal/keyword"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/Veraticus/revfinder/internal/rules"
)

// Strategy is one local tier of the cascade. Evaluate has no side effects.
type Strategy interface {
	Source() model.VerdictSource
	Evaluate(rec model.ProductRecord) model.TierResult
}

// RuleStrategy answers by exact tax code. Its answer is authoritative in both directions.
type RuleStrategy struct {
	Store *rules.Store
}

// Source implements Strategy.
func (RuleStrategy) Source() model.VerdictSource { return model.SourceRule }

// Evaluate implements Strategy.
func (s RuleStrategy) Evaluate(rec model.ProductRecord) model.TierResult {
	rule, ok := s.Store.Lookup(rec.Code)
	if !ok {
		return model.Absent()
	}
	return model.Definite(rule.Verdict())
}

// KeywordStrategy answers by description tokens. It only ever asserts single-phase.
type KeywordStrategy struct {
	Matcher *keyword.Matcher
}

// Source implements Strategy.
func (KeywordStrategy) Source() model.VerdictSource { return model.SourceKeyword }

// Evaluate implements Strategy.
func (s KeywordStrategy) Evaluate(rec model.ProductRecord) model.TierResult {
	m, ok := s.Matcher.Match(rec.Description)
	if !ok {
		return model.Absent()
	}
	return model.Definite(m.Verdict())
}
