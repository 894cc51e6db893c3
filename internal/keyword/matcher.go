// Package keyword identifies single-phase products by brand and term tokens in their descriptions.
package keyword

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/Veraticus/revfinder/internal/rules"
)

// ShortTokenLength is the rune length at or below which a token only matches a whole word.
const ShortTokenLength = 3

// Category groups the tokens that identify one kind of single-phase product.
// Categories are evaluated in the order they are configured.
type Category struct {
	Name          string
	SuggestedCode string
	Brands        []string
	Terms         []string
	WholeWord     []string
}

// Match is a positive keyword identification.
type Match struct {
	Category      string
	SuggestedCode string
	Keyword       string
	Confidence    model.Confidence
}

// Verdict converts the match into a single-phase verdict.
func (m Match) Verdict() model.Verdict {
	return model.Verdict{
		SinglePhase:   model.Yes,
		SuggestedCode: m.SuggestedCode,
		Category:      m.Category,
		Keyword:       m.Keyword,
		Rationale:     fmt.Sprintf("description contains %q (%s)", m.Keyword, m.Category),
		Source:        model.SourceKeyword,
		Confidence:    m.Confidence,
	}
}

type token struct {
	text       string
	confidence model.Confidence
	wholeWord  bool
}

type compiledCategory struct {
	name          string
	suggestedCode string
	tokens        []token
}

// Matcher evaluates descriptions against the configured categories. It is immutable and safe for concurrent use.
type Matcher struct {
	categories []compiledCategory
	tokenCount int
}

// New compiles the categories. Tokens are normalized like descriptions; an empty or duplicate token
// within a category, a duplicate category name, or an invalid suggested code is a configuration error.
func New(categories []Category) (*Matcher, error) {
	m := &Matcher{categories: make([]compiledCategory, 0, len(categories))}
	names := make(map[string]struct{}, len(categories))

	for _, cat := range categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: keyword category without a name", common.ErrInvalidConfig)
		}
		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("%w: keyword category %q defined twice", common.ErrInvalidConfig, name)
		}
		names[name] = struct{}{}

		compiled := compiledCategory{name: name}
		if cat.SuggestedCode != "" {
			code, ok := rules.NormalizeCode(cat.SuggestedCode)
			if !ok {
				return nil, fmt.Errorf("%w: keyword category %q has invalid NCM code %q",
					common.ErrInvalidConfig, name, cat.SuggestedCode)
			}
			compiled.suggestedCode = code
		}

		seen := make(map[string]struct{})
		groups := []struct {
			tokens     []string
			confidence model.Confidence
			wholeWord  bool
		}{
			{cat.Brands, model.ConfidenceHigh, false},
			{cat.Terms, model.ConfidenceMedium, false},
			{cat.WholeWord, model.ConfidenceLow, true},
		}
		for _, g := range groups {
			for _, raw := range g.tokens {
				text := model.NormalizeDescription(raw)
				if text == "" {
					return nil, fmt.Errorf("%w: keyword category %q has empty token %q",
						common.ErrInvalidConfig, name, raw)
				}
				if _, dup := seen[text]; dup {
					return nil, fmt.Errorf("%w: keyword category %q lists token %q twice",
						common.ErrInvalidConfig, name, text)
				}
				seen[text] = struct{}{}

				compiled.tokens = append(compiled.tokens, token{
					text:       text,
					confidence: g.confidence,
					wholeWord:  g.wholeWord || utf8.RuneCountInString(text) <= ShortTokenLength,
				})
			}
		}

		m.tokenCount += len(compiled.tokens)
		m.categories = append(m.categories, compiled)
	}

	return m, nil
}

// Match returns the first category, in configured order, with a token present in the description.
// Absence of a match is inconclusive.
func (m *Matcher) Match(description string) (Match, bool) {
	normalized := model.NormalizeDescription(description)
	if normalized == "" {
		return Match{}, false
	}
	padded := " " + normalized + " "

	for _, cat := range m.categories {
		for _, tok := range cat.tokens {
			var hit bool
			if tok.wholeWord {
				hit = strings.Contains(padded, " "+tok.text+" ")
			} else {
				hit = strings.Contains(normalized, tok.text)
			}
			if hit {
				return Match{
					Category:      cat.name,
					SuggestedCode: cat.suggestedCode,
					Keyword:       tok.text,
					Confidence:    tok.confidence,
				}, true
			}
		}
	}

	return Match{}, false
}

// Categories returns the category names in evaluation order.
func (m *Matcher) Categories() []string {
	out := make([]string, len(m.categories))
	for i, c := range m.categories {
		out[i] = c.name
	}
	return out
}

// TokenCount returns the number of compiled tokens across all categories.
func (m *Matcher) TokenCount() int {
	return m.tokenCount
}
