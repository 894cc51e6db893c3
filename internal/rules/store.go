// Package rules holds the authoritative NCM code table consulted first by the resolver.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
)

// CodeLength is the width of a normalized NCM code.
const CodeLength = 8

// DefaultLegalBasis is reported when the rules file does not name one.
const DefaultLegalBasis = "Lei nº 10.147/2000; Lei nº 10.485/2002; Lei nº 13.097/2015"

// Rule maps one NCM code to its single-phase treatment.
type Rule struct {
	Code        string
	Category    string
	Description string
	SinglePhase bool
}

// Verdict converts the rule into an authoritative verdict.
func (r Rule) Verdict() model.Verdict {
	rationale := fmt.Sprintf("NCM %s is listed as single-phase", r.Code)
	if !r.SinglePhase {
		rationale = fmt.Sprintf("NCM %s is listed as not single-phase", r.Code)
	}
	if r.Description != "" {
		rationale += " - " + r.Description
	}
	return model.Verdict{
		SinglePhase:   model.TristateOf(r.SinglePhase),
		SuggestedCode: r.Code,
		Category:      r.Category,
		Rationale:     rationale,
		Source:        model.SourceRule,
		Confidence:    model.ConfidenceHigh,
	}
}

// Metadata describes the loaded table.
type Metadata struct {
	Version    string
	UpdatedAt  string
	LegalBasis string
}

// Store is an immutable code lookup table. It is safe for concurrent reads.
type Store struct {
	byCode map[string]Rule
	meta   Metadata
}

// NormalizeCode strips separators from an NCM code and checks it is exactly eight digits.
func NormalizeCode(code string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(code) {
		switch {
		case r == '.' || r == '-' || r == ' ':
			continue
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			return "", false
		}
	}
	normalized := b.String()
	if len(normalized) != CodeLength {
		return "", false
	}
	return normalized, true
}

// New builds a store. Invalid codes and codes listed twice with conflicting treatment are configuration errors.
func New(rules []Rule, meta Metadata) (*Store, error) {
	byCode := make(map[string]Rule, len(rules))
	for i, rule := range rules {
		code, ok := NormalizeCode(rule.Code)
		if !ok {
			return nil, fmt.Errorf("%w: rule %d has invalid NCM code %q", common.ErrInvalidConfig, i, rule.Code)
		}
		rule.Code = code

		if existing, dup := byCode[code]; dup {
			if existing.SinglePhase != rule.SinglePhase {
				return nil, fmt.Errorf("%w: NCM %s listed as both single-phase and not single-phase",
					common.ErrInvalidConfig, code)
			}
			continue
		}
		byCode[code] = rule
	}

	if meta.LegalBasis == "" {
		meta.LegalBasis = DefaultLegalBasis
	}

	return &Store{byCode: byCode, meta: meta}, nil
}

// Lookup finds the rule for an exact normalized code. Empty or malformed codes are absent.
func (s *Store) Lookup(code string) (Rule, bool) {
	normalized, ok := NormalizeCode(code)
	if !ok {
		return Rule{}, false
	}
	rule, ok := s.byCode[normalized]
	return rule, ok
}

// Len returns the number of distinct codes.
func (s *Store) Len() int {
	return len(s.byCode)
}

// Metadata returns the table metadata.
func (s *Store) Metadata() Metadata {
	return s.meta
}

// BaseLegal returns the legal basis cited in reports.
func (s *Store) BaseLegal() string {
	return s.meta.LegalBasis
}

// Categories returns the sorted distinct categories of single-phase rules.
func (s *Store) Categories() []string {
	seen := make(map[string]struct{})
	for _, rule := range s.byCode {
		if rule.SinglePhase && rule.Category != "" {
			seen[rule.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
