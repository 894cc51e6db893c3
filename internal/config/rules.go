package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/keyword"
	"github.com/Veraticus/revfinder/internal/rules"
	"gopkg.in/yaml.v3"
)

// EmbeddedSource names the built-in rules table in logs and reports.
const EmbeddedSource = "embedded"

//go:embed ncm_rules.yaml
var defaultRules []byte

// DefaultRules returns a copy of the built-in rules file.
func DefaultRules() []byte {
	return bytes.Clone(defaultRules)
}

// RulesFile is the on-disk representation of the rule and keyword tables.
type RulesFile struct {
	Metadata   RulesMetadata   `yaml:"metadata"`
	Rules      []RuleEntry     `yaml:"rules"`
	Categories []CategoryEntry `yaml:"categories"`
}

// RulesMetadata describes a rules file revision.
type RulesMetadata struct {
	Version    string `yaml:"version"`
	UpdatedAt  string `yaml:"updated_at"`
	LegalBasis string `yaml:"legal_basis"`
}

// RuleEntry is one NCM code in the rules file.
type RuleEntry struct {
	Code        string `yaml:"code"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	SinglePhase bool   `yaml:"single_phase"`
}

// CategoryEntry is one keyword category in the rules file. File order is evaluation order.
type CategoryEntry struct {
	Name          string   `yaml:"name"`
	SuggestedCode string   `yaml:"suggested_code"`
	Brands        []string `yaml:"brands"`
	Terms         []string `yaml:"terms"`
	WholeWord     []string `yaml:"whole_word"`
}

// Tables holds the compiled lookup tables for one process.
type Tables struct {
	Rules    *rules.Store
	Keywords *keyword.Matcher
	Source   string
}

// ParseRules decodes a rules file. Unknown fields are rejected.
func ParseRules(data []byte) (*RulesFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f RulesFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: rules file is empty", common.ErrInvalidConfig)
		}
		return nil, fmt.Errorf("%w: decoding rules file: %w", common.ErrInvalidConfig, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("%w: rules file defines no NCM rules", common.ErrInvalidConfig)
	}
	return &f, nil
}

// LoadRulesFile reads and decodes the rules file at path, or the embedded table when path is empty.
func LoadRulesFile(path string) (*RulesFile, error) {
	if path == "" {
		return ParseRules(defaultRules)
	}

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: rules file %s not found", common.ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	return ParseRules(data)
}

// Build compiles the rule store and keyword matcher.
func (f *RulesFile) Build() (*rules.Store, *keyword.Matcher, error) {
	rs := make([]rules.Rule, len(f.Rules))
	for i, r := range f.Rules {
		rs[i] = rules.Rule{
			Code:        r.Code,
			Category:    r.Category,
			Description: r.Description,
			SinglePhase: r.SinglePhase,
		}
	}
	store, err := rules.New(rs, rules.Metadata{
		Version:    f.Metadata.Version,
		UpdatedAt:  f.Metadata.UpdatedAt,
		LegalBasis: f.Metadata.LegalBasis,
	})
	if err != nil {
		return nil, nil, err
	}

	cats := make([]keyword.Category, len(f.Categories))
	for i, c := range f.Categories {
		cats[i] = keyword.Category{
			Name:          c.Name,
			SuggestedCode: c.SuggestedCode,
			Brands:        c.Brands,
			Terms:         c.Terms,
			WholeWord:     c.WholeWord,
		}
	}
	matcher, err := keyword.New(cats)
	if err != nil {
		return nil, nil, err
	}

	return store, matcher, nil
}

// LoadTables loads and compiles the tables. Any failure is a configuration error that must abort startup.
func LoadTables(path string) (*Tables, error) {
	f, err := LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	store, matcher, err := f.Build()
	if err != nil {
		return nil, err
	}

	source := path
	if source == "" {
		source = EmbeddedSource
	}
	return &Tables{Rules: store, Keywords: matcher, Source: source}, nil
}
