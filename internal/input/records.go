// Package input loads parsed invoice line items from JSON files.
//
// Each file holds one JSON array of product records as produced by the invoice
// parser. Decimal fields may be JSON numbers or strings.
package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/bmatcuk/doublestar/v4"
)

// Stdin is the path that reads records from standard input.
const Stdin = "-"

// ExpandPatterns resolves plain paths and doublestar globs into a sorted, de-duplicated file list.
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range patterns {
		if p == Stdin {
			add(p)
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			add(filepath.Clean(p))
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return nil, fmt.Errorf("%w: invalid input pattern %q", common.ErrInvalidConfig, p)
		}
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: no input files match %q", common.ErrMissingConfig, p)
		}
		for _, m := range matches {
			add(filepath.Clean(m))
		}
	}

	sort.Strings(files)
	return files, nil
}

// ReadRecords decodes one JSON array of records. Records without a line number
// are numbered by their position, starting at 1.
func ReadRecords(r io.Reader) ([]model.ProductRecord, error) {
	var records []model.ProductRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	for i := range records {
		if records[i].Line == 0 {
			records[i].Line = i + 1
		}
	}
	return records, nil
}

// LoadRecords reads every file matched by patterns, in sorted path order.
func LoadRecords(patterns []string, stdin io.Reader) ([]model.ProductRecord, error) {
	files, err := ExpandPatterns(patterns)
	if err != nil {
		return nil, err
	}

	var all []model.ProductRecord
	for _, path := range files {
		records, err := loadFile(path, stdin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, records...)
	}
	return all, nil
}

func loadFile(path string, stdin io.Reader) ([]model.ProductRecord, error) {
	if path == Stdin {
		return ReadRecords(stdin)
	}

	f, err := os.Open(path) // #nosec G304 - input paths are provided by the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", common.ErrMissingConfig, err)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return ReadRecords(f)
}
