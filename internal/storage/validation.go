// Package storage provides the SQLite persistence layer for the learned cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/revfinder/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrInvalidLearned  = errors.New("invalid learned entry")
	ErrInvalidDestPath = errors.New("invalid destination path")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateLearnedEntry checks the entry is keyed by its normalized description and has a known origin.
func validateLearnedEntry(entry *model.LearnedEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: learned entry", ErrNilParameter)
	}
	if strings.TrimSpace(entry.Key) == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidLearned)
	}
	if model.NormalizeDescription(entry.Key) != entry.Key {
		return fmt.Errorf("%w: key %q is not normalized", ErrInvalidLearned, entry.Key)
	}
	if strings.TrimSpace(entry.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidLearned)
	}

	switch entry.Origin {
	case model.OriginExternal, model.OriginManual:
	default:
		return fmt.Errorf("%w: unknown origin %q", ErrInvalidLearned, entry.Origin)
	}

	if entry.Hits < 0 {
		return fmt.Errorf("%w: negative hit count", ErrInvalidLearned)
	}
	return nil
}
