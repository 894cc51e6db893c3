// Package service defines the interfaces shared between the resolver and its collaborators.
package service

import (
	"context"

	"github.com/Veraticus/revfinder/internal/model"
)

// LearnedStore is the durable backing store of the learned cache.
// Writes are atomic per entry; a crash never leaves a partial entry.
type LearnedStore interface {
	// LoadLearned returns every stored entry.
	LoadLearned(ctx context.Context) ([]model.LearnedEntry, error)
	// SaveLearned inserts or replaces the entry with the same key.
	SaveLearned(ctx context.Context, entry *model.LearnedEntry) error
	// ImportLearned saves many entries atomically: all of them or none.
	ImportLearned(ctx context.Context, entries []model.LearnedEntry) error
	// DeleteLearned removes an entry. Returns common.ErrNotFound when the key is absent.
	DeleteLearned(ctx context.Context, key string) error
	// RecordHit increments the entry's hit count and the saved external calls counter.
	RecordHit(ctx context.Context, key string) error
	// SavedCalls returns the number of external calls avoided by cache hits.
	SavedCalls(ctx context.Context) (int64, error)
	Close() error
}

// Classifier resolves a product the local tiers could not. Implementations may be slow and costly.
type Classifier interface {
	Classify(ctx context.Context, req model.ClassifyRequest) (model.Verdict, error)
}
